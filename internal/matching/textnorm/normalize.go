package textnorm

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/french"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"match-service/internal/matching/model"
)

// A stem can land on a stop word or a synonym variant ("passe" -> "pass"),
// so the pipeline is rerun on its own output until it stops changing.
const maxPasses = 4

var (
	nonToken   = regexp.MustCompile(`[^a-z0-9\s]+`)
	spaceSplit = regexp.MustCompile(`\s+`)
)

// ligatures maps letters with no canonical decomposition; applied after lowercasing.
var ligatures = strings.NewReplacer(
	"œ", "oe", "æ", "ae", "ß", "ss",
	"ø", "o", "ł", "l", "đ", "d", "ð", "d", "þ", "th",
)

type group struct {
	canonical string         // folded canonical term
	re        *regexp.Regexp // all folded variants, longest first
}

type hitRule struct {
	canonical string
	variant   string         // lowercased, as declared
	re        *regexp.Regexp // matches the variant in raw lowercase text
}

// Normalizer turns free text into a space separated stream of stemmed tokens.
// It is immutable once built and safe for concurrent use.
type Normalizer struct {
	groups []group
	hits   []hitRule
	stop   map[string]struct{}
}

// New compiles the tables. Variants and stop words are folded the same way
// the input is, so accented spellings keep matching.
func New(t Tables) *Normalizer {
	n := &Normalizer{stop: make(map[string]struct{}, len(t.StopWords))}
	for _, w := range t.StopWords {
		if f := Fold(w); f != "" {
			n.stop[f] = struct{}{}
		}
	}
	for _, g := range t.Synonyms {
		canon := Fold(g.Canonical)
		seen := make(map[string]struct{})
		variants := make([]string, 0, len(g.Variants))
		for _, v := range g.Variants {
			fv := Fold(v)
			if fv == "" {
				continue
			}
			if _, ok := seen[fv]; !ok {
				seen[fv] = struct{}{}
				variants = append(variants, fv)
			}
			if lv := strings.ToLower(strings.TrimSpace(v)); lv != "" {
				n.hits = append(n.hits, hitRule{canonical: g.Canonical, variant: lv, re: rawWordRegexp(lv)})
			}
		}
		if len(variants) == 0 {
			continue
		}
		// "cle usb" must be tried before "cle"
		sort.SliceStable(variants, func(i, j int) bool {
			return utf8.RuneCountInString(variants[i]) > utf8.RuneCountInString(variants[j])
		})
		alts := make([]string, len(variants))
		for i, v := range variants {
			alts[i] = phrasePattern(v)
		}
		n.groups = append(n.groups, group{
			canonical: canon,
			re:        regexp.MustCompile(`\b(?:` + strings.Join(alts, "|") + `)\b`),
		})
	}
	return n
}

// Normalize never fails; empty or blank input gives "".
func (n *Normalizer) Normalize(text string) string {
	out := n.pass(text)
	for i := 1; i < maxPasses; i++ {
		next := n.pass(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

// Tokens is Normalize split on spaces.
func (n *Normalizer) Tokens(text string) []string {
	return strings.Fields(n.Normalize(text))
}

func (n *Normalizer) pass(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	s := Fold(text)
	for _, g := range n.groups {
		s = g.re.ReplaceAllLiteralString(s, g.canonical)
	}
	s = nonToken.ReplaceAllString(s, " ")

	toks := strings.Fields(s)
	out := toks[:0]
	for _, t := range toks {
		if _, stop := n.stop[t]; stop {
			continue
		}
		if st := stem(t); st != "" {
			out = append(out, st)
		}
	}
	return strings.Join(out, " ")
}

// SynonymHits lists the declared variants written as such in any of the raw
// texts (case-insensitive, accents significant), as (canonical, variant) in
// declaration order, each pair once.
func (n *Normalizer) SynonymHits(texts ...string) []model.SynonymHit {
	lower := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			lower = append(lower, strings.ToLower(t))
		}
	}
	hits := make([]model.SynonymHit, 0)
	seen := make(map[model.SynonymHit]struct{})
	for _, h := range n.hits {
		hit := model.SynonymHit{Canonical: h.canonical, Variant: h.variant}
		if _, dup := seen[hit]; dup {
			continue
		}
		for _, l := range lower {
			if h.re.MatchString(l) {
				seen[hit] = struct{}{}
				hits = append(hits, hit)
				break
			}
		}
	}
	return hits
}

// Fold lowercases and strips diacritics: "Clé USB" -> "cle usb".
func Fold(s string) string {
	s = ligatures.Replace(strings.ToLower(s))
	// transformers keep state, build one per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func stem(tok string) string {
	env := snowballstem.NewEnv(tok)
	french.Stem(env)
	return env.Current()
}

func phrasePattern(v string) string {
	words := spaceSplit.Split(strings.TrimSpace(v), -1)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, `\s+`)
}

// rawWordRegexp bounds v by non-letters; \b is ASCII-only and would miss "clé".
func rawWordRegexp(v string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])` + phrasePattern(v) + `(?:[^\p{L}\p{N}_]|$)`)
}
