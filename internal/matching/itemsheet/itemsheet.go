// Package itemsheet turns a registry export into a candidate pool.
package itemsheet

import (
	"regexp"
	"strings"
	"time"

	"match-service/internal/fileio"
	"match-service/internal/matching/model"
	"match-service/internal/matching/textnorm"
	"match-service/internal/utils"
)

// Mapping lists the accepted header names per column, alternatives split by "|".
type Mapping struct {
	ID            string
	Title         string
	Comments      string
	Location      string
	FoundLocation string
	CategoryID    string
	Category      string
	ReportedAt    string
	Status        string
	Photo         string
	Photos        string
	TZ            *time.Location // for dates without a zone
}

func DefaultMapping() Mapping {
	return Mapping{
		ID:            "id|identifiant|n°",
		Title:         "title|titre|objet",
		Comments:      "comments|commentaires|description",
		Location:      "location|lieu|lieu de perte",
		FoundLocation: "found_location|lieu trouvé|lieu de découverte",
		CategoryID:    "category_id|catégorie id|id catégorie",
		Category:      "category|catégorie",
		ReportedAt:    "date_reported|date de déclaration|date",
		Status:        "status|statut",
		Photo:         "photo_filename|photo",
		Photos:        "photos",
		TZ:            time.UTC,
	}
}

// Result is the imported pool plus what was resolved, for the response and logs.
type Result struct {
	Candidates []model.Candidate
	Skipped    int
	Columns    map[string]string
}

type column struct {
	name string
	want *string
}

// ToCandidates maps rows to candidates. Rows without id or title, or whose
// status is neither lost nor found, are skipped and counted.
func ToCandidates(s fileio.Sheet, m Mapping) Result {
	loc := m.TZ
	if loc == nil {
		loc = time.UTC
	}
	// specific names first so "lieu trouvé" is not taken by "lieu"
	order := []column{
		{"category_id", &m.CategoryID},
		{"id", &m.ID},
		{"category", &m.Category},
		{"found_location", &m.FoundLocation},
		{"location", &m.Location},
		{"title", &m.Title},
		{"comments", &m.Comments},
		{"date_reported", &m.ReportedAt},
		{"status", &m.Status},
		{"photos", &m.Photos},
		{"photo_filename", &m.Photo},
	}
	used := make(map[string]bool)
	cols := make(map[string]string)
	for _, c := range order {
		if k := resolveKey(s.Headers, *c.want, used); k != "" {
			used[k] = true
			cols[c.name] = k
		}
	}

	res := Result{Candidates: make([]model.Candidate, 0, len(s.Rows)), Columns: cols}
	categories := make(map[string]int64)
	get := func(rec map[string]string, name string) string {
		if k, ok := cols[name]; ok {
			return strings.TrimSpace(rec[k])
		}
		return ""
	}

	for _, rec := range s.Rows {
		id, ok := utils.ParseID(get(rec, "id"))
		title := get(rec, "title")
		if !ok || title == "" {
			res.Skipped++
			continue
		}
		disp, ok := model.ParseDisposition(get(rec, "status"))
		if !ok {
			res.Skipped++
			continue
		}

		c := model.Candidate{
			ID:            id,
			Title:         title,
			Comments:      get(rec, "comments"),
			Location:      get(rec, "location"),
			FoundLocation: get(rec, "found_location"),
			CategoryName:  get(rec, "category"),
			Photos:        utils.SplitList(get(rec, "photos")),
			PhotoFilename: get(rec, "photo_filename"),
			Disposition:   disp,
		}
		if t, ok := utils.ParseTimestamp(get(rec, "date_reported"), loc); ok {
			c.ReportedAt = t
		}
		if cid, ok := utils.ParseID(get(rec, "category_id")); ok {
			c.CategoryID = cid
		} else if c.CategoryName != "" {
			// no id column: number category names by first appearance
			key := textnorm.Fold(c.CategoryName)
			if _, seen := categories[key]; !seen {
				categories[key] = int64(len(categories) + 1)
			}
			c.CategoryID = categories[key]
		}
		res.Candidates = append(res.Candidates, c)
	}
	return res
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

func normHeaderKey(s string) string {
	s = textnorm.Fold(strings.TrimSpace(s))
	s = nonWord.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// resolveKey finds the header for want ("a|b|c"): exact, then normalized,
// then the header containing the longest alternative as whole words.
func resolveKey(headers []string, want string, used map[string]bool) string {
	alts := make([]string, 0, 4)
	for _, a := range strings.Split(want, "|") {
		if a = strings.TrimSpace(a); a != "" {
			alts = append(alts, a)
		}
	}
	if len(alts) == 0 {
		return ""
	}
	for _, a := range alts {
		for _, h := range headers {
			if h == a && !used[h] {
				return h
			}
		}
	}

	nAlts := make([]string, len(alts))
	for i, a := range alts {
		nAlts[i] = normHeaderKey(a)
	}
	for _, n := range nAlts {
		for _, h := range headers {
			if !used[h] && normHeaderKey(h) == n {
				return h
			}
		}
	}

	best, bestScore := "", 0
	for _, h := range headers {
		if used[h] {
			continue
		}
		nh := " " + normHeaderKey(h) + " "
		for _, n := range nAlts {
			if n != "" && strings.Contains(nh, " "+n+" ") && len(n) > bestScore {
				best, bestScore = h, len(n)
			}
		}
	}
	return best
}
