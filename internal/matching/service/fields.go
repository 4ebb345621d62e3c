package service

import (
	"sort"

	"match-service/internal/matching/model"
	"match-service/internal/matching/textnorm"
)

// FieldScorer combines per-field fuzzy scores into one text similarity.
type FieldScorer struct {
	norm *textnorm.Normalizer
}

func NewFieldScorer(norm *textnorm.Normalizer) *FieldScorer {
	return &FieldScorer{norm: norm}
}

// Score = round(sum(score*weight) / sum(weight), 2) over fields with a
// positive weight. Weights are validated before anything is scored.
func (fs *FieldScorer) Score(a, b model.Record, w model.FieldWeights) (float64, error) {
	if err := w.Validate(); err != nil {
		return 0, err
	}
	return fs.score(a, b, w), nil
}

func (fs *FieldScorer) score(a, b model.Record, w model.FieldWeights) float64 {
	sum, total := 0.0, 0.0
	for _, f := range model.Fields {
		weight := w[f]
		if weight <= 0 {
			continue
		}
		s := TokenSortRatio(fs.norm.Normalize(a.Value(f)), fs.norm.Normalize(b.Value(f)))
		sum += s * weight
		total += weight
	}
	// Validate guarantees total > 0
	return round2(sum / total)
}

// Explain breaks the text score down per field: score, shared tokens and
// synonym variants spotted in the raw values.
func (fs *FieldScorer) Explain(a, b model.Record, w model.FieldWeights) (model.Explanation, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return fs.explain(a, b, w), nil
}

func (fs *FieldScorer) explain(a, b model.Record, w model.FieldWeights) model.Explanation {
	out := make(model.Explanation, len(model.Fields))
	for _, f := range model.Fields {
		if w[f] <= 0 {
			continue
		}
		raw1, raw2 := a.Value(f), b.Value(f)
		n1, n2 := fs.norm.Normalize(raw1), fs.norm.Normalize(raw2)
		out[f] = model.FieldExplanation{
			Score:         round2(TokenSortRatio(n1, n2)),
			CommonWords:   commonTokens(n1, n2),
			SynonymsFound: fs.norm.SynonymHits(raw1, raw2),
			Value1:        raw1,
			Value2:        raw2,
		}
	}
	return out
}

// commonTokens returns the sorted intersection of two token streams
func commonTokens(a, b string) []string {
	set := make(map[string]struct{})
	for _, t := range splitTokens(a) {
		set[t] = struct{}{}
	}
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, t := range splitTokens(b) {
		if _, ok := set[t]; !ok {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
