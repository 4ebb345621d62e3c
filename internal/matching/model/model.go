package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidConfiguration is returned before any scoring when weights or
// ranking parameters cannot produce a meaningful score.
var ErrInvalidConfiguration = errors.New("invalid matching configuration")

// Disposition says whether an item was reported lost or found.
type Disposition string

const (
	Lost  Disposition = "lost"
	Found Disposition = "found"
)

// Opposite returns the disposition a candidate must have to match d.
func (d Disposition) Opposite() Disposition {
	if d == Lost {
		return Found
	}
	return Lost
}

// ParseDisposition accepts the English and French status labels used by the registry.
func ParseDisposition(s string) (Disposition, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lost", "perdu", "perdue", "status.lost":
		return Lost, true
	case "found", "trouve", "trouvé", "trouvee", "trouvée", "status.found":
		return Found, true
	default:
		return "", false
	}
}

// Record is the read-only view of an item the engine scores.
type Record struct {
	ID            int64       // identifiant côté registre
	Title         string      // titre saisi
	Comments      string      // description libre
	Location      string      // lieu de perte
	FoundLocation string      // lieu où l'objet a été trouvé (FOUND)
	CategoryID    int64       // catégorie
	CategoryName  string      // libellé de catégorie, pour l'affichage
	ReportedAt    time.Time   // zero = inconnu
	Photos        []string    // références de photos, la première est la principale
	PhotoFilename string      // ancien champ photo unique
	Disposition   Disposition // lost | found
}

// LocationLabel is the location compared and displayed for the record.
func (r Record) LocationLabel() string {
	if r.Disposition == Found && strings.TrimSpace(r.FoundLocation) != "" {
		return r.FoundLocation
	}
	return r.Location
}

// PrimaryPhoto returns the first listed photo, the legacy photo, or "".
func (r Record) PrimaryPhoto() string {
	for _, p := range r.Photos {
		if strings.TrimSpace(p) != "" {
			return p
		}
	}
	return strings.TrimSpace(r.PhotoFilename)
}

// EmbeddingText is the text compared against photos.
func (r Record) EmbeddingText() string {
	return r.Title + ". " + r.Comments
}

// Value returns the raw text of a field.
func (r Record) Value(f Field) string {
	switch f {
	case FieldTitle:
		return r.Title
	case FieldComments:
		return r.Comments
	case FieldLocation:
		return r.LocationLabel()
	default:
		return ""
	}
}

// Field names a text field that takes part in scoring.
type Field string

const (
	FieldTitle    Field = "title"
	FieldComments Field = "comments"
	FieldLocation Field = "location"
)

// Fields is the fixed evaluation order.
var Fields = []Field{FieldTitle, FieldComments, FieldLocation}

// ParseField maps user supplied names onto a Field.
func ParseField(s string) (Field, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "title", "titre":
		return FieldTitle, true
	case "comments", "description", "commentaires":
		return FieldComments, true
	case "location", "lieu":
		return FieldLocation, true
	default:
		return "", false
	}
}

// FieldWeights maps a field to its non-negative weight.
type FieldWeights map[Field]float64

// RankingWeights are used for suggestions and the explain endpoint.
func RankingWeights() FieldWeights {
	return FieldWeights{FieldTitle: 0.55, FieldComments: 0.25, FieldLocation: 0.20}
}

// DuplicateWeights are used for duplicate detection and the pairs report.
func DuplicateWeights() FieldWeights {
	return FieldWeights{FieldTitle: 0.5, FieldComments: 0.3, FieldLocation: 0.2}
}

// ParseFieldWeights converts a name->weight map, rejecting unknown names.
func ParseFieldWeights(in map[string]float64) (FieldWeights, error) {
	out := make(FieldWeights, len(in))
	for name, w := range in {
		f, ok := ParseField(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidConfiguration, name)
		}
		out[f] += w
	}
	return out, nil
}

// Validate checks the weights are non-negative and sum to a positive total.
func (w FieldWeights) Validate() error {
	total := 0.0
	for f, v := range w {
		if _, ok := ParseField(string(f)); !ok {
			return fmt.Errorf("%w: unknown field %q", ErrInvalidConfiguration, f)
		}
		if !finite(v) || v < 0 {
			return fmt.Errorf("%w: weight %v for %s", ErrInvalidConfiguration, v, f)
		}
		total += v
	}
	if !finite(total) || total <= 0 {
		return fmt.Errorf("%w: field weights sum to zero", ErrInvalidConfiguration)
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Candidate is an entry of a candidate pool. Pools are ordered, the order is the tie-break.
type Candidate = Record

// TemporalRules adjust the score by how far apart two reports are.
type TemporalRules struct {
	NearDays   float64 `json:"near_days" validate:"gte=0"`
	NearBonus  float64 `json:"near_bonus"`
	FarDays    float64 `json:"far_days" validate:"gte=0"`
	FarPenalty float64 `json:"far_penalty"`
}

// DefaultTemporalRules: +10 within 2 days, -10 beyond 14 days.
func DefaultTemporalRules() TemporalRules {
	return TemporalRules{NearDays: 2, NearBonus: 10, FarDays: 14, FarPenalty: 10}
}

// RankOptions parameterize a ranking call.
type RankOptions struct {
	Weights       FieldWeights  `json:"weights"`
	CategoryBonus float64       `json:"category_bonus"`
	Temporal      TemporalRules `json:"temporal"`
	TextWeight    float64       `json:"text_weight" validate:"gte=0"`
	ImageWeight   float64       `json:"image_weight" validate:"gte=0"`
	Limit         int           `json:"limit" validate:"gt=0"`
}

// DefaultRankOptions mirror the values the registry has always used.
func DefaultRankOptions() RankOptions {
	return RankOptions{
		Weights:       RankingWeights(),
		CategoryBonus: 10,
		Temporal:      DefaultTemporalRules(),
		TextWeight:    0.6,
		ImageWeight:   0.4,
		Limit:         10,
	}
}

// ScoredSuggestion is one ranked candidate.
type ScoredSuggestion struct {
	CandidateID   int64     `json:"id"`
	Title         string    `json:"title"`
	CombinedScore float64   `json:"score"`
	TextScore     float64   `json:"text_score"`
	ImageScore    float64   `json:"image_score"`
	Bonus         float64   `json:"bonus"`
	CategoryName  string    `json:"category_name,omitempty"`
	PrimaryPhoto  string    `json:"photo,omitempty"`
	LocationLabel string    `json:"meta_location,omitempty"`
	ReportedAt    time.Time `json:"date_reported"`
}

// SynonymHit is a (canonical, variant) pair spotted in raw text.
type SynonymHit struct {
	Canonical string `json:"canonical"`
	Variant   string `json:"variant"`
}

// FieldExplanation details the comparison of one field.
type FieldExplanation struct {
	Score         float64      `json:"score"`
	CommonWords   []string     `json:"common_words"`
	SynonymsFound []SynonymHit `json:"synonyms_found"`
	Value1        string       `json:"value1"`
	Value2        string       `json:"value2"`
}

// Explanation is keyed by field.
type Explanation map[Field]FieldExplanation

// ScoreWeights echoes the text/image split used for a combined score.
type ScoreWeights struct {
	Text  float64 `json:"text"`
	Image float64 `json:"image"`
}

// PairReport is the full scoring breakdown for one pair of records.
type PairReport struct {
	ItemID          int64        `json:"item_id"`
	CandidateID     int64        `json:"candidate_id"`
	TextScore       float64      `json:"score_base"`
	Bonus           float64      `json:"bonus"`
	CombinedScore   float64      `json:"score_final"`
	ImageSimilarity float64      `json:"image_similarity"`
	Weights         ScoreWeights `json:"weights"`
	Details         Explanation  `json:"details"`
}

// CandidatePair is a lost/found pair above the report threshold.
type CandidatePair struct {
	LostID      int64       `json:"lost_id"`
	FoundID     int64       `json:"found_id"`
	LostTitle   string      `json:"lost_title"`
	FoundTitle  string      `json:"found_title"`
	Score       float64     `json:"score"`
	Explanation Explanation `json:"explanation"`
}
