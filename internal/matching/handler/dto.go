package handler

import (
	"fmt"
	"time"

	"match-service/internal/matching/model"
)

// recordDTO is an item as the registry sends it.
type recordDTO struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title" validate:"max=500"`
	Comments      string     `json:"comments" validate:"max=5000"`
	Description   string     `json:"description" validate:"max=5000"`
	Location      string     `json:"location" validate:"max=500"`
	FoundLocation string     `json:"found_location" validate:"max=500"`
	CategoryID    int64      `json:"category_id"`
	CategoryName  string     `json:"category_name"`
	DateReported  *time.Time `json:"date_reported"`
	Photos        []string   `json:"photos"`
	PhotoFilename string     `json:"photo_filename"`
	Status        string     `json:"status" validate:"required"`
}

func (d recordDTO) toRecord() (model.Record, error) {
	disp, ok := model.ParseDisposition(d.Status)
	if !ok {
		return model.Record{}, fmt.Errorf("record %d: unknown status %q", d.ID, d.Status)
	}
	comments := d.Comments
	if comments == "" {
		comments = d.Description
	}
	r := model.Record{
		ID:            d.ID,
		Title:         d.Title,
		Comments:      comments,
		Location:      d.Location,
		FoundLocation: d.FoundLocation,
		CategoryID:    d.CategoryID,
		CategoryName:  d.CategoryName,
		Photos:        d.Photos,
		PhotoFilename: d.PhotoFilename,
		Disposition:   disp,
	}
	if d.DateReported != nil {
		r.ReportedAt = *d.DateReported
	}
	return r, nil
}

func toRecords(in []recordDTO) ([]model.Record, error) {
	out := make([]model.Record, 0, len(in))
	for _, d := range in {
		r, err := d.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// optionsDTO overrides the configured defaults field by field.
type optionsDTO struct {
	Weights       map[string]float64   `json:"weights"`
	CategoryBonus *float64             `json:"category_bonus"`
	Temporal      *model.TemporalRules `json:"temporal"`
	TextWeight    *float64             `json:"text_weight"`
	ImageWeight   *float64             `json:"image_weight"`
	Limit         *int                 `json:"limit"`
}

func (o *optionsDTO) apply(base model.RankOptions) (model.RankOptions, error) {
	out := base
	if o == nil {
		return out, nil
	}
	if o.Weights != nil {
		w, err := model.ParseFieldWeights(o.Weights)
		if err != nil {
			return out, err
		}
		out.Weights = w
	}
	if o.CategoryBonus != nil {
		out.CategoryBonus = *o.CategoryBonus
	}
	if o.Temporal != nil {
		out.Temporal = *o.Temporal
	}
	if o.TextWeight != nil {
		out.TextWeight = *o.TextWeight
	}
	if o.ImageWeight != nil {
		out.ImageWeight = *o.ImageWeight
	}
	if o.Limit != nil {
		out.Limit = *o.Limit
	}
	return out, nil
}

type rankRequest struct {
	Query   recordDTO   `json:"query"`
	Pool    []recordDTO `json:"pool" validate:"dive"`
	Options *optionsDTO `json:"options"`
}

type rankResponse struct {
	Suggestions []model.ScoredSuggestion `json:"suggestions"`
	HasMore     bool                     `json:"has_more"`
}

type similarRequest struct {
	Title      string      `json:"title" validate:"required,max=500"`
	CategoryID int64       `json:"category_id"`
	Pool       []recordDTO `json:"pool" validate:"dive"`
	Threshold  *float64    `json:"threshold" validate:"omitempty,gte=0,lte=100"`
}

type similarResponse struct {
	Similars []model.ScoredSuggestion `json:"similars"`
}

type explainRequest struct {
	Item      recordDTO   `json:"item"`
	Candidate recordDTO   `json:"candidate"`
	Options   *optionsDTO `json:"options"`
}

type pairsRequest struct {
	Pool      []recordDTO        `json:"pool" validate:"dive"`
	Weights   map[string]float64 `json:"weights"`
	Threshold *float64           `json:"threshold" validate:"omitempty,gte=0,lte=100"`
}

type pairsResponse struct {
	Pairs     []model.CandidatePair `json:"pairs"`
	Threshold float64               `json:"threshold"`
	Imported  int                   `json:"imported"`
	Skipped   int                   `json:"skipped,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
