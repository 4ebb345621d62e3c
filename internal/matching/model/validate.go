package model

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate fails fast on options that would make scores meaningless.
func (o RankOptions) Validate() error {
	if err := o.Weights.Validate(); err != nil {
		return err
	}
	for name, v := range map[string]float64{
		"text_weight":    o.TextWeight,
		"image_weight":   o.ImageWeight,
		"category_bonus": o.CategoryBonus,
		"near_days":      o.Temporal.NearDays,
		"near_bonus":     o.Temporal.NearBonus,
		"far_days":       o.Temporal.FarDays,
		"far_penalty":    o.Temporal.FarPenalty,
	} {
		if !finite(v) {
			return fmt.Errorf("%w: %s is %v", ErrInvalidConfiguration, name, v)
		}
	}
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	if o.Temporal.FarDays < o.Temporal.NearDays {
		return fmt.Errorf("%w: temporal far_days %v < near_days %v",
			ErrInvalidConfiguration, o.Temporal.FarDays, o.Temporal.NearDays)
	}
	return nil
}

// ValidateThreshold checks a 0..100 score threshold.
func ValidateThreshold(t float64) error {
	if !finite(t) || t < 0 || t > 100 {
		return fmt.Errorf("%w: threshold %v outside [0,100]", ErrInvalidConfiguration, t)
	}
	return nil
}
