package grading

import (
	"fmt"
	"math"

	"github.com/noah-isme/sma-grade-engine/internal/models"
	appErrors "github.com/noah-isme/sma-grade-engine/pkg/errors"
)

const weightTolerance = 1e-9

// ValidatePolicy checks a policy definition before it is stored. It is the only
// place weight configuration is rejected; resolution never re-validates.
func ValidatePolicy(p models.GradingPolicy) error {
	if p.Name == "" {
		return appErrors.Clone(appErrors.ErrValidation, "policy name required")
	}
	if !p.Method.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported grading method %s", p.Method))
	}
	if p.PassMark < 0 || p.PassMark > 100 || math.IsNaN(p.PassMark) {
		return appErrors.Clone(appErrors.ErrValidation, "pass mark must be between 0 and 100")
	}
	weights := []float64{p.WeightQA1, p.WeightQA2, p.WeightEndOfTerm}
	for _, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return appErrors.Clone(appErrors.ErrInvalidWeightConfiguration, "weights must be non-negative")
		}
	}
	if p.Method == models.GradingMethodWeightedAverage {
		total := p.WeightQA1 + p.WeightQA2 + p.WeightEndOfTerm
		if math.Abs(total-100) > weightTolerance {
			return appErrors.Clone(appErrors.ErrInvalidWeightConfiguration, fmt.Sprintf("weights must sum to 100, got %g", total))
		}
	}
	return nil
}
