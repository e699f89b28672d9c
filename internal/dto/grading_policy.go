package dto

import "github.com/noah-isme/sma-grade-engine/internal/models"

// CreateGradingPolicyRequest is the payload for a new draft policy.
type CreateGradingPolicyRequest struct {
	Name            string               `json:"name" validate:"required,max=120"`
	Method          models.GradingMethod `json:"method" validate:"required"`
	WeightQA1       float64              `json:"weight_qa1"`
	WeightQA2       float64              `json:"weight_qa2"`
	WeightEndOfTerm float64              `json:"weight_end_of_term"`
	PassMark        float64              `json:"pass_mark" validate:"gte=0,lte=100"`
}

// UpdateGradingPolicyRequest rewrites a draft. Version must match the stored one.
type UpdateGradingPolicyRequest struct {
	Name            string               `json:"name" validate:"required,max=120"`
	Method          models.GradingMethod `json:"method" validate:"required"`
	WeightQA1       float64              `json:"weight_qa1"`
	WeightQA2       float64              `json:"weight_qa2"`
	WeightEndOfTerm float64              `json:"weight_end_of_term"`
	PassMark        float64              `json:"pass_mark" validate:"gte=0,lte=100"`
	Version         int64                `json:"version" validate:"required,min=1"`
}

// PolicyTransitionRequest carries the version a lifecycle transition expects.
// A zero version means the currently stored one.
type PolicyTransitionRequest struct {
	Version int64 `json:"version" validate:"gte=0"`
}
