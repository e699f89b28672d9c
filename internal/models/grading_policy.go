package models

import "time"

// GradingMethod describes how QA1, QA2 and End-of-Term combine into one score.
type GradingMethod string

const (
	// GradingMethodAverageAll averages every available component.
	GradingMethodAverageAll GradingMethod = "AVERAGE_ALL"
	// GradingMethodEndOfTermOnly uses the End-of-Term score alone.
	GradingMethodEndOfTermOnly GradingMethod = "END_OF_TERM_ONLY"
	// GradingMethodWeightedAverage applies percentage weights renormalized over available components.
	GradingMethodWeightedAverage GradingMethod = "WEIGHTED_AVERAGE"
)

// Valid reports whether the method is supported.
func (m GradingMethod) Valid() bool {
	switch m {
	case GradingMethodAverageAll, GradingMethodEndOfTermOnly, GradingMethodWeightedAverage:
		return true
	}
	return false
}

// PolicyState is the lifecycle state of a grading policy.
type PolicyState string

const (
	PolicyStateDraft    PolicyState = "DRAFT"
	PolicyStateActive   PolicyState = "ACTIVE"
	PolicyStateArchived PolicyState = "ARCHIVED"
)

// GradingPolicy is the school-wide rule set used to resolve scores into grades.
// Version increases on every lifecycle transition and guards activation.
type GradingPolicy struct {
	ID              string        `db:"id" json:"id"`
	Name            string        `db:"name" json:"name"`
	Method          GradingMethod `db:"method" json:"method"`
	WeightQA1       float64       `db:"weight_qa1" json:"weight_qa1"`
	WeightQA2       float64       `db:"weight_qa2" json:"weight_qa2"`
	WeightEndOfTerm float64       `db:"weight_end_of_term" json:"weight_end_of_term"`
	PassMark        float64       `db:"pass_mark" json:"pass_mark"`
	State           PolicyState   `db:"lifecycle_state" json:"lifecycle_state"`
	Version         int64         `db:"version" json:"version"`
	CreatedBy       *string       `db:"created_by" json:"created_by,omitempty"`
	ActivatedAt     *time.Time    `db:"activated_at" json:"activated_at,omitempty"`
	ArchivedAt      *time.Time    `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// GradingPolicyFilter narrows policy listings.
type GradingPolicyFilter struct {
	Method GradingMethod
	State  PolicyState
}
