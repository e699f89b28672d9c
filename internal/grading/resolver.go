// Package grading holds the pure score resolution and ranking rules. Nothing in
// this package performs I/O, so every function is safe for concurrent use.
package grading

import (
	"math"

	"github.com/noah-isme/sma-grade-engine/internal/models"
)

// Letter grades produced by the resolver besides the A-F scale.
const (
	GradeAbsent        = "AB"
	GradeNotApplicable = "N/A"
)

// SubjectScore is the outcome of resolving one subject. FinalScore is rounded
// for display and storage; Exact keeps the unrounded value the letter grade was
// taken from.
type SubjectScore struct {
	FinalScore  *float64 `json:"final_score"`
	LetterGrade string   `json:"letter_grade"`
	Exact       *float64 `json:"-"`
}

// Round rounds half to even at two decimals. Only displayed and stored values
// go through it; grading and ranking use exact values.
func Round(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// ClampScore limits a supplied score to [0, 100].
func ClampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(100, math.Max(0, v))
}

// Resolve turns the three components of a subject into a final score and letter
// grade under the given policy. The policy is assumed to be validated.
func Resolve(components models.ScoreComponents, policy models.GradingPolicy) SubjectScore {
	if components.QA1.IsAbsent && components.QA2.IsAbsent && components.EndOfTerm.IsAbsent {
		return SubjectScore{LetterGrade: GradeAbsent}
	}
	exact := exactFinalScore(components, policy)
	return SubjectScore{FinalScore: RoundPtr(exact), LetterGrade: LetterGrade(exact, policy.PassMark), Exact: exact}
}

// FinalScore computes the displayed numeric score, or nil when nothing can be
// resolved.
func FinalScore(components models.ScoreComponents, policy models.GradingPolicy) *float64 {
	return RoundPtr(exactFinalScore(components, policy))
}

// RoundPtr rounds a nullable value.
func RoundPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := Round(*v)
	return &r
}

func exactFinalScore(components models.ScoreComponents, policy models.GradingPolicy) *float64 {
	type weighted struct {
		score  float64
		weight float64
	}
	var available []weighted
	add := func(c models.ComponentScore, weight float64) {
		if c.Available() {
			available = append(available, weighted{score: ClampScore(*c.Score), weight: weight})
		}
	}

	switch policy.Method {
	case models.GradingMethodEndOfTermOnly:
		if !components.EndOfTerm.Available() {
			return nil
		}
		v := ClampScore(*components.EndOfTerm.Score)
		return &v
	case models.GradingMethodAverageAll:
		add(components.QA1, 1)
		add(components.QA2, 1)
		add(components.EndOfTerm, 1)
	case models.GradingMethodWeightedAverage:
		add(components.QA1, policy.WeightQA1)
		add(components.QA2, policy.WeightQA2)
		add(components.EndOfTerm, policy.WeightEndOfTerm)
	default:
		return nil
	}

	var sum, totalWeight float64
	for _, w := range available {
		sum += w.score * w.weight
		totalWeight += w.weight
	}
	if totalWeight == 0 {
		return nil
	}
	v := sum / totalWeight
	return &v
}

// LetterGrade maps an exact final score onto the letter scale. Scores below 60
// fall to D only when they clear the pass mark.
func LetterGrade(finalScore *float64, passMark float64) string {
	if finalScore == nil {
		return GradeNotApplicable
	}
	score := *finalScore
	switch {
	case score >= 80:
		return "A"
	case score >= 70:
		return "B"
	case score >= 60:
		return "C"
	case score >= passMark:
		return "D"
	default:
		return "F"
	}
}

// GroupComponents folds assessment rows into per subject components keyed by
// subject ID. Rows with an unknown assessment type are reported back.
func GroupComponents(rows []models.AssessmentScore) (map[string]*models.ScoreComponents, []models.AssessmentScore) {
	grouped := make(map[string]*models.ScoreComponents)
	var unknown []models.AssessmentScore
	for _, row := range rows {
		comp := models.ComponentScore{Score: row.Score, IsAbsent: row.IsAbsent}
		subject, ok := grouped[row.SubjectID]
		if !ok {
			subject = &models.ScoreComponents{}
		}
		switch row.AssessmentType {
		case models.AssessmentQA1:
			subject.QA1 = comp
		case models.AssessmentQA2:
			subject.QA2 = comp
		case models.AssessmentEndOfTerm:
			subject.EndOfTerm = comp
		default:
			unknown = append(unknown, row)
			continue
		}
		grouped[row.SubjectID] = subject
	}
	return grouped, unknown
}
