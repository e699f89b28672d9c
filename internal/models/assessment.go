package models

import "time"

// AssessmentType identifies which assessment component a score belongs to.
type AssessmentType string

const (
	// AssessmentQA1 is the first quarterly assessment of a term.
	AssessmentQA1 AssessmentType = "QA1"
	// AssessmentQA2 is the second quarterly assessment of a term.
	AssessmentQA2 AssessmentType = "QA2"
	// AssessmentEndOfTerm is the final examination of a term.
	AssessmentEndOfTerm AssessmentType = "END_OF_TERM"
)

// Valid reports whether the assessment type is one of the known components.
func (t AssessmentType) Valid() bool {
	switch t {
	case AssessmentQA1, AssessmentQA2, AssessmentEndOfTerm:
		return true
	}
	return false
}

// AssessmentScore is the canonical per student, subject and component score row.
// Score is only meaningful when IsAbsent is false.
type AssessmentScore struct {
	ID             string         `db:"id" json:"id"`
	StudentID      string         `db:"student_id" json:"student_id"`
	SubjectID      string         `db:"subject_id" json:"subject_id"`
	ClassID        string         `db:"class_id" json:"class_id"`
	TermID         string         `db:"term_id" json:"term_id"`
	AssessmentType AssessmentType `db:"assessment_type" json:"assessment_type"`
	Score          *float64       `db:"score" json:"score"`
	IsAbsent       bool           `db:"is_absent" json:"is_absent"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// ComponentScore is a single component as seen by the score resolver.
type ComponentScore struct {
	Score    *float64 `json:"score"`
	IsAbsent bool     `json:"is_absent"`
}

// Available reports whether the component participates in resolution.
func (c ComponentScore) Available() bool {
	return !c.IsAbsent && c.Score != nil
}

// ScoreComponents groups the three components of one student's subject.
type ScoreComponents struct {
	QA1       ComponentScore `json:"qa1"`
	QA2       ComponentScore `json:"qa2"`
	EndOfTerm ComponentScore `json:"end_of_term"`
}

// SubjectResult is the derived final score and letter grade for one subject.
type SubjectResult struct {
	StudentID   string   `json:"student_id"`
	SubjectID   string   `json:"subject_id"`
	FinalScore  *float64 `json:"final_score"`
	LetterGrade string   `json:"letter_grade"`
}

// StudentResults lists every resolved subject of a student for a term.
type StudentResults struct {
	StudentID string          `json:"student_id"`
	TermID    string          `json:"term_id"`
	PolicyID  string          `json:"policy_id"`
	Subjects  []SubjectResult `json:"subjects"`
}
