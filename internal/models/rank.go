package models

import "time"

// RankEntry holds a student's rank positions within a class and term.
// Nil ranks mean the student had nothing to rank on for that metric.
type RankEntry struct {
	StudentID     string   `db:"student_id" json:"student_id"`
	ClassID       string   `db:"class_id" json:"class_id"`
	TermID        string   `db:"term_id" json:"term_id"`
	ClassRank     *int     `db:"class_rank" json:"class_rank"`
	QA1Rank       *int     `db:"qa1_rank" json:"qa1_rank"`
	QA2Rank       *int     `db:"qa2_rank" json:"qa2_rank"`
	TotalStudents int      `db:"total_students" json:"total_students"`
	OverallScore  *float64 `db:"overall_score" json:"overall_score"`
	QA1Average    *float64 `db:"qa1_average" json:"qa1_average"`
	QA2Average    *float64 `db:"qa2_average" json:"qa2_average"`
}

// RankSet is the complete result of one class+term recompute.
type RankSet struct {
	ClassID          string      `db:"class_id" json:"class_id"`
	TermID           string      `db:"term_id" json:"term_id"`
	PolicyID         string      `db:"policy_id" json:"policy_id"`
	RecomputeVersion int64       `db:"recompute_version" json:"recompute_version"`
	ComputedAt       time.Time   `db:"computed_at" json:"computed_at"`
	Entries          []RankEntry `json:"entries"`
}
