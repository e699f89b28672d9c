package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-grade-engine/internal/models"
)

const assessmentColumns = `id, student_id, subject_id, class_id, term_id, assessment_type, score, is_absent, created_at, updated_at`

const upsertAssessmentQuery = `INSERT INTO assessment_scores (id, student_id, subject_id, class_id, term_id, assessment_type, score, is_absent, created_at, updated_at)
        VALUES (:id, :student_id, :subject_id, :class_id, :term_id, :assessment_type, :score, :is_absent, :created_at, :updated_at)
        ON CONFLICT (student_id, subject_id, term_id, assessment_type)
        DO UPDATE SET class_id = EXCLUDED.class_id, score = EXCLUDED.score, is_absent = EXCLUDED.is_absent, updated_at = EXCLUDED.updated_at`

// AssessmentRepository persists per component assessment scores.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository creates a new assessment repository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// ListByStudent returns a student's scores, optionally limited to one term.
func (r *AssessmentRepository) ListByStudent(ctx context.Context, studentID, termID string) ([]models.AssessmentScore, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessment_scores WHERE student_id = $1`
	args := []interface{}{studentID}
	if termID != "" {
		query += " AND term_id = $2"
		args = append(args, termID)
	}
	query += " ORDER BY subject_id, assessment_type"
	var scores []models.AssessmentScore
	if err := r.db.SelectContext(ctx, &scores, query, args...); err != nil {
		return nil, fmt.Errorf("list student assessments: %w", err)
	}
	return scores, nil
}

// ListByClassAndTerm returns every score recorded for a class in a term.
func (r *AssessmentRepository) ListByClassAndTerm(ctx context.Context, classID, termID string) ([]models.AssessmentScore, error) {
	const query = `SELECT ` + assessmentColumns + ` FROM assessment_scores WHERE class_id = $1 AND term_id = $2 ORDER BY student_id, subject_id, assessment_type`
	var scores []models.AssessmentScore
	if err := r.db.SelectContext(ctx, &scores, query, classID, termID); err != nil {
		return nil, fmt.Errorf("list class assessments: %w", err)
	}
	return scores, nil
}

// BulkUpsert inserts or updates every score in one transaction. Rows are keyed
// by student, subject, term and type so replaying a batch is idempotent.
func (r *AssessmentRepository) BulkUpsert(ctx context.Context, scores []models.AssessmentScore) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for i := range scores {
		stampAssessment(&scores[i], now)
		if _, err := tx.NamedExecContext(ctx, upsertAssessmentQuery, scores[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("bulk upsert assessment: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assessments: %w", err)
	}
	return nil
}

func stampAssessment(score *models.AssessmentScore, now time.Time) {
	if score.ID == "" {
		score.ID = uuid.NewString()
	}
	if score.CreatedAt.IsZero() {
		score.CreatedAt = now
	}
	score.UpdatedAt = now
}
