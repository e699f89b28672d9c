package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// RosterRepository reads class membership owned by the enrollment module.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository creates a roster reader.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// ListStudentIDs returns the students actively enrolled in a class for a term.
func (r *RosterRepository) ListStudentIDs(ctx context.Context, classID, termID string) ([]string, error) {
	const query = `SELECT DISTINCT student_id FROM enrollments WHERE class_id = $1 AND term_id = $2 AND status = 'ACTIVE' ORDER BY student_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, classID, termID); err != nil {
		return nil, fmt.Errorf("list class roster: %w", err)
	}
	return ids, nil
}
