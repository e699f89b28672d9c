package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-grade-engine/internal/models"
)

const rankEntryColumns = `student_id, class_id, term_id, class_rank, qa1_rank, qa2_rank, total_students, overall_score, qa1_average, qa2_average`

type rankEntryRow struct {
	models.RankEntry
	RecomputeVersion int64 `db:"recompute_version"`
}

// RankRepository stores the rank entries computed for each class and term.
type RankRepository struct {
	db *sqlx.DB
}

// NewRankRepository creates a rank repository.
func NewRankRepository(db *sqlx.DB) *RankRepository {
	return &RankRepository{db: db}
}

// NextVersion allocates the next recompute version for a class and term.
func (r *RankRepository) NextVersion(ctx context.Context, classID, termID string) (int64, error) {
	const query = `INSERT INTO rank_recompute_versions (class_id, term_id, version) VALUES ($1, $2, 1)
        ON CONFLICT (class_id, term_id) DO UPDATE SET version = rank_recompute_versions.version + 1
        RETURNING version`
	var version int64
	if err := r.db.GetContext(ctx, &version, query, classID, termID); err != nil {
		return 0, fmt.Errorf("allocate recompute version: %w", err)
	}
	return version, nil
}

// Replace swaps the stored rank set for a class and term. A set whose version
// is not newer than the stored one is rejected with ErrStaleRankSet and
// nothing is written.
func (r *RankRepository) Replace(ctx context.Context, set models.RankSet) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	var stored int64
	err = tx.GetContext(ctx, &stored, `SELECT recompute_version FROM rank_sets WHERE class_id = $1 AND term_id = $2 FOR UPDATE`, set.ClassID, set.TermID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("lock rank set: %w", err)
	}
	if err == nil && stored >= set.RecomputeVersion {
		tx.Rollback() //nolint:errcheck
		return ErrStaleRankSet
	}

	const upsertSet = `INSERT INTO rank_sets (class_id, term_id, policy_id, recompute_version, computed_at)
        VALUES (:class_id, :term_id, :policy_id, :recompute_version, :computed_at)
        ON CONFLICT (class_id, term_id)
        DO UPDATE SET policy_id = EXCLUDED.policy_id, recompute_version = EXCLUDED.recompute_version, computed_at = EXCLUDED.computed_at`
	if _, err := tx.NamedExecContext(ctx, upsertSet, set); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("upsert rank set: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rank_entries WHERE class_id = $1 AND term_id = $2`, set.ClassID, set.TermID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear rank entries: %w", err)
	}
	const insertEntry = `INSERT INTO rank_entries (` + rankEntryColumns + `, recompute_version)
        VALUES (:student_id, :class_id, :term_id, :class_rank, :qa1_rank, :qa2_rank, :total_students, :overall_score, :qa1_average, :qa2_average, :recompute_version)`
	for _, entry := range set.Entries {
		row := rankEntryRow{RankEntry: entry, RecomputeVersion: set.RecomputeVersion}
		if _, err := tx.NamedExecContext(ctx, insertEntry, row); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert rank entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rank set: %w", err)
	}
	return nil
}

// FindByClassAndTerm returns the stored rank set or sql.ErrNoRows.
func (r *RankRepository) FindByClassAndTerm(ctx context.Context, classID, termID string) (*models.RankSet, error) {
	var set models.RankSet
	const header = `SELECT class_id, term_id, policy_id, recompute_version, computed_at FROM rank_sets WHERE class_id = $1 AND term_id = $2`
	if err := r.db.GetContext(ctx, &set, header, classID, termID); err != nil {
		return nil, err
	}
	const entries = `SELECT ` + rankEntryColumns + ` FROM rank_entries WHERE class_id = $1 AND term_id = $2 ORDER BY student_id`
	if err := r.db.SelectContext(ctx, &set.Entries, entries, classID, termID); err != nil {
		return nil, fmt.Errorf("list rank entries: %w", err)
	}
	return &set, nil
}
