package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-grade-engine/internal/models"
)

const policyColumns = `id, name, method, weight_qa1, weight_qa2, weight_end_of_term, pass_mark, lifecycle_state, version, created_by, activated_at, archived_at, created_at, updated_at`

// GradingPolicyRepository persists grading policies and their lifecycle.
// A partial unique index on lifecycle_state = 'ACTIVE' backs the single active policy rule.
type GradingPolicyRepository struct {
	db *sqlx.DB
}

// NewGradingPolicyRepository creates a new repository instance.
func NewGradingPolicyRepository(db *sqlx.DB) *GradingPolicyRepository {
	return &GradingPolicyRepository{db: db}
}

// List returns policies matching the filter, newest first.
func (r *GradingPolicyRepository) List(ctx context.Context, filter models.GradingPolicyFilter) ([]models.GradingPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM grading_policies WHERE 1=1`
	args := []interface{}{}
	if filter.Method != "" {
		query += fmt.Sprintf(" AND method = $%d", len(args)+1)
		args = append(args, filter.Method)
	}
	if filter.State != "" {
		query += fmt.Sprintf(" AND lifecycle_state = $%d", len(args)+1)
		args = append(args, filter.State)
	}
	query += " ORDER BY created_at DESC"

	var policies []models.GradingPolicy
	if err := r.db.SelectContext(ctx, &policies, query, args...); err != nil {
		return nil, fmt.Errorf("list grading policies: %w", err)
	}
	return policies, nil
}

// FindByID returns a policy by ID.
func (r *GradingPolicyRepository) FindByID(ctx context.Context, id string) (*models.GradingPolicy, error) {
	const query = `SELECT ` + policyColumns + ` FROM grading_policies WHERE id = $1`
	var policy models.GradingPolicy
	if err := r.db.GetContext(ctx, &policy, query, id); err != nil {
		return nil, err
	}
	return &policy, nil
}

// FindActive returns the active policy or sql.ErrNoRows when none is active.
func (r *GradingPolicyRepository) FindActive(ctx context.Context) (*models.GradingPolicy, error) {
	const query = `SELECT ` + policyColumns + ` FROM grading_policies WHERE lifecycle_state = 'ACTIVE'`
	var policy models.GradingPolicy
	if err := r.db.GetContext(ctx, &policy, query); err != nil {
		return nil, err
	}
	return &policy, nil
}

// Create inserts a new policy.
func (r *GradingPolicyRepository) Create(ctx context.Context, policy *models.GradingPolicy) error {
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now
	if policy.Version == 0 {
		policy.Version = 1
	}
	const query = `INSERT INTO grading_policies (id, name, method, weight_qa1, weight_qa2, weight_end_of_term, pass_mark, lifecycle_state, version, created_by, created_at, updated_at)
        VALUES (:id, :name, :method, :weight_qa1, :weight_qa2, :weight_end_of_term, :pass_mark, :lifecycle_state, :version, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, policy); err != nil {
		return fmt.Errorf("insert grading policy: %w", err)
	}
	return nil
}

// Update rewrites a draft policy definition guarded by its version.
func (r *GradingPolicyRepository) Update(ctx context.Context, policy *models.GradingPolicy) error {
	policy.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grading_policies SET name = :name, method = :method, weight_qa1 = :weight_qa1, weight_qa2 = :weight_qa2,
        weight_end_of_term = :weight_end_of_term, pass_mark = :pass_mark, version = version + 1, updated_at = :updated_at
        WHERE id = :id AND version = :version AND lifecycle_state = 'DRAFT'`
	res, err := r.db.NamedExecContext(ctx, query, policy)
	if err != nil {
		return fmt.Errorf("update grading policy: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return err
	}
	policy.Version++
	return nil
}

// Activate promotes a draft to active and archives the previously active
// policy in one transaction. expectedVersion must match the draft's version.
func (r *GradingPolicyRepository) Activate(ctx context.Context, id string, expectedVersion int64) (*models.GradingPolicy, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	var current struct {
		ID      string `db:"id"`
		Version int64  `db:"version"`
	}
	err = tx.GetContext(ctx, &current, `SELECT id, version FROM grading_policies WHERE lifecycle_state = 'ACTIVE' FOR UPDATE`)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("lock active grading policy: %w", err)
	default:
		const archive = `UPDATE grading_policies SET lifecycle_state = 'ARCHIVED', archived_at = $2, version = version + 1, updated_at = $2
        WHERE id = $1 AND version = $3 AND lifecycle_state = 'ACTIVE'`
		res, err := tx.ExecContext(ctx, archive, current.ID, now, current.Version)
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, fmt.Errorf("archive grading policy: %w", err)
		}
		if err := expectOneRow(res); err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, err
		}
	}

	const activate = `UPDATE grading_policies SET lifecycle_state = 'ACTIVE', activated_at = $2, version = version + 1, updated_at = $2
        WHERE id = $1 AND version = $3 AND lifecycle_state = 'DRAFT'`
	res, err := tx.ExecContext(ctx, activate, id, now, expectedVersion)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("activate grading policy: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}

	var activated models.GradingPolicy
	if err := tx.GetContext(ctx, &activated, `SELECT `+policyColumns+` FROM grading_policies WHERE id = $1`, id); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("reload grading policy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit policy activation: %w", err)
	}
	return &activated, nil
}

// Archive retires a draft policy.
func (r *GradingPolicyRepository) Archive(ctx context.Context, id string, expectedVersion int64) error {
	now := time.Now().UTC()
	const query = `UPDATE grading_policies SET lifecycle_state = 'ARCHIVED', archived_at = $2, version = version + 1, updated_at = $2
        WHERE id = $1 AND version = $3 AND lifecycle_state = 'DRAFT'`
	res, err := r.db.ExecContext(ctx, query, id, now, expectedVersion)
	if err != nil {
		return fmt.Errorf("archive grading policy: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected != 1 {
		return ErrVersionConflict
	}
	return nil
}
