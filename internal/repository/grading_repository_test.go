package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-grade-engine/internal/models"
)

func newGradingRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "postgres"), mock, func() { db.Close() }
}

var policyRowColumns = []string{"id", "name", "method", "weight_qa1", "weight_qa2", "weight_end_of_term", "pass_mark", "lifecycle_state", "version", "created_by", "activated_at", "archived_at", "created_at", "updated_at"}

func TestAssessmentRepositoryListByClassAndTerm(t *testing.T) {
	db, mock, cleanup := newGradingRepoMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "subject_id", "class_id", "term_id", "assessment_type", "score", "is_absent", "created_at", "updated_at"}).
		AddRow("a1", "stu-1", "math", "class-1", "term-1", "QA1", 80.5, false, now, now).
		AddRow("a2", "stu-1", "math", "class-1", "term-1", "END_OF_TERM", nil, true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM assessment_scores WHERE class_id = $1 AND term_id = $2")).
		WithArgs("class-1", "term-1").
		WillReturnRows(rows)

	scores, err := repo.ListByClassAndTerm(context.Background(), "class-1", "term-1")
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, models.AssessmentQA1, scores[0].AssessmentType)
	require.NotNil(t, scores[0].Score)
	assert.Equal(t, 80.5, *scores[0].Score)
	assert.Nil(t, scores[1].Score)
	assert.True(t, scores[1].IsAbsent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryListByStudentWithTerm(t *testing.T) {
	db, mock, cleanup := newGradingRepoMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM assessment_scores WHERE student_id = $1 AND term_id = $2 ORDER BY subject_id, assessment_type")).
		WithArgs("stu-1", "term-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	scores, err := repo.ListByStudent(context.Background(), "stu-1", "term-1")
	require.NoError(t, err)
	assert.Empty(t, scores)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryBulkUpsert(t *testing.T) {
	db, mock, cleanup := newGradingRepoMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	score := 72.0
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO assessment_scores").
		WithArgs(sqlmock.AnyArg(), "stu-1", "math", "class-1", "term-1", "QA1", 72.0, false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("ON CONFLICT \\(student_id, subject_id, term_id, assessment_type\\)").
		WithArgs(sqlmock.AnyArg(), "stu-1", "math", "class-1", "term-1", "END_OF_TERM", nil, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	scores := []models.AssessmentScore{
		{StudentID: "stu-1", SubjectID: "math", ClassID: "class-1", TermID: "term-1", AssessmentType: models.AssessmentQA1, Score: &score},
		{StudentID: "stu-1", SubjectID: "math", ClassID: "class-1", TermID: "term-1", AssessmentType: models.AssessmentEndOfTerm, IsAbsent: true},
	}
	require.NoError(t, repo.BulkUpsert(context.Background(), scores))
	assert.NotEmpty(t, scores[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterRepositoryListStudentIDs(t *testing.T) {
	db, mock, cleanup := newGradingRepoMock(t)
	defer cleanup()
	repo := NewRosterRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT student_id FROM enrollments WHERE class_id = $1 AND term_id = $2")).
		WithArgs("class-1", "term-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow("stu-1").AddRow("stu-2"))

	ids, err := repo.ListStudentIDs(context.Background(), "class-1", "term-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-1", "stu-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradingPolicyRepositoryFindActiveNone(t *testing.T) {
	db, mock, cleanup := newGradingRepoMock(t)
	defer cleanup()
	repo := NewGradingPolicyRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM grading_policies WHERE lifecycle_state = 'ACTIVE'")).
		WillReturnRows(sqlmock.NewRows(policyRowColumns))

	_, err := repo.FindActive(context.Background())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradingPolicyRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newGradingRepoMock(t)
	defer cleanup()
	repo := NewGradingPolicyRepository(db)

	mock.ExpectExec("INSERT INTO grading_policies").
		WithArgs(sqlmock.AnyArg(), "Term weights", "WEIGHTED_AVERAGE", 30.0, 30.0, 40.0, 50.0, "DRAFT", int64(1), nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	policy := &models.GradingPolicy{Name: "Term weights", Method: models.GradingMethodWeightedAverage, WeightQA1: 30, WeightQA2: 30, WeightEndOfTerm: 40, PassMark: 50, State: models.PolicyStateDraft}
	require.NoError(t, repo.Create(context.Background(), policy))
	assert.NotEmpty(t, policy.ID)
	assert.Equal(t, int64(1), policy.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradingPolicyRepositoryUpdateVersionConflict(t *testing.T) {
	db, mock, cleanup := newGradingRepoMock(t)
	defer cleanup()
	repo := NewGradingPolicyRepository(db)

	mock.ExpectExec("UPDATE grading_policies SET name").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.GradingPolicy{ID: "p1", Name: "x", Method: models.GradingMethodAverageAll, Version: 3})
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradingPolicyRepositoryActivateArchivesPrevious(t *testing.T) {
	db, mock, cleanup := newGradingRepoMock(t)
	defer cleanup()
	repo := NewGradingPolicyRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, version FROM grading_policies WHERE lifecycle_state = 'ACTIVE' FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version"}).AddRow("old", 4))
	mock.ExpectExec("UPDATE grading_policies SET lifecycle_state = 'ARCHIVED'").
		WithArgs("old", sqlmock.AnyArg(), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE grading_policies SET lifecycle_state = 'ACTIVE'").
		WithArgs("new", sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM grading_policies WHERE id = $1")).
		WithArgs("new").
		WillReturnRows(sqlmock.NewRows(policyRowColumns).
			AddRow("new", "EOT only", "END_OF_TERM_ONLY", 0.0, 0.0, 0.0, 50.0, "ACTIVE", 2, nil, now, nil, now, now))
	mock.ExpectCommit()

	policy, err := repo.Activate(context.Background(), "new", 1)
	require.NoError(t, err)
	assert.Equal(t, models.PolicyStateActive, policy.State)
	assert.Equal(t, int64(2), policy.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradingPolicyRepositoryActivateStaleDraftRollsBack(t *testing.T) {
	db, mock, cleanup := newGradingRepoMock(t)
	defer cleanup()
	repo := NewGradingPolicyRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version"}))
	mock.ExpectExec("UPDATE grading_policies SET lifecycle_state = 'ACTIVE'").
		WithArgs("new", sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Activate(context.Background(), "new", 1)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRankRepositoryNextVersion(t *testing.T) {
	db, mock, cleanup := newGradingRepoMock(t)
	defer cleanup()
	repo := NewRankRepository(db)

	mock.ExpectQuery("INSERT INTO rank_recompute_versions").
		WithArgs("class-1", "term-1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(7))

	version, err := repo.NextVersion(context.Background(), "class-1", "term-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRankRepositoryReplace(t *testing.T) {
	db, mock, cleanup := newGradingRepoMock(t)
	defer cleanup()
	repo := NewRankRepository(db)

	one := 1
	overall := 81.0
	set := models.RankSet{
		ClassID: "class-1", TermID: "term-1", PolicyID: "p1", RecomputeVersion: 3, ComputedAt: time.Now(),
		Entries: []models.RankEntry{{StudentID: "stu-1", ClassID: "class-1", TermID: "term-1", ClassRank: &one, TotalStudents: 1, OverallScore: &overall}},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT recompute_version FROM rank_sets WHERE class_id = $1 AND term_id = $2 FOR UPDATE")).
		WithArgs("class-1", "term-1").
		WillReturnRows(sqlmock.NewRows([]string{"recompute_version"}).AddRow(2))
	mock.ExpectExec("INSERT INTO rank_sets").
		WithArgs("class-1", "term-1", "p1", int64(3), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM rank_entries WHERE class_id = $1 AND term_id = $2")).
		WithArgs("class-1", "term-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO rank_entries").
		WithArgs("stu-1", "class-1", "term-1", 1, nil, nil, 1, 81.0, nil, nil, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Replace(context.Background(), set))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRankRepositoryReplaceRejectsStaleVersion(t *testing.T) {
	db, mock, cleanup := newGradingRepoMock(t)
	defer cleanup()
	repo := NewRankRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT recompute_version FROM rank_sets").
		WithArgs("class-1", "term-1").
		WillReturnRows(sqlmock.NewRows([]string{"recompute_version"}).AddRow(5))
	mock.ExpectRollback()

	err := repo.Replace(context.Background(), models.RankSet{ClassID: "class-1", TermID: "term-1", RecomputeVersion: 4})
	assert.ErrorIs(t, err, ErrStaleRankSet)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRankRepositoryFindByClassAndTerm(t *testing.T) {
	db, mock, cleanup := newGradingRepoMock(t)
	defer cleanup()
	repo := NewRankRepository(db)

	now := time.Now()
	mock.ExpectQuery("FROM rank_sets WHERE class_id = \\$1 AND term_id = \\$2").
		WithArgs("class-1", "term-1").
		WillReturnRows(sqlmock.NewRows([]string{"class_id", "term_id", "policy_id", "recompute_version", "computed_at"}).
			AddRow("class-1", "term-1", "p1", 3, now))
	mock.ExpectQuery("FROM rank_entries WHERE class_id = \\$1 AND term_id = \\$2 ORDER BY student_id").
		WithArgs("class-1", "term-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "class_id", "term_id", "class_rank", "qa1_rank", "qa2_rank", "total_students", "overall_score", "qa1_average", "qa2_average"}).
			AddRow("stu-1", "class-1", "term-1", 1, 1, nil, 2, 81.0, 80.0, nil).
			AddRow("stu-2", "class-1", "term-1", nil, nil, nil, 2, nil, nil, nil))

	set, err := repo.FindByClassAndTerm(context.Background(), "class-1", "term-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), set.RecomputeVersion)
	require.Len(t, set.Entries, 2)
	require.NotNil(t, set.Entries[0].ClassRank)
	assert.Equal(t, 1, *set.Entries[0].ClassRank)
	assert.Nil(t, set.Entries[1].ClassRank)
	assert.NoError(t, mock.ExpectationsWereMet())
}
