package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-grade-engine/internal/grading"
	"github.com/noah-isme/sma-grade-engine/internal/models"
	"github.com/noah-isme/sma-grade-engine/internal/repository"
	appErrors "github.com/noah-isme/sma-grade-engine/pkg/errors"
	"github.com/noah-isme/sma-grade-engine/pkg/export"
	"github.com/noah-isme/sma-grade-engine/pkg/lock"
)

const defaultResolveConcurrency = 4

type classAssessmentReader interface {
	ListByClassAndTerm(ctx context.Context, classID, termID string) ([]models.AssessmentScore, error)
}

type rosterReader interface {
	ListStudentIDs(ctx context.Context, classID, termID string) ([]string, error)
}

type rankStore interface {
	NextVersion(ctx context.Context, classID, termID string) (int64, error)
	Replace(ctx context.Context, set models.RankSet) error
	FindByClassAndTerm(ctx context.Context, classID, termID string) (*models.RankSet, error)
}

// RankServiceConfig tunes recomputation and rank reads.
type RankServiceConfig struct {
	ResolveConcurrency int
	CacheTTL           time.Duration
}

// RankService is the class rank engine. It recomputes every rank of a class
// and term from the stored assessments and serves the persisted result.
type RankService struct {
	assessments classAssessmentReader
	roster      rosterReader
	policies    activePolicyReader
	ranks       rankStore
	locker      lock.Locker
	cache       *CacheService
	metrics     *MetricsService
	cfg         RankServiceConfig
	logger      *zap.Logger
}

// NewRankService constructs the rank engine.
func NewRankService(assessments classAssessmentReader, roster rosterReader, policies activePolicyReader, ranks rankStore, locker lock.Locker, cache *CacheService, metrics *MetricsService, cfg RankServiceConfig, logger *zap.Logger) *RankService {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	if cfg.ResolveConcurrency <= 0 {
		cfg.ResolveConcurrency = defaultResolveConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RankService{
		assessments: assessments,
		roster:      roster,
		policies:    policies,
		ranks:       ranks,
		locker:      locker,
		cache:       cache,
		metrics:     metrics,
		cfg:         cfg,
		logger:      logger,
	}
}

type studentMetrics struct {
	overall *float64
	qa1     *float64
	qa2     *float64
}

// Recompute rebuilds the whole rank set of a class for a term and persists it.
// Runs for the same class and term are serialized, and a run that loses to a
// newer one fails with CONCURRENT_RECOMPUTE_CONFLICT without writing anything.
func (s *RankService) Recompute(ctx context.Context, classID, termID string) (*models.RankSet, error) {
	if classID == "" || termID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class id and term id are required")
	}
	start := time.Now()
	release, err := s.locker.Acquire(ctx, rankLockKey(classID, termID))
	if err != nil {
		s.metrics.ObserveRecompute(appErrors.ErrConcurrentRecompute.Code, 0, time.Since(start))
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, appErrors.Wrap(err, appErrors.ErrConcurrentRecompute.Code, appErrors.ErrConcurrentRecompute.Status, "rank recompute already running for class term")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock rank recompute")
	}
	defer release()

	set, err := s.recompute(ctx, classID, termID)
	if err != nil {
		s.metrics.ObserveRecompute(appErrors.FromError(err).Code, 0, time.Since(start))
		s.logger.Warn("rank recompute failed", zap.String("class_id", classID), zap.String("term_id", termID), zap.Error(err))
		return nil, err
	}
	s.metrics.ObserveRecompute("ok", len(set.Entries), time.Since(start))

	s.refreshCache(ctx, set)
	s.logger.Info("class ranks recomputed",
		zap.String("class_id", classID),
		zap.String("term_id", termID),
		zap.Int64("version", set.RecomputeVersion),
		zap.Int("students", len(set.Entries)),
		zap.Duration("duration", time.Since(start)),
	)
	return set, nil
}

func (s *RankService) recompute(ctx context.Context, classID, termID string) (*models.RankSet, error) {
	// The version is taken before any read so a later version never sees older data.
	version, err := s.ranks.NextVersion(ctx, classID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate recompute version")
	}
	policy, err := activePolicy(ctx, s.policies)
	if err != nil {
		return nil, err
	}
	rows, err := s.assessments.ListByClassAndTerm(ctx, classID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class assessments")
	}
	roster, err := s.roster.ListStudentIDs(ctx, classID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}

	byStudent := make(map[string][]models.AssessmentScore)
	for _, id := range roster {
		byStudent[id] = nil
	}
	for _, row := range rows {
		byStudent[row.StudentID] = append(byStudent[row.StudentID], row)
	}
	students := make([]string, 0, len(byStudent))
	for id := range byStudent {
		students = append(students, id)
	}
	sort.Strings(students)

	metrics := make([]studentMetrics, len(students))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ResolveConcurrency)
	for i, studentID := range students {
		i, studentID := i, studentID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := resolveStudentMetrics(byStudent[studentID], *policy)
			if err != nil {
				return err
			}
			metrics[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if appErrors.Is(err, appErrors.ErrUnknownAssessmentType) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve class scores")
	}

	set := buildRankSet(classID, termID, students, metrics)
	set.PolicyID = policy.ID
	set.RecomputeVersion = version
	set.ComputedAt = time.Now().UTC()

	if err := s.ranks.Replace(ctx, set); err != nil {
		if errors.Is(err, repository.ErrStaleRankSet) {
			return nil, appErrors.Wrap(err, appErrors.ErrConcurrentRecompute.Code, appErrors.ErrConcurrentRecompute.Status, appErrors.ErrConcurrentRecompute.Message)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist class ranks")
	}
	return &set, nil
}

// resolveStudentMetrics computes the overall score under the policy and the raw
// QA1 and QA2 averages, which ignore the policy.
func resolveStudentMetrics(rows []models.AssessmentScore, policy models.GradingPolicy) (studentMetrics, error) {
	subjects, unknown := grading.GroupComponents(rows)
	if len(unknown) > 0 {
		return studentMetrics{}, appErrors.Clone(appErrors.ErrUnknownAssessmentType, fmt.Sprintf("unknown assessment type %q for student %s", unknown[0].AssessmentType, unknown[0].StudentID))
	}
	var finals, qa1, qa2 []float64
	for _, components := range subjects {
		if result := grading.Resolve(*components, policy); result.Exact != nil {
			finals = append(finals, *result.Exact)
		}
		if components.QA1.Available() {
			qa1 = append(qa1, grading.ClampScore(*components.QA1.Score))
		}
		if components.QA2.Available() {
			qa2 = append(qa2, grading.ClampScore(*components.QA2.Score))
		}
	}
	return studentMetrics{overall: grading.Mean(finals), qa1: grading.Mean(qa1), qa2: grading.Mean(qa2)}, nil
}

// buildRankSet ranks each metric independently on exact values and stores
// them rounded. Every entry carries the full student count, including students
// left unranked.
func buildRankSet(classID, termID string, students []string, metrics []studentMetrics) models.RankSet {
	var overall, qa1, qa2 []grading.Scored
	for i, id := range students {
		if m := metrics[i].overall; m != nil {
			overall = append(overall, grading.Scored{StudentID: id, Value: *m})
		}
		if m := metrics[i].qa1; m != nil {
			qa1 = append(qa1, grading.Scored{StudentID: id, Value: *m})
		}
		if m := metrics[i].qa2; m != nil {
			qa2 = append(qa2, grading.Scored{StudentID: id, Value: *m})
		}
	}
	overallRanks := grading.CompetitionRanks(overall)
	qa1Ranks := grading.CompetitionRanks(qa1)
	qa2Ranks := grading.CompetitionRanks(qa2)

	entries := make([]models.RankEntry, 0, len(students))
	for i, id := range students {
		entries = append(entries, models.RankEntry{
			StudentID:     id,
			ClassID:       classID,
			TermID:        termID,
			ClassRank:     rankOf(overallRanks, id),
			QA1Rank:       rankOf(qa1Ranks, id),
			QA2Rank:       rankOf(qa2Ranks, id),
			TotalStudents: len(students),
			OverallScore:  grading.RoundPtr(metrics[i].overall),
			QA1Average:    grading.RoundPtr(metrics[i].qa1),
			QA2Average:    grading.RoundPtr(metrics[i].qa2),
		})
	}
	return models.RankSet{ClassID: classID, TermID: termID, Entries: entries}
}

func rankOf(ranks map[string]int, studentID string) *int {
	rank, ok := ranks[studentID]
	if !ok {
		return nil
	}
	return &rank
}

// ClassRanks returns the persisted rank set for a class and term.
func (s *RankService) ClassRanks(ctx context.Context, classID, termID string) (*models.RankSet, error) {
	key := rankCacheKey(classID, termID)
	var cached models.RankSet
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}
	set, err := s.ranks.FindByClassAndTerm(ctx, classID, termID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "ranks have not been computed for this class and term")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class ranks")
	}
	if _, err := s.cache.Add(ctx, key, set, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("rank cache fill failed", zap.String("class_id", classID), zap.String("term_id", termID), zap.Error(err))
	}
	return set, nil
}

// refreshCache writes the new set over any cached one while the recompute lock
// is held. Readers only fill an empty key, so they cannot put an older set back.
// When the write fails the key is evicted instead.
func (s *RankService) refreshCache(ctx context.Context, set *models.RankSet) {
	key := rankCacheKey(set.ClassID, set.TermID)
	err := s.cache.Set(ctx, key, set, s.cfg.CacheTTL)
	if err == nil {
		return
	}
	fields := []zap.Field{zap.String("class_id", set.ClassID), zap.String("term_id", set.TermID), zap.Int64("version", set.RecomputeVersion)}
	if evictErr := s.cache.Evict(ctx, key); evictErr != nil {
		s.logger.Error("rank cache may serve stale ranks until expiry", append(fields, zap.Error(err), zap.NamedError("evict_error", evictErr))...)
		return
	}
	s.logger.Warn("rank cache refresh failed, entry evicted", append(fields, zap.Error(err))...)
}

// Export renders the persisted rank sheet of a class and term.
func (s *RankService) Export(ctx context.Context, classID, termID string, format export.Format) ([]byte, string, error) {
	if format != export.FormatCSV && format != export.FormatPDF {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	set, err := s.ClassRanks(ctx, classID, termID)
	if err != nil {
		return nil, "", err
	}
	body, err := export.Render(format, rankDataset(set))
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render rank sheet")
	}
	filename := fmt.Sprintf("ranks_%s_%s.%s", classID, termID, format)
	return body, filename, nil
}

var rankSheetHeaders = []string{"Student", "Class Rank", "Overall", "QA1 Rank", "QA1 Average", "QA2 Rank", "QA2 Average", "Total Students"}

func rankDataset(set *models.RankSet) export.Dataset {
	entries := append([]models.RankEntry(nil), set.Entries...)
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].ClassRank, entries[j].ClassRank
		switch {
		case a != nil && b != nil && *a != *b:
			return *a < *b
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return entries[i].StudentID < entries[j].StudentID
	})

	rows := make([]map[string]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, map[string]string{
			"Student":        e.StudentID,
			"Class Rank":     formatRank(e.ClassRank),
			"Overall":        formatScore(e.OverallScore),
			"QA1 Rank":       formatRank(e.QA1Rank),
			"QA1 Average":    formatScore(e.QA1Average),
			"QA2 Rank":       formatRank(e.QA2Rank),
			"QA2 Average":    formatScore(e.QA2Average),
			"Total Students": strconv.Itoa(e.TotalStudents),
		})
	}
	return export.Dataset{
		Title:    fmt.Sprintf("Class %s ranks", set.ClassID),
		Subtitle: fmt.Sprintf("Term %s, policy %s, computed %s", set.TermID, set.PolicyID, set.ComputedAt.Format(time.RFC3339)),
		Headers:  rankSheetHeaders,
		Rows:     rows,
	}
}

func formatRank(rank *int) string {
	if rank == nil {
		return "-"
	}
	return strconv.Itoa(*rank)
}

func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return strconv.FormatFloat(*score, 'f', 2, 64)
}

func rankLockKey(classID, termID string) string {
	return "rank-recompute:" + classID + ":" + termID
}

func rankCacheKey(classID, termID string) string {
	return "ranks:" + classID + ":" + termID
}
