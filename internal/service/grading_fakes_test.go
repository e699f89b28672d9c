package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/sma-grade-engine/internal/models"
	"github.com/noah-isme/sma-grade-engine/internal/repository"
	appErrors "github.com/noah-isme/sma-grade-engine/pkg/errors"
)

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

type memPolicyStore struct {
	mu       sync.Mutex
	policies map[string]*models.GradingPolicy
	seq      int
	creates  int
	clock    time.Time
}

func newMemPolicyStore(policies ...models.GradingPolicy) *memPolicyStore {
	store := &memPolicyStore{policies: make(map[string]*models.GradingPolicy), clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	for i := range policies {
		p := policies[i]
		if p.Version == 0 {
			p.Version = 1
		}
		store.policies[p.ID] = &p
	}
	return store
}

func (m *memPolicyStore) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memPolicyStore) List(ctx context.Context, filter models.GradingPolicyFilter) ([]models.GradingPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GradingPolicy
	for _, p := range m.policies {
		if filter.Method != "" && p.Method != filter.Method {
			continue
		}
		if filter.State != "" && p.State != filter.State {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memPolicyStore) FindByID(ctx context.Context, id string) (*models.GradingPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *memPolicyStore) FindActive(ctx context.Context) (*models.GradingPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.policies {
		if p.State == models.PolicyStateActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memPolicyStore) Create(ctx context.Context, policy *models.GradingPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.creates++
	policy.ID = fmt.Sprintf("created-%d", m.seq)
	policy.Version = 1
	policy.CreatedAt = m.tick()
	cp := *policy
	m.policies[policy.ID] = &cp
	return nil
}

func (m *memPolicyStore) Update(ctx context.Context, policy *models.GradingPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.policies[policy.ID]
	if !ok || stored.Version != policy.Version || stored.State != models.PolicyStateDraft {
		return repository.ErrVersionConflict
	}
	policy.Version++
	cp := *policy
	m.policies[policy.ID] = &cp
	return nil
}

func (m *memPolicyStore) Activate(ctx context.Context, id string, expectedVersion int64) (*models.GradingPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.policies[id]
	if !ok || target.Version != expectedVersion || target.State != models.PolicyStateDraft {
		return nil, repository.ErrVersionConflict
	}
	now := m.tick()
	for _, p := range m.policies {
		if p.State == models.PolicyStateActive {
			p.State = models.PolicyStateArchived
			p.ArchivedAt = &now
			p.Version++
		}
	}
	target.State = models.PolicyStateActive
	target.ActivatedAt = &now
	target.Version++
	cp := *target
	return &cp, nil
}

func (m *memPolicyStore) Archive(ctx context.Context, id string, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.policies[id]
	if !ok || target.Version != expectedVersion || target.State != models.PolicyStateDraft {
		return repository.ErrVersionConflict
	}
	target.State = models.PolicyStateArchived
	target.Version++
	return nil
}

func (m *memPolicyStore) state(id string) models.PolicyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policies[id].State
}

type memAssessmentStore struct {
	mu     sync.Mutex
	scores []models.AssessmentScore
}

func (m *memAssessmentStore) ListByStudent(ctx context.Context, studentID, termID string) ([]models.AssessmentScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AssessmentScore
	for _, s := range m.scores {
		if s.StudentID == studentID && (termID == "" || s.TermID == termID) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memAssessmentStore) ListByClassAndTerm(ctx context.Context, classID, termID string) ([]models.AssessmentScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AssessmentScore
	for _, s := range m.scores {
		if s.ClassID == classID && s.TermID == termID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memAssessmentStore) BulkUpsert(ctx context.Context, scores []models.AssessmentScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, score := range scores {
		replaced := false
		for i, existing := range m.scores {
			if existing.StudentID == score.StudentID && existing.SubjectID == score.SubjectID &&
				existing.TermID == score.TermID && existing.AssessmentType == score.AssessmentType {
				m.scores[i] = score
				replaced = true
				break
			}
		}
		if !replaced {
			m.scores = append(m.scores, score)
		}
	}
	return nil
}

func (m *memAssessmentStore) add(studentID, subjectID string, t models.AssessmentType, score *float64, absent bool) {
	m.scores = append(m.scores, models.AssessmentScore{
		StudentID: studentID, SubjectID: subjectID, ClassID: "class-1", TermID: "term-1",
		AssessmentType: t, Score: score, IsAbsent: absent,
	})
}

type staticRoster struct {
	ids []string
}

func (r staticRoster) ListStudentIDs(ctx context.Context, classID, termID string) ([]string, error) {
	return append([]string(nil), r.ids...), nil
}

type memRankStore struct {
	mu       sync.Mutex
	next     int64
	stored   map[string]models.RankSet
	replaces int
}

func newMemRankStore() *memRankStore {
	return &memRankStore{stored: make(map[string]models.RankSet)}
}

func (m *memRankStore) NextVersion(ctx context.Context, classID, termID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	return m.next, nil
}

func (m *memRankStore) Replace(ctx context.Context, set models.RankSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := set.ClassID + "/" + set.TermID
	if current, ok := m.stored[key]; ok && current.RecomputeVersion >= set.RecomputeVersion {
		return repository.ErrStaleRankSet
	}
	m.stored[key] = set
	m.replaces++
	return nil
}

func (m *memRankStore) FindByClassAndTerm(ctx context.Context, classID, termID string) (*models.RankSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.stored[classID+"/"+termID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &set, nil
}

type memCacheRepo struct {
	mu        sync.Mutex
	values    map[string]interface{}
	setErr    error
	deleteErr error
}

func (m *memCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*models.RankSet)) = v.(models.RankSet)
	return nil
}

func (m *memCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	if m.values == nil {
		m.values = make(map[string]interface{})
	}
	m.values[key] = *(value.(*models.RankSet))
	return nil
}

func (m *memCacheRepo) SetIfAbsent(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	if m.values == nil {
		m.values = make(map[string]interface{})
	}
	m.values[key] = *(value.(*models.RankSet))
	return true, nil
}

func (m *memCacheRepo) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.values, key)
	return nil
}
