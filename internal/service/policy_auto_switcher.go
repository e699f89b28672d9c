package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-grade-engine/internal/grading"
	"github.com/noah-isme/sma-grade-engine/internal/models"
	appErrors "github.com/noah-isme/sma-grade-engine/pkg/errors"
	"github.com/noah-isme/sma-grade-engine/pkg/lock"
)

// Auto switch decisions, also used as metric labels.
const (
	SwitchDecisionDisabled      = "disabled"
	SwitchDecisionNotApplicable = "not_applicable"
	SwitchDecisionAlreadyActive = "already_active"
	SwitchDecisionSwitched      = "switched"
)

const (
	autoSwitchLockKey     = "grading-policy:auto-switch"
	autoSwitchPolicyName  = "End of term only (auto)"
	defaultAutoSwitchPass = 50
)

// SwitchDecision is the outcome of one auto switch evaluation.
type SwitchDecision struct {
	Decision string
	Policy   *models.GradingPolicy
	Previous *models.GradingPolicy
	Created  bool
}

// Switched reports whether the active policy changed.
func (d *SwitchDecision) Switched() bool {
	return d != nil && d.Decision == SwitchDecisionSwitched
}

// PolicyAutoSwitcher moves the school onto an end of term only policy when a
// student's submission carries interim scores but no end of term component.
// It changes the active policy for every class.
type PolicyAutoSwitcher struct {
	policies policyStore
	locker   lock.Locker
	enabled  bool
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewPolicyAutoSwitcher constructs the switcher. A nil locker serializes
// evaluations within this process only.
func NewPolicyAutoSwitcher(policies policyStore, locker lock.Locker, enabled bool, metrics *MetricsService, logger *zap.Logger) *PolicyAutoSwitcher {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyAutoSwitcher{policies: policies, locker: locker, enabled: enabled, metrics: metrics, logger: logger}
}

// EndOfTermPending reports whether any subject has an available QA1 or QA2
// score while no subject has an available end of term score.
func EndOfTermPending(scores []models.AssessmentScore) bool {
	subjects, _ := grading.GroupComponents(scores)
	interim := false
	for _, components := range subjects {
		if components.EndOfTerm.Available() {
			return false
		}
		if components.QA1.Available() || components.QA2.Available() {
			interim = true
		}
	}
	return interim
}

// Evaluate inspects one student's freshly written scores and switches the
// active policy when EndOfTermPending holds.
func (s *PolicyAutoSwitcher) Evaluate(ctx context.Context, scores []models.AssessmentScore) (*SwitchDecision, error) {
	decision, err := s.evaluate(ctx, scores)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordPolicyDecision(decision.Decision)
	return decision, nil
}

func (s *PolicyAutoSwitcher) evaluate(ctx context.Context, scores []models.AssessmentScore) (*SwitchDecision, error) {
	if !s.enabled {
		return &SwitchDecision{Decision: SwitchDecisionDisabled}, nil
	}
	if !EndOfTermPending(scores) {
		return &SwitchDecision{Decision: SwitchDecisionNotApplicable}, nil
	}

	release, err := s.locker.Acquire(ctx, autoSwitchLockKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock policy auto switch")
	}
	defer release()

	previous, err := activePolicy(ctx, s.policies)
	if err != nil && !appErrors.Is(err, appErrors.ErrNoActivePolicy) {
		return nil, err
	}
	if previous != nil && previous.Method == models.GradingMethodEndOfTermOnly {
		return &SwitchDecision{Decision: SwitchDecisionAlreadyActive, Policy: previous}, nil
	}

	target, created, err := s.endOfTermDraft(ctx, previous)
	if err != nil {
		return nil, err
	}
	activated, err := s.policies.Activate(ctx, target.ID, target.Version)
	if err != nil {
		return nil, mapPolicyWriteError(err, "failed to activate end of term policy")
	}

	fields := []zap.Field{zap.String("policy_id", activated.ID), zap.Bool("created", created)}
	if previous != nil {
		fields = append(fields, zap.String("previous_policy_id", previous.ID))
	}
	s.logger.Warn("active grading policy switched to end of term only", fields...)
	return &SwitchDecision{Decision: SwitchDecisionSwitched, Policy: activated, Previous: previous, Created: created}, nil
}

// endOfTermDraft returns the newest end of term only draft, creating one when
// none exists. Archived policies are never reused.
func (s *PolicyAutoSwitcher) endOfTermDraft(ctx context.Context, previous *models.GradingPolicy) (*models.GradingPolicy, bool, error) {
	drafts, err := s.policies.List(ctx, models.GradingPolicyFilter{Method: models.GradingMethodEndOfTermOnly, State: models.PolicyStateDraft})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list end of term policies")
	}
	if len(drafts) > 0 {
		sort.SliceStable(drafts, func(i, j int) bool { return drafts[i].CreatedAt.After(drafts[j].CreatedAt) })
		return &drafts[0], false, nil
	}

	passMark := float64(defaultAutoSwitchPass)
	if previous != nil {
		passMark = previous.PassMark
	}
	draft := &models.GradingPolicy{
		Name:     autoSwitchPolicyName,
		Method:   models.GradingMethodEndOfTermOnly,
		PassMark: passMark,
		State:    models.PolicyStateDraft,
	}
	if err := grading.ValidatePolicy(*draft); err != nil {
		return nil, false, err
	}
	if err := s.policies.Create(ctx, draft); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create end of term policy")
	}
	return draft, true, nil
}
