package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-grade-engine/internal/dto"
	"github.com/noah-isme/sma-grade-engine/internal/grading"
	"github.com/noah-isme/sma-grade-engine/internal/models"
	"github.com/noah-isme/sma-grade-engine/internal/repository"
	appErrors "github.com/noah-isme/sma-grade-engine/pkg/errors"
)

type policyStore interface {
	List(ctx context.Context, filter models.GradingPolicyFilter) ([]models.GradingPolicy, error)
	FindByID(ctx context.Context, id string) (*models.GradingPolicy, error)
	FindActive(ctx context.Context) (*models.GradingPolicy, error)
	Create(ctx context.Context, policy *models.GradingPolicy) error
	Update(ctx context.Context, policy *models.GradingPolicy) error
	Activate(ctx context.Context, id string, expectedVersion int64) (*models.GradingPolicy, error)
	Archive(ctx context.Context, id string, expectedVersion int64) error
}

// PolicyService manages grading policy definitions and their lifecycle.
type PolicyService struct {
	repo      policyStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPolicyService constructs the policy service.
func NewPolicyService(repo policyStore, validate *validator.Validate, logger *zap.Logger) *PolicyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{repo: repo, validator: validate, logger: logger}
}

// List returns policies matching the filter.
func (s *PolicyService) List(ctx context.Context, filter models.GradingPolicyFilter) ([]models.GradingPolicy, error) {
	policies, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grading policies")
	}
	return policies, nil
}

// Get returns a policy by ID.
func (s *PolicyService) Get(ctx context.Context, id string) (*models.GradingPolicy, error) {
	policy, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grading policy not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grading policy")
	}
	return policy, nil
}

// Active returns the school-wide active policy.
func (s *PolicyService) Active(ctx context.Context) (*models.GradingPolicy, error) {
	return activePolicy(ctx, s.repo)
}

// Create stores a new draft policy.
func (s *PolicyService) Create(ctx context.Context, req dto.CreateGradingPolicyRequest, actorID string) (*models.GradingPolicy, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading policy payload")
	}
	policy := &models.GradingPolicy{
		Name:            req.Name,
		Method:          req.Method,
		WeightQA1:       req.WeightQA1,
		WeightQA2:       req.WeightQA2,
		WeightEndOfTerm: req.WeightEndOfTerm,
		PassMark:        req.PassMark,
		State:           models.PolicyStateDraft,
	}
	if actorID != "" {
		policy.CreatedBy = &actorID
	}
	if err := grading.ValidatePolicy(*policy); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, policy); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grading policy")
	}
	s.logger.Info("grading policy drafted", zap.String("policy_id", policy.ID), zap.String("method", string(policy.Method)))
	return policy, nil
}

// Update rewrites a draft policy.
func (s *PolicyService) Update(ctx context.Context, id string, req dto.UpdateGradingPolicyRequest) (*models.GradingPolicy, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading policy payload")
	}
	policy, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if policy.State != models.PolicyStateDraft {
		return nil, appErrors.Clone(appErrors.ErrPolicyLifecycle, fmt.Sprintf("only draft policies can be updated, policy is %s", policy.State))
	}
	if policy.Version != req.Version {
		return nil, appErrors.Clone(appErrors.ErrConflict, "grading policy was modified, reload and retry")
	}
	policy.Name = req.Name
	policy.Method = req.Method
	policy.WeightQA1 = req.WeightQA1
	policy.WeightQA2 = req.WeightQA2
	policy.WeightEndOfTerm = req.WeightEndOfTerm
	policy.PassMark = req.PassMark
	if err := grading.ValidatePolicy(*policy); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, policy); err != nil {
		return nil, mapPolicyWriteError(err, "failed to update grading policy")
	}
	return policy, nil
}

// Activate promotes a draft to the active policy and archives the previous one.
// A zero expectedVersion uses the stored version.
func (s *PolicyService) Activate(ctx context.Context, id string, expectedVersion int64) (*models.GradingPolicy, error) {
	policy, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch policy.State {
	case models.PolicyStateActive:
		return policy, nil
	case models.PolicyStateArchived:
		return nil, appErrors.Clone(appErrors.ErrPolicyLifecycle, "archived policies cannot be reactivated")
	}
	if err := grading.ValidatePolicy(*policy); err != nil {
		return nil, err
	}
	if expectedVersion == 0 {
		expectedVersion = policy.Version
	}
	activated, err := s.repo.Activate(ctx, id, expectedVersion)
	if err != nil {
		return nil, mapPolicyWriteError(err, "failed to activate grading policy")
	}
	s.logger.Info("grading policy activated", zap.String("policy_id", activated.ID), zap.String("method", string(activated.Method)))
	return activated, nil
}

// Archive retires a draft policy. The active policy is only archived by
// activating another one.
func (s *PolicyService) Archive(ctx context.Context, id string, expectedVersion int64) (*models.GradingPolicy, error) {
	policy, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch policy.State {
	case models.PolicyStateArchived:
		return policy, nil
	case models.PolicyStateActive:
		return nil, appErrors.Clone(appErrors.ErrPolicyLifecycle, "activate another policy to archive the active one")
	}
	if expectedVersion == 0 {
		expectedVersion = policy.Version
	}
	if err := s.repo.Archive(ctx, id, expectedVersion); err != nil {
		return nil, mapPolicyWriteError(err, "failed to archive grading policy")
	}
	return s.Get(ctx, id)
}

type activePolicyReader interface {
	FindActive(ctx context.Context) (*models.GradingPolicy, error)
}

// activePolicy loads a snapshot of the active policy.
func activePolicy(ctx context.Context, repo activePolicyReader) (*models.GradingPolicy, error) {
	policy, err := repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNoActivePolicy
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active grading policy")
	}
	snapshot := *policy
	return &snapshot, nil
}

func mapPolicyWriteError(err error, message string) error {
	if errors.Is(err, repository.ErrVersionConflict) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "grading policy changed concurrently, reload and retry")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
