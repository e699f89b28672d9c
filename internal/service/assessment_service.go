package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-grade-engine/internal/dto"
	"github.com/noah-isme/sma-grade-engine/internal/grading"
	"github.com/noah-isme/sma-grade-engine/internal/models"
	appErrors "github.com/noah-isme/sma-grade-engine/pkg/errors"
)

type assessmentStore interface {
	ListByStudent(ctx context.Context, studentID, termID string) ([]models.AssessmentScore, error)
	BulkUpsert(ctx context.Context, scores []models.AssessmentScore) error
}

type policyReader interface {
	FindByID(ctx context.Context, id string) (*models.GradingPolicy, error)
	FindActive(ctx context.Context) (*models.GradingPolicy, error)
}

type classRankRecomputer interface {
	Recompute(ctx context.Context, classID, termID string) (*models.RankSet, error)
}

type policySwitchEvaluator interface {
	Evaluate(ctx context.Context, scores []models.AssessmentScore) (*SwitchDecision, error)
}

// AssessmentService stores submitted scores and resolves them into results.
type AssessmentService struct {
	assessments assessmentStore
	policies    policyReader
	ranks       classRankRecomputer
	switcher    policySwitchEvaluator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssessmentService constructs the assessment service.
func NewAssessmentService(assessments assessmentStore, policies policyReader, ranks classRankRecomputer, switcher policySwitchEvaluator, validate *validator.Validate, logger *zap.Logger) *AssessmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssessmentService{
		assessments: assessments,
		policies:    policies,
		ranks:       ranks,
		switcher:    switcher,
		validator:   validate,
		logger:      logger,
	}
}

// Submit stores one student's batch and runs the post save steps in order:
// resolve the student's results, recompute the class ranks, then evaluate the
// policy auto switch. The first failing step aborts the rest.
func (s *AssessmentService) Submit(ctx context.Context, req dto.SubmitAssessmentsRequest) (*dto.SubmitAssessmentsResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment submission")
	}

	records := make([]models.AssessmentScore, 0, len(req.Records))
	seen := make(map[string]struct{}, len(req.Records))
	result := &dto.SubmitAssessmentsResult{}
	for _, raw := range req.Records {
		record, adjustment, err := raw.Normalize(req.StudentID, req.ClassID, req.TermID)
		if err != nil {
			return nil, err
		}
		key := record.SubjectID + "/" + string(record.AssessmentType)
		if _, dup := seen[key]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate %s record for subject %s", record.AssessmentType, record.SubjectID))
		}
		seen[key] = struct{}{}
		if adjustment != nil {
			result.Adjustments = append(result.Adjustments, *adjustment)
		}
		records = append(records, record)
	}

	if err := s.assessments.BulkUpsert(ctx, records); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store assessments")
	}
	result.Stored = len(records)
	if len(result.Adjustments) > 0 {
		s.logger.Warn("out of range scores clamped", zap.String("student_id", req.StudentID), zap.Int("count", len(result.Adjustments)))
	}

	scores, err := s.assessments.ListByStudent(ctx, req.StudentID, req.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student assessments")
	}
	policy, err := activePolicy(ctx, s.policies)
	if err != nil {
		return nil, err
	}
	subjects, err := subjectResults(req.StudentID, scores, *policy)
	if err != nil {
		return nil, err
	}
	result.Results = subjects

	ranks, err := s.ranks.Recompute(ctx, req.ClassID, req.TermID)
	if err != nil {
		return nil, err
	}
	result.Ranks = ranks

	decision, err := s.switcher.Evaluate(ctx, scores)
	if err != nil {
		return nil, err
	}
	result.PolicySwitch = switchSummary(decision)
	return result, nil
}

// StudentResults resolves every subject of a student in a term under the
// active policy.
func (s *AssessmentService) StudentResults(ctx context.Context, studentID, termID string) (*models.StudentResults, error) {
	if studentID == "" || termID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id and term id are required")
	}
	policy, err := activePolicy(ctx, s.policies)
	if err != nil {
		return nil, err
	}
	scores, err := s.assessments.ListByStudent(ctx, studentID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student assessments")
	}
	subjects, err := subjectResults(studentID, scores, *policy)
	if err != nil {
		return nil, err
	}
	return &models.StudentResults{StudentID: studentID, TermID: termID, PolicyID: policy.ID, Subjects: subjects}, nil
}

// Preview resolves one subject without storing anything. Without a policy ID
// the active policy applies.
func (s *AssessmentService) Preview(ctx context.Context, req dto.PreviewRequest) (*dto.PreviewResponse, error) {
	var policy *models.GradingPolicy
	if req.PolicyID == "" {
		active, err := activePolicy(ctx, s.policies)
		if err != nil {
			return nil, err
		}
		policy = active
	} else {
		found, err := s.policies.FindByID(ctx, req.PolicyID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "grading policy not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grading policy")
		}
		if err := grading.ValidatePolicy(*found); err != nil {
			return nil, err
		}
		policy = found
	}

	resolved := grading.Resolve(models.ScoreComponents{QA1: req.QA1, QA2: req.QA2, EndOfTerm: req.EndOfTerm}, *policy)
	return &dto.PreviewResponse{PolicyID: policy.ID, FinalScore: resolved.FinalScore, LetterGrade: resolved.LetterGrade}, nil
}

func subjectResults(studentID string, scores []models.AssessmentScore, policy models.GradingPolicy) ([]models.SubjectResult, error) {
	subjects, unknown := grading.GroupComponents(scores)
	if len(unknown) > 0 {
		return nil, appErrors.Clone(appErrors.ErrUnknownAssessmentType, fmt.Sprintf("unknown assessment type %q", unknown[0].AssessmentType))
	}
	results := make([]models.SubjectResult, 0, len(subjects))
	for subjectID, components := range subjects {
		resolved := grading.Resolve(*components, policy)
		results = append(results, models.SubjectResult{
			StudentID:   studentID,
			SubjectID:   subjectID,
			FinalScore:  resolved.FinalScore,
			LetterGrade: resolved.LetterGrade,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].SubjectID < results[j].SubjectID })
	return results, nil
}

func switchSummary(decision *SwitchDecision) *dto.PolicySwitchSummary {
	if decision == nil {
		return nil
	}
	summary := &dto.PolicySwitchSummary{Switched: decision.Switched(), Reason: decision.Decision, Created: decision.Created}
	if decision.Policy != nil {
		summary.PolicyID = decision.Policy.ID
	}
	if decision.Previous != nil {
		summary.PreviousPolicyID = decision.Previous.ID
	}
	return summary
}
