package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/noah-isme/sma-grade-engine/internal/models"
	appErrors "github.com/noah-isme/sma-grade-engine/pkg/errors"
)

// Field spellings accepted from upstream results-entry clients. Only this file
// knows about them; everything past Normalize sees models.AssessmentScore.
var (
	studentKeys = []string{"student_id", "studentId", "studentID"}
	subjectKeys = []string{"subject_id", "subjectId", "subjectID"}
	typeKeys    = []string{"assessment_type", "assessmentType", "type"}
	scoreKeys   = []string{"score", "value", "grade_value"}
	absentKeys  = []string{"is_absent", "isAbsent", "absent"}
)

var assessmentTypeAliases = map[string]models.AssessmentType{
	"QA1":       models.AssessmentQA1,
	"QUARTER1":  models.AssessmentQA1,
	"QA2":       models.AssessmentQA2,
	"QUARTER2":  models.AssessmentQA2,
	"ENDOFTERM": models.AssessmentEndOfTerm,
	"ENDTERM":   models.AssessmentEndOfTerm,
	"EOT":       models.AssessmentEndOfTerm,
	"FINAL":     models.AssessmentEndOfTerm,
}

// RawAssessmentRecord is an assessment row as submitted by a client, before
// field names and types are normalized.
type RawAssessmentRecord struct {
	StudentID      string
	SubjectID      string
	AssessmentType string
	Score          *float64
	IsAbsent       bool
}

// UnmarshalJSON accepts snake_case, camelCase and nested {"subject": {"id": ...}} shapes.
func (r *RawAssessmentRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var err error
	if r.StudentID, err = pickID(fields, studentKeys, "student"); err != nil {
		return err
	}
	if r.SubjectID, err = pickID(fields, subjectKeys, "subject"); err != nil {
		return err
	}
	if raw, ok := pick(fields, typeKeys); ok {
		if err := json.Unmarshal(raw, &r.AssessmentType); err != nil {
			return fmt.Errorf("assessment type: %w", err)
		}
	}
	if raw, ok := pick(fields, scoreKeys); ok {
		score, absent, err := parseScore(raw)
		if err != nil {
			return err
		}
		r.Score = score
		r.IsAbsent = r.IsAbsent || absent
	}
	if raw, ok := pick(fields, absentKeys); ok {
		absent, err := parseBool(raw)
		if err != nil {
			return fmt.Errorf("absent flag: %w", err)
		}
		r.IsAbsent = r.IsAbsent || absent
	}
	return nil
}

// ScoreAdjustment records a defensive clamp applied during normalization.
type ScoreAdjustment struct {
	SubjectID      string                `json:"subject_id"`
	AssessmentType models.AssessmentType `json:"assessment_type"`
	Code           string                `json:"code"`
	Supplied       float64               `json:"supplied"`
	Applied        float64               `json:"applied"`
}

// Normalize converts the record into the canonical AssessmentScore for the
// given student, class and term.
func (r RawAssessmentRecord) Normalize(studentID, classID, termID string) (models.AssessmentScore, *ScoreAdjustment, error) {
	if r.StudentID != "" && r.StudentID != studentID {
		return models.AssessmentScore{}, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("record for student %s submitted in batch for %s", r.StudentID, studentID))
	}
	subjectID := strings.TrimSpace(r.SubjectID)
	if subjectID == "" {
		return models.AssessmentScore{}, nil, appErrors.Clone(appErrors.ErrValidation, "subject id required")
	}
	assessmentType, err := ParseAssessmentType(r.AssessmentType)
	if err != nil {
		return models.AssessmentScore{}, nil, err
	}

	record := models.AssessmentScore{
		StudentID:      studentID,
		SubjectID:      subjectID,
		ClassID:        classID,
		TermID:         termID,
		AssessmentType: assessmentType,
		IsAbsent:       r.IsAbsent,
	}
	if r.IsAbsent || r.Score == nil {
		return record, nil, nil
	}

	supplied := *r.Score
	if math.IsNaN(supplied) || math.IsInf(supplied, 0) {
		return models.AssessmentScore{}, nil, appErrors.Clone(appErrors.ErrValidation, "score must be a finite number")
	}
	applied := math.Min(100, math.Max(0, supplied))
	record.Score = &applied
	if applied != supplied {
		return record, &ScoreAdjustment{
			SubjectID:      subjectID,
			AssessmentType: assessmentType,
			Code:           appErrors.ErrOutOfRangeScore.Code,
			Supplied:       supplied,
			Applied:        applied,
		}, nil
	}
	return record, nil, nil
}

// ParseAssessmentType maps the accepted spellings onto an AssessmentType.
func ParseAssessmentType(raw string) (models.AssessmentType, error) {
	key := strings.ToUpper(raw)
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	if t, ok := assessmentTypeAliases[key]; ok {
		return t, nil
	}
	return "", appErrors.Clone(appErrors.ErrUnknownAssessmentType, fmt.Sprintf("unknown assessment type %q", raw))
}

func pick(fields map[string]json.RawMessage, keys []string) (json.RawMessage, bool) {
	for _, key := range keys {
		if raw, ok := fields[key]; ok {
			return raw, true
		}
	}
	return nil, false
}

func pickID(fields map[string]json.RawMessage, keys []string, nested string) (string, error) {
	if raw, ok := pick(fields, keys); ok {
		return parseID(raw)
	}
	raw, ok := fields[nested]
	if !ok || isNull(raw) {
		return "", nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("%s: expected object: %w", nested, err)
	}
	if id, ok := obj["id"]; ok {
		return parseID(id)
	}
	return "", nil
}

func parseID(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid identifier %s", string(raw))
	}
	return n.String(), nil
}

func parseScore(raw json.RawMessage) (*float64, bool, error) {
	if isNull(raw) {
		return nil, false, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f, false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, fmt.Errorf("invalid score %s", string(raw))
	}
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "":
		return nil, false, nil
	case "AB", "ABS", "ABSENT":
		return nil, true, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false, fmt.Errorf("invalid score %q", s)
	}
	return &f, false, nil
}

func parseBool(raw json.RawMessage) (bool, error) {
	if isNull(raw) {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, fmt.Errorf("invalid boolean %s", string(raw))
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "y":
		return true, nil
	case "false", "no", "0", "n", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// SubmitAssessmentsRequest carries one student's batch of assessment rows.
type SubmitAssessmentsRequest struct {
	StudentID string                `json:"student_id" validate:"required"`
	ClassID   string                `json:"class_id" validate:"required"`
	TermID    string                `json:"term_id" validate:"required"`
	Records   []RawAssessmentRecord `json:"records" validate:"required,min=1"`
}

// SubmitAssessmentsResult reports what a submission changed.
type SubmitAssessmentsResult struct {
	Stored       int                    `json:"stored"`
	Adjustments  []ScoreAdjustment      `json:"adjustments,omitempty"`
	Results      []models.SubjectResult `json:"results"`
	Ranks        *models.RankSet        `json:"ranks,omitempty"`
	PolicySwitch *PolicySwitchSummary   `json:"policy_switch,omitempty"`
}

// PolicySwitchSummary describes an automatic change of the active policy.
type PolicySwitchSummary struct {
	Switched         bool   `json:"switched"`
	Reason           string `json:"reason"`
	PolicyID         string `json:"policy_id,omitempty"`
	PreviousPolicyID string `json:"previous_policy_id,omitempty"`
	Created          bool   `json:"created"`
}

// PreviewRequest resolves one subject without storing anything.
type PreviewRequest struct {
	PolicyID  string                `json:"policy_id"`
	QA1       models.ComponentScore `json:"qa1"`
	QA2       models.ComponentScore `json:"qa2"`
	EndOfTerm models.ComponentScore `json:"end_of_term"`
}

// PreviewResponse is the resolved preview.
type PreviewResponse struct {
	PolicyID    string   `json:"policy_id"`
	FinalScore  *float64 `json:"final_score"`
	LetterGrade string   `json:"letter_grade"`
}
