package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-grade-engine/internal/dto"
	"github.com/noah-isme/sma-grade-engine/internal/models"
	appErrors "github.com/noah-isme/sma-grade-engine/pkg/errors"
	"github.com/noah-isme/sma-grade-engine/pkg/response"
)

type assessmentService interface {
	Submit(ctx context.Context, req dto.SubmitAssessmentsRequest) (*dto.SubmitAssessmentsResult, error)
	StudentResults(ctx context.Context, studentID, termID string) (*models.StudentResults, error)
	Preview(ctx context.Context, req dto.PreviewRequest) (*dto.PreviewResponse, error)
}

// AssessmentHandler exposes score submission and result endpoints.
type AssessmentHandler struct {
	assessments assessmentService
}

// NewAssessmentHandler constructs handler.
func NewAssessmentHandler(assessments assessmentService) *AssessmentHandler {
	return &AssessmentHandler{assessments: assessments}
}

// Submit godoc
// @Summary Submit a student's assessment scores
// @Description Stores the batch, recomputes the class ranks and evaluates the policy auto switch.
// @Tags Assessments
// @Accept json
// @Produce json
// @Param payload body dto.SubmitAssessmentsRequest true "Assessment batch"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /assessments/submit [post]
func (h *AssessmentHandler) Submit(c *gin.Context) {
	var req dto.SubmitAssessmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.assessments.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Preview godoc
// @Summary Preview a subject's final score
// @Tags Assessments
// @Accept json
// @Produce json
// @Param payload body dto.PreviewRequest true "Components"
// @Success 200 {object} response.Envelope
// @Router /assessments/preview [post]
func (h *AssessmentHandler) Preview(c *gin.Context) {
	var req dto.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	preview, err := h.assessments.Preview(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview)
}

// StudentResults godoc
// @Summary Resolve a student's subject results
// @Tags Assessments
// @Produce json
// @Param studentId path string true "Student ID"
// @Param termId query string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/results [get]
func (h *AssessmentHandler) StudentResults(c *gin.Context) {
	results, err := h.assessments.StudentResults(c.Request.Context(), c.Param("studentId"), c.Query("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results)
}
