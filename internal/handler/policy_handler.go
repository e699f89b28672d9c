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

type gradingPolicyService interface {
	List(ctx context.Context, filter models.GradingPolicyFilter) ([]models.GradingPolicy, error)
	Get(ctx context.Context, id string) (*models.GradingPolicy, error)
	Active(ctx context.Context) (*models.GradingPolicy, error)
	Create(ctx context.Context, req dto.CreateGradingPolicyRequest, actorID string) (*models.GradingPolicy, error)
	Update(ctx context.Context, id string, req dto.UpdateGradingPolicyRequest) (*models.GradingPolicy, error)
	Activate(ctx context.Context, id string, expectedVersion int64) (*models.GradingPolicy, error)
	Archive(ctx context.Context, id string, expectedVersion int64) (*models.GradingPolicy, error)
}

// PolicyHandler exposes grading policy endpoints.
type PolicyHandler struct {
	policies gradingPolicyService
}

// NewPolicyHandler constructs handler.
func NewPolicyHandler(policies gradingPolicyService) *PolicyHandler {
	return &PolicyHandler{policies: policies}
}

// List godoc
// @Summary List grading policies
// @Tags Grading Policies
// @Produce json
// @Param method query string false "Filter by method"
// @Param state query string false "Filter by lifecycle state"
// @Success 200 {object} response.Envelope
// @Router /grading-policies [get]
func (h *PolicyHandler) List(c *gin.Context) {
	filter := models.GradingPolicyFilter{
		Method: models.GradingMethod(c.Query("method")),
		State:  models.PolicyState(c.Query("state")),
	}
	policies, err := h.policies.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policies, map[string]interface{}{"total": len(policies)})
}

// Get godoc
// @Summary Get grading policy
// @Tags Grading Policies
// @Produce json
// @Param id path string true "Policy ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grading-policies/{id} [get]
func (h *PolicyHandler) Get(c *gin.Context) {
	policy, err := h.policies.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy)
}

// Active godoc
// @Summary Get the active grading policy
// @Tags Grading Policies
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /grading-policies/active [get]
func (h *PolicyHandler) Active(c *gin.Context) {
	policy, err := h.policies.Active(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy)
}

// Create godoc
// @Summary Create draft grading policy
// @Tags Grading Policies
// @Accept json
// @Produce json
// @Param payload body dto.CreateGradingPolicyRequest true "Policy payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /grading-policies [post]
func (h *PolicyHandler) Create(c *gin.Context) {
	var req dto.CreateGradingPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	policy, err := h.policies.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, policy)
}

// Update godoc
// @Summary Update draft grading policy
// @Tags Grading Policies
// @Accept json
// @Produce json
// @Param id path string true "Policy ID"
// @Param payload body dto.UpdateGradingPolicyRequest true "Policy payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /grading-policies/{id} [put]
func (h *PolicyHandler) Update(c *gin.Context) {
	var req dto.UpdateGradingPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	policy, err := h.policies.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy)
}

// Activate godoc
// @Summary Activate grading policy
// @Description Archives the previously active policy in the same transaction.
// @Tags Grading Policies
// @Accept json
// @Produce json
// @Param id path string true "Policy ID"
// @Param payload body dto.PolicyTransitionRequest false "Expected version"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /grading-policies/{id}/activate [post]
func (h *PolicyHandler) Activate(c *gin.Context) {
	var req dto.PolicyTransitionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	policy, err := h.policies.Activate(c.Request.Context(), c.Param("id"), req.Version)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy)
}

// Archive godoc
// @Summary Archive draft grading policy
// @Tags Grading Policies
// @Accept json
// @Produce json
// @Param id path string true "Policy ID"
// @Param payload body dto.PolicyTransitionRequest false "Expected version"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /grading-policies/{id}/archive [post]
func (h *PolicyHandler) Archive(c *gin.Context) {
	var req dto.PolicyTransitionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	policy, err := h.policies.Archive(c.Request.Context(), c.Param("id"), req.Version)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy)
}
