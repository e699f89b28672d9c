package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-grade-engine/internal/models"
	"github.com/noah-isme/sma-grade-engine/pkg/export"
	"github.com/noah-isme/sma-grade-engine/pkg/response"
)

type rankService interface {
	Recompute(ctx context.Context, classID, termID string) (*models.RankSet, error)
	ClassRanks(ctx context.Context, classID, termID string) (*models.RankSet, error)
	Export(ctx context.Context, classID, termID string, format export.Format) ([]byte, string, error)
}

// RankHandler exposes class rank endpoints.
type RankHandler struct {
	ranks rankService
}

// NewRankHandler constructs handler.
func NewRankHandler(ranks rankService) *RankHandler {
	return &RankHandler{ranks: ranks}
}

// Recompute godoc
// @Summary Recompute class ranks
// @Tags Ranks
// @Produce json
// @Param classId path string true "Class ID"
// @Param termId path string true "Term ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /classes/{classId}/terms/{termId}/ranks/recompute [post]
func (h *RankHandler) Recompute(c *gin.Context) {
	set, err := h.ranks.Recompute(c.Request.Context(), c.Param("classId"), c.Param("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, set)
}

// List godoc
// @Summary Get persisted class ranks
// @Tags Ranks
// @Produce json
// @Param classId path string true "Class ID"
// @Param termId path string true "Term ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{classId}/terms/{termId}/ranks [get]
func (h *RankHandler) List(c *gin.Context) {
	set, err := h.ranks.ClassRanks(c.Request.Context(), c.Param("classId"), c.Param("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, set, map[string]interface{}{"recompute_version": set.RecomputeVersion})
}

// Export godoc
// @Summary Download class rank sheet
// @Tags Ranks
// @Produce text/csv
// @Produce application/pdf
// @Param classId path string true "Class ID"
// @Param termId path string true "Term ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /classes/{classId}/terms/{termId}/ranks/export [get]
func (h *RankHandler) Export(c *gin.Context) {
	format := export.Format(strings.ToLower(c.DefaultQuery("format", string(export.FormatCSV))))
	body, filename, err := h.ranks.Export(c.Request.Context(), c.Param("classId"), c.Param("termId"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, filename, format.ContentType(), body)
}
