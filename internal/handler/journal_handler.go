package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/journal-matrix-api/internal/dto"
	"github.com/noah-isme/journal-matrix-api/internal/models"
	appErrors "github.com/noah-isme/journal-matrix-api/pkg/errors"
	"github.com/noah-isme/journal-matrix-api/pkg/response"
)

type journalService interface {
	Rebuild(ctx context.Context, query dto.MatrixQuery) (*models.MatrixResult, error)
	EditCell(ctx context.Context, req dto.EditCellRequest) (*dto.EditCellResult, error)
	CycleCell(ctx context.Context, req dto.EditCellRequest) (*dto.EditCellResult, error)
	MarkLessonPresent(ctx context.Context, lessonID int64, req dto.MarkPresentRequest) (*dto.BulkMarkResult, error)
}

type referenceService interface {
	Groups(ctx context.Context) ([]models.Group, error)
	Disciplines(ctx context.Context, groupID int64) ([]models.Discipline, error)
}

// JournalHandler exposes the journal matrix and cell editing endpoints.
type JournalHandler struct {
	journal   journalService
	reference referenceService
}

// NewJournalHandler builds a new handler.
func NewJournalHandler(journal journalService, reference referenceService) *JournalHandler {
	return &JournalHandler{journal: journal, reference: reference}
}

// Matrix godoc
// @Summary Build the journal matrix for a group and discipline
// @Tags Journal
// @Produce json
// @Param group_id query int true "Group ID"
// @Param discipline query string true "Discipline name"
// @Param search query string false "Student name filter"
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /journal/matrix [get]
func (h *JournalHandler) Matrix(c *gin.Context) {
	var query dto.MatrixQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid matrix query"))
		return
	}
	result, err := h.journal.Rebuild(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{"empty": result.Empty}
	if result.Reason != "" {
		meta["reason"] = result.Reason
	}
	if len(result.Warnings) > 0 {
		meta["warnings"] = result.Warnings
	}
	response.OK(c, result, meta)
}

// EditCell godoc
// @Summary Classify and save one cell, returning the recomputed row averages
// @Tags Journal
// @Accept json
// @Produce json
// @Param payload body dto.EditCellRequest true "Cell edit"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /journal/cells [post]
func (h *JournalHandler) EditCell(c *gin.Context) {
	h.edit(c, h.journal.EditCell)
}

// CycleCell godoc
// @Summary Advance a cell to its next quick-entry value
// @Tags Journal
// @Accept json
// @Produce json
// @Param payload body dto.EditCellRequest true "Cell with its current display value"
// @Success 200 {object} response.Envelope
// @Router /journal/cells/cycle [post]
func (h *JournalHandler) CycleCell(c *gin.Context) {
	h.edit(c, h.journal.CycleCell)
}

func (h *JournalHandler) edit(c *gin.Context, apply func(context.Context, dto.EditCellRequest) (*dto.EditCellResult, error)) {
	var req dto.EditCellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cell payload"))
		return
	}
	result, err := apply(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// MarkPresent godoc
// @Summary Mark every student of a group present for a lesson
// @Tags Journal
// @Accept json
// @Produce json
// @Param id path int true "Lesson ID"
// @Param payload body dto.MarkPresentRequest true "Group"
// @Success 200 {object} response.Envelope
// @Router /journal/lessons/{id}/present [post]
func (h *JournalHandler) MarkPresent(c *gin.Context) {
	lessonID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.MarkPresentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid mark present payload"))
		return
	}
	result, err := h.journal.MarkLessonPresent(c.Request.Context(), lessonID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Groups godoc
// @Summary List groups
// @Tags Journal
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /journal/groups [get]
func (h *JournalHandler) Groups(c *gin.Context) {
	groups, err := h.reference.Groups(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, groups)
}

// Disciplines godoc
// @Summary List disciplines scheduled for a group
// @Tags Journal
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /journal/groups/{id}/disciplines [get]
func (h *JournalHandler) Disciplines(c *gin.Context) {
	groupID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	disciplines, err := h.reference.Disciplines(c.Request.Context(), groupID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, disciplines)
}
