package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/journal-matrix-api/internal/dto"
	"github.com/noah-isme/journal-matrix-api/internal/models"
	appErrors "github.com/noah-isme/journal-matrix-api/pkg/errors"
	"github.com/noah-isme/journal-matrix-api/pkg/response"
)

type recognitionService interface {
	Recognize(ctx context.Context, req dto.RecognizeRequest) (*models.RecognitionOutcome, error)
	Status(lessonID int64) dto.RecognitionStatus
	Discard(lessonID int64) error
	Targets(ctx context.Context, query dto.RecognitionTargetsQuery) ([]models.RecognitionDate, error)
}

type recognitionForm struct {
	GroupID    int64  `form:"group_id"`
	Discipline string `form:"discipline"`
}

// RecognitionHandler exposes bulk attendance recognition from a class photo.
type RecognitionHandler struct {
	service        recognitionService
	maxUploadBytes int64
}

// NewRecognitionHandler builds a new handler. maxUploadBytes <= 0 disables the request size limit.
func NewRecognitionHandler(service recognitionService, maxUploadBytes int64) *RecognitionHandler {
	return &RecognitionHandler{service: service, maxUploadBytes: maxUploadBytes}
}

// Recognize godoc
// @Summary Recognize attendance from a class photo and rebuild the journal
// @Tags Recognition
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Lesson ID"
// @Param group_id formData int true "Group ID"
// @Param discipline formData string true "Discipline name"
// @Param file formData file false "Class photo, omit to retry the retained photo"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /journal/lessons/{id}/recognition [post]
func (h *RecognitionHandler) Recognize(c *gin.Context) {
	lessonID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	var form recognitionForm
	if err := c.ShouldBind(&form); err != nil {
		response.Error(c, uploadError(err, "invalid recognition payload"))
		return
	}
	req := dto.RecognizeRequest{LessonID: lessonID, GroupID: form.GroupID, Discipline: form.Discipline}

	fileHeader, err := c.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		response.Error(c, uploadError(err, "invalid photo upload"))
		return
	default:
		src, err := fileHeader.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open photo"))
			return
		}
		defer src.Close()
		data, err := io.ReadAll(src)
		if err != nil {
			response.Error(c, uploadError(err, "failed to read photo"))
			return
		}
		req.Filename = fileHeader.Filename
		req.Data = data
	}

	outcome, err := h.service.Recognize(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{"operation_id": outcome.OperationID}
	if len(outcome.Journal.Warnings) > 0 {
		meta["warnings"] = outcome.Journal.Warnings
	}
	response.OK(c, outcome, meta)
}

// Status godoc
// @Summary Show the recognition flow registered for a lesson
// @Tags Recognition
// @Produce json
// @Param id path int true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /journal/lessons/{id}/recognition [get]
func (h *RecognitionHandler) Status(c *gin.Context) {
	lessonID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, h.service.Status(lessonID))
}

// Discard godoc
// @Summary Drop the retained photo of a lesson
// @Tags Recognition
// @Param id path int true "Lesson ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /journal/lessons/{id}/recognition [delete]
func (h *RecognitionHandler) Discard(c *gin.Context) {
	lessonID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Discard(lessonID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Targets godoc
// @Summary List dates and lessons eligible for recognition
// @Tags Recognition
// @Produce json
// @Param group_id query int true "Group ID"
// @Param discipline query string true "Discipline name"
// @Success 200 {object} response.Envelope
// @Router /journal/recognition-targets [get]
func (h *RecognitionHandler) Targets(c *gin.Context) {
	var query dto.RecognitionTargetsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid recognition targets query"))
		return
	}
	dates, err := h.service.Targets(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dates)
}

// uploadError maps multipart failures. Some readers flatten the size error into text, hence the
// message check.
func uploadError(err error, message string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusRequestEntityTooLarge, "photo exceeds the upload limit")
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message)
}
