package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/journal-matrix-api/internal/dto"
	"github.com/noah-isme/journal-matrix-api/internal/models"
	appErrors "github.com/noah-isme/journal-matrix-api/pkg/errors"
)

type recognitionServiceMock struct {
	outcome    *models.RecognitionOutcome
	err        error
	discardErr error
	dates      []models.RecognitionDate

	lastRequest dto.RecognizeRequest
	lastTargets dto.RecognitionTargetsQuery
	called      bool
}

func (m *recognitionServiceMock) Recognize(ctx context.Context, req dto.RecognizeRequest) (*models.RecognitionOutcome, error) {
	m.called = true
	m.lastRequest = req
	return m.outcome, m.err
}

func (m *recognitionServiceMock) Status(lessonID int64) dto.RecognitionStatus {
	return dto.RecognitionStatus{LessonID: lessonID, State: models.RecognitionPhotoSelected, HasPhoto: true}
}

func (m *recognitionServiceMock) Discard(lessonID int64) error {
	return m.discardErr
}

func (m *recognitionServiceMock) Targets(ctx context.Context, query dto.RecognitionTargetsQuery) ([]models.RecognitionDate, error) {
	m.lastTargets = query
	return m.dates, nil
}

func multipartBody(t *testing.T, fields map[string]string, photo []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if photo != nil {
		part, err := writer.CreateFormFile("file", "class.jpg")
		require.NoError(t, err)
		_, err = part.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func newRecognitionContext(t *testing.T, body *bytes.Buffer, contentType string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "3"}}
	c.Request, _ = http.NewRequest(http.MethodPost, "/journal/lessons/3/recognition", body)
	c.Request.Header.Set("Content-Type", contentType)
	return c, w
}

func TestRecognitionHandlerRecognize(t *testing.T) {
	mockSvc := &recognitionServiceMock{outcome: &models.RecognitionOutcome{
		OperationID: "op-1",
		LessonID:    3,
		Stats:       models.RecognitionStats{RecognizedCount: 2, TotalStudents: 3, TotalFaces: 2},
	}}
	handler := NewRecognitionHandler(mockSvc, 1<<20)

	body, contentType := multipartBody(t, map[string]string{"group_id": "7", "discipline": "Физика"}, []byte("jpeg-bytes"))
	c, w := newRecognitionContext(t, body, contentType)

	handler.Recognize(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(3), mockSvc.lastRequest.LessonID)
	assert.Equal(t, int64(7), mockSvc.lastRequest.GroupID)
	assert.Equal(t, "Физика", mockSvc.lastRequest.Discipline)
	assert.Equal(t, "class.jpg", mockSvc.lastRequest.Filename)
	assert.Equal(t, []byte("jpeg-bytes"), mockSvc.lastRequest.Data)
	assert.Contains(t, w.Body.String(), `"operation_id":"op-1"`)
}

func TestRecognitionHandlerRetryWithoutFile(t *testing.T) {
	mockSvc := &recognitionServiceMock{outcome: &models.RecognitionOutcome{LessonID: 3}}
	handler := NewRecognitionHandler(mockSvc, 1<<20)

	body, contentType := multipartBody(t, map[string]string{"group_id": "7", "discipline": "Физика"}, nil)
	c, w := newRecognitionContext(t, body, contentType)

	handler.Recognize(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.called)
	assert.Nil(t, mockSvc.lastRequest.Data)
}

func TestRecognitionHandlerUploadTooLarge(t *testing.T) {
	mockSvc := &recognitionServiceMock{}
	handler := NewRecognitionHandler(mockSvc, 512)

	body, contentType := multipartBody(t, map[string]string{"group_id": "7", "discipline": "Физика"}, bytes.Repeat([]byte{0xff}, 4096))
	c, w := newRecognitionContext(t, body, contentType)

	handler.Recognize(c)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.False(t, mockSvc.called)
}

func TestRecognitionHandlerInFlight(t *testing.T) {
	mockSvc := &recognitionServiceMock{err: appErrors.ErrRecognitionInFlight}
	handler := NewRecognitionHandler(mockSvc, 0)

	body, contentType := multipartBody(t, map[string]string{"group_id": "7", "discipline": "Физика"}, []byte("jpeg"))
	c, w := newRecognitionContext(t, body, contentType)

	handler.Recognize(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestRecognitionHandlerStatusAndDiscard(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &recognitionServiceMock{discardErr: appErrors.ErrRecognitionInFlight}
	handler := NewRecognitionHandler(mockSvc, 0)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "3"}}
	c.Request, _ = http.NewRequest(http.MethodGet, "/journal/lessons/3/recognition", nil)
	handler.Status(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"photo_selected"`)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "3"}}
	c.Request, _ = http.NewRequest(http.MethodDelete, "/journal/lessons/3/recognition", nil)
	handler.Discard(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestRecognitionHandlerTargets(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auto := int64(3)
	mockSvc := &recognitionServiceMock{dates: []models.RecognitionDate{{Date: "2024-03-05", AutoSelected: &auto}}}
	handler := NewRecognitionHandler(mockSvc, 0)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/journal/recognition-targets?group_id=7&discipline=Math", nil)
	handler.Targets(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.RecognitionTargetsQuery{GroupID: 7, Discipline: "Math"}, mockSvc.lastTargets)
}
