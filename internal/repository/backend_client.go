package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/journal-matrix-api/internal/models"
	appErrors "github.com/noah-isme/journal-matrix-api/pkg/errors"
)

const maxErrorBody = 4 << 10

// CallObserver records backend call timings.
type CallObserver interface {
	ObserveBackendCall(operation string, err error, duration time.Duration)
}

// BackendClient talks to the journal REST backend on behalf of the caller found in the request
// context. The caller's bearer token is forwarded so lesson flags are computed for them.
type BackendClient struct {
	baseURL           string
	client            *http.Client
	recognitionClient *http.Client
	metrics           CallObserver
	logger            *zap.Logger
}

// BackendClientConfig configures the REST client.
type BackendClientConfig struct {
	BaseURL            string
	Timeout            time.Duration
	RecognitionTimeout time.Duration
}

// NewBackendClient constructs the REST client. metrics may be nil.
func NewBackendClient(cfg BackendClientConfig, metrics CallObserver, logger *zap.Logger) *BackendClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	recognitionTimeout := cfg.RecognitionTimeout
	if recognitionTimeout <= 0 {
		recognitionTimeout = 2 * time.Minute
	}
	return &BackendClient{
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		client:            &http.Client{Timeout: timeout},
		recognitionClient: &http.Client{Timeout: recognitionTimeout},
		metrics:           metrics,
		logger:            logger,
	}
}

type backendLesson struct {
	ID           int64             `json:"id"`
	DisciplineID int64             `json:"discipline_id"`
	Discipline   string            `json:"discipline"`
	Classroom    *string           `json:"classroom"`
	Teacher      *string           `json:"teacher"`
	TeacherID    *int64            `json:"teacher_id"`
	LessonType   string            `json:"lesson_type"`
	Date         string            `json:"date"`
	TimeStart    string            `json:"time_start"`
	TimeEnd      string            `json:"time_end"`
	IsCancelled  bool              `json:"is_cancelled"`
	IsPast       bool              `json:"is_past"`
	CanEdit      bool              `json:"can_edit"`
	Groups       []models.GroupRef `json:"groups"`
}

func (l backendLesson) toModel() models.LessonInstance {
	lesson := models.LessonInstance{
		ID:           l.ID,
		Date:         l.Date,
		TimeStart:    l.TimeStart,
		TimeEnd:      l.TimeEnd,
		DisciplineID: l.DisciplineID,
		Discipline:   l.Discipline,
		LessonType:   l.LessonType,
		IsPast:       l.IsPast,
		IsCancelled:  l.IsCancelled,
		CanEdit:      l.CanEdit,
		Groups:       l.Groups,
	}
	if l.Classroom != nil {
		lesson.Classroom = *l.Classroom
	}
	if l.Teacher != nil {
		lesson.Teacher = *l.Teacher
	}
	if l.TeacherID != nil {
		lesson.TeacherID = *l.TeacherID
	}
	return lesson
}

type backendRecord struct {
	StudentID int64    `json:"student_id"`
	Status    *string  `json:"status"`
	Grade     *float64 `json:"grade"`
	RecordID  *int64   `json:"record_id"`
}

// ListLessons returns the group's lessons of one discipline.
func (c *BackendClient) ListLessons(ctx context.Context, groupID int64, discipline string) ([]models.LessonInstance, error) {
	query := url.Values{}
	query.Set("group_id", strconv.FormatInt(groupID, 10))
	if discipline != "" {
		query.Set("discipline_name", discipline)
	}
	var payload []backendLesson
	if err := c.getJSON(ctx, "list_lessons", "/api/schedules?"+query.Encode(), &payload); err != nil {
		return nil, err
	}
	lessons := make([]models.LessonInstance, 0, len(payload))
	for _, item := range payload {
		lessons = append(lessons, item.toModel())
	}
	return lessons, nil
}

// GetLesson returns one lesson with flags for the caller.
func (c *BackendClient) GetLesson(ctx context.Context, lessonID int64) (*models.LessonInstance, error) {
	var payload backendLesson
	if err := c.getJSON(ctx, "get_lesson", fmt.Sprintf("/api/schedules/%d", lessonID), &payload); err != nil {
		return nil, err
	}
	lesson := payload.toModel()
	return &lesson, nil
}

// ListRoster returns the students of a group.
func (c *BackendClient) ListRoster(ctx context.Context, groupID int64) ([]models.Student, error) {
	var students []models.Student
	if err := c.getJSON(ctx, "list_roster", fmt.Sprintf("/api/groups/%d/students", groupID), &students); err != nil {
		return nil, err
	}
	return students, nil
}

// ListRecords returns the saved records of a lesson. The backend pads the list with default rows
// for students without a record; those carry no record id and are dropped.
func (c *BackendClient) ListRecords(ctx context.Context, lessonID int64) ([]models.AttendanceRecord, error) {
	var payload []backendRecord
	if err := c.getJSON(ctx, "list_records", fmt.Sprintf("/api/schedules/%d/records", lessonID), &payload); err != nil {
		return nil, err
	}
	records := make([]models.AttendanceRecord, 0, len(payload))
	for _, item := range payload {
		if item.RecordID == nil {
			continue
		}
		record := models.AttendanceRecord{StudentID: item.StudentID, LessonID: lessonID}
		if item.Status != nil {
			status := models.StudentStatus(*item.Status)
			if status.Valid() {
				record.Status = &status
			} else {
				c.logger.Warn("unknown attendance status", zap.String("status", *item.Status), zap.Int64("lesson_id", lessonID))
			}
		}
		if item.Grade != nil {
			if grade, ok := models.GradeFromFloat(*item.Grade); ok {
				record.Grade = &grade
			} else {
				c.logger.Warn("invalid grade ignored", zap.Float64("grade", *item.Grade), zap.Int64("lesson_id", lessonID))
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// SaveRecord creates or replaces a record. Status is always sent.
func (c *BackendClient) SaveRecord(ctx context.Context, req models.SaveRecordRequest) error {
	form := url.Values{}
	form.Set("student_id", strconv.FormatInt(req.StudentID, 10))
	form.Set("schedule_id", strconv.FormatInt(req.LessonID, 10))
	status := req.Status
	if status == "" {
		status = models.StatusPresent
	}
	form.Set("status", string(status))
	if req.Grade != nil {
		form.Set("grade", strconv.Itoa(*req.Grade))
	}

	start := time.Now()
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/records", strings.NewReader(form.Encode()))
	if err == nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		err = c.do(c.client, httpReq, nil)
	}
	c.observe("save_record", err, start)
	return err
}

// ListGroups returns every group.
func (c *BackendClient) ListGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if err := c.getJSON(ctx, "list_groups", "/api/groups", &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// ListDisciplines returns the disciplines present in the group's schedule.
func (c *BackendClient) ListDisciplines(ctx context.Context, groupID int64) ([]models.Discipline, error) {
	lessons, err := c.ListLessons(ctx, groupID, "")
	if err != nil {
		return nil, err
	}
	disciplines := make([]models.Discipline, 0)
	seen := make(map[string]struct{})
	for _, lesson := range lessons {
		if _, ok := seen[lesson.Discipline]; ok {
			continue
		}
		seen[lesson.Discipline] = struct{}{}
		disciplines = append(disciplines, models.Discipline{ID: lesson.DisciplineID, Name: lesson.Discipline})
	}
	return disciplines, nil
}

// Recognize uploads a photo for bulk recognition of a lesson.
func (c *BackendClient) Recognize(ctx context.Context, lessonID int64, photo models.RecognitionPhoto) (models.RecognitionStats, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, photo.Filename))
	contentType := photo.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return models.RecognitionStats{}, fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(photo.Data); err != nil {
		return models.RecognitionStats{}, fmt.Errorf("write multipart part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return models.RecognitionStats{}, fmt.Errorf("close multipart writer: %w", err)
	}

	start := time.Now()
	var stats models.RecognitionStats
	httpReq, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf("/api/schedules/%d/recognize-attendance", lessonID), &body)
	if err == nil {
		httpReq.Header.Set("Content-Type", writer.FormDataContentType())
		err = c.do(c.recognitionClient, httpReq, &stats)
	}
	c.observe("recognize", err, start)
	return stats, err
}

func (c *BackendClient) getJSON(ctx context.Context, operation, path string, dest interface{}) error {
	start := time.Now()
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err == nil {
		err = c.do(c.client, req, dest)
	}
	c.observe(operation, err, start)
	return err
}

func (c *BackendClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if caller, ok := models.CallerFromContext(ctx); ok && caller.Token != "" {
		req.Header.Set("Authorization", "Bearer "+caller.Token)
	}
	return req, nil
}

func (c *BackendClient) do(client *http.Client, req *http.Request, dest interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return backendError(resp)
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// backendError maps a failed response onto the error taxonomy, carrying the backend's detail text.
func backendError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Detail interface{} `json:"detail"`
	}
	detail := ""
	if json.Unmarshal(raw, &payload) == nil {
		if text, ok := payload.Detail.(string); ok {
			detail = text
		}
	}
	cause := fmt.Errorf("backend responded %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return appErrors.CloneWrap(appErrors.ErrUnauthorized, cause, detail)
	case http.StatusForbidden:
		return appErrors.CloneWrap(appErrors.ErrForbidden, cause, detail)
	case http.StatusNotFound:
		return appErrors.CloneWrap(appErrors.ErrNotFound, cause, detail)
	default:
		return cause
	}
}

func (c *BackendClient) observe(operation string, err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.ObserveBackendCall(operation, err, time.Since(start))
}
