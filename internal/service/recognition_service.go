package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/journal-matrix-api/internal/dto"
	"github.com/noah-isme/journal-matrix-api/internal/models"
	appErrors "github.com/noah-isme/journal-matrix-api/pkg/errors"
	"github.com/noah-isme/journal-matrix-api/pkg/photo"
)

type lessonLookup interface {
	GetLesson(ctx context.Context, lessonID int64) (*models.LessonInstance, error)
	ListLessons(ctx context.Context, groupID int64, discipline string) ([]models.LessonInstance, error)
}

type matrixRebuilder interface {
	Rebuild(ctx context.Context, query dto.MatrixQuery) (*models.MatrixResult, error)
}

// RecognitionServiceConfig bounds uploads and backend calls.
type RecognitionServiceConfig struct {
	Photo   photo.Options
	Timeout time.Duration
}

// RecognitionService keeps one reconciler per lesson so only one recognition runs per lesson, and
// rebuilds the matrix from fresh data once a recognition completes.
type RecognitionService struct {
	lessons   lessonLookup
	client    RecognitionClient
	journal   matrixRebuilder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       RecognitionServiceConfig

	mu          sync.Mutex
	reconcilers map[int64]*RecognitionReconciler
}

// NewRecognitionService constructs the recognition service.
func NewRecognitionService(lessons lessonLookup, client RecognitionClient, journal matrixRebuilder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg RecognitionServiceConfig) *RecognitionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecognitionService{
		lessons:     lessons,
		client:      client,
		journal:     journal,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		reconcilers: make(map[int64]*RecognitionReconciler),
	}
}

// Recognize submits a photo for a lesson and returns the statistics with a rebuilt matrix. An empty
// payload retries the photo retained from a failed attempt.
func (s *RecognitionService) Recognize(ctx context.Context, req dto.RecognizeRequest) (*models.RecognitionOutcome, error) {
	req.Discipline = strings.TrimSpace(req.Discipline)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "lesson, group_id and discipline are required")
	}

	lesson, err := s.lessons.GetLesson(ctx, req.LessonID)
	if err != nil {
		return nil, fetchError(err, "failed to load lesson")
	}
	if !lesson.Recognizable() {
		s.metrics.RecordRecognition("not_allowed")
		return nil, appErrors.ErrRecognitionNotAllowed
	}

	reconciler := s.reconciler(req.LessonID)
	if len(req.Data) > 0 {
		if err := reconciler.SelectPhoto(req.Data, req.Filename); err != nil {
			return nil, err
		}
	} else if !reconciler.HasPhoto() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "photo file is required")
	}

	submitCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	operationID := uuid.NewString()
	logger := s.logger.With(zap.String("operation_id", operationID), zap.Int64("lesson_id", req.LessonID))
	logger.Info("recognition submitted")

	stats, err := reconciler.Submit(submitCtx)
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Code == appErrors.ErrRecognitionInFlight.Code {
			s.metrics.RecordRecognition("in_flight")
		} else {
			s.metrics.RecordRecognition("failed")
			logger.Warn("recognition failed", zap.Error(err))
		}
		return nil, err
	}
	s.metrics.RecordRecognition("completed")
	logger.Info("recognition completed",
		zap.Int("recognized", stats.RecognizedCount),
		zap.Int("total_students", stats.TotalStudents),
		zap.Int("total_faces", stats.TotalFaces),
	)

	outcome := &models.RecognitionOutcome{
		OperationID: operationID,
		LessonID:    req.LessonID,
		Stats:       stats,
		CompletedAt: reconciler.CompletedAt(),
	}

	journal, err := s.journal.Rebuild(ctx, dto.MatrixQuery{GroupID: req.GroupID, Discipline: req.Discipline})
	if err != nil {
		logger.Warn("rebuild after recognition failed", zap.Error(err))
		outcome.Journal = models.MatrixResult{
			Empty:    true,
			Reason:   "rebuild_failed",
			Warnings: []string{fmt.Sprintf("recognition results were saved but the journal could not be reloaded: %s", appErrors.FromError(err).Message)},
		}
	} else {
		outcome.Journal = *journal
	}

	if err := reconciler.Acknowledge(); err != nil {
		logger.Warn("acknowledge recognition", zap.Error(err))
	}
	s.release(req.LessonID, reconciler)
	return outcome, nil
}

// Status reports the registered flow for a lesson, idle when none exists.
func (s *RecognitionService) Status(lessonID int64) dto.RecognitionStatus {
	s.mu.Lock()
	reconciler, ok := s.reconcilers[lessonID]
	s.mu.Unlock()

	status := dto.RecognitionStatus{LessonID: lessonID, State: models.RecognitionIdle}
	if !ok {
		return status
	}
	status.State = reconciler.State()
	status.HasPhoto = reconciler.HasPhoto()
	if status.State == models.RecognitionCompleted {
		stats := reconciler.Stats()
		status.Stats = &stats
	}
	return status
}

// Discard drops a retained photo for a lesson.
func (s *RecognitionService) Discard(lessonID int64) error {
	s.mu.Lock()
	reconciler, ok := s.reconcilers[lessonID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if err := reconciler.Clear(); err != nil {
		return err
	}
	s.release(lessonID, reconciler)
	return nil
}

// Targets lists dates that have lessons open for recognition in a journal.
func (s *RecognitionService) Targets(ctx context.Context, query dto.RecognitionTargetsQuery) ([]models.RecognitionDate, error) {
	query.Discipline = strings.TrimSpace(query.Discipline)
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "group_id and discipline are required")
	}
	lessons, err := s.lessons.ListLessons(ctx, query.GroupID, query.Discipline)
	if err != nil {
		return nil, fetchError(err, "failed to fetch lessons")
	}
	return RecognitionTargets(GroupSchedule(forDiscipline(lessons, query.Discipline))), nil
}

func (s *RecognitionService) reconciler(lessonID int64) *RecognitionReconciler {
	s.mu.Lock()
	defer s.mu.Unlock()
	reconciler, ok := s.reconcilers[lessonID]
	if !ok {
		reconciler = NewRecognitionReconciler(lessonID, s.client, s.cfg.Photo)
		s.reconcilers[lessonID] = reconciler
	}
	return reconciler
}

// release forgets an idle reconciler so the registry only holds flows with state worth keeping.
func (s *RecognitionService) release(lessonID int64, reconciler *RecognitionReconciler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.reconcilers[lessonID]; ok && current == reconciler && reconciler.State() == models.RecognitionIdle {
		delete(s.reconcilers, lessonID)
	}
}

// RecognitionTargets keeps the dates with at least one editable past lesson. When exactly one lesson
// on a date qualifies it is preselected.
func RecognitionTargets(grouping ScheduleGrouping) []models.RecognitionDate {
	targets := make([]models.RecognitionDate, 0)
	for _, date := range grouping.Dates {
		entry := models.RecognitionDate{Date: date}
		var enabled []int64
		for _, lesson := range grouping.ByDate[date] {
			option := models.RecognitionLessonOption{
				LessonID:   lesson.ID,
				Label:      lessonLabel(lesson),
				LessonType: lesson.LessonType,
				TimeStart:  lesson.TimeStart,
				Classroom:  lesson.Classroom,
				Enabled:    lesson.Recognizable(),
				Access:     lesson.Access(),
			}
			if option.Enabled {
				enabled = append(enabled, lesson.ID)
			}
			entry.Lessons = append(entry.Lessons, option)
		}
		if len(enabled) == 0 {
			continue
		}
		if len(enabled) == 1 {
			id := enabled[0]
			entry.AutoSelected = &id
		}
		targets = append(targets, entry)
	}
	return targets
}

func lessonLabel(lesson models.LessonInstance) string {
	label := fmt.Sprintf("%s %s", lesson.LessonType, lesson.TimeStart)
	if lesson.Classroom != "" {
		label += ", " + lesson.Classroom
	}
	return label
}
