package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/journal-matrix-api/internal/dto"
	"github.com/noah-isme/journal-matrix-api/internal/models"
	appErrors "github.com/noah-isme/journal-matrix-api/pkg/errors"
)

// JournalSource is the backend owning lessons, rosters and attendance records. Lesson flags are
// computed by the backend for the caller carried in ctx.
type JournalSource interface {
	ListLessons(ctx context.Context, groupID int64, discipline string) ([]models.LessonInstance, error)
	GetLesson(ctx context.Context, lessonID int64) (*models.LessonInstance, error)
	ListRoster(ctx context.Context, groupID int64) ([]models.Student, error)
	ListRecords(ctx context.Context, lessonID int64) ([]models.AttendanceRecord, error)
	SaveRecord(ctx context.Context, req models.SaveRecordRequest) error
	ListGroups(ctx context.Context) ([]models.Group, error)
	ListDisciplines(ctx context.Context, groupID int64) ([]models.Discipline, error)
}

// JournalServiceConfig tunes fetching.
type JournalServiceConfig struct {
	FetchConcurrency int
	StrictRecords    bool
}

// JournalService rebuilds matrices and applies cell edits.
type JournalService struct {
	source    JournalSource
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       JournalServiceConfig
}

// NewJournalService constructs the journal service.
func NewJournalService(source JournalSource, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg JournalServiceConfig) *JournalService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 8
	}
	return &JournalService{source: source, metrics: metrics, validator: validate, logger: logger, cfg: cfg}
}

// Rebuild fetches lessons, roster and records and composes a fresh matrix. Missing data yields the
// empty result; failed fetches yield FETCH_FAILED.
func (s *JournalService) Rebuild(ctx context.Context, query dto.MatrixQuery) (*models.MatrixResult, error) {
	query.Discipline = strings.TrimSpace(query.Discipline)
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "group_id and discipline are required")
	}

	start := time.Now()
	result, err := s.rebuild(ctx, query)
	if err != nil {
		s.metrics.ObserveMatrixBuild("error", time.Since(start))
		return nil, err
	}
	label := "matrix"
	if result.Empty {
		label = result.Reason
	}
	s.metrics.ObserveMatrixBuild(label, time.Since(start))
	return result, nil
}

func (s *JournalService) rebuild(ctx context.Context, query dto.MatrixQuery) (*models.MatrixResult, error) {
	var (
		lessons []models.LessonInstance
		roster  []models.Student
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := s.source.ListLessons(gctx, query.GroupID, query.Discipline)
		if err != nil {
			return fetchError(err, "failed to fetch lessons")
		}
		lessons = forDiscipline(items, query.Discipline)
		return nil
	})
	g.Go(func() error {
		items, err := s.source.ListRoster(gctx, query.GroupID)
		if err != nil {
			return fetchError(err, "failed to fetch students")
		}
		roster = items
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	grouping := GroupSchedule(lessons)
	if grouping.Empty() {
		return &models.MatrixResult{Empty: true, Reason: models.ReasonNoLessons}, nil
	}
	if len(roster) == 0 {
		return &models.MatrixResult{Empty: true, Reason: models.ReasonNoStudents}, nil
	}

	batches, warnings, err := s.fetchRecords(ctx, lessons)
	if err != nil {
		return nil, err
	}

	index := NewRecordIndex(batches)
	if dup := index.Duplicates(); dup > 0 {
		s.logger.Warn("duplicate attendance records resolved last-write-wins",
			zap.Int64("group_id", query.GroupID),
			zap.String("discipline", query.Discipline),
			zap.Int("duplicates", dup),
		)
	}

	result := BuildMatrix(MatrixInput{
		GroupID:    query.GroupID,
		Discipline: query.Discipline,
		Grouping:   grouping,
		Roster:     roster,
		Index:      index,
		Lessons:    lessons,
	})
	result = FilterRows(result, query.Search)
	result.Warnings = warnings
	return &result, nil
}

// fetchRecords loads every lesson's records concurrently and joins them before returning. A failed
// lesson becomes an empty batch plus a warning unless strict mode is on.
func (s *JournalService) fetchRecords(ctx context.Context, lessons []models.LessonInstance) ([]models.LessonRecords, []string, error) {
	batches := make([]models.LessonRecords, len(lessons))
	failed := make([]bool, len(lessons))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FetchConcurrency)
	for i, lesson := range lessons {
		i, lessonID := i, lesson.ID
		g.Go(func() error {
			records, err := s.source.ListRecords(gctx, lessonID)
			if err != nil {
				if s.cfg.StrictRecords {
					return appErrors.CloneWrap(appErrors.ErrFetchFailed, err, fmt.Sprintf("failed to fetch records for lesson %d", lessonID))
				}
				s.logger.Warn("lesson records unavailable, treating as empty", zap.Int64("lesson_id", lessonID), zap.Error(err))
				failed[i] = true
				records = nil
			}
			batches[i] = models.LessonRecords{LessonID: lessonID, Records: records}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var warnings []string
	for i, lesson := range lessons {
		if failed[i] {
			warnings = append(warnings, fmt.Sprintf("records for lesson %d on %s could not be loaded and are shown as empty", lesson.ID, lesson.Date))
		}
	}
	return batches, warnings, nil
}

// EditCell classifies and saves one cell, then recomputes the averages of that row only.
func (s *JournalService) EditCell(ctx context.Context, req dto.EditCellRequest) (*dto.EditCellResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cell edit payload")
	}

	lesson, err := s.source.GetLesson(ctx, req.LessonID)
	if err != nil {
		return nil, fetchError(err, "failed to load lesson")
	}

	decision, err := ClassifyCell(req.Value, lesson.CanEdit)
	if err != nil {
		if errors.Is(err, appErrors.ErrCellReadOnly) {
			s.metrics.RecordCellEdit("read_only")
		} else {
			s.metrics.RecordCellEdit("rejected")
		}
		return nil, err
	}

	lessonTypes, err := s.journalLessonTypes(ctx, req.GroupID, *lesson)
	if err != nil {
		return nil, err
	}

	save := models.SaveRecordRequest{
		StudentID: req.StudentID,
		LessonID:  req.LessonID,
		Status:    decision.PersistStatus(),
		Grade:     decision.Grade,
	}
	if err := s.source.SaveRecord(ctx, save); err != nil {
		s.metrics.RecordCellEdit("persist_failed")
		s.logger.Warn("cell save failed",
			zap.Int64("student_id", req.StudentID),
			zap.Int64("lesson_id", req.LessonID),
			zap.Error(err),
		)
		return nil, appErrors.CloneWrap(appErrors.ErrPersistFailed, err, "")
	}
	s.metrics.RecordCellEdit("saved")

	row := applyEdit(req.Row, *lesson, decision.Display)
	return &dto.EditCellResult{
		StudentID: req.StudentID,
		LessonID:  req.LessonID,
		Cell: models.MatrixCell{
			LessonID:   lesson.ID,
			LessonType: lesson.LessonType,
			Display:    decision.Display,
			State:      decision.State,
			Editable:   true,
			Status:     decision.Status,
			Grade:      decision.Grade,
		},
		StyleClass: decision.StyleClass,
		Averages:   CalculateRowAverages(RowCellsFromValues(row), lessonTypes),
	}, nil
}

// journalLessonTypes returns the sorted lesson types of the journal the lesson belongs to, the same
// list that orders the matrix's per-type average columns.
func (s *JournalService) journalLessonTypes(ctx context.Context, groupID int64, lesson models.LessonInstance) ([]string, error) {
	lessons, err := s.source.ListLessons(ctx, groupID, lesson.Discipline)
	if err != nil {
		return nil, fetchError(err, "failed to fetch lessons")
	}
	journal := forDiscipline(lessons, lesson.Discipline)
	for _, item := range journal {
		if item.ID == lesson.ID {
			return GroupSchedule(journal).LessonTypes, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "lesson does not belong to the group's journal")
}

// CycleCell advances a cell through the double-click sequence and saves it like a typed edit.
func (s *JournalService) CycleCell(ctx context.Context, req dto.EditCellRequest) (*dto.EditCellResult, error) {
	req.Value = NextCycleValue(req.Value)
	return s.EditCell(ctx, req)
}

// MarkLessonPresent saves every student of the group as present for the lesson, one at a time.
// Existing grades are kept.
func (s *JournalService) MarkLessonPresent(ctx context.Context, lessonID int64, req dto.MarkPresentRequest) (*dto.BulkMarkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "group_id is required")
	}

	lesson, err := s.source.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, fetchError(err, "failed to load lesson")
	}
	if !lesson.CanEdit {
		return nil, appErrors.ErrCellReadOnly
	}

	roster, err := s.source.ListRoster(ctx, req.GroupID)
	if err != nil {
		return nil, fetchError(err, "failed to fetch students")
	}
	records, err := s.source.ListRecords(ctx, lessonID)
	if err != nil {
		return nil, fetchError(err, "failed to fetch lesson records")
	}
	index := NewRecordIndex([]models.LessonRecords{{LessonID: lessonID, Records: records}})

	result := &dto.BulkMarkResult{LessonID: lessonID, Total: len(roster)}
	for _, student := range roster {
		save := models.SaveRecordRequest{StudentID: student.ID, LessonID: lessonID, Status: models.StatusPresent}
		if record, ok := index.Lookup(student.ID, lessonID); ok {
			save.Grade = record.Grade
		}
		if err := s.source.SaveRecord(ctx, save); err != nil {
			s.logger.Warn("mark present failed", zap.Int64("student_id", student.ID), zap.Int64("lesson_id", lessonID), zap.Error(err))
			result.Errors++
			result.FailedStudentIDs = append(result.FailedStudentIDs, student.ID)
			continue
		}
		result.Success++
	}
	return result, nil
}

// applyEdit replaces the edited lesson's value in the client row, appending it when absent.
func applyEdit(row []dto.RowCellValue, lesson models.LessonInstance, display string) []RowValue {
	values := make([]RowValue, 0, len(row)+1)
	replaced := false
	for _, cell := range row {
		value := RowValue{LessonID: cell.LessonID, LessonType: cell.LessonType, Value: cell.Value}
		if cell.LessonID == lesson.ID {
			value.Value = display
			if value.LessonType == "" {
				value.LessonType = lesson.LessonType
			}
			replaced = true
		}
		values = append(values, value)
	}
	if !replaced {
		values = append(values, RowValue{LessonID: lesson.ID, LessonType: lesson.LessonType, Value: display})
	}
	return values
}

func forDiscipline(lessons []models.LessonInstance, discipline string) []models.LessonInstance {
	if discipline == "" {
		return lessons
	}
	out := make([]models.LessonInstance, 0, len(lessons))
	for _, lesson := range lessons {
		if lesson.Discipline == discipline {
			out = append(out, lesson)
		}
	}
	return out
}

// fetchError keeps typed backend errors such as NOT_FOUND and maps anything else to FETCH_FAILED.
func fetchError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.CloneWrap(appErrors.ErrFetchFailed, err, message)
}
