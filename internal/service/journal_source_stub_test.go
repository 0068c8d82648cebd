package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/journal-matrix-api/internal/models"
	appErrors "github.com/noah-isme/journal-matrix-api/pkg/errors"
)

type journalSourceStub struct {
	mu sync.Mutex

	lessons      []models.LessonInstance
	groupLessons map[int64][]models.LessonInstance
	roster      []models.Student
	records     map[int64][]models.AttendanceRecord
	recordErrs  map[int64]error
	groups      []models.Group
	disciplines []models.Discipline

	lessonsErr error
	rosterErr  error
	saveErr    error
	saveErrFor map[int64]error

	saved        []models.SaveRecordRequest
	recordCalls  int
	groupCalls   int
	lessonFilter string
}

func (s *journalSourceStub) ListLessons(ctx context.Context, groupID int64, discipline string) ([]models.LessonInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lessonFilter = discipline
	if lessons, ok := s.groupLessons[groupID]; ok {
		return lessons, s.lessonsErr
	}
	return s.lessons, s.lessonsErr
}

func (s *journalSourceStub) GetLesson(ctx context.Context, lessonID int64) (*models.LessonInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lesson := range s.lessons {
		if lesson.ID == lessonID {
			l := lesson
			return &l, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
}

func (s *journalSourceStub) ListRoster(ctx context.Context, groupID int64) ([]models.Student, error) {
	return s.roster, s.rosterErr
}

func (s *journalSourceStub) ListRecords(ctx context.Context, lessonID int64) ([]models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordCalls++
	if err := s.recordErrs[lessonID]; err != nil {
		return nil, err
	}
	return s.records[lessonID], nil
}

// SaveRecord applies the save to the in-memory records so later rebuilds observe it.
func (s *journalSourceStub) SaveRecord(ctx context.Context, req models.SaveRecordRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if err := s.saveErrFor[req.StudentID]; err != nil {
		return err
	}
	s.saved = append(s.saved, req)
	if s.records == nil {
		s.records = map[int64][]models.AttendanceRecord{}
	}
	status := req.Status
	record := models.AttendanceRecord{StudentID: req.StudentID, LessonID: req.LessonID, Status: &status, Grade: req.Grade}
	kept := s.records[req.LessonID][:0:0]
	for _, existing := range s.records[req.LessonID] {
		if existing.StudentID != req.StudentID {
			kept = append(kept, existing)
		}
	}
	s.records[req.LessonID] = append(kept, record)
	return nil
}

func (s *journalSourceStub) ListGroups(ctx context.Context) ([]models.Group, error) {
	s.groupCalls++
	return s.groups, nil
}

func (s *journalSourceStub) ListDisciplines(ctx context.Context, groupID int64) ([]models.Discipline, error) {
	return s.disciplines, nil
}

var errBackendDown = errors.New("backend down")

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
