package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/journal-matrix-api/internal/dto"
	"github.com/noah-isme/journal-matrix-api/internal/models"
	appErrors "github.com/noah-isme/journal-matrix-api/pkg/errors"
)

func recognitionFixture() (*journalSourceStub, *recognitionClientStub, *RecognitionService) {
	source := newJournalFixture()
	client := &recognitionClientStub{}
	journal := NewJournalService(source, nil, nil, nil, JournalServiceConfig{})
	svc := NewRecognitionService(source, client, journal, NewMetricsService(), nil, zap.NewNop(), RecognitionServiceConfig{})
	return source, client, svc
}

func TestRecognitionServiceRebuildsAfterCompletion(t *testing.T) {
	source, client, svc := recognitionFixture()
	client.stats = models.RecognitionStats{RecognizedCount: 2, TotalStudents: 2, TotalFaces: 3, RecognitionRate: 1, UnrecognizedFaces: 1}
	// The backend persists recognition results itself.
	client.onCall = func(lessonID int64) {
		for _, id := range []int64{10, 11} {
			require.NoError(t, source.SaveRecord(context.Background(), models.SaveRecordRequest{StudentID: id, LessonID: lessonID, Status: models.StatusAutoDetected}))
		}
	}

	before, err := svc.journal.Rebuild(context.Background(), dto.MatrixQuery{GroupID: 7, Discipline: "Physics"})
	require.NoError(t, err)
	assert.Equal(t, "", before.Matrix.Rows[0].Cells[1].Display)

	outcome, err := svc.Recognize(context.Background(), dto.RecognizeRequest{
		LessonID:   2,
		GroupID:    7,
		Discipline: "Physics",
		Filename:   "group.png",
		Data:       pngBytes(t, 32, 32),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, outcome.OperationID)
	assert.Equal(t, 2, outcome.Stats.RecognizedCount)
	assert.LessOrEqual(t, outcome.Stats.RecognizedCount, outcome.Stats.TotalStudents)

	require.NotNil(t, outcome.Journal.Matrix)
	assert.Equal(t, "А", outcome.Journal.Matrix.Rows[0].Cells[1].Display)
	assert.Equal(t, "А", outcome.Journal.Matrix.Rows[1].Cells[1].Display)
	assert.Equal(t, "", before.Matrix.Rows[0].Cells[1].Display)

	status := svc.Status(2)
	assert.Equal(t, models.RecognitionIdle, status.State)
	assert.False(t, status.HasPhoto)
}

func TestRecognitionServiceRequiresEditablePastLesson(t *testing.T) {
	source, client, svc := recognitionFixture()
	source.lessons = append(source.lessons, models.LessonInstance{ID: 20, Date: "2099-01-01", Discipline: "Physics", CanEdit: true})

	for _, lessonID := range []int64{3, 20} {
		_, err := svc.Recognize(context.Background(), dto.RecognizeRequest{LessonID: lessonID, GroupID: 7, Discipline: "Physics", Data: pngBytes(t, 8, 8)})
		assert.ErrorIs(t, err, appErrors.ErrRecognitionNotAllowed)
	}
	assert.Zero(t, client.calls)
}

func TestRecognitionServiceFailureRetainsPhotoForRetry(t *testing.T) {
	_, client, svc := recognitionFixture()
	client.err = errBackendDown

	_, err := svc.Recognize(context.Background(), dto.RecognizeRequest{LessonID: 1, GroupID: 7, Discipline: "Physics", Filename: "a.png", Data: pngBytes(t, 8, 8)})
	assert.ErrorIs(t, err, appErrors.ErrRecognitionFailed)

	status := svc.Status(1)
	assert.Equal(t, models.RecognitionPhotoSelected, status.State)
	assert.True(t, status.HasPhoto)

	client.err = nil
	client.stats = models.RecognitionStats{RecognizedCount: 1, TotalStudents: 2}
	outcome, err := svc.Recognize(context.Background(), dto.RecognizeRequest{LessonID: 1, GroupID: 7, Discipline: "Physics"})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Stats.RecognizedCount)
	assert.Equal(t, 2, client.calls)
}

func TestRecognitionServiceRetryWithoutPhoto(t *testing.T) {
	_, _, svc := recognitionFixture()
	_, err := svc.Recognize(context.Background(), dto.RecognizeRequest{LessonID: 1, GroupID: 7, Discipline: "Physics"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestRecognitionServiceDiscard(t *testing.T) {
	_, client, svc := recognitionFixture()
	client.err = errBackendDown
	_, _ = svc.Recognize(context.Background(), dto.RecognizeRequest{LessonID: 1, GroupID: 7, Discipline: "Physics", Data: pngBytes(t, 8, 8)})

	require.NoError(t, svc.Discard(1))
	assert.Equal(t, models.RecognitionIdle, svc.Status(1).State)
	require.NoError(t, svc.Discard(99))
}

func TestRecognitionServiceRebuildFailureStillReportsStats(t *testing.T) {
	source, client, svc := recognitionFixture()
	client.stats = models.RecognitionStats{RecognizedCount: 1, TotalStudents: 2}
	client.onCall = func(int64) { source.rosterErr = errBackendDown }

	outcome, err := svc.Recognize(context.Background(), dto.RecognizeRequest{LessonID: 1, GroupID: 7, Discipline: "Physics", Data: pngBytes(t, 8, 8)})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Stats.RecognizedCount)
	assert.True(t, outcome.Journal.Empty)
	assert.Len(t, outcome.Journal.Warnings, 1)
}

func TestRecognitionTargets(t *testing.T) {
	grouping := GroupSchedule([]models.LessonInstance{
		{ID: 1, Date: "2024-02-27", TimeStart: "08:30", LessonType: "Л", IsPast: true, CanEdit: true},
		{ID: 2, Date: "2024-02-27", TimeStart: "10:15", LessonType: "С", IsPast: true, CanEdit: false},
		{ID: 3, Date: "2024-03-05", TimeStart: "08:30", LessonType: "Л", IsPast: true, CanEdit: true},
		{ID: 4, Date: "2024-03-05", TimeStart: "10:15", LessonType: "ЛР", IsPast: true, CanEdit: true},
		{ID: 5, Date: "2024-03-12", TimeStart: "08:30", LessonType: "Л", IsPast: true, IsCancelled: true},
		{ID: 6, Date: "2099-03-19", TimeStart: "08:30", LessonType: "Л", CanEdit: true},
	})

	targets := RecognitionTargets(grouping)
	require.Len(t, targets, 2)

	assert.Equal(t, "2024-02-27", targets[0].Date)
	require.NotNil(t, targets[0].AutoSelected)
	assert.Equal(t, int64(1), *targets[0].AutoSelected)
	assert.False(t, targets[0].Lessons[1].Enabled)
	assert.Equal(t, models.AccessReadOnly, targets[0].Lessons[1].Access)

	assert.Equal(t, "2024-03-05", targets[1].Date)
	assert.Nil(t, targets[1].AutoSelected)
	assert.Len(t, targets[1].Lessons, 2)
}

func TestRecognitionServiceTargets(t *testing.T) {
	_, _, svc := recognitionFixture()
	targets, err := svc.Targets(context.Background(), dto.RecognitionTargetsQuery{GroupID: 7, Discipline: "Physics"})
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, int64(1), *targets[0].AutoSelected)
	assert.Equal(t, int64(2), *targets[1].AutoSelected)

	_, err = svc.Targets(context.Background(), dto.RecognitionTargetsQuery{GroupID: 7})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
