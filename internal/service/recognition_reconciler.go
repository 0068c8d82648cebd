package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/noah-isme/journal-matrix-api/internal/models"
	appErrors "github.com/noah-isme/journal-matrix-api/pkg/errors"
	"github.com/noah-isme/journal-matrix-api/pkg/photo"
)

// RecognitionClient submits a photo for bulk attendance recognition. Results are persisted by the backend.
type RecognitionClient interface {
	Recognize(ctx context.Context, lessonID int64, photo models.RecognitionPhoto) (models.RecognitionStats, error)
}

// RecognitionReconciler drives one lesson's recognition flow:
// idle -> photo_selected -> recognizing -> completed -> idle.
// It never touches matrix cells; callers rebuild after completion.
type RecognitionReconciler struct {
	mu       sync.Mutex
	lessonID int64
	client   RecognitionClient
	opts     photo.Options
	now      func() time.Time

	state       models.RecognitionState
	photo       *models.RecognitionPhoto
	stats       models.RecognitionStats
	completedAt time.Time
}

// NewRecognitionReconciler creates an idle reconciler for a lesson.
func NewRecognitionReconciler(lessonID int64, client RecognitionClient, opts photo.Options) *RecognitionReconciler {
	return &RecognitionReconciler{
		lessonID: lessonID,
		client:   client,
		opts:     opts,
		now:      time.Now,
		state:    models.RecognitionIdle,
	}
}

// State returns the current state.
func (r *RecognitionReconciler) State() models.RecognitionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stats returns the statistics of the last completed submission.
func (r *RecognitionReconciler) Stats() models.RecognitionStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// CompletedAt returns when the last submission completed.
func (r *RecognitionReconciler) CompletedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completedAt
}

// HasPhoto reports whether a photo is ready for submission.
func (r *RecognitionReconciler) HasPhoto() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.photo != nil
}

// SelectPhoto normalises and stores an image. A completed flow is implicitly acknowledged.
func (r *RecognitionReconciler) SelectPhoto(data []byte, filename string) error {
	normalized, err := photo.Normalize(data, filename, r.opts)
	if err != nil {
		if errors.Is(err, photo.ErrNotImage) {
			return appErrors.CloneWrap(appErrors.ErrValidation, err, "uploaded file is not an image")
		}
		return appErrors.CloneWrap(appErrors.ErrValidation, err, "unable to read uploaded image")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == models.RecognitionRecognizing {
		return appErrors.ErrRecognitionInFlight
	}
	r.photo = &models.RecognitionPhoto{
		Filename:    normalized.Filename,
		ContentType: normalized.ContentType,
		Data:        normalized.Data,
	}
	r.state = models.RecognitionPhotoSelected
	return nil
}

// Clear drops the selected photo.
func (r *RecognitionReconciler) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == models.RecognitionRecognizing {
		return appErrors.ErrRecognitionInFlight
	}
	r.photo = nil
	r.state = models.RecognitionIdle
	return nil
}

// Submit sends the selected photo. On failure the photo is kept and the state returns to photo_selected.
func (r *RecognitionReconciler) Submit(ctx context.Context) (models.RecognitionStats, error) {
	r.mu.Lock()
	switch r.state {
	case models.RecognitionRecognizing:
		r.mu.Unlock()
		return models.RecognitionStats{}, appErrors.ErrRecognitionInFlight
	case models.RecognitionPhotoSelected:
	default:
		r.mu.Unlock()
		return models.RecognitionStats{}, appErrors.Clone(appErrors.ErrValidation, "select a photo before starting recognition")
	}
	r.state = models.RecognitionRecognizing
	selected := *r.photo
	r.mu.Unlock()

	stats, err := r.client.Recognize(ctx, r.lessonID, selected)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.state = models.RecognitionPhotoSelected
		message := ""
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			message = appErr.Message
		}
		return models.RecognitionStats{}, appErrors.CloneWrap(appErrors.ErrRecognitionFailed, err, message)
	}
	r.state = models.RecognitionCompleted
	r.stats = stats
	r.completedAt = r.now().UTC()
	return stats, nil
}

// Acknowledge returns a completed flow to idle once the consumer rebuilt the matrix.
func (r *RecognitionReconciler) Acknowledge() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != models.RecognitionCompleted {
		return appErrors.Clone(appErrors.ErrValidation, "recognition has not completed")
	}
	r.state = models.RecognitionIdle
	r.photo = nil
	return nil
}
