package models

import "time"

// RecognitionState is the lifecycle of one bulk recognition flow.
type RecognitionState string

const (
	RecognitionIdle          RecognitionState = "idle"
	RecognitionPhotoSelected RecognitionState = "photo_selected"
	RecognitionRecognizing   RecognitionState = "recognizing"
	RecognitionCompleted     RecognitionState = "completed"
)

// RecognitionStats is what the backend reports after classifying a photo.
type RecognitionStats struct {
	RecognizedCount   int     `json:"recognized_count"`
	TotalStudents     int     `json:"total_students"`
	TotalFaces        int     `json:"total_faces"`
	RecognitionRate   float64 `json:"recognition_rate"`
	UnrecognizedFaces int     `json:"unrecognized_faces"`
}

// RecognitionPhoto is a normalised image scoped to one lesson.
type RecognitionPhoto struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RecognitionOutcome is returned once the flow completed and the matrix was rebuilt.
type RecognitionOutcome struct {
	OperationID string           `json:"operation_id"`
	LessonID    int64            `json:"lesson_id"`
	Stats       RecognitionStats `json:"stats"`
	CompletedAt time.Time        `json:"completed_at"`
	Journal     MatrixResult     `json:"journal"`
}

// RecognitionLessonOption is one lesson offered for recognition on a date.
type RecognitionLessonOption struct {
	LessonID   int64        `json:"lesson_id"`
	Label      string       `json:"label"`
	LessonType string       `json:"lesson_type"`
	TimeStart  string       `json:"time_start"`
	Classroom  string       `json:"classroom"`
	Enabled    bool         `json:"enabled"`
	Access     LessonAccess `json:"access"`
}

// RecognitionDate lists lessons on one date that has at least one recognizable lesson.
type RecognitionDate struct {
	Date         string                    `json:"date"`
	Lessons      []RecognitionLessonOption `json:"lessons"`
	AutoSelected *int64                    `json:"auto_selected,omitempty"`
}
