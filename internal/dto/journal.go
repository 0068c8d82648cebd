package dto

import "github.com/noah-isme/journal-matrix-api/internal/models"

// MatrixQuery selects the journal to render.
type MatrixQuery struct {
	GroupID    int64  `form:"group_id" json:"group_id" validate:"required,gt=0"`
	Discipline string `form:"discipline" json:"discipline" validate:"required,max=255"`
	Search     string `form:"search" json:"search,omitempty" validate:"max=255"`
}

// RowCellValue is one displayed cell of the row being edited, as held by the client.
type RowCellValue struct {
	LessonID   int64  `json:"lesson_id" validate:"required,gt=0"`
	LessonType string `json:"lesson_type" validate:"max=32"`
	Value      string `json:"value" validate:"max=16"`
}

// EditCellRequest edits a single cell. Row carries the student's current cells so averages can be
// recomputed without refetching records. GroupID selects the journal whose lesson types order the
// per-type averages.
type EditCellRequest struct {
	GroupID   int64          `json:"group_id" validate:"required,gt=0"`
	StudentID int64          `json:"student_id" validate:"required,gt=0"`
	LessonID  int64          `json:"lesson_id" validate:"required,gt=0"`
	Value     string         `json:"value" validate:"max=16"`
	Row       []RowCellValue `json:"row" validate:"dive"`
}

// EditCellResult is the classified cell plus the recomputed row averages.
type EditCellResult struct {
	StudentID  int64              `json:"student_id"`
	LessonID   int64              `json:"lesson_id"`
	Cell       models.MatrixCell  `json:"cell"`
	StyleClass string             `json:"style_class,omitempty"`
	Averages   models.RowAverages `json:"averages"`
}

// MarkPresentRequest marks every student of a group present for one lesson.
type MarkPresentRequest struct {
	GroupID int64 `json:"group_id" validate:"required,gt=0"`
}

// BulkMarkResult reports a sequential bulk save.
type BulkMarkResult struct {
	LessonID         int64   `json:"lesson_id"`
	Total            int     `json:"total"`
	Success          int     `json:"success"`
	Errors           int     `json:"errors"`
	FailedStudentIDs []int64 `json:"failed_student_ids,omitempty"`
}

// RecognitionTargetsQuery selects the journal whose recognizable lessons are listed.
type RecognitionTargetsQuery struct {
	GroupID    int64  `form:"group_id" validate:"required,gt=0"`
	Discipline string `form:"discipline" validate:"required,max=255"`
}

// RecognizeRequest submits a photo for one lesson. Data may be empty to retry the retained photo.
type RecognizeRequest struct {
	LessonID   int64  `validate:"required,gt=0"`
	GroupID    int64  `validate:"required,gt=0"`
	Discipline string `validate:"required,max=255"`
	Filename   string
	Data       []byte
}

// RecognitionStatus describes the flow currently registered for a lesson.
type RecognitionStatus struct {
	LessonID int64                    `json:"lesson_id"`
	State    models.RecognitionState  `json:"state"`
	HasPhoto bool                     `json:"has_photo"`
	Stats    *models.RecognitionStats `json:"stats,omitempty"`
}
