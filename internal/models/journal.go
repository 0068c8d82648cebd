package models

import "math"

// StudentStatus is the closed attendance vocabulary stored per record.
type StudentStatus string

const (
	StatusPresent             StudentStatus = "present"
	StatusAbsent              StudentStatus = "absent"
	StatusExcused             StudentStatus = "excused"
	StatusAutoDetected        StudentStatus = "auto_detected"
	StatusFingerprintDetected StudentStatus = "fingerprint_detected"
)

// Valid returns true when the status is a supported value.
func (s StudentStatus) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusExcused, StatusAutoDetected, StatusFingerprintDetected:
		return true
	default:
		return false
	}
}

// Grade bounds accepted by the journal.
const (
	MinGrade = 2
	MaxGrade = 5
)

// GradeFromFloat converts a stored grade, reporting false for fractional or out-of-range values.
func GradeFromFloat(v float64) (int, bool) {
	if v != math.Trunc(v) || v < MinGrade || v > MaxGrade {
		return 0, false
	}
	return int(v), true
}

// LessonAccess explains why a lesson column is or is not editable.
type LessonAccess string

const (
	AccessCancelled LessonAccess = "cancelled"
	AccessFuture    LessonAccess = "future"
	AccessEditable  LessonAccess = "editable"
	AccessReadOnly  LessonAccess = "read_only"
)

// GroupRef is a lightweight group reference attached to lessons.
type GroupRef struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// LessonInstance is one concrete scheduled occurrence of a discipline. IsPast, IsCancelled and
// CanEdit are computed by the backend for the calling user and are trusted as-is.
type LessonInstance struct {
	ID           int64      `db:"id" json:"id"`
	Date         string     `db:"date" json:"date"`
	TimeStart    string     `db:"time_start" json:"time_start"`
	TimeEnd      string     `db:"time_end" json:"time_end"`
	DisciplineID int64      `db:"discipline_id" json:"discipline_id"`
	Discipline   string     `db:"discipline" json:"discipline"`
	LessonType   string     `db:"lesson_type" json:"lesson_type"`
	Classroom    string     `db:"classroom" json:"classroom"`
	TeacherID    int64      `db:"teacher_id" json:"teacher_id,omitempty"`
	Teacher      string     `db:"teacher" json:"teacher,omitempty"`
	IsPast       bool       `db:"is_past" json:"is_past"`
	IsCancelled  bool       `db:"is_cancelled" json:"is_cancelled"`
	CanEdit      bool       `db:"can_edit" json:"can_edit"`
	Groups       []GroupRef `db:"-" json:"groups"`
}

// Access classifies the lesson for column labels. Cancellation wins over time, time over ownership.
func (l LessonInstance) Access() LessonAccess {
	switch {
	case l.IsCancelled:
		return AccessCancelled
	case !l.IsPast:
		return AccessFuture
	case l.CanEdit:
		return AccessEditable
	default:
		return AccessReadOnly
	}
}

// Recognizable reports whether a bulk recognition may target this lesson.
func (l LessonInstance) Recognizable() bool {
	return l.CanEdit && l.IsPast && !l.IsCancelled
}

// Student is one roster entry.
type Student struct {
	ID        int64  `db:"id" json:"id"`
	FullName  string `db:"full_name" json:"full_name"`
	GroupID   int64  `db:"group_id" json:"group_id"`
	GroupName string `db:"group_name" json:"group_name"`
}

// AttendanceRecord is the saved state of one (student, lesson) pair. Status and Grade are
// independent; both nil means an explicit "unmarked" save.
type AttendanceRecord struct {
	StudentID int64          `db:"student_id" json:"student_id"`
	LessonID  int64          `db:"lesson_id" json:"lesson_id"`
	Status    *StudentStatus `db:"status" json:"status"`
	Grade     *int           `db:"grade" json:"grade"`
}

// LessonRecords is the batch of records fetched for one lesson.
type LessonRecords struct {
	LessonID int64
	Records  []AttendanceRecord
}

// SaveRecordRequest is the persisted form of a single cell edit.
type SaveRecordRequest struct {
	StudentID int64         `json:"student_id"`
	LessonID  int64         `json:"lesson_id"`
	Status    StudentStatus `json:"status"`
	Grade     *int          `json:"grade,omitempty"`
}

// Group is a teaching group.
type Group struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Discipline is a taught subject.
type Discipline struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}
