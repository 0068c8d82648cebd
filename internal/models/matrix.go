package models

// CellState is the semantic, presentation-free state of one matrix cell.
type CellState string

const (
	CellGrade               CellState = "grade"
	CellAbsent              CellState = "absent"
	CellExcused             CellState = "excused"
	CellAutoDetected        CellState = "auto_detected"
	CellFingerprintDetected CellState = "fingerprint_detected"
	CellEmpty               CellState = "empty"
)

// NoDataDisplay is shown for averages without grades.
const NoDataDisplay = "-"

// Average is a two-decimal mean. Value is nil when there were no grades.
type Average struct {
	Value   *float64 `json:"value"`
	Display string   `json:"display"`
}

// HasData reports whether the average was computed from at least one grade.
func (a Average) HasData() bool {
	return a.Value != nil
}

// RowAverages holds one average per lesson type (matrix order) and the overall average.
type RowAverages struct {
	ByType  []Average `json:"by_type"`
	Overall Average   `json:"overall"`
}

// MatrixCell is one (student, lesson) intersection.
type MatrixCell struct {
	LessonID   int64          `json:"lesson_id"`
	LessonType string         `json:"lesson_type"`
	Display    string         `json:"display"`
	State      CellState      `json:"state"`
	Editable   bool           `json:"editable"`
	Status     *StudentStatus `json:"status,omitempty"`
	Grade      *int           `json:"grade,omitempty"`
}

// MatrixRow is one student with their cells in schedule order.
type MatrixRow struct {
	Student  Student      `json:"student"`
	Cells    []MatrixCell `json:"cells"`
	Averages RowAverages  `json:"averages"`
}

// HeaderGroup is a top header cell spanning lesson or average columns.
type HeaderGroup struct {
	Label    string `json:"label"`
	Date     string `json:"date,omitempty"`
	Colspan  int    `json:"colspan"`
	Averages bool   `json:"averages,omitempty"`
}

// HeaderColumnKind distinguishes lesson columns from trailing average columns.
type HeaderColumnKind string

const (
	ColumnLesson         HeaderColumnKind = "lesson"
	ColumnTypeAverage    HeaderColumnKind = "type_average"
	ColumnOverallAverage HeaderColumnKind = "overall_average"
)

// HeaderColumn is one second-row header label.
type HeaderColumn struct {
	Kind       HeaderColumnKind `json:"kind"`
	Label      string           `json:"label"`
	LessonID   int64            `json:"lesson_id,omitempty"`
	LessonType string           `json:"lesson_type,omitempty"`
	Time       string           `json:"time,omitempty"`
	Classroom  string           `json:"classroom,omitempty"`
	Discipline string           `json:"discipline,omitempty"`
	Access     LessonAccess     `json:"access,omitempty"`
}

// MatrixHeader is the two-row header.
type MatrixHeader struct {
	Groups  []HeaderGroup  `json:"groups"`
	Columns []HeaderColumn `json:"columns"`
}

// Matrix is the derived student x lesson grid. It is never persisted.
type Matrix struct {
	GroupID       int64                       `json:"group_id"`
	Discipline    string                      `json:"discipline"`
	Dates         []string                    `json:"dates"`
	LessonsByDate map[string][]LessonInstance `json:"lessons_by_date"`
	LessonTypes   []string                    `json:"lesson_types"`
	Header        MatrixHeader                `json:"header"`
	Rows          []MatrixRow                 `json:"rows"`
}

// MatrixResult carries either a matrix or the explicit no-data signal.
type MatrixResult struct {
	Matrix   *Matrix  `json:"matrix,omitempty"`
	Empty    bool     `json:"empty"`
	Reason   string   `json:"reason,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Empty-state reasons.
const (
	ReasonNoLessons  = "no_lessons"
	ReasonNoStudents = "no_students"
	ReasonNoMatches  = "no_matching_students"
)
