package service

import (
	"fmt"
	"math"

	"github.com/noah-isme/journal-matrix-api/internal/models"
)

// RowCell is the part of a cell that averages depend on.
type RowCell struct {
	LessonType string
	Grade      *int
}

// RowValue is a displayed cell value as held by the client.
type RowValue struct {
	LessonID   int64
	LessonType string
	Value      string
}

// gradeAccumulator collects grades per lesson type while a row is walked once.
type gradeAccumulator struct {
	byType map[string][]int
	all    []int
}

func newGradeAccumulator() *gradeAccumulator {
	return &gradeAccumulator{byType: make(map[string][]int)}
}

func (a *gradeAccumulator) add(lessonType string, grade int) {
	a.byType[lessonType] = append(a.byType[lessonType], grade)
	a.all = append(a.all, grade)
}

func (a *gradeAccumulator) averages(lessonTypes []string) models.RowAverages {
	out := models.RowAverages{ByType: make([]models.Average, 0, len(lessonTypes))}
	for _, lessonType := range lessonTypes {
		out.ByType = append(out.ByType, NewAverage(a.byType[lessonType]))
	}
	out.Overall = NewAverage(a.all)
	return out
}

// NewAverage returns the two-decimal mean of grades, or the no-data average when there are none.
func NewAverage(grades []int) models.Average {
	if len(grades) == 0 {
		return models.Average{Display: models.NoDataDisplay}
	}
	sum := 0
	for _, grade := range grades {
		sum += grade
	}
	mean := float64(sum) / float64(len(grades))
	rounded := math.Round(mean*100) / 100
	return models.Average{Value: &rounded, Display: fmt.Sprintf("%.2f", rounded)}
}

// CalculateRowAverages recomputes one row's averages from its cells alone.
func CalculateRowAverages(cells []RowCell, lessonTypes []string) models.RowAverages {
	acc := newGradeAccumulator()
	for _, cell := range cells {
		if cell.Grade != nil {
			acc.add(cell.LessonType, *cell.Grade)
		}
	}
	return acc.averages(lessonTypes)
}

// RowCellsFromValues reads displayed values. Only valid grade tokens contribute to averages.
func RowCellsFromValues(values []RowValue) []RowCell {
	cells := make([]RowCell, 0, len(values))
	for _, value := range values {
		cell := RowCell{LessonType: value.LessonType}
		if grade, ok := parseGrade(value.Value); ok {
			g := grade
			cell.Grade = &g
		}
		cells = append(cells, cell)
	}
	return cells
}

// RowCellsFromMatrix extracts the averaging view of a built row.
func RowCellsFromMatrix(row models.MatrixRow) []RowCell {
	cells := make([]RowCell, 0, len(row.Cells))
	for _, cell := range row.Cells {
		cells = append(cells, RowCell{LessonType: cell.LessonType, Grade: cell.Grade})
	}
	return cells
}
