package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/journal-matrix-api/internal/models"
)

func TestCalculateRowAverages(t *testing.T) {
	cells := []RowCell{
		{LessonType: "Lecture", Grade: intPtr(4)},
		{LessonType: "Lecture", Grade: intPtr(5)},
		{LessonType: "Lab", Grade: intPtr(2)},
		{LessonType: "Lab"},
	}
	averages := CalculateRowAverages(cells, []string{"Lab", "Lecture", "Seminar"})

	require.Len(t, averages.ByType, 3)
	assert.Equal(t, "2.00", averages.ByType[0].Display)
	assert.Equal(t, "4.50", averages.ByType[1].Display)
	assert.Equal(t, models.NoDataDisplay, averages.ByType[2].Display)
	assert.Nil(t, averages.ByType[2].Value)
	assert.Equal(t, "3.67", averages.Overall.Display)
}

func TestCalculateRowAveragesNoGrades(t *testing.T) {
	averages := CalculateRowAverages([]RowCell{{LessonType: "Lab"}}, []string{"Lab"})
	assert.False(t, averages.Overall.HasData())
	assert.Equal(t, models.NoDataDisplay, averages.Overall.Display)
	assert.False(t, averages.ByType[0].HasData())
}

func TestRowCellsFromValuesCountsGradesOnly(t *testing.T) {
	values := []RowValue{
		{LessonType: "Л", Value: "5"},
		{LessonType: "Л", Value: "Н"},
		{LessonType: "ЛР", Value: "4,0"},
		{LessonType: "ЛР", Value: ""},
		{LessonType: "ЛР", Value: "-"},
	}
	cells := RowCellsFromValues(values)
	require.Len(t, cells, len(values))
	assert.Equal(t, 5, *cells[0].Grade)
	assert.Nil(t, cells[1].Grade)
	assert.Equal(t, 4, *cells[2].Grade)

	averages := CalculateRowAverages(cells, []string{"Л", "ЛР"})
	assert.Equal(t, "5.00", averages.ByType[0].Display)
	assert.Equal(t, "4.00", averages.ByType[1].Display)
	assert.Equal(t, "4.50", averages.Overall.Display)
}

func TestIncrementalAveragesMatchFullRebuild(t *testing.T) {
	lessons := sampleLessons()
	roster := []models.Student{{ID: 1, FullName: "A"}, {ID: 2, FullName: "B"}}
	before := []models.LessonRecords{
		{LessonID: 1, Records: []models.AttendanceRecord{{StudentID: 1, Grade: intPtr(3)}, {StudentID: 2, Grade: intPtr(5)}}},
		{LessonID: 3, Records: []models.AttendanceRecord{{StudentID: 1, Grade: intPtr(4)}}},
	}
	initial := BuildMatrix(sampleInput(lessons, roster, before))
	require.NotNil(t, initial.Matrix)

	// Student 1 gets a 2 on lesson 2.
	row := make([]RowValue, 0)
	for _, cell := range initial.Matrix.Rows[0].Cells {
		value := cell.Display
		if cell.LessonID == 2 {
			value = "2"
		}
		row = append(row, RowValue{LessonID: cell.LessonID, LessonType: cell.LessonType, Value: value})
	}
	incremental := CalculateRowAverages(RowCellsFromValues(row), initial.Matrix.LessonTypes)

	after := append(before, models.LessonRecords{LessonID: 2, Records: []models.AttendanceRecord{{StudentID: 1, Grade: intPtr(2)}}})
	full := BuildMatrix(sampleInput(lessons, roster, after))
	require.NotNil(t, full.Matrix)

	assert.Equal(t, full.Matrix.Rows[0].Averages, incremental)
	assert.Equal(t, initial.Matrix.Rows[1], full.Matrix.Rows[1])
	assert.Equal(t, full.Matrix.Rows[0].Averages, CalculateRowAverages(RowCellsFromMatrix(full.Matrix.Rows[0]), full.Matrix.LessonTypes))
}

func TestNewAverageRounding(t *testing.T) {
	avg := NewAverage([]int{5, 4, 4})
	assert.Equal(t, "4.33", avg.Display)
	assert.Equal(t, 4.33, *avg.Value)
}
