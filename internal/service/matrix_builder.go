package service

import (
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/journal-matrix-api/internal/models"
)

// Header labels rendered by the journal.
const (
	AveragesHeaderLabel = "Средние оценки"
	OverallColumnLabel  = "Общая"
	NoGroupBucket       = "Без группы"
)

// MatrixInput is everything the builder composes. Lessons is the flat list used for editability.
type MatrixInput struct {
	GroupID    int64
	Discipline string
	Grouping   ScheduleGrouping
	Roster     []models.Student
	Index      *RecordIndex
	Lessons    []models.LessonInstance
}

// BuildMatrix composes the student x lesson grid. It performs no I/O and never fails: missing
// lessons or students produce the empty result instead of a matrix.
func BuildMatrix(in MatrixInput) models.MatrixResult {
	if in.Grouping.Empty() {
		return models.MatrixResult{Empty: true, Reason: models.ReasonNoLessons}
	}
	if len(in.Roster) == 0 {
		return models.MatrixResult{Empty: true, Reason: models.ReasonNoStudents}
	}

	editable := make(map[int64]bool, len(in.Lessons))
	for _, lesson := range in.Lessons {
		editable[lesson.ID] = lesson.CanEdit
	}
	columns := in.Grouping.Lessons()
	for _, lesson := range columns {
		if _, ok := editable[lesson.ID]; !ok {
			editable[lesson.ID] = lesson.CanEdit
		}
	}

	matrix := &models.Matrix{
		GroupID:       in.GroupID,
		Discipline:    in.Discipline,
		Dates:         append([]string(nil), in.Grouping.Dates...),
		LessonsByDate: in.Grouping.ByDate,
		LessonTypes:   append([]string(nil), in.Grouping.LessonTypes...),
		Header:        buildHeader(in.Grouping),
		Rows:          make([]models.MatrixRow, 0, len(in.Roster)),
	}

	for _, student := range orderRoster(in.Roster) {
		acc := newGradeAccumulator()
		row := models.MatrixRow{Student: student, Cells: make([]models.MatrixCell, 0, len(columns))}
		for _, lesson := range columns {
			record, found := in.Index.Lookup(student.ID, lesson.ID)
			display, state := DescribeRecord(record, found)
			cell := models.MatrixCell{
				LessonID:   lesson.ID,
				LessonType: lesson.LessonType,
				Display:    display,
				State:      state,
				Editable:   editable[lesson.ID],
			}
			if found {
				cell.Status = record.Status
				cell.Grade = record.Grade
				if record.Grade != nil {
					acc.add(lesson.LessonType, *record.Grade)
				}
			}
			row.Cells = append(row.Cells, cell)
		}
		row.Averages = acc.averages(matrix.LessonTypes)
		matrix.Rows = append(matrix.Rows, row)
	}

	return models.MatrixResult{Matrix: matrix}
}

// orderRoster buckets students by group name in sorted bucket order, keeping roster order inside a bucket.
func orderRoster(roster []models.Student) []models.Student {
	buckets := make(map[string][]models.Student)
	names := make([]string, 0)
	for _, student := range roster {
		name := student.GroupName
		if name == "" {
			name = NoGroupBucket
		}
		if _, ok := buckets[name]; !ok {
			names = append(names, name)
		}
		buckets[name] = append(buckets[name], student)
	}
	sort.Strings(names)

	ordered := make([]models.Student, 0, len(roster))
	for _, name := range names {
		ordered = append(ordered, buckets[name]...)
	}
	return ordered
}

func buildHeader(grouping ScheduleGrouping) models.MatrixHeader {
	header := models.MatrixHeader{
		Groups:  make([]models.HeaderGroup, 0, len(grouping.Dates)+1),
		Columns: make([]models.HeaderColumn, 0, grouping.LessonCount()+len(grouping.LessonTypes)+1),
	}
	for _, date := range grouping.Dates {
		lessons := grouping.ByDate[date]
		header.Groups = append(header.Groups, models.HeaderGroup{
			Label:   DateLabel(date),
			Date:    date,
			Colspan: len(lessons),
		})
		for _, lesson := range lessons {
			header.Columns = append(header.Columns, models.HeaderColumn{
				Kind:       models.ColumnLesson,
				Label:      lesson.LessonType,
				LessonID:   lesson.ID,
				LessonType: lesson.LessonType,
				Time:       lesson.TimeStart,
				Classroom:  lesson.Classroom,
				Discipline: lesson.Discipline,
				Access:     lesson.Access(),
			})
		}
	}
	header.Groups = append(header.Groups, models.HeaderGroup{
		Label:    AveragesHeaderLabel,
		Colspan:  len(grouping.LessonTypes) + 1,
		Averages: true,
	})
	for _, lessonType := range grouping.LessonTypes {
		header.Columns = append(header.Columns, models.HeaderColumn{
			Kind:       models.ColumnTypeAverage,
			Label:      lessonType,
			LessonType: lessonType,
		})
	}
	header.Columns = append(header.Columns, models.HeaderColumn{Kind: models.ColumnOverallAverage, Label: OverallColumnLabel})
	return header
}

// DateLabel renders an ISO date as DD.MM. Unparseable input is returned unchanged.
func DateLabel(isoDate string) string {
	parsed, err := time.Parse("2006-01-02", isoDate)
	if err != nil {
		return isoDate
	}
	return parsed.Format("02.01")
}

// FilterRows narrows a built matrix to students whose name contains query, ignoring case. The
// header and columns are kept so the table shape does not change while searching.
func FilterRows(result models.MatrixResult, query string) models.MatrixResult {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || result.Matrix == nil {
		return result
	}

	filtered := *result.Matrix
	filtered.Rows = make([]models.MatrixRow, 0, len(result.Matrix.Rows))
	for _, row := range result.Matrix.Rows {
		if strings.Contains(strings.ToLower(row.Student.FullName), query) {
			filtered.Rows = append(filtered.Rows, row)
		}
	}

	out := result
	out.Matrix = &filtered
	if len(filtered.Rows) == 0 {
		out.Empty = true
		out.Reason = models.ReasonNoMatches
	}
	return out
}
