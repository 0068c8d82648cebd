package service

import (
	"sort"

	"github.com/noah-isme/journal-matrix-api/internal/models"
)

// ScheduleGrouping is the column layout of a matrix.
type ScheduleGrouping struct {
	Dates       []string
	ByDate      map[string][]models.LessonInstance
	LessonTypes []string
}

// GroupSchedule groups lessons by ISO date, ordering dates ascending and each date's lessons by start
// time. Zero-padded dates and times sort correctly as strings.
func GroupSchedule(lessons []models.LessonInstance) ScheduleGrouping {
	grouping := ScheduleGrouping{ByDate: make(map[string][]models.LessonInstance)}
	types := make(map[string]struct{})

	for _, lesson := range lessons {
		if _, ok := grouping.ByDate[lesson.Date]; !ok {
			grouping.Dates = append(grouping.Dates, lesson.Date)
		}
		grouping.ByDate[lesson.Date] = append(grouping.ByDate[lesson.Date], lesson)
		types[lesson.LessonType] = struct{}{}
	}

	sort.Strings(grouping.Dates)
	for date := range grouping.ByDate {
		dayLessons := grouping.ByDate[date]
		sort.SliceStable(dayLessons, func(i, j int) bool {
			return dayLessons[i].TimeStart < dayLessons[j].TimeStart
		})
	}

	for lessonType := range types {
		grouping.LessonTypes = append(grouping.LessonTypes, lessonType)
	}
	sort.Strings(grouping.LessonTypes)

	return grouping
}

// Empty reports whether there is nothing to render.
func (g ScheduleGrouping) Empty() bool {
	return len(g.Dates) == 0
}

// Lessons flattens the grouping in column order.
func (g ScheduleGrouping) Lessons() []models.LessonInstance {
	out := make([]models.LessonInstance, 0, g.LessonCount())
	for _, date := range g.Dates {
		out = append(out, g.ByDate[date]...)
	}
	return out
}

// LessonCount returns the number of lesson columns.
func (g ScheduleGrouping) LessonCount() int {
	total := 0
	for _, lessons := range g.ByDate {
		total += len(lessons)
	}
	return total
}
