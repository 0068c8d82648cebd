package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/journal-matrix-api/internal/models"
)

func TestGroupScheduleOrdersDatesAndTimes(t *testing.T) {
	grouping := GroupSchedule([]models.LessonInstance{
		{ID: 3, Date: "2024-03-05", TimeStart: "13:45", LessonType: "ЛР"},
		{ID: 1, Date: "2024-02-27", TimeStart: "10:15", LessonType: "Л"},
		{ID: 2, Date: "2024-03-05", TimeStart: "08:30", LessonType: "Л"},
		{ID: 4, Date: "2024-03-05", TimeStart: "08:30", LessonType: "С"},
	})

	assert.False(t, grouping.Empty())
	assert.Equal(t, []string{"2024-02-27", "2024-03-05"}, grouping.Dates)
	assert.Equal(t, []string{"Л", "ЛР", "С"}, grouping.LessonTypes)
	assert.Equal(t, 4, grouping.LessonCount())

	ids := make([]int64, 0)
	for _, lesson := range grouping.Lessons() {
		ids = append(ids, lesson.ID)
	}
	assert.Equal(t, []int64{1, 2, 4, 3}, ids)
}

func TestGroupScheduleEmpty(t *testing.T) {
	grouping := GroupSchedule(nil)
	assert.True(t, grouping.Empty())
	assert.Empty(t, grouping.LessonTypes)
	assert.Empty(t, grouping.Lessons())
}
