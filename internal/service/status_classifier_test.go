package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/journal-matrix-api/internal/models"
	appErrors "github.com/noah-isme/journal-matrix-api/pkg/errors"
)

func TestClassifyCellGrades(t *testing.T) {
	cases := map[string]int{
		"2":   2,
		"3":   3,
		"4":   4,
		"5":   5,
		" 5 ": 5,
		"4,0": 4,
		"3.0": 3,
	}
	for raw, want := range cases {
		decision, err := ClassifyCell(raw, true)
		require.NoError(t, err, raw)
		require.NotNil(t, decision.Grade, raw)
		assert.Equal(t, want, *decision.Grade, raw)
		assert.Nil(t, decision.Status, raw)
		assert.Equal(t, models.CellGrade, decision.State, raw)
		assert.Equal(t, models.StatusPresent, decision.PersistStatus(), raw)
	}
}

func TestClassifyCellRejects(t *testing.T) {
	for _, raw := range []string{"1", "6", "0", "-1", "4.5", "3,5", "abc", "X", "NaN", "Inf", "5a", "Н5"} {
		_, err := ClassifyCell(raw, true)
		require.Error(t, err, raw)
		assert.ErrorIs(t, err, appErrors.ErrCellRejected, raw)
	}
}

func TestClassifyCellLetters(t *testing.T) {
	cases := []struct {
		raw     string
		status  models.StudentStatus
		display string
		class   string
	}{
		{"Н", models.StatusAbsent, "Н", "status-absent"},
		{"н", models.StatusAbsent, "Н", "status-absent"},
		{"У", models.StatusExcused, "У", "status-excused"},
		{"у", models.StatusExcused, "У", "status-excused"},
		{"А", models.StatusAutoDetected, "А", "status-auto"},
		{"а", models.StatusAutoDetected, "А", "status-auto"},
		{"О", models.StatusFingerprintDetected, "О", "status-fingerprint"},
		{"о", models.StatusFingerprintDetected, "О", "status-fingerprint"},
		{"Ф", models.StatusFingerprintDetected, "О", "status-fingerprint"},
		{"ф", models.StatusFingerprintDetected, "О", "status-fingerprint"},
	}
	for _, tc := range cases {
		decision, err := ClassifyCell(tc.raw, true)
		require.NoError(t, err, tc.raw)
		require.NotNil(t, decision.Status, tc.raw)
		assert.Equal(t, tc.status, *decision.Status, tc.raw)
		assert.Equal(t, tc.display, decision.Display, tc.raw)
		assert.Equal(t, tc.class, decision.StyleClass, tc.raw)
		assert.Nil(t, decision.Grade, tc.raw)
		assert.True(t, tc.status.Valid())
	}
}

func TestClassifyCellClears(t *testing.T) {
	for _, raw := range []string{"", "  ", "-"} {
		decision, err := ClassifyCell(raw, true)
		require.NoError(t, err)
		assert.True(t, decision.Clears())
		assert.Equal(t, models.CellEmpty, decision.State)
		assert.Equal(t, models.StatusPresent, decision.PersistStatus())
	}
}

func TestClassifyCellReadOnlyShortCircuits(t *testing.T) {
	for _, raw := range []string{"5", "Н", "", "garbage"} {
		_, err := ClassifyCell(raw, false)
		assert.ErrorIs(t, err, appErrors.ErrCellReadOnly, raw)
		assert.NotErrorIs(t, err, appErrors.ErrCellRejected, raw)
	}
}

func TestNextCycleValue(t *testing.T) {
	assert.Equal(t, "Н", NextCycleValue(""))
	assert.Equal(t, "Н", NextCycleValue("-"))
	assert.Equal(t, "Н", NextCycleValue("4"))
	assert.Equal(t, "У", NextCycleValue("Н"))
	assert.Equal(t, "У", NextCycleValue("н"))
	assert.Equal(t, "", NextCycleValue("У"))
	assert.Equal(t, "", NextCycleValue("А"))
	assert.Equal(t, "", NextCycleValue("О"))
}

func TestDescribeRecordGradeWins(t *testing.T) {
	absent := models.StatusAbsent
	grade := 4

	display, state := DescribeRecord(models.AttendanceRecord{Status: &absent, Grade: &grade}, true)
	assert.Equal(t, "4", display)
	assert.Equal(t, models.CellGrade, state)

	display, state = DescribeRecord(models.AttendanceRecord{Status: &absent}, true)
	assert.Equal(t, "Н", display)
	assert.Equal(t, models.CellAbsent, state)

	present := models.StatusPresent
	display, state = DescribeRecord(models.AttendanceRecord{Status: &present}, true)
	assert.Equal(t, "", display)
	assert.Equal(t, models.CellEmpty, state)

	display, state = DescribeRecord(models.AttendanceRecord{}, false)
	assert.Equal(t, "", display)
	assert.Equal(t, models.CellEmpty, state)
}
