package service

import (
	"math"
	"strconv"
	"strings"

	"github.com/noah-isme/journal-matrix-api/internal/models"
	appErrors "github.com/noah-isme/journal-matrix-api/pkg/errors"
)

// Canonical display letters for statuses.
const (
	LetterAbsent      = "Н"
	LetterExcused     = "У"
	LetterAuto        = "А"
	LetterFingerprint = "О"
)

// Grade bounds accepted by the journal.
const (
	MinGrade = models.MinGrade
	MaxGrade = models.MaxGrade
)

// CellDecision is the classified outcome of a raw cell edit.
type CellDecision struct {
	Status     *models.StudentStatus
	Grade      *int
	Display    string
	State      models.CellState
	StyleClass string
}

// Clears reports whether the decision removes both status and grade.
func (d CellDecision) Clears() bool {
	return d.Status == nil && d.Grade == nil
}

// PersistStatus is the status sent to the backend. Grade-only and cleared cells are saved as present.
func (d CellDecision) PersistStatus() models.StudentStatus {
	if d.Status == nil {
		return models.StatusPresent
	}
	return *d.Status
}

type letterToken struct {
	status models.StudentStatus
	letter string
	class  string
	state  models.CellState
}

// letterTokens maps upper-cased input letters to their status. Both О and Ф denote a fingerprint mark.
var letterTokens = map[string]letterToken{
	"Н": {status: models.StatusAbsent, letter: LetterAbsent, class: "status-absent", state: models.CellAbsent},
	"У": {status: models.StatusExcused, letter: LetterExcused, class: "status-excused", state: models.CellExcused},
	"А": {status: models.StatusAutoDetected, letter: LetterAuto, class: "status-auto", state: models.CellAutoDetected},
	"О": {status: models.StatusFingerprintDetected, letter: LetterFingerprint, class: "status-fingerprint", state: models.CellFingerprintDetected},
	"Ф": {status: models.StatusFingerprintDetected, letter: LetterFingerprint, class: "status-fingerprint", state: models.CellFingerprintDetected},
}

var statusTokens = map[models.StudentStatus]letterToken{
	models.StatusAbsent:              letterTokens["Н"],
	models.StatusExcused:             letterTokens["У"],
	models.StatusAutoDetected:        letterTokens["А"],
	models.StatusFingerprintDetected: letterTokens["О"],
}

// ClassifyCell turns raw cell text into a decision. Non-editable cells are refused before the text is inspected.
func ClassifyCell(raw string, editable bool) (CellDecision, error) {
	if !editable {
		return CellDecision{}, appErrors.ErrCellReadOnly
	}

	value := strings.TrimSpace(raw)
	if value == "" || value == models.NoDataDisplay {
		return CellDecision{State: models.CellEmpty}, nil
	}

	if token, ok := letterTokens[strings.ToUpper(value)]; ok {
		status := token.status
		return CellDecision{
			Status:     &status,
			Display:    token.letter,
			State:      token.state,
			StyleClass: token.class,
		}, nil
	}

	grade, ok := parseGrade(value)
	if !ok {
		return CellDecision{}, appErrors.ErrCellRejected
	}
	return CellDecision{
		Grade:   &grade,
		Display: strconv.Itoa(grade),
		State:   models.CellGrade,
	}, nil
}

// parseGrade accepts an integer in [MinGrade, MaxGrade], optionally written with a decimal comma.
func parseGrade(value string) (int, bool) {
	number, err := strconv.ParseFloat(strings.Replace(value, ",", ".", 1), 64)
	if err != nil || math.IsNaN(number) || math.IsInf(number, 0) {
		return 0, false
	}
	if number != math.Trunc(number) || number < MinGrade || number > MaxGrade {
		return 0, false
	}
	return int(number), true
}

// NextCycleValue returns the value a double-click moves a cell to: empty or graded -> Н -> У -> empty.
func NextCycleValue(current string) string {
	value := strings.TrimSpace(current)
	if value == "" || value == models.NoDataDisplay || isNumeric(value) {
		return LetterAbsent
	}
	if strings.ToUpper(value) == LetterAbsent {
		return LetterExcused
	}
	return ""
}

func isNumeric(value string) bool {
	_, err := strconv.ParseFloat(strings.Replace(value, ",", ".", 1), 64)
	return err == nil
}

// DescribeRecord derives the display text and state of a saved record. A grade wins over any status.
func DescribeRecord(record models.AttendanceRecord, found bool) (string, models.CellState) {
	if !found {
		return "", models.CellEmpty
	}
	if record.Grade != nil {
		return strconv.Itoa(*record.Grade), models.CellGrade
	}
	if record.Status != nil {
		if token, ok := statusTokens[*record.Status]; ok {
			return token.letter, token.state
		}
	}
	return "", models.CellEmpty
}
