package service

import "github.com/noah-isme/journal-matrix-api/internal/models"

// RecordKey identifies one cell of the matrix.
type RecordKey struct {
	StudentID int64
	LessonID  int64
}

// RecordIndex resolves (student, lesson) pairs to their saved record.
type RecordIndex struct {
	records    map[RecordKey]models.AttendanceRecord
	duplicates int
}

// NewRecordIndex indexes per-lesson batches. When a pair appears twice the later entry in iteration
// order replaces the earlier one and is counted in Duplicates.
func NewRecordIndex(batches []models.LessonRecords) *RecordIndex {
	size := 0
	for _, batch := range batches {
		size += len(batch.Records)
	}
	idx := &RecordIndex{records: make(map[RecordKey]models.AttendanceRecord, size)}
	for _, batch := range batches {
		for _, record := range batch.Records {
			if record.LessonID == 0 {
				record.LessonID = batch.LessonID
			}
			key := RecordKey{StudentID: record.StudentID, LessonID: record.LessonID}
			if _, exists := idx.records[key]; exists {
				idx.duplicates++
			}
			idx.records[key] = record
		}
	}
	return idx
}

// Lookup returns the record for the pair. A missing pair is not an error.
func (i *RecordIndex) Lookup(studentID, lessonID int64) (models.AttendanceRecord, bool) {
	if i == nil {
		return models.AttendanceRecord{}, false
	}
	record, ok := i.records[RecordKey{StudentID: studentID, LessonID: lessonID}]
	return record, ok
}

// Len returns the number of distinct pairs.
func (i *RecordIndex) Len() int {
	if i == nil {
		return 0
	}
	return len(i.records)
}

// Duplicates returns how many entries were overwritten while indexing.
func (i *RecordIndex) Duplicates() int {
	if i == nil {
		return 0
	}
	return i.duplicates
}
