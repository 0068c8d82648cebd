package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/journal-matrix-api/internal/models"
	appErrors "github.com/noah-isme/journal-matrix-api/pkg/errors"
)

// The backend ORM stores enum member names; these map them to the values the journal uses.
var (
	lessonTypeNames = map[string]string{"LECTURE": "Л", "SEMINAR": "С", "LAB": "ЛР"}
	statusNames     = map[models.StudentStatus]string{
		models.StatusPresent:             "PRESENT",
		models.StatusAbsent:              "ABSENT",
		models.StatusExcused:             "EXCUSED",
		models.StatusAutoDetected:        "AUTO_DETECTED",
		models.StatusFingerprintDetected: "FINGERPRINT_DETECTED",
	}
)

// lessonSelect computes is_past and can_edit the way the backend does: admins and the assigned
// teacher (instance override first) may edit past lessons that are not cancelled. $1 is the caller.
const lessonSelect = `
SELECT
	si.id,
	to_char(si.date, 'YYYY-MM-DD') AS date,
	COALESCE(st.time_start, '') AS time_start,
	COALESCE(st.time_end, '') AS time_end,
	st.discipline_id,
	d.name AS discipline,
	st.lesson_type::text AS lesson_type,
	COALESCE(NULLIF(si.classroom, ''), st.classroom, '') AS classroom,
	COALESCE(t.id, 0) AS teacher_id,
	COALESCE(t.full_name, '') AS teacher,
	si.date < CURRENT_DATE AS is_past,
	COALESCE(si.is_cancelled, FALSE) AS is_cancelled,
	COALESCE(
		(lower(caller.role::text) = 'admin' OR t.id = caller.id)
		AND si.date < CURRENT_DATE
		AND NOT COALESCE(si.is_cancelled, FALSE),
		FALSE
	) AS can_edit
FROM schedule_instances si
JOIN schedule_templates st ON st.id = si.template_id
JOIN disciplines d ON d.id = st.discipline_id
LEFT JOIN users t ON t.id = COALESCE(si.teacher_id, st.teacher_id)
LEFT JOIN users caller ON caller.username = $1`

type lessonRow struct {
	ID           int64  `db:"id"`
	Date         string `db:"date"`
	TimeStart    string `db:"time_start"`
	TimeEnd      string `db:"time_end"`
	DisciplineID int64  `db:"discipline_id"`
	Discipline   string `db:"discipline"`
	LessonType   string `db:"lesson_type"`
	Classroom    string `db:"classroom"`
	TeacherID    int64  `db:"teacher_id"`
	Teacher      string `db:"teacher"`
	IsPast       bool   `db:"is_past"`
	IsCancelled  bool   `db:"is_cancelled"`
	CanEdit      bool   `db:"can_edit"`
}

func (r lessonRow) toModel() models.LessonInstance {
	lessonType := r.LessonType
	if mapped, ok := lessonTypeNames[lessonType]; ok {
		lessonType = mapped
	}
	return models.LessonInstance{
		ID:           r.ID,
		Date:         r.Date,
		TimeStart:    r.TimeStart,
		TimeEnd:      r.TimeEnd,
		DisciplineID: r.DisciplineID,
		Discipline:   r.Discipline,
		LessonType:   lessonType,
		Classroom:    r.Classroom,
		TeacherID:    r.TeacherID,
		Teacher:      r.Teacher,
		IsPast:       r.IsPast,
		IsCancelled:  r.IsCancelled,
		CanEdit:      r.CanEdit,
	}
}

type recordRow struct {
	StudentID int64           `db:"student_id"`
	Status    sql.NullString  `db:"status"`
	Grade     sql.NullFloat64 `db:"grade"`
}

type lessonGroupRow struct {
	LessonID int64  `db:"lesson_id"`
	ID       int64  `db:"id"`
	Name     string `db:"name"`
}

// JournalRepository reads and writes the journal directly in the backend database.
type JournalRepository struct {
	db      *sqlx.DB
	metrics CallObserver
	logger  *zap.Logger
}

// NewJournalRepository constructs the repository. metrics may be nil.
func NewJournalRepository(db *sqlx.DB, metrics CallObserver, logger *zap.Logger) *JournalRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JournalRepository{db: db, metrics: metrics, logger: logger}
}

// ListLessons returns lessons of the active semester scheduled for the group.
func (r *JournalRepository) ListLessons(ctx context.Context, groupID int64, discipline string) (lessons []models.LessonInstance, err error) {
	defer r.observe("list_lessons", time.Now(), &err)

	query := strings.Builder{}
	query.WriteString(lessonSelect)
	query.WriteString(`
JOIN semesters sem ON sem.id = si.semester_id AND sem.is_active
WHERE EXISTS (
	SELECT 1 FROM template_groups tg
	WHERE tg.schedule_template_id = st.id AND tg.group_id = $2
)`)
	args := []interface{}{callerName(ctx), groupID}
	if discipline != "" {
		args = append(args, discipline)
		fmt.Fprintf(&query, " AND d.name = $%d", len(args))
	}
	query.WriteString("\nORDER BY si.date ASC, st.time_start ASC, si.id ASC")

	var rows []lessonRow
	if err := r.db.SelectContext(ctx, &rows, query.String(), args...); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	lessons = make([]models.LessonInstance, 0, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		lessons = append(lessons, row.toModel())
		ids = append(ids, row.ID)
	}
	if err := r.attachGroups(ctx, lessons, ids); err != nil {
		return nil, err
	}
	return lessons, nil
}

// GetLesson returns one lesson with flags for the caller.
func (r *JournalRepository) GetLesson(ctx context.Context, lessonID int64) (lesson *models.LessonInstance, err error) {
	defer r.observe("get_lesson", time.Now(), &err)

	var row lessonRow
	if err := r.db.GetContext(ctx, &row, lessonSelect+"\nWHERE si.id = $2", callerName(ctx), lessonID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, fmt.Errorf("get lesson: %w", err)
	}
	model := row.toModel()
	lessons := []models.LessonInstance{model}
	if err := r.attachGroups(ctx, lessons, []int64{lessonID}); err != nil {
		return nil, err
	}
	return &lessons[0], nil
}

func (r *JournalRepository) attachGroups(ctx context.Context, lessons []models.LessonInstance, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`
SELECT si.id AS lesson_id, g.id, g.name
FROM schedule_instances si
JOIN template_groups tg ON tg.schedule_template_id = si.template_id
JOIN groups g ON g.id = tg.group_id
WHERE si.id IN (?)
ORDER BY g.name ASC`, ids)
	if err != nil {
		return fmt.Errorf("build lesson groups query: %w", err)
	}
	var rows []lessonGroupRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("list lesson groups: %w", err)
	}
	byLesson := make(map[int64][]models.GroupRef, len(ids))
	for _, row := range rows {
		byLesson[row.LessonID] = append(byLesson[row.LessonID], models.GroupRef{ID: row.ID, Name: row.Name})
	}
	for i := range lessons {
		lessons[i].Groups = byLesson[lessons[i].ID]
	}
	return nil
}

// ListRoster returns the students of a group in enrolment order.
func (r *JournalRepository) ListRoster(ctx context.Context, groupID int64) (students []models.Student, err error) {
	defer r.observe("list_roster", time.Now(), &err)

	const query = `
SELECT s.id, s.full_name, s.group_id, g.name AS group_name
FROM students s
JOIN groups g ON g.id = s.group_id
WHERE s.group_id = $1
ORDER BY s.id ASC`
	if err := r.db.SelectContext(ctx, &students, query, groupID); err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return students, nil
}

// ListRecords returns only records that were actually saved for the lesson.
func (r *JournalRepository) ListRecords(ctx context.Context, lessonID int64) (records []models.AttendanceRecord, err error) {
	defer r.observe("list_records", time.Now(), &err)

	const query = `
SELECT sr.student_id, sr.status::text AS status, sr.grade
FROM student_records sr
WHERE sr.schedule_instance_id = $1
ORDER BY sr.id ASC`
	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, query, lessonID); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	records = make([]models.AttendanceRecord, 0, len(rows))
	for _, row := range rows {
		record := models.AttendanceRecord{StudentID: row.StudentID, LessonID: lessonID}
		if row.Status.Valid {
			status := models.StudentStatus(strings.ToLower(row.Status.String))
			if status.Valid() {
				record.Status = &status
			}
		}
		if row.Grade.Valid {
			if grade, ok := models.GradeFromFloat(row.Grade.Float64); ok {
				record.Grade = &grade
			} else {
				r.logger.Warn("invalid grade ignored", zap.Float64("grade", row.Grade.Float64), zap.Int64("lesson_id", lessonID))
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// SaveRecord updates the pair's record or inserts it, after the same editability check the backend applies.
func (r *JournalRepository) SaveRecord(ctx context.Context, req models.SaveRecordRequest) (err error) {
	defer r.observe("save_record", time.Now(), &err)

	status := req.Status
	if status == "" {
		status = models.StatusPresent
	}
	stored, ok := statusNames[status]
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, "unknown attendance status")
	}
	var grade sql.NullFloat64
	if req.Grade != nil {
		grade = sql.NullFloat64{Float64: float64(*req.Grade), Valid: true}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save record: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var canEdit bool
	if err = tx.GetContext(ctx, &canEdit, `SELECT can_edit FROM (`+lessonSelect+"\nWHERE si.id = $2) lesson", callerName(ctx), req.LessonID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
			return err
		}
		return fmt.Errorf("check lesson access: %w", err)
	}
	if !canEdit {
		err = appErrors.Clone(appErrors.ErrForbidden, "lesson is not editable for the current user")
		return err
	}

	res, err := tx.ExecContext(ctx, `
UPDATE student_records SET status = $3, grade = $4
WHERE student_id = $1 AND schedule_instance_id = $2`, req.StudentID, req.LessonID, stored, grade)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record rows: %w", err)
	}
	if affected == 0 {
		if _, err = tx.ExecContext(ctx, `
INSERT INTO student_records (student_id, schedule_instance_id, status, grade)
VALUES ($1, $2, $3, $4)`, req.StudentID, req.LessonID, stored, grade); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save record: %w", err)
	}
	return nil
}

// ListGroups returns every group.
func (r *JournalRepository) ListGroups(ctx context.Context) (groups []models.Group, err error) {
	defer r.observe("list_groups", time.Now(), &err)

	if err := r.db.SelectContext(ctx, &groups, `SELECT id, name FROM groups ORDER BY name ASC`); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// ListDisciplines returns the disciplines scheduled for a group.
func (r *JournalRepository) ListDisciplines(ctx context.Context, groupID int64) (disciplines []models.Discipline, err error) {
	defer r.observe("list_disciplines", time.Now(), &err)

	const query = `
SELECT DISTINCT d.id, d.name
FROM disciplines d
JOIN schedule_templates st ON st.discipline_id = d.id
JOIN template_groups tg ON tg.schedule_template_id = st.id
WHERE tg.group_id = $1
ORDER BY d.name ASC`
	if err := r.db.SelectContext(ctx, &disciplines, query, groupID); err != nil {
		return nil, fmt.Errorf("list disciplines: %w", err)
	}
	return disciplines, nil
}

// Ping checks database connectivity for readiness probes.
func (r *JournalRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *JournalRepository) observe(operation string, start time.Time, err *error) {
	if r.metrics == nil {
		return
	}
	r.metrics.ObserveBackendCall(operation, *err, time.Since(start))
}

func callerName(ctx context.Context) string {
	caller, _ := models.CallerFromContext(ctx)
	return caller.Username
}
