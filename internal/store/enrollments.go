package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"attendsheets/internal/model"
)

const enrollmentColumns = `id, student_id, class_id, student_record_id, roll_no, status,
	enrolled_at, unenrolled_at, re_enrolled_at, removed_by_teacher_at`

func scanEnrollment(row scanner) (model.Enrollment, error) {
	var (
		e                          model.Enrollment
		status                     string
		unenrolled, reEnrolled, rm sql.NullTime
	)
	err := row.Scan(&e.ID, &e.StudentID, &e.ClassID, &e.StudentRecordID, &e.RollNo, &status,
		&e.EnrolledAt, &unenrolled, &reEnrolled, &rm)
	if err != nil {
		return model.Enrollment{}, err
	}
	e.Status = model.EnrollmentStatus(status)
	e.UnenrolledAt = timePtr(unenrolled)
	e.ReEnrolledAt = timePtr(reEnrolled)
	e.RemovedByTeacherAt = timePtr(rm)
	return e, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (t *tx) enrollments(ctx context.Context, op, where string, args ...any) ([]model.Enrollment, error) {
	rows, err := t.query(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE `+where+` ORDER BY enrolled_at, id`, args...)
	if err != nil {
		return nil, wrap(err, op)
	}
	defer rows.Close()

	var out []model.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, wrap(err, op)
		}
		out = append(out, e)
	}
	return out, wrap(rows.Err(), op)
}

// Enrollment returns the enrollment row of (studentID, classID) whatever its status.
func (t *tx) Enrollment(ctx context.Context, studentID, classID string) (model.Enrollment, error) {
	e, err := scanEnrollment(t.queryRow(ctx, `
		SELECT `+enrollmentColumns+` FROM enrollments WHERE student_id = $1 AND class_id = $2
	`, studentID, classID))
	return e, wrap(err, "enrollment")
}

func (t *tx) ActiveEnrollmentsByClass(ctx context.Context, classID string) ([]model.Enrollment, error) {
	return t.enrollments(ctx, "active enrollments by class", `class_id = $1 AND status = $2`,
		classID, string(model.EnrollmentActive))
}

func (t *tx) ActiveEnrollmentsByStudent(ctx context.Context, studentID string) ([]model.Enrollment, error) {
	return t.enrollments(ctx, "active enrollments by student", `student_id = $1 AND status = $2`,
		studentID, string(model.EnrollmentActive))
}

func (t *tx) InsertEnrollment(ctx context.Context, e model.Enrollment) error {
	_, err := t.exec(ctx, `
		INSERT INTO enrollments (id, student_id, class_id, student_record_id, roll_no, status,
			enrolled_at, unenrolled_at, re_enrolled_at, removed_by_teacher_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.StudentID, e.ClassID, e.StudentRecordID, e.RollNo, string(e.Status),
		e.EnrolledAt, nullTime(e.UnenrolledAt), nullTime(e.ReEnrolledAt), nullTime(e.RemovedByTeacherAt))
	return wrap(err, "insert enrollment")
}

func (t *tx) UpdateEnrollment(ctx context.Context, e model.Enrollment) error {
	res, err := t.exec(ctx, `
		UPDATE enrollments
		SET student_record_id = $2, roll_no = $3, status = $4,
			unenrolled_at = $5, re_enrolled_at = $6, removed_by_teacher_at = $7
		WHERE id = $1
	`, e.ID, e.StudentRecordID, e.RollNo, string(e.Status),
		nullTime(e.UnenrolledAt), nullTime(e.ReEnrolledAt), nullTime(e.RemovedByTeacherAt))
	return affected(res, err, "update enrollment")
}

// RemoveEnrollments deactivates the active enrollments of the given records
// and stamps removed_by_teacher_at. It returns how many rows changed.
func (t *tx) RemoveEnrollments(ctx context.Context, classID string, recordIDs []int64, at time.Time) (int, error) {
	if len(recordIDs) == 0 {
		return 0, nil
	}
	args := []any{string(model.EnrollmentInactive), at, classID, string(model.EnrollmentActive)}
	placeholders := make([]string, 0, len(recordIDs))
	for _, id := range recordIDs {
		args = append(args, id)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	res, err := t.exec(ctx, `
		UPDATE enrollments
		SET status = $1, removed_by_teacher_at = $2
		WHERE class_id = $3 AND status = $4 AND student_record_id IN (`+strings.Join(placeholders, ", ")+`)
	`, args...)
	if err != nil {
		return 0, wrap(err, "remove enrollments")
	}
	n, err := res.RowsAffected()
	return int(n), wrap(err, "remove enrollments")
}

func (t *tx) CountActiveEnrollmentsByTeacher(ctx context.Context, teacherID string) (int, error) {
	var n int
	err := t.queryRow(ctx, `
		SELECT COUNT(*)
		FROM enrollments e
		JOIN classes c ON c.id = e.class_id
		WHERE c.teacher_id = $1 AND e.status = $2
	`, teacherID, string(model.EnrollmentActive)).Scan(&n)
	return n, wrap(err, "count active enrollments")
}

// TeachersOfStudent lists the owners of every class the student has an
// enrollment row in, active or not.
func (t *tx) TeachersOfStudent(ctx context.Context, studentID string) ([]string, error) {
	rows, err := t.query(ctx, `
		SELECT DISTINCT c.teacher_id
		FROM enrollments e
		JOIN classes c ON c.id = e.class_id
		WHERE e.student_id = $1
	`, studentID)
	if err != nil {
		return nil, wrap(err, "teachers of student")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrap(err, "teachers of student")
		}
		out = append(out, id)
	}
	return out, wrap(rows.Err(), "teachers of student")
}
