package store

import (
	"context"
	"time"

	"attendsheets/internal/model"
)

const teacherColumns = `id, email, name, password_hash, total_classes, total_students, created_at, updated_at`

func scanTeacher(row scanner) (model.Teacher, error) {
	var t model.Teacher
	err := row.Scan(&t.ID, &t.Email, &t.Name, &t.PasswordHash, &t.TotalClasses, &t.TotalStudents, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (t *tx) TeacherByEmail(ctx context.Context, email string) (model.Teacher, error) {
	out, err := scanTeacher(t.queryRow(ctx, `SELECT `+teacherColumns+` FROM teachers WHERE email = $1`, email))
	return out, wrap(err, "teacher by email")
}

func (t *tx) TeacherByID(ctx context.Context, id string) (model.Teacher, error) {
	out, err := scanTeacher(t.queryRow(ctx, `SELECT `+teacherColumns+` FROM teachers WHERE id = $1`, id))
	return out, wrap(err, "teacher by id")
}

func (t *tx) InsertTeacher(ctx context.Context, tc model.Teacher) error {
	_, err := t.exec(ctx, `
		INSERT INTO teachers (id, email, name, password_hash, total_classes, total_students, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, tc.ID, tc.Email, tc.Name, tc.PasswordHash, tc.TotalClasses, tc.TotalStudents, tc.CreatedAt, tc.UpdatedAt)
	return wrap(err, "insert teacher")
}

func (t *tx) RenameTeacher(ctx context.Context, id, name string, at time.Time) error {
	res, err := t.exec(ctx, `UPDATE teachers SET name = $2, updated_at = $3 WHERE id = $1`, id, name, at)
	return affected(res, err, "rename teacher")
}

func (t *tx) SetTeacherPassword(ctx context.Context, id, hash string, at time.Time) error {
	res, err := t.exec(ctx, `UPDATE teachers SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, at)
	return affected(res, err, "set teacher password")
}

func (t *tx) SetTeacherTotals(ctx context.Context, id string, classes, students int) error {
	res, err := t.exec(ctx, `
		UPDATE teachers SET total_classes = $2, total_students = $3 WHERE id = $1
	`, id, classes, students)
	return affected(res, err, "set teacher totals")
}

func (t *tx) DeleteTeacher(ctx context.Context, id string) error {
	res, err := t.exec(ctx, `DELETE FROM teachers WHERE id = $1`, id)
	return affected(res, err, "delete teacher")
}

const studentColumns = `id, email, name, password_hash, created_at, updated_at`

func scanStudent(row scanner) (model.Student, error) {
	var s model.Student
	err := row.Scan(&s.ID, &s.Email, &s.Name, &s.PasswordHash, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (t *tx) StudentByEmail(ctx context.Context, email string) (model.Student, error) {
	out, err := scanStudent(t.queryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE email = $1`, email))
	return out, wrap(err, "student by email")
}

func (t *tx) InsertStudent(ctx context.Context, s model.Student) error {
	_, err := t.exec(ctx, `
		INSERT INTO students (id, email, name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.Email, s.Name, s.PasswordHash, s.CreatedAt, s.UpdatedAt)
	return wrap(err, "insert student")
}

func (t *tx) RenameStudent(ctx context.Context, id, name string, at time.Time) error {
	res, err := t.exec(ctx, `UPDATE students SET name = $2, updated_at = $3 WHERE id = $1`, id, name, at)
	return affected(res, err, "rename student")
}

func (t *tx) SetStudentPassword(ctx context.Context, id, hash string, at time.Time) error {
	res, err := t.exec(ctx, `UPDATE students SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, at)
	return affected(res, err, "set student password")
}

func (t *tx) DeleteStudent(ctx context.Context, id string) error {
	res, err := t.exec(ctx, `DELETE FROM students WHERE id = $1`, id)
	return affected(res, err, "delete student")
}
