// Package store is the relational persistence layer. Every mutation runs
// inside a unit of work obtained from Store.WithTx.
package store

import (
	"context"
	"errors"
	"time"

	"attendsheets/internal/model"
)

var (
	// ErrNotFound is returned when a lookup or update matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned on unique or primary key violations.
	ErrConflict = errors.New("store: conflict")
)

// Store opens units of work and answers a few read-only questions outside of them.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
	Counts(ctx context.Context) (model.Counts, error)
	Ping(ctx context.Context) error
	Close() error
}

// Tx is one all-or-nothing unit of work. Implementations are not safe for
// concurrent use and must not be retained after the WithTx callback returns.
type Tx interface {
	TeacherByEmail(ctx context.Context, email string) (model.Teacher, error)
	TeacherByID(ctx context.Context, id string) (model.Teacher, error)
	InsertTeacher(ctx context.Context, t model.Teacher) error
	RenameTeacher(ctx context.Context, id, name string, at time.Time) error
	SetTeacherPassword(ctx context.Context, id, hash string, at time.Time) error
	SetTeacherTotals(ctx context.Context, id string, classes, students int) error
	DeleteTeacher(ctx context.Context, id string) error

	StudentByEmail(ctx context.Context, email string) (model.Student, error)
	InsertStudent(ctx context.Context, s model.Student) error
	RenameStudent(ctx context.Context, id, name string, at time.Time) error
	SetStudentPassword(ctx context.Context, id, hash string, at time.Time) error
	DeleteStudent(ctx context.Context, id string) error

	ClassByID(ctx context.Context, id string) (model.Class, error)
	ClassesByTeacher(ctx context.Context, teacherID string) ([]model.Class, error)
	InsertClass(ctx context.Context, c model.Class) error
	UpdateClass(ctx context.Context, c model.Class) error
	DeleteClass(ctx context.Context, id string) error
	CountClassesByTeacher(ctx context.Context, teacherID string) (int, error)

	RecordsByClass(ctx context.Context, classID string) ([]model.StudentRecord, error)
	Record(ctx context.Context, classID string, id int64) (model.StudentRecord, error)
	InsertRecord(ctx context.Context, r model.StudentRecord) error
	UpdateRecord(ctx context.Context, r model.StudentRecord) error

	Enrollment(ctx context.Context, studentID, classID string) (model.Enrollment, error)
	ActiveEnrollmentsByClass(ctx context.Context, classID string) ([]model.Enrollment, error)
	ActiveEnrollmentsByStudent(ctx context.Context, studentID string) ([]model.Enrollment, error)
	InsertEnrollment(ctx context.Context, e model.Enrollment) error
	UpdateEnrollment(ctx context.Context, e model.Enrollment) error
	RemoveEnrollments(ctx context.Context, classID string, recordIDs []int64, at time.Time) (int, error)
	CountActiveEnrollmentsByTeacher(ctx context.Context, teacherID string) (int, error)
	TeachersOfStudent(ctx context.Context, studentID string) ([]string, error)

	ActiveQRSession(ctx context.Context, classID string) (model.QRSession, error)
	InsertQRSession(ctx context.Context, s model.QRSession) error
	UpdateQRSession(ctx context.Context, s model.QRSession) error

	InsertContactMessage(ctx context.Context, m model.ContactMessage) error
}
