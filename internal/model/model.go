package model

import (
	"encoding/json"
	"time"

	"attendsheets/internal/attendance"
)

// Role is the capability a token grants.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleTeacher || r == RoleStudent }

// Teacher owns classes.
type Teacher struct {
	ID            string
	Email         string
	Name          string
	PasswordHash  string
	TotalClasses  int
	TotalStudents int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Student enrolls into classes.
type Student struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Class is a teacher-owned roster. CustomColumns is opaque to the backend.
type Class struct {
	ID            string
	Name          string
	TeacherID     string
	CustomColumns json.RawMessage
	Thresholds    attendance.Thresholds
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StudentRecord is the durable roster slot holding attendance history.
type StudentRecord struct {
	ID         int64
	ClassID    string
	Name       string
	RollNo     string
	Email      string
	Attendance attendance.Ledger
}

// EnrollmentStatus is the lifecycle flag of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentActive   EnrollmentStatus = "active"
	EnrollmentInactive EnrollmentStatus = "inactive"
)

// Enrollment links a student account to a record of a class. One row per
// (student, class) is reused across unenroll / re-enroll cycles.
type Enrollment struct {
	ID                 string
	StudentID          string
	ClassID            string
	StudentRecordID    int64
	RollNo             string
	Status             EnrollmentStatus
	EnrolledAt         time.Time
	UnenrolledAt       *time.Time
	ReEnrolledAt       *time.Time
	RemovedByTeacherAt *time.Time
}

// Active reports whether the enrollment currently grants access.
func (e Enrollment) Active() bool { return e.Status == EnrollmentActive }

// QRSessionStatus is the state of a QR attendance session.
type QRSessionStatus string

const (
	QRSessionActive  QRSessionStatus = "active"
	QRSessionStopped QRSessionStatus = "stopped"
)

// QRSession captures attendance for one class and one calendar day.
type QRSession struct {
	ID               string
	ClassID          string
	TeacherID        string
	CurrentCode      string
	AttendanceDate   string
	RotationInterval int
	Status           QRSessionStatus
	ScannedRecords   []int64
	StartedAt        time.Time
	CodeGeneratedAt  time.Time
	StoppedAt        *time.Time
}

// HasScanned reports whether recordID is already in the scanned set.
func (s QRSession) HasScanned(recordID int64) bool {
	for _, id := range s.ScannedRecords {
		if id == recordID {
			return true
		}
	}
	return false
}

// ContactMessage is a support submission.
type ContactMessage struct {
	ID        string
	Name      string
	Email     string
	Subject   string
	Message   string
	CreatedAt time.Time
}

// Counts are the public totals.
type Counts struct {
	Teachers int
	Students int
	Classes  int
}
