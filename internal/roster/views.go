package roster

import (
	"encoding/json"
	"time"

	"attendsheets/internal/attendance"
	"attendsheets/internal/model"
)

// StudentView is a roster row as returned to clients.
type StudentView struct {
	ID         int64             `json:"id"`
	Name       string            `json:"name"`
	RollNo     string            `json:"rollNo"`
	Email      string            `json:"email"`
	Attendance attendance.Ledger `json:"attendance"`
}

func studentView(r model.StudentRecord) StudentView {
	l := r.Attendance
	if l == nil {
		l = attendance.Ledger{}
	}
	return StudentView{ID: r.ID, Name: r.Name, RollNo: r.RollNo, Email: r.Email, Attendance: l}
}

type ClassStats struct {
	TotalStudents  int     `json:"total_students"`
	AvgAttendance  float64 `json:"avg_attendance"`
	AtRiskCount    int     `json:"at_risk_count"`
	ExcellentCount int     `json:"excellent_count"`
}

type ClassView struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	TeacherID     string                `json:"teacher_id"`
	Students      []StudentView         `json:"students"`
	CustomColumns json.RawMessage       `json:"customColumns"`
	Thresholds    attendance.Thresholds `json:"thresholds"`
	Statistics    *ClassStats           `json:"statistics,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

func classView(c model.Class, students []StudentView) ClassView {
	cols := c.CustomColumns
	if len(cols) == 0 {
		cols = json.RawMessage("[]")
	}
	if students == nil {
		students = []StudentView{}
	}
	return ClassView{
		ID: c.ID, Name: c.Name, TeacherID: c.TeacherID, Students: students,
		CustomColumns: cols, Thresholds: c.Thresholds, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

func (v *ClassView) withStatistics() {
	ledgers := make([]attendance.Ledger, 0, len(v.Students))
	for _, s := range v.Students {
		ledgers = append(ledgers, s.Attendance)
	}
	r := attendance.RollupOf(ledgers, v.Thresholds)
	v.Statistics = &ClassStats{
		TotalStudents:  r.TotalStudents,
		AvgAttendance:  attendance.Round3(r.AvgAttendance),
		AtRiskCount:    r.AtRiskCount,
		ExcellentCount: r.ExcellentCount,
	}
}

// StudentStats is the per-student summary of one class.
type StudentStats struct {
	TotalClasses int     `json:"total_classes"`
	Present      int     `json:"present"`
	Absent       int     `json:"absent"`
	Late         int     `json:"late"`
	Percentage   float64 `json:"percentage"`
	Status       string  `json:"status"`
}

func studentStats(l attendance.Ledger, t attendance.Thresholds) StudentStats {
	s := attendance.Summarize(l, t)
	return StudentStats{
		TotalClasses: s.Total,
		Present:      s.Present,
		Absent:       s.Absent,
		Late:         s.Late,
		Percentage:   attendance.Round3(s.Percentage),
		Status:       string(s.Bucket),
	}
}

// EnrolledClass is an entry of a student's class list.
type EnrolledClass struct {
	ClassID       string                `json:"class_id"`
	ClassName     string                `json:"class_name"`
	TeacherName   string                `json:"teacher_name"`
	EnrolledAt    time.Time             `json:"enrolled_at"`
	ReEnrolledAt  *time.Time            `json:"re_enrolled_at"`
	StudentRecord StudentView           `json:"student_record"`
	Thresholds    attendance.Thresholds `json:"thresholds"`
	Statistics    StudentStats          `json:"statistics"`
}

// ClassDetail is a student's view of one class.
type ClassDetail struct {
	ClassID       string                `json:"class_id"`
	ClassName     string                `json:"class_name"`
	TeacherID     string                `json:"teacher_id"`
	StudentRecord StudentView           `json:"student_record"`
	Thresholds    attendance.Thresholds `json:"thresholds"`
	Statistics    StudentStats          `json:"statistics"`
}

// ClassCheck answers the public class lookup.
type ClassCheck struct {
	Exists      bool   `json:"exists"`
	ClassName   string `json:"class_name"`
	TeacherName string `json:"teacher_name"`
	ClassID     string `json:"class_id"`
}

// EnrollKind distinguishes first enrollment from re-enrollment.
type EnrollKind string

const (
	Enrolled   EnrollKind = "enrolled"
	ReEnrolled EnrollKind = "re-enrolled"
)

type EnrollResult struct {
	Kind     EnrollKind
	Message  string
	Restored int
}

// Overview is the teacher's stored totals.
type Overview struct {
	TotalClasses  int       `json:"total_classes"`
	TotalStudents int       `json:"total_students"`
	LastUpdated   time.Time `json:"last_updated"`
}
