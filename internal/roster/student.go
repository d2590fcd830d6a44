package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"attendsheets/internal/apperr"
	"attendsheets/internal/metrics"
	"attendsheets/internal/model"
	"attendsheets/internal/store"
)

// StudentService is the enrollment API available to students.
type StudentService struct {
	store  store.Store
	ids    *IDGen
	now    func() time.Time
	logger *slog.Logger
}

func NewStudentService(st store.Store, ids *IDGen, now func() time.Time, logger *slog.Logger) *StudentService {
	if now == nil {
		now = time.Now
	}
	if ids == nil {
		ids = NewIDGen(now)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StudentService{store: st, ids: ids, now: now, logger: logger}
}

func studentByEmail(ctx context.Context, tx store.Tx, email string) (model.Student, error) {
	st, err := tx.StudentByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return model.Student{}, apperr.NotFound("Student not found")
	}
	return st, err
}

func teacherName(ctx context.Context, tx store.Tx, teacherID string) (string, error) {
	t, err := tx.TeacherByID(ctx, teacherID)
	if errors.Is(err, store.ErrNotFound) {
		return "Unknown", nil
	}
	if err != nil {
		return "", err
	}
	return t.Name, nil
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Enroll joins a class. A student who was enrolled before gets the same
// record back with its attendance intact.
func (s *StudentService) Enroll(ctx context.Context, studentEmail string, in EnrollInput) (EnrollResult, error) {
	classID := in.ClassID.String()
	rollNo := in.RollNo.String()
	name := strings.TrimSpace(in.Name)
	now := s.now().UTC()

	var res EnrollResult
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		student, err := studentByEmail(ctx, tx, studentEmail)
		if err != nil {
			return err
		}
		if !sameEmail(in.Email, studentEmail) {
			return apperr.Forbidden("You must use your registered email")
		}
		class, err := tx.ClassByID(ctx, classID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Class not found")
		}
		if err != nil {
			return err
		}

		prev, err := tx.Enrollment(ctx, student.ID, classID)
		switch {
		case err == nil && prev.Active():
			return apperr.Conflict("You are already enrolled in this class")
		case err == nil:
			res, err = s.reEnroll(ctx, tx, prev, name, rollNo, in.Email, now)
		case errors.Is(err, store.ErrNotFound):
			res, err = s.enrollNew(ctx, tx, student, classID, name, rollNo, in.Email, now)
		}
		if err != nil {
			return err
		}
		return store.RecomputeTeacherTotals(ctx, tx, class.TeacherID)
	})
	if err != nil {
		return EnrollResult{}, classify(err, "Failed to enroll in class")
	}
	metrics.Enrollments.WithLabelValues(string(res.Kind)).Inc()
	s.logger.InfoContext(ctx, "student enrolled", "class_id", classID, "kind", res.Kind, "restored", res.Restored)
	return res, nil
}

func (s *StudentService) reEnroll(ctx context.Context, tx store.Tx, e model.Enrollment, name, rollNo, email string, now time.Time) (EnrollResult, error) {
	e.Status = model.EnrollmentActive
	e.ReEnrolledAt = &now
	e.RollNo = rollNo
	if err := tx.UpdateEnrollment(ctx, e); err != nil {
		return EnrollResult{}, err
	}

	rec, err := tx.Record(ctx, e.ClassID, e.StudentRecordID)
	if errors.Is(err, store.ErrNotFound) {
		err = tx.InsertRecord(ctx, model.StudentRecord{
			ID: e.StudentRecordID, ClassID: e.ClassID, Name: name, RollNo: rollNo, Email: email,
		})
		if err != nil {
			return EnrollResult{}, err
		}
		return EnrollResult{Kind: ReEnrolled, Message: "Re-enrolled successfully"}, nil
	}
	if err != nil {
		return EnrollResult{}, err
	}

	rec.Name = name
	rec.RollNo = rollNo
	if err := tx.UpdateRecord(ctx, rec); err != nil {
		return EnrollResult{}, err
	}
	n := len(rec.Attendance)
	return EnrollResult{
		Kind:     ReEnrolled,
		Message:  fmt.Sprintf("Welcome back! Your %d attendance records have been restored.", n),
		Restored: n,
	}, nil
}

func (s *StudentService) enrollNew(ctx context.Context, tx store.Tx, student model.Student, classID, name, rollNo, email string, now time.Time) (EnrollResult, error) {
	id, err := s.freeRecordID(ctx, tx, classID)
	if err != nil {
		return EnrollResult{}, err
	}
	err = tx.InsertRecord(ctx, model.StudentRecord{ID: id, ClassID: classID, Name: name, RollNo: rollNo, Email: email})
	if err != nil {
		return EnrollResult{}, err
	}
	err = tx.InsertEnrollment(ctx, model.Enrollment{
		ID:              uuid.NewString(),
		StudentID:       student.ID,
		ClassID:         classID,
		StudentRecordID: id,
		RollNo:          rollNo,
		Status:          model.EnrollmentActive,
		EnrolledAt:      now,
	})
	if errors.Is(err, store.ErrConflict) {
		return EnrollResult{}, apperr.Conflict("You are already enrolled in this class")
	}
	if err != nil {
		return EnrollResult{}, err
	}
	return EnrollResult{Kind: Enrolled, Message: "Successfully enrolled in class!"}, nil
}

// freeRecordID skips ids a teacher already used for a roster row of the class.
func (s *StudentService) freeRecordID(ctx context.Context, tx store.Tx, classID string) (int64, error) {
	for {
		id := s.ids.Next()
		_, err := tx.Record(ctx, classID, id)
		if errors.Is(err, store.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// Unenroll closes the active enrollment. The record and its attendance stay.
func (s *StudentService) Unenroll(ctx context.Context, studentEmail, classID string) error {
	now := s.now().UTC()
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		student, err := studentByEmail(ctx, tx, studentEmail)
		if err != nil {
			return err
		}
		e, err := tx.Enrollment(ctx, student.ID, classID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !e.Active()) {
			return apperr.Validation("You are not enrolled in this class")
		}
		if err != nil {
			return err
		}
		e.Status = model.EnrollmentInactive
		e.UnenrolledAt = &now
		if err := tx.UpdateEnrollment(ctx, e); err != nil {
			return err
		}

		class, err := tx.ClassByID(ctx, classID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return store.RecomputeTeacherTotals(ctx, tx, class.TeacherID)
	})
	if err != nil {
		return classify(err, "Failed to unenroll from class")
	}
	metrics.Enrollments.WithLabelValues("unenrolled").Inc()
	return nil
}

// Classes lists the active enrollments of the student with per-class statistics.
func (s *StudentService) Classes(ctx context.Context, studentEmail string) ([]EnrolledClass, error) {
	out := []EnrolledClass{}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		student, err := studentByEmail(ctx, tx, studentEmail)
		if err != nil {
			return err
		}
		enrollments, err := tx.ActiveEnrollmentsByStudent(ctx, student.ID)
		if err != nil {
			return err
		}
		for _, e := range enrollments {
			class, err := tx.ClassByID(ctx, e.ClassID)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			rec, err := tx.Record(ctx, e.ClassID, e.StudentRecordID)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			teacher, err := teacherName(ctx, tx, class.TeacherID)
			if err != nil {
				return err
			}
			out = append(out, EnrolledClass{
				ClassID:       class.ID,
				ClassName:     class.Name,
				TeacherName:   teacher,
				EnrolledAt:    e.EnrolledAt,
				ReEnrolledAt:  e.ReEnrolledAt,
				StudentRecord: studentView(rec),
				Thresholds:    class.Thresholds,
				Statistics:    studentStats(rec.Attendance, class.Thresholds),
			})
		}
		return nil
	})
	if err != nil {
		return nil, classify(err, "Failed to fetch classes")
	}
	return out, nil
}

// ClassDetail returns the student's record and statistics in one class.
func (s *StudentService) ClassDetail(ctx context.Context, studentEmail, classID string) (ClassDetail, error) {
	var d ClassDetail
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		student, err := studentByEmail(ctx, tx, studentEmail)
		if err != nil {
			return err
		}
		e, err := tx.Enrollment(ctx, student.ID, classID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !e.Active()) {
			return apperr.NotFound("Class not found or student not enrolled")
		}
		if err != nil {
			return err
		}
		class, err := tx.ClassByID(ctx, classID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Class not found")
		}
		if err != nil {
			return err
		}
		rec, err := tx.Record(ctx, classID, e.StudentRecordID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Student record not found")
		}
		if err != nil {
			return err
		}
		d = ClassDetail{
			ClassID:       class.ID,
			ClassName:     class.Name,
			TeacherID:     class.TeacherID,
			StudentRecord: studentView(rec),
			Thresholds:    class.Thresholds,
			Statistics:    studentStats(rec.Attendance, class.Thresholds),
		}
		return nil
	})
	return d, classify(err, "Failed to fetch class details")
}

// VerifyClass is the public lookup used before enrolling.
func (s *StudentService) VerifyClass(ctx context.Context, classID string) (ClassCheck, error) {
	var out ClassCheck
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		class, err := tx.ClassByID(ctx, classID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Class not found")
		}
		if err != nil {
			return err
		}
		name, err := teacherName(ctx, tx, class.TeacherID)
		if err != nil {
			return err
		}
		out = ClassCheck{Exists: true, ClassName: class.Name, TeacherName: name, ClassID: class.ID}
		return nil
	})
	return out, classify(err, "Failed to verify class")
}
