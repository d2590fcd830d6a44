// Package roster owns classes, their student records and the enrollment
// lifecycle linking student accounts to those records.
package roster

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"attendsheets/internal/apperr"
	"attendsheets/internal/metrics"
	"attendsheets/internal/model"
	"attendsheets/internal/store"
)

// TeacherService is the roster API available to teachers.
type TeacherService struct {
	store  store.Store
	ids    *IDGen
	now    func() time.Time
	logger *slog.Logger
}

func NewTeacherService(st store.Store, ids *IDGen, now func() time.Time, logger *slog.Logger) *TeacherService {
	if now == nil {
		now = time.Now
	}
	if ids == nil {
		ids = NewIDGen(now)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TeacherService{store: st, ids: ids, now: now, logger: logger}
}

// classify passes apperr values through and hides everything else behind message.
func classify(err error, message string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal(err, message)
}

func teacherByEmail(ctx context.Context, tx store.Tx, email string) (model.Teacher, error) {
	t, err := tx.TeacherByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return model.Teacher{}, apperr.NotFound("User not found")
	}
	return t, err
}

func ownedClass(ctx context.Context, tx store.Tx, teacher model.Teacher, classID string) (model.Class, error) {
	c, err := tx.ClassByID(ctx, classID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && c.TeacherID != teacher.ID) {
		return model.Class{}, apperr.NotFound("Class not found")
	}
	return c, err
}

// activeStudents returns the records of classID that an active enrollment
// points at, in record order.
func activeStudents(ctx context.Context, tx store.Tx, classID string) ([]StudentView, error) {
	enrollments, err := tx.ActiveEnrollmentsByClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if len(enrollments) == 0 {
		return []StudentView{}, nil
	}
	active := make(map[int64]struct{}, len(enrollments))
	for _, e := range enrollments {
		active[e.StudentRecordID] = struct{}{}
	}
	records, err := tx.RecordsByClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	out := make([]StudentView, 0, len(enrollments))
	for _, r := range records {
		if _, ok := active[r.ID]; ok {
			out = append(out, studentView(r))
		}
	}
	return out, nil
}

// ListClasses returns every class of the teacher with its active students and
// class statistics.
func (s *TeacherService) ListClasses(ctx context.Context, teacherEmail string) ([]ClassView, error) {
	var out []ClassView
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		teacher, err := teacherByEmail(ctx, tx, teacherEmail)
		if err != nil {
			return err
		}
		classes, err := tx.ClassesByTeacher(ctx, teacher.ID)
		if err != nil {
			return err
		}
		out = make([]ClassView, 0, len(classes))
		for _, c := range classes {
			students, err := activeStudents(ctx, tx, c.ID)
			if err != nil {
				return err
			}
			v := classView(c, students)
			v.withStatistics()
			out = append(out, v)
		}
		return nil
	})
	return out, classify(err, "Failed to load classes")
}

// CreateClass inserts a class and one record per roster row. No enrollments
// are created; students join through Enroll.
func (s *TeacherService) CreateClass(ctx context.Context, teacherEmail string, in ClassInput) (model.Class, error) {
	classID := strings.TrimSpace(in.ID.String())
	if classID == "" {
		return model.Class{}, apperr.Validation("Class id is required")
	}
	if err := in.validate(); err != nil {
		return model.Class{}, apperr.Validation("%s", err.Error())
	}

	now := s.now().UTC()
	c := model.Class{
		ID:            classID,
		Name:          strings.TrimSpace(in.Name),
		CustomColumns: in.columns(),
		Thresholds:    in.thresholds(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		teacher, err := teacherByEmail(ctx, tx, teacherEmail)
		if err != nil {
			return err
		}
		c.TeacherID = teacher.ID

		if _, err := tx.ClassByID(ctx, classID); err == nil {
			return apperr.Conflict("Class with this ID already exists")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := tx.InsertClass(ctx, c); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return apperr.Conflict("Class with this ID already exists")
			}
			return err
		}

		seen := make(map[int64]struct{}, len(in.Students))
		for _, st := range in.Students {
			id := int64(st.ID)
			if id == 0 {
				id = s.ids.Next()
			}
			if _, dup := seen[id]; dup {
				return apperr.Validation("Duplicate student id %d", id)
			}
			seen[id] = struct{}{}
			err := tx.InsertRecord(ctx, model.StudentRecord{
				ID: id, ClassID: classID, Name: st.Name, RollNo: st.RollNo.String(),
				Email: st.Email, Attendance: st.Attendance.Clone(),
			})
			if err != nil {
				return err
			}
		}
		return store.RecomputeTeacherTotals(ctx, tx, teacher.ID)
	})
	if err != nil {
		return model.Class{}, classify(err, "Failed to create class")
	}
	s.logger.InfoContext(ctx, "class created", "class_id", classID, "teacher_id", c.TeacherID, "records", len(in.Students))
	return c, nil
}

// GetClass returns one owned class with its active students.
func (s *TeacherService) GetClass(ctx context.Context, teacherEmail, classID string) (ClassView, error) {
	var v ClassView
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		teacher, err := teacherByEmail(ctx, tx, teacherEmail)
		if err != nil {
			return err
		}
		c, err := ownedClass(ctx, tx, teacher, classID)
		if err != nil {
			return err
		}
		students, err := activeStudents(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		v = classView(c, students)
		return nil
	})
	return v, classify(err, "Failed to load class")
}

// UpdateClass applies a roster edit. Records missing from the payload keep
// their attendance; only their active enrollments are closed. Records present
// in the payload are overwritten in full. Payload ids unknown to the class
// are ignored.
func (s *TeacherService) UpdateClass(ctx context.Context, teacherEmail, classID string, in ClassInput) (ClassView, error) {
	if err := in.validate(); err != nil {
		return ClassView{}, apperr.Validation("%s", err.Error())
	}
	now := s.now().UTC()

	var (
		v       ClassView
		removed int
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		teacher, err := teacherByEmail(ctx, tx, teacherEmail)
		if err != nil {
			return err
		}
		c, err := ownedClass(ctx, tx, teacher, classID)
		if err != nil {
			return err
		}
		records, err := tx.RecordsByClass(ctx, c.ID)
		if err != nil {
			return err
		}

		incoming := make(map[int64]StudentInput, len(in.Students))
		for _, st := range in.Students {
			incoming[int64(st.ID)] = st
		}
		var gone []int64
		for _, r := range records {
			st, ok := incoming[r.ID]
			if !ok {
				gone = append(gone, r.ID)
				continue
			}
			r.Name = st.Name
			r.RollNo = st.RollNo.String()
			r.Email = st.Email
			r.Attendance = st.Attendance.Clone()
			if err := tx.UpdateRecord(ctx, r); err != nil {
				return err
			}
		}
		if removed, err = tx.RemoveEnrollments(ctx, c.ID, gone, now); err != nil {
			return err
		}

		c.Name = strings.TrimSpace(in.Name)
		c.CustomColumns = in.columns()
		c.Thresholds = in.thresholds()
		c.UpdatedAt = now
		if err := tx.UpdateClass(ctx, c); err != nil {
			return err
		}
		if err := store.RecomputeTeacherTotals(ctx, tx, teacher.ID); err != nil {
			return err
		}

		students, err := activeStudents(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		v = classView(c, students)
		return nil
	})
	if err != nil {
		return ClassView{}, classify(err, "Failed to update class")
	}
	if removed > 0 {
		metrics.Enrollments.WithLabelValues("removed").Add(float64(removed))
		s.logger.InfoContext(ctx, "students removed from class", "class_id", classID, "count", removed)
	}
	return v, nil
}

// DeleteClass removes an owned class with its records, enrollments and
// QR sessions.
func (s *TeacherService) DeleteClass(ctx context.Context, teacherEmail, classID string) error {
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		teacher, err := teacherByEmail(ctx, tx, teacherEmail)
		if err != nil {
			return err
		}
		c, err := ownedClass(ctx, tx, teacher, classID)
		if err != nil {
			return err
		}
		if err := tx.DeleteClass(ctx, c.ID); err != nil {
			return err
		}
		return store.RecomputeTeacherTotals(ctx, tx, teacher.ID)
	})
	if err != nil {
		return classify(err, "Failed to delete class")
	}
	s.logger.InfoContext(ctx, "class deleted", "class_id", classID)
	return nil
}

// Overview returns the stored totals of the teacher.
func (s *TeacherService) Overview(ctx context.Context, teacherEmail string) (Overview, error) {
	var o Overview
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		teacher, err := teacherByEmail(ctx, tx, teacherEmail)
		if err != nil {
			return err
		}
		o = Overview{TotalClasses: teacher.TotalClasses, TotalStudents: teacher.TotalStudents, LastUpdated: s.now().UTC()}
		return nil
	})
	return o, classify(err, "Failed to load overview")
}
