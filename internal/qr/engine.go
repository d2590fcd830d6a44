// Package qr runs rotating-code attendance sessions. Codes rotate lazily
// when the session is read; nothing runs in the background.
package qr

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"attendsheets/internal/apperr"
	"attendsheets/internal/attendance"
	"attendsheets/internal/metrics"
	"attendsheets/internal/model"
	"attendsheets/internal/store"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 8

	// DefaultRotation is the code lifetime in seconds when none is given.
	DefaultRotation = 5
	dateLayout      = "2006-01-02"
)

// NewCode returns an 8 character code of uppercase letters and digits.
func NewCode() (string, error) {
	limit := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, codeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

type Config struct {
	// DefaultRotation replaces non-positive intervals passed to Start.
	DefaultRotation int
	Now             func() time.Time
	// Location decides the calendar day of a session. Defaults to time.Local.
	Location *time.Location
}

type Engine struct {
	store   store.Store
	cfg     Config
	logger  *slog.Logger
	newCode func() (string, error)
}

func NewEngine(st store.Store, cfg Config, logger *slog.Logger) *Engine {
	if cfg.DefaultRotation <= 0 {
		cfg.DefaultRotation = DefaultRotation
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, cfg: cfg, logger: logger, newCode: NewCode}
}

// StopResult summarises a closed session.
type StopResult struct {
	ScannedCount int    `json:"scanned_count"`
	AbsentCount  int    `json:"absent_count"`
	Date         string `json:"date"`
}

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

// activeSession returns ok=false when the class has no active session.
func activeSession(ctx context.Context, tx store.Tx, classID string) (model.QRSession, bool, error) {
	s, err := tx.ActiveQRSession(ctx, classID)
	if errors.Is(err, store.ErrNotFound) {
		return model.QRSession{}, false, nil
	}
	if err != nil {
		return model.QRSession{}, false, err
	}
	return s, true, nil
}

// Start opens a session for an owned class. When one is already active its
// code, timestamp and interval are refreshed instead.
func (e *Engine) Start(ctx context.Context, teacherEmail, classID string, rotation int) (model.QRSession, error) {
	if rotation <= 0 {
		rotation = e.cfg.DefaultRotation
	}
	now := e.cfg.Now()
	code, err := e.newCode()
	if err != nil {
		return model.QRSession{}, apperr.Internal(err, "Failed to generate QR code")
	}

	var (
		out     model.QRSession
		created bool
	)
	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		teacher, err := teacherByEmail(ctx, tx, teacherEmail)
		if err != nil {
			return err
		}
		class, err := tx.ClassByID(ctx, classID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && class.TeacherID != teacher.ID) {
			return apperr.NotFound("Class not found")
		}
		if err != nil {
			return err
		}

		s, ok, err := activeSession(ctx, tx, classID)
		if err != nil {
			return err
		}
		if ok {
			s.CurrentCode = code
			s.CodeGeneratedAt = now.UTC()
			s.RotationInterval = rotation
			out = s
			return tx.UpdateQRSession(ctx, s)
		}

		out = model.QRSession{
			ID:               uuid.NewString(),
			ClassID:          classID,
			TeacherID:        teacher.ID,
			CurrentCode:      code,
			AttendanceDate:   now.In(e.cfg.Location).Format(dateLayout),
			RotationInterval: rotation,
			Status:           model.QRSessionActive,
			ScannedRecords:   []int64{},
			StartedAt:        now.UTC(),
			CodeGeneratedAt:  now.UTC(),
		}
		created = true
		return tx.InsertQRSession(ctx, out)
	})
	if err != nil {
		return model.QRSession{}, classify(err, "Failed to start QR session")
	}
	if created {
		metrics.QRSessions.WithLabelValues("started").Inc()
		e.logger.InfoContext(ctx, "qr session started", "class_id", classID, "date", out.AttendanceDate, "rotation", rotation)
	} else {
		metrics.QRSessions.WithLabelValues("refreshed").Inc()
	}
	return out, nil
}

// Get returns the active session of a class owned by the teacher, rotating
// the code first when it is older than the interval. ok is false when there
// is no such session.
func (e *Engine) Get(ctx context.Context, teacherEmail, classID string) (model.QRSession, bool, error) {
	var (
		out     model.QRSession
		active  bool
		rotated bool
	)
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		teacher, err := teacherByEmail(ctx, tx, teacherEmail)
		if err != nil {
			return err
		}
		s, ok, err := activeSession(ctx, tx, classID)
		if err != nil || !ok || s.TeacherID != teacher.ID {
			return err
		}

		now := e.cfg.Now().UTC()
		if now.Sub(s.CodeGeneratedAt) >= time.Duration(s.RotationInterval)*time.Second {
			code, err := e.newCode()
			if err != nil {
				return err
			}
			s.CurrentCode = code
			s.CodeGeneratedAt = now
			if err := tx.UpdateQRSession(ctx, s); err != nil {
				return err
			}
			rotated = true
		}
		if s.ScannedRecords == nil {
			s.ScannedRecords = []int64{}
		}
		out, active = s, true
		return nil
	})
	if err != nil {
		return model.QRSession{}, false, classify(err, "Failed to load QR session")
	}
	if rotated {
		metrics.QRSessions.WithLabelValues("rotated").Inc()
	}
	return out, active, nil
}

// Scan marks the student present for the session day. The code must match
// the current one exactly. It returns the attendance date.
func (e *Engine) Scan(ctx context.Context, studentEmail, classID, code string) (string, error) {
	var date string
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		student, err := tx.StudentByEmail(ctx, studentEmail)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Student not found")
		}
		if err != nil {
			return err
		}
		s, ok, err := activeSession(ctx, tx, classID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("No active QR session")
		}
		if s.CurrentCode != code {
			return apperr.Validation("Invalid or expired QR code")
		}

		enrollment, err := tx.Enrollment(ctx, student.ID, classID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !enrollment.Active()) {
			return apperr.Forbidden("Not enrolled in this class")
		}
		if err != nil {
			return err
		}
		rec, err := tx.Record(ctx, classID, enrollment.StudentRecordID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Student record not found")
		}
		if err != nil {
			return err
		}

		if rec.Attendance == nil {
			rec.Attendance = attendance.Ledger{}
		}
		rec.Attendance[s.AttendanceDate] = attendance.Present
		if err := tx.UpdateRecord(ctx, rec); err != nil {
			return err
		}
		if !s.HasScanned(rec.ID) {
			s.ScannedRecords = append(s.ScannedRecords, rec.ID)
			if err := tx.UpdateQRSession(ctx, s); err != nil {
				return err
			}
		}
		date = s.AttendanceDate
		return nil
	})
	if err != nil {
		result := "error"
		switch apperr.KindOf(err) {
		case apperr.KindValidation:
			result = "rejected"
		case apperr.KindForbidden, apperr.KindNotFound:
			result = "not_enrolled"
		}
		metrics.QRScans.WithLabelValues(result).Inc()
		return "", classify(err, "Failed to scan QR code")
	}
	metrics.QRScans.WithLabelValues("present").Inc()
	return date, nil
}

// Stop closes the teacher's active session and marks every active,
// unscanned student absent for the day unless the day already has a mark.
func (e *Engine) Stop(ctx context.Context, teacherEmail, classID string) (StopResult, error) {
	var res StopResult
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		teacher, err := teacherByEmail(ctx, tx, teacherEmail)
		if err != nil {
			return err
		}
		s, ok, err := activeSession(ctx, tx, classID)
		if err != nil {
			return err
		}
		if !ok || s.TeacherID != teacher.ID {
			return apperr.NotFound("No active session found")
		}

		enrollments, err := tx.ActiveEnrollmentsByClass(ctx, classID)
		if err != nil {
			return err
		}
		absent := 0
		seen := make(map[int64]struct{}, len(enrollments))
		for _, en := range enrollments {
			id := en.StudentRecordID
			if _, dup := seen[id]; dup || s.HasScanned(id) {
				continue
			}
			seen[id] = struct{}{}

			rec, err := tx.Record(ctx, classID, id)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if rec.Attendance.Has(s.AttendanceDate) {
				continue
			}
			if rec.Attendance == nil {
				rec.Attendance = attendance.Ledger{}
			}
			rec.Attendance[s.AttendanceDate] = attendance.Absent
			if err := tx.UpdateRecord(ctx, rec); err != nil {
				return err
			}
			absent++
		}

		stopped := e.cfg.Now().UTC()
		s.Status = model.QRSessionStopped
		s.StoppedAt = &stopped
		if err := tx.UpdateQRSession(ctx, s); err != nil {
			return err
		}
		res = StopResult{ScannedCount: len(s.ScannedRecords), AbsentCount: absent, Date: s.AttendanceDate}
		return nil
	})
	if err != nil {
		return StopResult{}, classify(err, "Failed to stop QR session")
	}
	metrics.QRSessions.WithLabelValues("stopped").Inc()
	metrics.MarkedAbsent.Add(float64(res.AbsentCount))
	e.logger.InfoContext(ctx, "qr session stopped", "class_id", classID, "scanned", res.ScannedCount, "absent", res.AbsentCount)
	return res, nil
}
