package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendsheets/internal/attendance"
	"attendsheets/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), "sqlite3", MemoryDSN(uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var testNow = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func seedTeacher(t *testing.T, db *DB, email string) model.Teacher {
	t.Helper()
	tc := model.Teacher{ID: uuid.NewString(), Email: email, Name: "Ada", PasswordHash: "x", CreatedAt: testNow, UpdatedAt: testNow}
	require.NoError(t, db.WithTx(context.Background(), func(tx Tx) error {
		return tx.InsertTeacher(context.Background(), tc)
	}))
	return tc
}

func seedClass(t *testing.T, db *DB, teacherID, classID string) model.Class {
	t.Helper()
	c := model.Class{
		ID:            classID,
		Name:          "Physics",
		TeacherID:     teacherID,
		CustomColumns: json.RawMessage(`[{"id":"c1","label":"Lab"}]`),
		Thresholds:    attendance.Thresholds{Excellent: 97, Good: 90, Moderate: 80, AtRisk: 80},
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
	require.NoError(t, db.WithTx(context.Background(), func(tx Tx) error {
		return tx.InsertClass(context.Background(), c)
	}))
	return c
}

func TestRebind(t *testing.T) {
	q := `SELECT * FROM t WHERE a = $1 AND b = $2 OR a = $1`
	assert.Equal(t, q, postgres.rebind(q))
	assert.Equal(t, `SELECT * FROM t WHERE a = ?1 AND b = ?2 OR a = ?1`, sqlite.rebind(q))
}

func TestLockRowsOnlyOnPostgres(t *testing.T) {
	assert.Equal(t, " FOR UPDATE", postgres.lockRows())
	assert.Empty(t, sqlite.lockRows())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "")
	assert.Error(t, err)
}

func TestTeacherLookupAndConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tc := seedTeacher(t, db, "ada@example.com")

	err := db.WithTx(ctx, func(tx Tx) error {
		got, err := tx.TeacherByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, tc.ID, got.ID)
		assert.True(t, got.CreatedAt.Equal(testNow))

		_, err = tx.TeacherByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	dup := tc
	dup.ID = uuid.NewString()
	err = db.WithTx(ctx, func(tx Tx) error { return tx.InsertTeacher(ctx, dup) })
	assert.ErrorIs(t, err, ErrConflict)
}

func TestWithTxRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertStudent(ctx, model.Student{
			ID: uuid.NewString(), Email: "s@example.com", Name: "S", PasswordHash: "x", CreatedAt: testNow, UpdatedAt: testNow,
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	counts, err := db.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Students)
}

func TestClassRoundTripAndCascade(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tc := seedTeacher(t, db, "ada@example.com")
	seedClass(t, db, tc.ID, "1700000000000")

	require.NoError(t, db.WithTx(ctx, func(tx Tx) error {
		c, err := tx.ClassByID(ctx, "1700000000000")
		require.NoError(t, err)
		assert.Equal(t, 97.0, c.Thresholds.Excellent)
		assert.JSONEq(t, `[{"id":"c1","label":"Lab"}]`, string(c.CustomColumns))

		return tx.InsertRecord(ctx, model.StudentRecord{
			ID: 1, ClassID: c.ID, Name: "Grace", RollNo: "7", Email: "g@example.com",
			Attendance: attendance.Ledger{"2025-03-01": attendance.Present},
		})
	}))

	err := db.WithTx(ctx, func(tx Tx) error { return seedDuplicateClass(ctx, tx, tc.ID) })
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, db.WithTx(ctx, func(tx Tx) error { return tx.DeleteTeacher(ctx, tc.ID) }))
	require.NoError(t, db.WithTx(ctx, func(tx Tx) error {
		_, err := tx.ClassByID(ctx, "1700000000000")
		assert.ErrorIs(t, err, ErrNotFound)
		recs, err := tx.RecordsByClass(ctx, "1700000000000")
		require.NoError(t, err)
		assert.Empty(t, recs)
		return nil
	}))
}

func seedDuplicateClass(ctx context.Context, tx Tx, teacherID string) error {
	return tx.InsertClass(ctx, model.Class{ID: "1700000000000", Name: "Dup", TeacherID: teacherID, CreatedAt: testNow, UpdatedAt: testNow})
}

func TestRecordUpdateOverwritesLedger(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tc := seedTeacher(t, db, "ada@example.com")
	c := seedClass(t, db, tc.ID, "c-1")

	require.NoError(t, db.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertRecord(ctx, model.StudentRecord{ID: 5, ClassID: c.ID, Name: "A", RollNo: "1"}))
		r, err := tx.Record(ctx, c.ID, 5)
		require.NoError(t, err)
		assert.NotNil(t, r.Attendance)
		assert.Empty(t, r.Attendance)

		r.Attendance = attendance.Ledger{"2025-03-02": attendance.Late}
		r.Name = "B"
		require.NoError(t, tx.UpdateRecord(ctx, r))

		got, err := tx.Record(ctx, c.ID, 5)
		require.NoError(t, err)
		assert.Equal(t, "B", got.Name)
		assert.Equal(t, attendance.Ledger{"2025-03-02": attendance.Late}, got.Attendance)

		missing := got
		missing.ID = 6
		assert.ErrorIs(t, tx.UpdateRecord(ctx, missing), ErrNotFound)
		return nil
	}))
}

func TestEnrollmentsAndRemoval(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tc := seedTeacher(t, db, "ada@example.com")
	c := seedClass(t, db, tc.ID, "c-1")
	st := model.Student{ID: uuid.NewString(), Email: "s@example.com", Name: "S", PasswordHash: "x", CreatedAt: testNow, UpdatedAt: testNow}
	enrollment := model.Enrollment{
		ID: uuid.NewString(), StudentID: st.ID, ClassID: c.ID, StudentRecordID: 9, RollNo: "1",
		Status: model.EnrollmentActive, EnrolledAt: testNow,
	}

	require.NoError(t, db.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertStudent(ctx, st))
		require.NoError(t, tx.InsertRecord(ctx, model.StudentRecord{ID: 9, ClassID: c.ID, Name: "S", RollNo: "1"}))
		return tx.InsertEnrollment(ctx, enrollment)
	}))

	dup := enrollment
	dup.ID = uuid.NewString()
	err := db.WithTx(ctx, func(tx Tx) error { return tx.InsertEnrollment(ctx, dup) })
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, db.WithTx(ctx, func(tx Tx) error {
		n, err := tx.CountActiveEnrollmentsByTeacher(ctx, tc.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		teachers, err := tx.TeachersOfStudent(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{tc.ID}, teachers)

		removed, err := tx.RemoveEnrollments(ctx, c.ID, []int64{9, 10}, testNow.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		got, err := tx.Enrollment(ctx, st.ID, c.ID)
		require.NoError(t, err)
		assert.Equal(t, model.EnrollmentInactive, got.Status)
		require.NotNil(t, got.RemovedByTeacherAt)
		assert.True(t, got.RemovedByTeacherAt.Equal(testNow.Add(time.Hour)))
		assert.Nil(t, got.UnenrolledAt)

		active, err := tx.ActiveEnrollmentsByClass(ctx, c.ID)
		require.NoError(t, err)
		assert.Empty(t, active)
		return nil
	}))

	require.NoError(t, db.WithTx(ctx, func(tx Tx) error { return tx.DeleteStudent(ctx, st.ID) }))
	require.NoError(t, db.WithTx(ctx, func(tx Tx) error {
		_, err := tx.Enrollment(ctx, st.ID, c.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = tx.Record(ctx, c.ID, 9)
		assert.NoError(t, err, "records stay with the class")
		return nil
	}))
}

func TestQRSessionRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tc := seedTeacher(t, db, "ada@example.com")
	c := seedClass(t, db, tc.ID, "c-1")

	s := model.QRSession{
		ID: uuid.NewString(), ClassID: c.ID, TeacherID: tc.ID, CurrentCode: "ABCD1234",
		AttendanceDate: "2025-03-01", RotationInterval: 5, Status: model.QRSessionActive,
		StartedAt: testNow, CodeGeneratedAt: testNow,
	}
	require.NoError(t, db.WithTx(ctx, func(tx Tx) error { return tx.InsertQRSession(ctx, s) }))

	require.NoError(t, db.WithTx(ctx, func(tx Tx) error {
		got, err := tx.ActiveQRSession(ctx, c.ID)
		require.NoError(t, err)
		assert.Empty(t, got.ScannedRecords)
		assert.Nil(t, got.StoppedAt)

		got.ScannedRecords = append(got.ScannedRecords, 42)
		stopped := testNow.Add(time.Minute)
		got.Status = model.QRSessionStopped
		got.StoppedAt = &stopped
		return tx.UpdateQRSession(ctx, got)
	}))

	require.NoError(t, db.WithTx(ctx, func(tx Tx) error {
		_, err := tx.ActiveQRSession(ctx, c.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

func TestCounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tc := seedTeacher(t, db, "ada@example.com")
	seedClass(t, db, tc.ID, "c-1")
	seedClass(t, db, tc.ID, "c-2")

	counts, err := db.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Counts{Teachers: 1, Students: 0, Classes: 2}, counts)
	assert.NoError(t, db.Ping(ctx))
}
