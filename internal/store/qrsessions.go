package store

import (
	"context"
	"database/sql"
	"encoding/json"

	pkgerrors "github.com/pkg/errors"

	"attendsheets/internal/model"
)

const qrColumns = `id, class_id, teacher_id, current_code, attendance_date, rotation_interval, status,
	scanned_records, started_at, code_generated_at, stopped_at`

func scanQRSession(row scanner) (model.QRSession, error) {
	var (
		s       model.QRSession
		status  string
		scanned []byte
		stopped sql.NullTime
	)
	err := row.Scan(&s.ID, &s.ClassID, &s.TeacherID, &s.CurrentCode, &s.AttendanceDate, &s.RotationInterval,
		&status, &scanned, &s.StartedAt, &s.CodeGeneratedAt, &stopped)
	if err != nil {
		return model.QRSession{}, err
	}
	s.Status = model.QRSessionStatus(status)
	s.StoppedAt = timePtr(stopped)
	if len(scanned) > 0 {
		if err := json.Unmarshal(scanned, &s.ScannedRecords); err != nil {
			return model.QRSession{}, pkgerrors.Wrapf(err, "decode scanned records of session %s", s.ID)
		}
	}
	return s, nil
}

func encodeScanned(ids []int64) (string, error) {
	if ids == nil {
		ids = []int64{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return "", pkgerrors.Wrap(err, "encode scanned records")
	}
	return string(raw), nil
}

// ActiveQRSession returns the active session of a class. When several exist
// the most recently started one wins. The row stays locked until the
// transaction ends so concurrent scans do not lose each other's records.
func (t *tx) ActiveQRSession(ctx context.Context, classID string) (model.QRSession, error) {
	s, err := scanQRSession(t.queryRow(ctx, `
		SELECT `+qrColumns+`
		FROM qr_sessions
		WHERE class_id = $1 AND status = $2
		ORDER BY started_at DESC
		LIMIT 1`+t.dialect.lockRows(),
		classID, string(model.QRSessionActive)))
	return s, wrap(err, "active qr session")
}

func (t *tx) InsertQRSession(ctx context.Context, s model.QRSession) error {
	scanned, err := encodeScanned(s.ScannedRecords)
	if err != nil {
		return err
	}
	_, err = t.exec(ctx, `
		INSERT INTO qr_sessions (id, class_id, teacher_id, current_code, attendance_date, rotation_interval,
			status, scanned_records, started_at, code_generated_at, stopped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, s.ID, s.ClassID, s.TeacherID, s.CurrentCode, s.AttendanceDate, s.RotationInterval,
		string(s.Status), scanned, s.StartedAt, s.CodeGeneratedAt, nullTime(s.StoppedAt))
	return wrap(err, "insert qr session")
}

func (t *tx) UpdateQRSession(ctx context.Context, s model.QRSession) error {
	scanned, err := encodeScanned(s.ScannedRecords)
	if err != nil {
		return err
	}
	res, err := t.exec(ctx, `
		UPDATE qr_sessions
		SET current_code = $2, rotation_interval = $3, status = $4, scanned_records = $5,
			code_generated_at = $6, stopped_at = $7
		WHERE id = $1
	`, s.ID, s.CurrentCode, s.RotationInterval, string(s.Status), scanned, s.CodeGeneratedAt, nullTime(s.StoppedAt))
	return affected(res, err, "update qr session")
}
