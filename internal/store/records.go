package store

import (
	"context"
	"encoding/json"

	pkgerrors "github.com/pkg/errors"

	"attendsheets/internal/attendance"
	"attendsheets/internal/model"
)

const recordColumns = `id, class_id, name, roll_no, email, attendance`

func scanRecord(row scanner) (model.StudentRecord, error) {
	var (
		r   model.StudentRecord
		raw []byte
	)
	if err := row.Scan(&r.ID, &r.ClassID, &r.Name, &r.RollNo, &r.Email, &raw); err != nil {
		return model.StudentRecord{}, err
	}
	r.Attendance = attendance.Ledger{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &r.Attendance); err != nil {
			return model.StudentRecord{}, pkgerrors.Wrapf(err, "decode attendance of record %d", r.ID)
		}
	}
	if r.Attendance == nil {
		r.Attendance = attendance.Ledger{}
	}
	return r, nil
}

func encodeLedger(l attendance.Ledger) (string, error) {
	raw, err := json.Marshal(l)
	if err != nil {
		return "", pkgerrors.Wrap(err, "encode attendance")
	}
	return string(raw), nil
}

func (t *tx) RecordsByClass(ctx context.Context, classID string) ([]model.StudentRecord, error) {
	rows, err := t.query(ctx, `
		SELECT `+recordColumns+` FROM student_records WHERE class_id = $1 ORDER BY id
	`, classID)
	if err != nil {
		return nil, wrap(err, "records by class")
	}
	defer rows.Close()

	var out []model.StudentRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, wrap(err, "scan record")
		}
		out = append(out, r)
	}
	return out, wrap(rows.Err(), "records by class")
}

func (t *tx) Record(ctx context.Context, classID string, id int64) (model.StudentRecord, error) {
	r, err := scanRecord(t.queryRow(ctx, `
		SELECT `+recordColumns+` FROM student_records WHERE class_id = $1 AND id = $2
	`, classID, id))
	return r, wrap(err, "record")
}

func (t *tx) InsertRecord(ctx context.Context, r model.StudentRecord) error {
	ledger, err := encodeLedger(r.Attendance)
	if err != nil {
		return err
	}
	_, err = t.exec(ctx, `
		INSERT INTO student_records (id, class_id, name, roll_no, email, attendance)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.ClassID, r.Name, r.RollNo, r.Email, ledger)
	return wrap(err, "insert record")
}

// UpdateRecord overwrites name, roll number, email and the whole attendance map.
func (t *tx) UpdateRecord(ctx context.Context, r model.StudentRecord) error {
	ledger, err := encodeLedger(r.Attendance)
	if err != nil {
		return err
	}
	res, err := t.exec(ctx, `
		UPDATE student_records
		SET name = $3, roll_no = $4, email = $5, attendance = $6
		WHERE class_id = $1 AND id = $2
	`, r.ClassID, r.ID, r.Name, r.RollNo, r.Email, ledger)
	return affected(res, err, "update record")
}
