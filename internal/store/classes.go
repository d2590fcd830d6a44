package store

import (
	"context"
	"encoding/json"

	pkgerrors "github.com/pkg/errors"

	"attendsheets/internal/attendance"
	"attendsheets/internal/model"
)

const classColumns = `id, name, teacher_id, custom_columns, thresholds, created_at, updated_at`

func scanClass(row scanner) (model.Class, error) {
	var (
		c                   model.Class
		columns, thresholds []byte
	)
	if err := row.Scan(&c.ID, &c.Name, &c.TeacherID, &columns, &thresholds, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return model.Class{}, err
	}
	c.CustomColumns = json.RawMessage(columns)
	c.Thresholds = attendance.DefaultThresholds()
	if len(thresholds) > 0 {
		if err := json.Unmarshal(thresholds, &c.Thresholds); err != nil {
			return model.Class{}, pkgerrors.Wrapf(err, "decode thresholds of class %s", c.ID)
		}
	}
	return c, nil
}

func encodeClass(c model.Class) (columns, thresholds string, err error) {
	columns = "[]"
	if len(c.CustomColumns) > 0 && string(c.CustomColumns) != "null" {
		columns = string(c.CustomColumns)
	}
	raw, err := json.Marshal(c.Thresholds)
	if err != nil {
		return "", "", pkgerrors.Wrap(err, "encode thresholds")
	}
	return columns, string(raw), nil
}

func (t *tx) ClassByID(ctx context.Context, id string) (model.Class, error) {
	c, err := scanClass(t.queryRow(ctx, `SELECT `+classColumns+` FROM classes WHERE id = $1`, id))
	return c, wrap(err, "class by id")
}

func (t *tx) ClassesByTeacher(ctx context.Context, teacherID string) ([]model.Class, error) {
	rows, err := t.query(ctx, `
		SELECT `+classColumns+` FROM classes WHERE teacher_id = $1 ORDER BY created_at, id
	`, teacherID)
	if err != nil {
		return nil, wrap(err, "classes by teacher")
	}
	defer rows.Close()

	var out []model.Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, wrap(err, "scan class")
		}
		out = append(out, c)
	}
	return out, wrap(rows.Err(), "classes by teacher")
}

func (t *tx) InsertClass(ctx context.Context, c model.Class) error {
	columns, thresholds, err := encodeClass(c)
	if err != nil {
		return err
	}
	_, err = t.exec(ctx, `
		INSERT INTO classes (id, name, teacher_id, custom_columns, thresholds, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.Name, c.TeacherID, columns, thresholds, c.CreatedAt, c.UpdatedAt)
	return wrap(err, "insert class")
}

// UpdateClass overwrites name, custom columns, thresholds and updated_at.
func (t *tx) UpdateClass(ctx context.Context, c model.Class) error {
	columns, thresholds, err := encodeClass(c)
	if err != nil {
		return err
	}
	res, err := t.exec(ctx, `
		UPDATE classes
		SET name = $2, custom_columns = $3, thresholds = $4, updated_at = $5
		WHERE id = $1
	`, c.ID, c.Name, columns, thresholds, c.UpdatedAt)
	return affected(res, err, "update class")
}

func (t *tx) DeleteClass(ctx context.Context, id string) error {
	res, err := t.exec(ctx, `DELETE FROM classes WHERE id = $1`, id)
	return affected(res, err, "delete class")
}

func (t *tx) CountClassesByTeacher(ctx context.Context, teacherID string) (int, error) {
	var n int
	err := t.queryRow(ctx, `SELECT COUNT(*) FROM classes WHERE teacher_id = $1`, teacherID).Scan(&n)
	return n, wrap(err, "count classes")
}
