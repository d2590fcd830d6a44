package roster

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"attendsheets/internal/attendance"
)

// FlexString accepts a JSON string or number. Browser clients send class ids
// and roll numbers either way.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	if i, err := n.Int64(); err == nil {
		*f = FlexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// RecordID is a student record id sent as a JSON number or numeric string.
// Fractional numbers are truncated.
type RecordID int64

func (r *RecordID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*r = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(s))
		if len(b) == 0 {
			*r = 0
			return nil
		}
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid student id %s", b)
	}
	if i, err := n.Int64(); err == nil {
		*r = RecordID(i)
		return nil
	}
	fl, err := n.Float64()
	if err != nil || math.IsNaN(fl) || math.IsInf(fl, 0) {
		return fmt.Errorf("invalid student id %s", b)
	}
	*r = RecordID(int64(fl))
	return nil
}

// StudentInput is one roster row of a class payload.
type StudentInput struct {
	ID         RecordID          `json:"id"`
	Name       string            `json:"name"`
	RollNo     FlexString        `json:"rollNo"`
	Email      string            `json:"email"`
	Attendance attendance.Ledger `json:"attendance"`
}

// ClassInput is the body of class create and update.
type ClassInput struct {
	ID            FlexString             `json:"id"`
	Name          string                 `json:"name" binding:"required"`
	Students      []StudentInput         `json:"students"`
	CustomColumns json.RawMessage        `json:"customColumns"`
	Thresholds    *attendance.Thresholds `json:"thresholds"`
}

func (in ClassInput) thresholds() attendance.Thresholds {
	if in.Thresholds == nil {
		return attendance.DefaultThresholds()
	}
	return *in.Thresholds
}

func (in ClassInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("class name is required")
	}
	if len(in.CustomColumns) > 0 && !bytes.Equal(bytes.TrimSpace(in.CustomColumns), []byte("null")) {
		var cols []json.RawMessage
		if err := json.Unmarshal(in.CustomColumns, &cols); err != nil {
			return fmt.Errorf("customColumns must be an array")
		}
	}
	for _, st := range in.Students {
		if err := st.Attendance.Validate(); err != nil {
			return fmt.Errorf("student %d: %w", st.ID, err)
		}
	}
	return nil
}

func (in ClassInput) columns() json.RawMessage {
	c := bytes.TrimSpace(in.CustomColumns)
	if len(c) == 0 || bytes.Equal(c, []byte("null")) {
		return json.RawMessage("[]")
	}
	return json.RawMessage(c)
}

// EnrollInput is the body of a self-enrollment.
type EnrollInput struct {
	ClassID FlexString `json:"class_id" binding:"required"`
	Name    string     `json:"name" binding:"required"`
	RollNo  FlexString `json:"rollNo" binding:"required"`
	Email   string     `json:"email" binding:"required,email"`
}
