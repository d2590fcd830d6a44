package attendance

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Status is the mark recorded for one calendar day.
type Status string

const (
	Present Status = "P"
	Absent  Status = "A"
	Late    Status = "L"
)

// Valid reports whether s is one of the recognised marks.
func (s Status) Valid() bool {
	switch s {
	case Present, Absent, Late:
		return true
	}
	return false
}

// Ledger maps a caller-formatted date (usually YYYY-MM-DD) to its mark.
// A missing key means there is no record for that day.
type Ledger map[string]Status

// Has reports whether the ledger holds a mark for date.
func (l Ledger) Has(date string) bool {
	_, ok := l[date]
	return ok
}

// Clone returns an independent copy; a nil ledger clones to an empty one.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Dates returns the recorded dates in lexical order.
func (l Ledger) Dates() []string {
	dates := make([]string, 0, len(l))
	for d := range l {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// Validate rejects unknown marks.
func (l Ledger) Validate() error {
	for _, date := range l.Dates() {
		if !l[date].Valid() {
			return fmt.Errorf("invalid attendance status %q for %s", l[date], date)
		}
	}
	return nil
}

// MarshalJSON always emits an object, never null.
func (l Ledger) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]Status(l))
}

// Thresholds are the percentage cut-offs of a class. AtRisk is the floor below
// which a student is at risk, not an extra tier.
type Thresholds struct {
	Excellent float64 `json:"excellent"`
	Good      float64 `json:"good"`
	Moderate  float64 `json:"moderate"`
	AtRisk    float64 `json:"atRisk"`
}

// DefaultThresholds returns 95 / 90 / 85 / 85.
func DefaultThresholds() Thresholds {
	return Thresholds{Excellent: 95, Good: 90, Moderate: 85, AtRisk: 85}
}

// UnmarshalJSON fills keys absent from the payload with their defaults.
func (t *Thresholds) UnmarshalJSON(b []byte) error {
	type plain Thresholds
	p := plain(DefaultThresholds())
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*t = Thresholds(p)
	return nil
}
