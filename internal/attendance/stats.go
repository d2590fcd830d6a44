package attendance

import "math"

// Bucket is the per-student classification.
type Bucket string

const (
	BucketExcellent Bucket = "excellent"
	BucketGood      Bucket = "good"
	BucketModerate  Bucket = "moderate"
	BucketAtRisk    Bucket = "at risk"
)

// Summary is the per-student view of a ledger.
type Summary struct {
	Total      int
	Present    int
	Absent     int
	Late       int
	Percentage float64
	Bucket     Bucket
}

// Summarize counts marks and classifies the student on the three tiers.
// Late counts as present for the percentage.
func Summarize(l Ledger, t Thresholds) Summary {
	var s Summary
	for _, status := range l {
		switch status {
		case Present:
			s.Present++
		case Absent:
			s.Absent++
		case Late:
			s.Late++
		}
	}
	s.Total = len(l)
	s.Percentage = percentage(s.Present+s.Late, s.Total)

	switch {
	case s.Percentage >= t.Excellent:
		s.Bucket = BucketExcellent
	case s.Percentage >= t.Good:
		s.Bucket = BucketGood
	case s.Percentage >= t.Moderate:
		s.Bucket = BucketModerate
	default:
		s.Bucket = BucketAtRisk
	}
	return s
}

// Rollup is the class-level view over the active students.
type Rollup struct {
	TotalStudents  int
	AvgAttendance  float64
	AtRiskCount    int
	ExcellentCount int
}

// RollupOf aggregates the ledgers of the active students of a class. Only the
// excellent and moderate cut-offs are used here. Students without any mark add
// zero to the average and are left out of both counts.
func RollupOf(ledgers []Ledger, t Thresholds) Rollup {
	r := Rollup{TotalStudents: len(ledgers)}
	var sum float64
	for _, l := range ledgers {
		if len(l) == 0 {
			continue
		}
		present := 0
		for _, status := range l {
			if status == Present || status == Late {
				present++
			}
		}
		p := percentage(present, len(l))
		sum += p
		if p >= t.Excellent {
			r.ExcellentCount++
		} else if p < t.Moderate {
			r.AtRiskCount++
		}
	}
	if r.TotalStudents > 0 {
		r.AvgAttendance = sum / float64(r.TotalStudents)
	}
	return r
}

// Round3 rounds to three decimal places for responses.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
