package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// Period selects the trend bucket granularity.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// SessionRow is the slice of a session the aggregator needs.
type SessionRow struct {
	ID          string
	CourseID    string
	WindowStart time.Time
	WindowEnd   time.Time
}

// CheckinRow is the slice of an event the aggregator needs.
type CheckinRow struct {
	SessionID string
	StudentID string
}

// Source supplies the raw rows. Satisfied by PGSource.
type Source interface {
	SessionsForCourse(ctx context.Context, courseID string) ([]SessionRow, error)
	CheckinsForCourse(ctx context.Context, courseID string) ([]CheckinRow, error)
	EnrolledCount(ctx context.Context, courseID string) (int, error)
}

// Summary is a derived per-student, per-course attendance view. It is always
// recomputable from sessions plus events and is never the source of truth.
type Summary struct {
	StudentID string  `json:"student_id"`
	CourseID  string  `json:"course_id"`
	Total     int     `json:"total_sessions"`
	Attended  int     `json:"attended_sessions"`
	Pct       float64 `json:"attendance_pct"`
}

// Bucket is one trend data point.
type Bucket struct {
	Label string    `json:"period"`
	Start time.Time `json:"period_start"`
	Pct   float64   `json:"attendance_pct"`
}

// Aggregator is the read-side projector over sessions and check-ins. It owns
// no mutable state.
type Aggregator struct {
	src Source
}

// NewAggregator creates an aggregator over the given source.
func NewAggregator(src Source) *Aggregator {
	return &Aggregator{src: src}
}

// PerStudentCourse derives the student's summary for a course. Only sessions
// concluded by now count toward the denominator; an in-flight session can
// still gain check-ins and would skew the percentage.
func (a *Aggregator) PerStudentCourse(ctx context.Context, studentID, courseID string, now time.Time) (Summary, error) {
	sessions, err := a.src.SessionsForCourse(ctx, courseID)
	if err != nil {
		return Summary{}, fmt.Errorf("load sessions: %w", err)
	}
	checkins, err := a.src.CheckinsForCourse(ctx, courseID)
	if err != nil {
		return Summary{}, fmt.Errorf("load check-ins: %w", err)
	}

	concluded := make(map[string]bool)
	total := 0
	for _, s := range sessions {
		if now.After(s.WindowEnd) {
			concluded[s.ID] = true
			total++
		}
	}
	attended := 0
	for _, c := range checkins {
		if c.StudentID == studentID && concluded[c.SessionID] {
			attended++
		}
	}

	return Summary{
		StudentID: studentID,
		CourseID:  courseID,
		Total:     total,
		Attended:  attended,
		Pct:       percentage(attended, total),
	}, nil
}

// RiskFlag reports whether the student's attendance falls below the
// caller-supplied threshold percentage.
func (a *Aggregator) RiskFlag(ctx context.Context, studentID, courseID string, threshold float64, now time.Time) (bool, error) {
	sum, err := a.PerStudentCourse(ctx, studentID, courseID, now)
	if err != nil {
		return false, err
	}
	return sum.Pct < threshold, nil
}

// Trend buckets the course's concluded sessions by calendar day, ISO week or
// month (keyed on the session's window start) and computes per-bucket
// attendance across all enrolled students. Buckets come back ordered by
// period start ascending; from/to bound the window starts considered, with
// zero values meaning unbounded.
func (a *Aggregator) Trend(ctx context.Context, courseID string, period Period, from, to time.Time, now time.Time) ([]Bucket, error) {
	sessions, err := a.src.SessionsForCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	checkins, err := a.src.CheckinsForCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("load check-ins: %w", err)
	}
	enrolled, err := a.src.EnrolledCount(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("count enrolled: %w", err)
	}

	attendance := make(map[string]int) // sessionID -> check-in count
	for _, c := range checkins {
		attendance[c.SessionID]++
	}

	type acc struct {
		start    time.Time
		attended int
		expected int
	}
	buckets := make(map[string]*acc)
	for _, s := range sessions {
		if !now.After(s.WindowEnd) {
			continue
		}
		if !from.IsZero() && s.WindowStart.Before(from) {
			continue
		}
		if !to.IsZero() && s.WindowStart.After(to) {
			continue
		}
		label, start := bucketOf(s.WindowStart, period)
		b, ok := buckets[label]
		if !ok {
			b = &acc{start: start}
			buckets[label] = b
		}
		b.attended += attendance[s.ID]
		b.expected += enrolled
	}

	out := make([]Bucket, 0, len(buckets))
	for label, b := range buckets {
		out = append(out, Bucket{
			Label: label,
			Start: b.start,
			Pct:   percentage(b.attended, b.expected),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// bucketOf maps a timestamp to its period label and the period's start.
func bucketOf(t time.Time, period Period) (string, time.Time) {
	t = t.UTC()
	switch period {
	case PeriodWeekly:
		year, week := t.ISOWeek()
		// Walk back to the ISO week's Monday.
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		for start.Weekday() != time.Monday {
			start = start.AddDate(0, 0, -1)
		}
		return fmt.Sprintf("%d-W%02d", year, week), start
	case PeriodMonthly:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start.Format("2006-01"), start
	default:
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return start.Format("2006-01-02"), start
	}
}

// percentage returns attended/total as a percent rounded to one decimal
// place, the rounding convention used everywhere a percentage is produced.
// A zero denominator yields 0, never NaN.
func percentage(attended, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(attended)/float64(total)*1000) / 10
}
