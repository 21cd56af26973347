package report

import (
	"context"
	"database/sql"
	"fmt"
)

// PGSource reads aggregation rows from Postgres.
type PGSource struct {
	db *sql.DB
}

// NewPGSource creates a source backed by the given database.
func NewPGSource(db *sql.DB) *PGSource {
	return &PGSource{db: db}
}

// SessionsForCourse returns all sessions ever opened for the course.
func (s *PGSource) SessionsForCourse(ctx context.Context, courseID string) ([]SessionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, window_start, window_end
		FROM attendance_sessions
		WHERE course_id = $1
		ORDER BY window_start
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.ID, &r.CourseID, &r.WindowStart, &r.WindowEnd); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CheckinsForCourse returns the course's accepted check-ins via the session join.
func (s *PGSource) CheckinsForCourse(ctx context.Context, courseID string) ([]CheckinRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.session_id, e.student_id
		FROM checkin_events e
		JOIN attendance_sessions s ON s.id = e.session_id
		WHERE s.course_id = $1
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("query check-ins: %w", err)
	}
	defer rows.Close()

	var out []CheckinRow
	for rows.Next() {
		var r CheckinRow
		if err := rows.Scan(&r.SessionID, &r.StudentID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EnrolledCount returns the number of students enrolled in the course.
func (s *PGSource) EnrolledCount(ctx context.Context, courseID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM enrollments WHERE course_id = $1
	`, courseID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return n, nil
}
