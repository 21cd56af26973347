package enrollment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Checker answers course membership questions. The portal's enrollment
// records live outside this subsystem; only this query crosses the boundary.
type Checker interface {
	IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error)
}

// PGChecker reads the enrollments table.
type PGChecker struct {
	db *sql.DB
}

// NewPGChecker creates a checker backed by the given database.
func NewPGChecker(db *sql.DB) *PGChecker {
	return &PGChecker{db: db}
}

// IsEnrolled reports whether the student is enrolled in the course.
func (c *PGChecker) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx, `
		SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2
	`, studentID, courseID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("enrollment lookup: %w", err)
	}
	return true, nil
}
