package session

import (
	"errors"
	"time"

	"campusattend/internal/geo"
)

// Status is the lifecycle state of a session relative to a point in time.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

var (
	// ErrInvalidWindow is returned when a session window ends at or before it starts.
	ErrInvalidWindow = errors.New("session window end must be after start")
	// ErrNotFound is returned when no session matches a code.
	ErrNotFound = errors.New("session not found")
	// ErrCodeCollision is returned by the store when the code is already held
	// by a session whose window has not elapsed.
	ErrCodeCollision = errors.New("session code already active")
	// ErrCodeSpaceExhausted is returned when code generation keeps colliding.
	ErrCodeSpaceExhausted = errors.New("could not generate a unique session code")
)

// Session is an attendance window opened by a faculty member. Records are
// append-only: once created a session is never mutated or deleted, it only
// ages past its window.
type Session struct {
	ID          string     `json:"id"`
	CourseID    string     `json:"course_id"`
	CreatorID   string     `json:"creator_id"`
	Code        string     `json:"session_code"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	Origin      *geo.Point `json:"origin,omitempty"`
	RadiusM     *float64   `json:"radius_m,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Status reports the lifecycle state at now. Transitions are driven by time
// alone and are monotonic: pending, then active, then expired.
func (s Session) Status(now time.Time) Status {
	switch {
	case now.Before(s.WindowStart):
		return StatusPending
	case now.After(s.WindowEnd):
		return StatusExpired
	default:
		return StatusActive
	}
}

// Concluded reports whether the window has fully elapsed. Only concluded
// sessions count toward attendance denominators.
func (s Session) Concluded(now time.Time) bool {
	return now.After(s.WindowEnd)
}

// Geofenced reports whether check-ins against this session require a location.
func (s Session) Geofenced() bool {
	return s.RadiusM != nil && s.Origin != nil
}
