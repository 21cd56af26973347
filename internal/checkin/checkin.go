package checkin

import (
	"errors"
	"fmt"
	"time"

	"campusattend/internal/geo"
)

// Event is an accepted check-in. Events are immutable once written; the
// timestamp is assigned by the store's clock, never by the client.
type Event struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	StudentID  string     `json:"student_id"`
	RecordedAt time.Time  `json:"recorded_at"`
	Location   *geo.Point `json:"location,omitempty"`
}

// Rejection taxonomy. Each drives different client messaging, so none of
// these may collapse into a generic failure.
var (
	// ErrSessionNotFound: no session matches the submitted code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotStarted: the window has not opened yet.
	ErrSessionNotStarted = errors.New("session has not started")
	// ErrSessionExpired: the window has already closed.
	ErrSessionExpired = errors.New("session has expired")
	// ErrNotEnrolled: the student is not enrolled in the session's course.
	ErrNotEnrolled = errors.New("student not enrolled in course")
	// ErrLocationRequired: the session is geofenced and no location was sent.
	ErrLocationRequired = errors.New("location required for this session")
	// ErrAlreadyCheckedIn: a benign duplicate; exactly one event exists.
	ErrAlreadyCheckedIn = errors.New("already checked in")
)

// OutOfRangeError reports a geofence rejection. It carries the measured
// distance for debugging but never the origin coordinates.
type OutOfRangeError struct {
	DistanceM float64
	RadiusM   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("out of range: %.0fm from session origin, allowed %.0fm", e.DistanceM, e.RadiusM)
}
