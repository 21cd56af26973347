package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campusattend/internal/geo"
	"campusattend/internal/session"
)

// SessionResolver resolves session codes. Satisfied by session.Manager.
type SessionResolver interface {
	Resolve(ctx context.Context, code string, now time.Time) (session.Session, error)
}

// EnrollmentChecker answers course membership. Satisfied by enrollment.PGChecker.
type EnrollmentChecker interface {
	IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error)
}

// Validator decides accept/reject for check-in submissions and owns the only
// write path into the check-in store. now and location arrive as explicit
// parameters so the decision is deterministic under test.
type Validator struct {
	sessions   SessionResolver
	enrollment EnrollmentChecker
	store      Store
}

// NewValidator wires the validator's collaborators.
func NewValidator(sessions SessionResolver, enrollment EnrollmentChecker, store Store) *Validator {
	return &Validator{sessions: sessions, enrollment: enrollment, store: store}
}

// Result is a successful check-in together with the session it landed on.
type Result struct {
	Event   Event
	Session session.Session
}

// CheckIn runs the acceptance checks in order and, only when all pass,
// attempts the single atomic insert. Transient store failures come back
// wrapped and are distinguishable from the rejection taxonomy via errors.Is.
func (v *Validator) CheckIn(ctx context.Context, code, studentID string, now time.Time, loc *geo.Point) (Result, error) {
	sess, err := v.sessions.Resolve(ctx, code, now)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Result{}, ErrSessionNotFound
		}
		return Result{}, fmt.Errorf("resolve session: %w", err)
	}

	switch sess.Status(now) {
	case session.StatusPending:
		return Result{}, ErrSessionNotStarted
	case session.StatusExpired:
		return Result{}, ErrSessionExpired
	}

	enrolled, err := v.enrollment.IsEnrolled(ctx, studentID, sess.CourseID)
	if err != nil {
		return Result{}, fmt.Errorf("enrollment check: %w", err)
	}
	if !enrolled {
		return Result{}, ErrNotEnrolled
	}

	if sess.Geofenced() {
		if loc == nil {
			return Result{}, ErrLocationRequired
		}
		d := geo.DistanceMeters(*loc, *sess.Origin)
		if d > *sess.RadiusM {
			return Result{}, &OutOfRangeError{DistanceM: d, RadiusM: *sess.RadiusM}
		}
	}

	// The store's uniqueness constraint settles concurrent duplicates; no
	// retries here, the transport layer owns retry policy.
	evt, err := v.store.Insert(ctx, sess.ID, studentID, loc)
	if err != nil {
		return Result{}, err
	}
	return Result{Event: evt, Session: sess}, nil
}
