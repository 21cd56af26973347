package checkin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"campusattend/internal/geo"
	"campusattend/internal/session"
)

type fakeResolver struct {
	sessions map[string]session.Session
}

func (f *fakeResolver) Resolve(ctx context.Context, code string, now time.Time) (session.Session, error) {
	s, ok := f.sessions[code]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return s, nil
}

type fakeEnrollment struct {
	enrolled map[string]bool // key studentID|courseID
}

func (f *fakeEnrollment) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	return f.enrolled[studentID+"|"+courseID], nil
}

// fakeEventStore mirrors the unique-constraint semantics of the Postgres
// store: the presence check and the write happen under one lock.
type fakeEventStore struct {
	mu     sync.Mutex
	events []Event
	clock  time.Time
}

func (f *fakeEventStore) Insert(ctx context.Context, sessionID, studentID string, loc *geo.Point) (Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.SessionID == sessionID && e.StudentID == studentID {
			return Event{}, ErrAlreadyCheckedIn
		}
	}
	evt := Event{
		ID:         "evt-" + studentID,
		SessionID:  sessionID,
		StudentID:  studentID,
		RecordedAt: f.clock,
		Location:   loc,
	}
	f.events = append(f.events, evt)
	return evt, nil
}

func (f *fakeEventStore) ListBySession(ctx context.Context, sessionID string) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, e := range f.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEventStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

var (
	windowStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)
	origin      = geo.Point{Lat: 17.385, Lon: 78.486}
)

func geofencedSession() session.Session {
	radius := 50.0
	o := origin
	return session.Session{
		ID:          "sess-1",
		CourseID:    "course-1",
		Code:        "ABC234",
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Origin:      &o,
		RadiusM:     &radius,
	}
}

func newValidator(sess session.Session, enrolled map[string]bool) (*Validator, *fakeEventStore) {
	store := &fakeEventStore{clock: windowStart.Add(5 * time.Minute)}
	v := NewValidator(
		&fakeResolver{sessions: map[string]session.Session{sess.Code: sess}},
		&fakeEnrollment{enrolled: enrolled},
		store,
	)
	return v, store
}

func TestCheckInAccepted(t *testing.T) {
	t.Parallel()
	v, store := newValidator(geofencedSession(), map[string]bool{"stu-1|course-1": true})

	at := windowStart.Add(5 * time.Minute)
	res, err := v.CheckIn(context.Background(), "ABC234", "stu-1", at, &origin)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if res.Event.RecordedAt.IsZero() {
		t.Error("recorded timestamp not returned")
	}
	if res.Session.CourseID != "course-1" {
		t.Errorf("session course = %q", res.Session.CourseID)
	}
	if store.count() != 1 {
		t.Errorf("stored events = %d, want 1", store.count())
	}
}

func TestCheckInRejections(t *testing.T) {
	t.Parallel()
	far := geo.Point{Lat: 17.3868, Lon: 78.486} // roughly 200m north of origin

	cases := []struct {
		name    string
		code    string
		student string
		now     time.Time
		loc     *geo.Point
		wantErr error
	}{
		{"unknown code", "NOPE22", "stu-1", windowStart.Add(5 * time.Minute), &origin, ErrSessionNotFound},
		{"before window", "ABC234", "stu-1", windowStart.Add(-time.Minute), &origin, ErrSessionNotStarted},
		{"after window", "ABC234", "stu-1", windowEnd.Add(5 * time.Minute), &origin, ErrSessionExpired},
		{"not enrolled", "ABC234", "stu-2", windowStart.Add(5 * time.Minute), &origin, ErrNotEnrolled},
		{"missing location", "ABC234", "stu-1", windowStart.Add(5 * time.Minute), nil, ErrLocationRequired},
		{"out of range", "ABC234", "stu-1", windowStart.Add(5 * time.Minute), &far, nil},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v, store := newValidator(geofencedSession(), map[string]bool{"stu-1|course-1": true})

			_, err := v.CheckIn(context.Background(), tc.code, tc.student, tc.now, tc.loc)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("got %v, want %v", err, tc.wantErr)
				}
			} else {
				var oor *OutOfRangeError
				if !errors.As(err, &oor) {
					t.Fatalf("got %v, want OutOfRangeError", err)
				}
				if oor.DistanceM <= 50 {
					t.Errorf("reported distance %.0fm, expected beyond radius", oor.DistanceM)
				}
			}
			if store.count() != 0 {
				t.Errorf("rejection wrote %d events, want 0", store.count())
			}
		})
	}
}

func TestCheckInBoundaryOfRadius(t *testing.T) {
	t.Parallel()
	sess := geofencedSession()
	v, _ := newValidator(sess, map[string]bool{"stu-1|course-1": true, "stu-2|course-1": true})

	// A point whose distance from the origin we can measure, then use as the
	// exact radius: at distance == R the check-in is accepted.
	probe := geo.Point{Lat: 17.38545, Lon: 78.486}
	d := geo.DistanceMeters(probe, origin)
	*sess.RadiusM = d
	v.sessions = &fakeResolver{sessions: map[string]session.Session{sess.Code: sess}}

	at := windowStart.Add(5 * time.Minute)
	if _, err := v.CheckIn(context.Background(), "ABC234", "stu-1", at, &probe); err != nil {
		t.Fatalf("check-in at exact radius rejected: %v", err)
	}

	*sess.RadiusM = d - 0.01
	v.sessions = &fakeResolver{sessions: map[string]session.Session{sess.Code: sess}}
	v.store = &fakeEventStore{}
	_, err := v.CheckIn(context.Background(), "ABC234", "stu-2", at, &probe)
	var oor *OutOfRangeError
	if !errors.As(err, &oor) {
		t.Fatalf("check-in past radius: got %v, want OutOfRangeError", err)
	}
}

func TestCheckInWithoutGeofence(t *testing.T) {
	t.Parallel()
	sess := geofencedSession()
	sess.Origin = nil
	sess.RadiusM = nil
	v, store := newValidator(sess, map[string]bool{"stu-1|course-1": true, "stu-2|course-1": true})

	// No location needed, but one supplied anyway is recorded for audit.
	at := windowStart.Add(time.Minute)
	if _, err := v.CheckIn(context.Background(), "ABC234", "stu-1", at, nil); err != nil {
		t.Fatalf("ungeofenced check-in without location: %v", err)
	}
	res, err := v.CheckIn(context.Background(), "ABC234", "stu-2", at, &origin)
	if err != nil {
		t.Fatalf("ungeofenced check-in with location: %v", err)
	}
	if res.Event.Location == nil {
		t.Error("supplied location not kept on the event")
	}
	if store.count() != 2 {
		t.Errorf("stored events = %d, want 2", store.count())
	}
}

func TestCheckInIdempotent(t *testing.T) {
	t.Parallel()
	v, store := newValidator(geofencedSession(), map[string]bool{"stu-1|course-1": true})

	at := windowStart.Add(5 * time.Minute)
	if _, err := v.CheckIn(context.Background(), "ABC234", "stu-1", at, &origin); err != nil {
		t.Fatalf("first check-in: %v", err)
	}
	_, err := v.CheckIn(context.Background(), "ABC234", "stu-1", at.Add(time.Second), &origin)
	if !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("second check-in: got %v, want ErrAlreadyCheckedIn", err)
	}
	if store.count() != 1 {
		t.Errorf("stored events = %d, want exactly 1", store.count())
	}
}

func TestCheckInConcurrentDuplicates(t *testing.T) {
	t.Parallel()
	v, store := newValidator(geofencedSession(), map[string]bool{"stu-1|course-1": true})

	const n = 32
	at := windowStart.Add(5 * time.Minute)
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = v.CheckIn(context.Background(), "ABC234", "stu-1", at, &origin)
		}(i)
	}
	wg.Wait()

	successes, duplicates := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrAlreadyCheckedIn):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || duplicates != n-1 {
		t.Fatalf("successes = %d, duplicates = %d; want 1 and %d", successes, duplicates, n-1)
	}
	if store.count() != 1 {
		t.Errorf("stored events = %d, want exactly 1", store.count())
	}
}

func TestCheckInScenario(t *testing.T) {
	t.Parallel()
	// Session 10:00-10:15, 50m radius around (17.385, 78.486).
	v, _ := newValidator(geofencedSession(), map[string]bool{
		"stu-1|course-1": true,
		"stu-2|course-1": true,
		"stu-3|course-1": true,
	})
	ctx := context.Background()

	// 10:05 from the origin itself: accepted.
	if _, err := v.CheckIn(ctx, "ABC234", "stu-1", windowStart.Add(5*time.Minute), &origin); err != nil {
		t.Fatalf("10:05 at origin: %v", err)
	}

	// 10:20 from the same point: expired.
	_, err := v.CheckIn(ctx, "ABC234", "stu-2", windowStart.Add(20*time.Minute), &origin)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("10:20: got %v, want ErrSessionExpired", err)
	}

	// 10:05 from ~200m away: out of range.
	far := geo.Point{Lat: 17.3868, Lon: 78.486}
	_, err = v.CheckIn(ctx, "ABC234", "stu-3", windowStart.Add(5*time.Minute), &far)
	var oor *OutOfRangeError
	if !errors.As(err, &oor) {
		t.Fatalf("200m away: got %v, want OutOfRangeError", err)
	}
}
