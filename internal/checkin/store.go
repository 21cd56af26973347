package checkin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"campusattend/internal/geo"
)

// Store persists accepted check-in events.
type Store interface {
	// Insert records one event for (sessionID, studentID). When an event for
	// the pair already exists it fails with ErrAlreadyCheckedIn without
	// writing. The check and the write are atomic.
	Insert(ctx context.Context, sessionID, studentID string, loc *geo.Point) (Event, error)
	// ListBySession returns the events recorded against a session, oldest first.
	ListBySession(ctx context.Context, sessionID string) ([]Event, error)
}

// PGStore persists events in Postgres. The (session_id, student_id) unique
// constraint in the schema is the single source of truth for duplicate
// suppression; concurrent duplicates race in the database, not here.
type PGStore struct {
	db *sql.DB
}

// NewPGStore creates a store backed by the given database.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Insert writes the event with ON CONFLICT DO NOTHING. A conflicting row
// yields no RETURNING row, which surfaces as ErrAlreadyCheckedIn. recorded_at
// comes from the database clock.
func (s *PGStore) Insert(ctx context.Context, sessionID, studentID string, loc *geo.Point) (Event, error) {
	evt := Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		StudentID: studentID,
		Location:  loc,
	}
	var lat, lon sql.NullFloat64
	if loc != nil {
		lat = sql.NullFloat64{Float64: loc.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: loc.Lon, Valid: true}
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO checkin_events (id, session_id, student_id, student_lat, student_lon)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, student_id) DO NOTHING
		RETURNING recorded_at
	`, evt.ID, sessionID, studentID, lat, lon)

	if err := row.Scan(&evt.RecordedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, ErrAlreadyCheckedIn
		}
		return Event{}, fmt.Errorf("insert check-in: %w", err)
	}
	return evt, nil
}

// ListBySession returns the session's events for faculty review.
func (s *PGStore) ListBySession(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, student_id, recorded_at, student_lat, student_lon
		FROM checkin_events
		WHERE session_id = $1
		ORDER BY recorded_at
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list check-ins: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var evt Event
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&evt.ID, &evt.SessionID, &evt.StudentID, &evt.RecordedAt, &lat, &lon); err != nil {
			return nil, err
		}
		if lat.Valid && lon.Valid {
			evt.Location = &geo.Point{Lat: lat.Float64, Lon: lon.Float64}
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}
