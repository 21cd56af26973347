package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"campusattend/internal/geo"
)

// Store persists attendance sessions.
type Store interface {
	// Insert writes a new session. It fails with ErrCodeCollision when the
	// code is already held by a session whose window has not yet elapsed.
	Insert(ctx context.Context, s Session, now time.Time) (Session, error)
	// FindByCode resolves a code to a session, preferring sessions whose
	// window has not concluded, newest first. Fails with ErrNotFound.
	FindByCode(ctx context.Context, code string, now time.Time) (Session, error)
}

// PGStore persists sessions in Postgres.
type PGStore struct {
	db *sql.DB
}

// NewPGStore creates a store backed by the given database.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Insert writes the session. The active-code uniqueness check and the write
// are one statement, so two concurrent opens drawing the same code cannot
// both succeed; the loser sees ErrCodeCollision and redraws.
func (s *PGStore) Insert(ctx context.Context, sess Session, now time.Time) (Session, error) {
	var oLat, oLon, radius sql.NullFloat64
	if sess.Origin != nil {
		oLat = sql.NullFloat64{Float64: sess.Origin.Lat, Valid: true}
		oLon = sql.NullFloat64{Float64: sess.Origin.Lon, Valid: true}
	}
	if sess.RadiusM != nil {
		radius = sql.NullFloat64{Float64: *sess.RadiusM, Valid: true}
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO attendance_sessions
			(id, course_id, creator_id, session_code, window_start, window_end, origin_lat, origin_lon, radius_m)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
		WHERE NOT EXISTS (
			SELECT 1 FROM attendance_sessions
			WHERE session_code = $4 AND window_end > $10
		)
		RETURNING created_at
	`, sess.ID, sess.CourseID, sess.CreatorID, sess.Code,
		sess.WindowStart, sess.WindowEnd, oLat, oLon, radius, now)

	if err := row.Scan(&sess.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrCodeCollision
		}
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// FindByCode resolves a session code. Codes are only unique among active
// sessions, so the query orders non-concluded matches ahead of concluded
// ones and breaks ties by recency.
func (s *PGStore) FindByCode(ctx context.Context, code string, now time.Time) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, course_id, creator_id, session_code, window_start, window_end,
		       origin_lat, origin_lon, radius_m, created_at
		FROM attendance_sessions
		WHERE session_code = $1
		ORDER BY (window_end > $2) DESC, created_at DESC
		LIMIT 1
	`, code, now)
	return scanSession(row)
}

func scanSession(row *sql.Row) (Session, error) {
	var sess Session
	var oLat, oLon, radius sql.NullFloat64
	err := row.Scan(&sess.ID, &sess.CourseID, &sess.CreatorID, &sess.Code,
		&sess.WindowStart, &sess.WindowEnd, &oLat, &oLon, &radius, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	if oLat.Valid && oLon.Valid {
		sess.Origin = &geo.Point{Lat: oLat.Float64, Lon: oLon.Float64}
	}
	if radius.Valid {
		r := radius.Float64
		sess.RadiusM = &r
	}
	return sess, nil
}
