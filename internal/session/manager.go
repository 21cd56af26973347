package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"campusattend/internal/geo"
)

// maxCodeAttempts bounds the collision-retry loop in Open.
const maxCodeAttempts = 5

// Manager owns session creation and lookup. It is the only writer of
// session records.
type Manager struct {
	store   Store
	codeLen int
}

// NewManager creates a manager over the given store.
func NewManager(store Store, codeLen int) *Manager {
	if codeLen < 6 {
		codeLen = 6
	}
	return &Manager{store: store, codeLen: codeLen}
}

// Open creates a new attendance session. The session code is drawn randomly
// and retried on collision against a still-active session; after
// maxCodeAttempts losing draws it gives up with ErrCodeSpaceExhausted.
func (m *Manager) Open(ctx context.Context, courseID, creatorID string, start, end time.Time, origin *geo.Point, radiusM *float64, now time.Time) (Session, error) {
	if !end.After(start) {
		return Session{}, ErrInvalidWindow
	}

	sess := Session{
		ID:          uuid.NewString(),
		CourseID:    courseID,
		CreatorID:   creatorID,
		WindowStart: start.UTC(),
		WindowEnd:   end.UTC(),
		Origin:      origin,
		RadiusM:     radiusM,
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := NewCode(m.codeLen)
		if err != nil {
			return Session{}, err
		}
		sess.Code = code

		stored, err := m.store.Insert(ctx, sess, now)
		if err != nil {
			if errors.Is(err, ErrCodeCollision) {
				continue
			}
			return Session{}, err
		}
		return stored, nil
	}
	return Session{}, ErrCodeSpaceExhausted
}

// Resolve looks up the session for a code. Active sessions win over
// concluded ones carrying a recycled code.
func (m *Manager) Resolve(ctx context.Context, code string, now time.Time) (Session, error) {
	return m.store.FindByCode(ctx, code, now)
}
