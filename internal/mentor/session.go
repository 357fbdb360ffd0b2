package mentor

import (
	"time"

	"github.com/google/uuid"

	"github.com/HendryAvila/vibe-check/internal/cache"
)

// Session tracks a multi-turn mentor conversation.
type Session struct {
	ID             string    `json:"session_id"`
	Turn           int       `json:"turn"`
	PreviousIntent string    `json:"previous_intent,omitempty"`
	StartedAt      time.Time `json:"started_at"`
}

type sessionStore struct {
	sessions *cache.LRU[Session]
	now      func() time.Time
}

func newSessionStore(maxSize int, ttl time.Duration, now func() time.Time) *sessionStore {
	return &sessionStore{
		sessions: cache.NewLRU[Session](maxSize, ttl, cache.WithClock(now)),
		now:      now,
	}
}

// advance records a new turn for id, creating the session when id is empty
// or unknown, and returns the updated session.
func (s *sessionStore) advance(id string, intent Intent) Session {
	sess, ok := s.sessions.Get(id)
	if id == "" || !ok {
		if id == "" {
			id = uuid.NewString()
		}
		sess = Session{ID: id, StartedAt: s.now()}
	}
	sess.Turn++
	prev := sess.PreviousIntent
	sess.PreviousIntent = intent.String()
	s.sessions.Put(id, sess)

	sess.PreviousIntent = prev
	return sess
}
