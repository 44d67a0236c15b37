package chat

import (
	"sync"
	"time"

	"github.com/rs/xid"

	"aura/internal/storage"
)

// presenceWindow bounds how long after its last poll a session still counts
// as online. Clients poll every few seconds, so a minute is generous.
const presenceWindow = time.Minute

// Session is the per-connection state supplied by the boundary layer on every
// engine call. The post cooldown lives here and only here: it is never
// persisted and never shared across sessions, so two tabs of the same user
// rate-limit independently.
type Session struct {
	Token    string
	Username string
	Role     string
	Avatar   string

	mu         sync.Mutex
	lastPostAt time.Time
	lastSeen   time.Time
}

// ReadyToPost reports whether the session cooldown has elapsed at now.
func (s *Session) ReadyToPost(now time.Time, cooldown time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastPostAt) >= cooldown
}

// RecordPost stamps a successful append. Called only after the message is
// stored, so rejected attempts never consume the cooldown.
func (s *Session) RecordPost(now time.Time) {
	s.mu.Lock()
	s.lastPostAt = now
	s.mu.Unlock()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) seenAfter(cutoff time.Time) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen, s.lastSeen.After(cutoff)
}

// Presence is one entry of the derived "online users" view.
type Presence struct {
	Username string    `json:"username"`
	Avatar   string    `json:"avatar"`
	Role     string    `json:"role"`
	LastSeen time.Time `json:"last_seen"`
}

// Sessions tracks every live session by token. Guests exist only here: an
// ephemeral identity with its own expiry, never written to the accounts
// relation.
type Sessions struct {
	mu      sync.RWMutex
	byToken map[string]*Session
}

func NewSessions() *Sessions {
	return &Sessions{byToken: map[string]*Session{}}
}

// Create registers a new session and returns it with a fresh token.
func (ss *Sessions) Create(username, role, avatar string, now time.Time) *Session {
	s := &Session{
		Token:    xid.New().String(),
		Username: username,
		Role:     role,
		Avatar:   avatar,
		lastSeen: now,
	}

	ss.mu.Lock()
	ss.byToken[s.Token] = s
	ss.mu.Unlock()

	return s
}

func (ss *Sessions) Get(token string) (*Session, bool) {
	ss.mu.RLock()
	s, ok := ss.byToken[token]
	ss.mu.RUnlock()
	return s, ok
}

func (ss *Sessions) Delete(token string) {
	ss.mu.Lock()
	delete(ss.byToken, token)
	ss.mu.Unlock()
}

// Online returns every session seen within the presence window.
func (ss *Sessions) Online(now time.Time) []Presence {
	return ss.collect(now, func(*Session) bool { return true })
}

// ActiveGuests returns the currently present guest identities. This feeds the
// admin user list instead of string-matching display names in message history.
func (ss *Sessions) ActiveGuests(now time.Time) []Presence {
	return ss.collect(now, func(s *Session) bool { return s.Role == storage.RoleGuest })
}

func (ss *Sessions) collect(now time.Time, keep func(*Session) bool) []Presence {
	cutoff := now.Add(-presenceWindow)

	ss.mu.RLock()
	defer ss.mu.RUnlock()

	var out []Presence
	seen := map[string]bool{}
	for _, s := range ss.byToken {
		if !keep(s) || seen[s.Username] {
			continue
		}
		lastSeen, online := s.seenAfter(cutoff)
		if !online {
			continue
		}
		seen[s.Username] = true
		out = append(out, Presence{
			Username: s.Username,
			Avatar:   s.Avatar,
			Role:     s.Role,
			LastSeen: lastSeen,
		})
	}

	return out
}
