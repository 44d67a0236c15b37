// Package chattest provides an in-memory chat.Store used by engine and
// server tests, so unit tests exercise the full pipeline without Postgres.
package chattest

import (
	"context"
	"sync"
	"time"

	"aura/internal/storage"
)

// Store keeps every relation in process memory behind one mutex. When Err is
// set, every operation fails with it, simulating an unavailable storage
// backend.
type Store struct {
	mu       sync.Mutex
	Err      error
	accounts map[string]storage.Account
	messages []storage.Message
	nextID   int64
	state    storage.ModerationState
}

func New() *Store {
	return &Store{
		accounts: map[string]storage.Account{},
		nextID:   1,
		state: storage.ModerationState{
			ChatMuteUntil: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
			UserMutes:     map[string]time.Time{},
		},
	}
}

func (s *Store) CreateAccount(_ context.Context, username, passwordHash, avatar, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	if _, ok := s.accounts[username]; ok {
		return storage.ErrDuplicateUsername
	}
	s.accounts[username] = storage.Account{
		Username:     username,
		PasswordHash: passwordHash,
		Avatar:       avatar,
		Role:         role,
		Status:       storage.StatusActive,
		CreatedAt:    time.Now(),
	}

	return nil
}

func (s *Store) EnsureAccount(_ context.Context, username, passwordHash, avatar, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	if _, ok := s.accounts[username]; ok {
		return nil
	}
	s.accounts[username] = storage.Account{
		Username:     username,
		PasswordHash: passwordHash,
		Avatar:       avatar,
		Role:         role,
		Status:       storage.StatusActive,
		CreatedAt:    time.Now(),
	}

	return nil
}

func (s *Store) AccountByUsername(_ context.Context, username string) (storage.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return storage.Account{}, s.Err
	}

	a, ok := s.accounts[username]
	if !ok {
		return storage.Account{}, storage.ErrAccountNotExist
	}

	return a, nil
}

func (s *Store) Accounts(_ context.Context) ([]storage.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	out := make([]storage.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}

	return out, nil
}

func (s *Store) SetAccountStatus(_ context.Context, username, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	a, ok := s.accounts[username]
	if !ok {
		return storage.ErrAccountNotExist
	}
	a.Status = status
	s.accounts[username] = a

	return nil
}

func (s *Store) SetPasswordHash(_ context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	a, ok := s.accounts[username]
	if !ok {
		return storage.ErrAccountNotExist
	}
	a.PasswordHash = passwordHash
	s.accounts[username] = a

	return nil
}

func (s *Store) AppendMessage(_ context.Context, author, avatar, body string, sentiment float64, now time.Time) (storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return storage.Message{}, s.Err
	}

	m := storage.Message{
		ID:        s.nextID,
		Author:    author,
		Avatar:    avatar,
		Body:      body,
		Sentiment: sentiment,
		Reactions: map[string]int{},
		CreatedAt: now,
	}
	s.nextID++
	s.messages = append(s.messages, m)

	return m, nil
}

func (s *Store) Messages(_ context.Context) ([]storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	out := make([]storage.Message, len(s.messages))
	copy(out, s.messages)

	return out, nil
}

func (s *Store) DeleteMessagesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}

	kept := s.messages[:0]
	var deleted int64
	for _, m := range s.messages {
		if m.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept

	return deleted, nil
}

func (s *Store) ClearMessages(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	s.messages = nil

	return nil
}

func (s *Store) LatestMessageID(_ context.Context) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, false, s.Err
	}

	if len(s.messages) == 0 {
		return 0, false, nil
	}

	return s.messages[len(s.messages)-1].ID, true, nil
}

func (s *Store) AddReaction(_ context.Context, id int64, emoji string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}

	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Reactions[emoji]++
			return true, nil
		}
	}

	return false, nil
}

func (s *Store) ModerationState(_ context.Context) (storage.ModerationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return storage.ModerationState{}, s.Err
	}

	state := storage.ModerationState{
		ChatMuteUntil:      s.state.ChatMuteUntil,
		GuestLoginDisabled: s.state.GuestLoginDisabled,
		UserMutes:          map[string]time.Time{},
	}
	for u, until := range s.state.UserMutes {
		state.UserMutes[u] = until
	}

	return state, nil
}

func (s *Store) SetChatMuteUntil(_ context.Context, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	s.state.ChatMuteUntil = until

	return nil
}

func (s *Store) SetGuestLoginDisabled(_ context.Context, disabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	s.state.GuestLoginDisabled = disabled

	return nil
}

func (s *Store) UpsertUserMute(_ context.Context, username string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	s.state.UserMutes[username] = until

	return nil
}

func (s *Store) DeleteUserMute(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	delete(s.state.UserMutes, username)

	return nil
}
