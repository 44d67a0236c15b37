package chat

import (
	"errors"
	"fmt"
	"time"
)

// Expected, modeled outcomes of normal operation. Only storage-layer
// failures are true faults; everything below is routine and recoverable.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrBanned             = errors.New("account is banned")
	ErrRateLimited        = errors.New("posting too fast")
	ErrGuestLoginDisabled = errors.New("guest login is disabled")
	ErrInvalidUsername    = errors.New("username must not be empty")
	ErrPasswordTooShort   = errors.New("password is too short")
	ErrUnknownAvatar      = errors.New("unknown avatar")
	ErrSelfStatusChange   = errors.New("admins cannot change their own status")
)

// MuteScope distinguishes the chat-wide mute from a per-user one.
type MuteScope string

const (
	MuteScopeChat MuteScope = "chat"
	MuteScopeUser MuteScope = "user"
)

// MutedError reports a rejected post attempt together with the deadline the
// caller should display and re-check on the next poll.
type MutedError struct {
	Scope MuteScope
	Until time.Time
}

func (e *MutedError) Error() string {
	if e.Scope == MuteScopeChat {
		return fmt.Sprintf("chat is muted until %s", e.Until.Format(time.RFC3339))
	}
	return fmt.Sprintf("you are muted until %s", e.Until.Format(time.RFC3339))
}
