package chat

import (
	"context"
	"time"

	"aura/internal/storage"
)

// Admin operations. Role authorization happens at the boundary layer before
// any of these are invoked; the engine only guards invariants it owns.

// MuteChat disables posting chat-wide for non-admins until now + d.
func (e *Engine) MuteChat(ctx context.Context, d time.Duration, now time.Time) error {
	return e.store.SetChatMuteUntil(ctx, now.Add(d))
}

// UnmuteChat lifts the chat-wide mute by writing a deadline in the past.
// Idempotent: unmuting an unmuted chat changes nothing observable.
func (e *Engine) UnmuteChat(ctx context.Context, now time.Time) error {
	return e.store.SetChatMuteUntil(ctx, now.Add(-time.Minute))
}

// MuteUser replaces any existing mute deadline for username with now + d.
func (e *Engine) MuteUser(ctx context.Context, username string, d time.Duration, now time.Time) error {
	return e.store.UpsertUserMute(ctx, username, now.Add(d))
}

// UnmuteUser removes the mute row for username.
func (e *Engine) UnmuteUser(ctx context.Context, username string) error {
	return e.store.DeleteUserMute(ctx, username)
}

// SetGuestLogin toggles whether new guest sessions may be opened.
func (e *Engine) SetGuestLogin(ctx context.Context, enabled bool) error {
	return e.store.SetGuestLoginDisabled(ctx, !enabled)
}

// SetStatus bans or unbans an account. An admin can only change accounts
// other than their own.
func (e *Engine) SetStatus(ctx context.Context, caller, username, status string) error {
	if caller == username {
		return ErrSelfStatusChange
	}

	e.logger.Infof("Admin (%s) set status of (%s) to %s", caller, username, status)

	return e.store.SetAccountStatus(ctx, username, status)
}

// ClearMessages is the moderation bulk delete of the whole message log.
func (e *Engine) ClearMessages(ctx context.Context) error {
	e.logger.Info("Clearing all messages")

	return e.store.ClearMessages(ctx)
}

// User is one row of the admin user list.
type User struct {
	Username   string     `json:"username"`
	Avatar     string     `json:"avatar"`
	Role       string     `json:"role"`
	Status     string     `json:"status"`
	MutedUntil *time.Time `json:"muted_until,omitempty"`
}

// Users lists every registered account except the caller, plus the currently
// active guest sessions, each annotated with its mute deadline when one is in
// effect.
func (e *Engine) Users(ctx context.Context, caller string, now time.Time) ([]User, error) {
	accounts, err := e.store.Accounts(ctx)
	if err != nil {
		return nil, err
	}

	state, err := e.moderationState(ctx)
	if err != nil {
		return nil, err
	}

	mutedUntil := func(username string) *time.Time {
		if until, ok := state.UserMutes[username]; ok && until.After(now) {
			u := until
			return &u
		}
		return nil
	}

	var users []User
	for _, a := range accounts {
		if a.Username == caller {
			continue
		}
		users = append(users, User{
			Username:   a.Username,
			Avatar:     a.Avatar,
			Role:       a.Role,
			Status:     a.Status,
			MutedUntil: mutedUntil(a.Username),
		})
	}

	for _, g := range e.sessions.ActiveGuests(now) {
		users = append(users, User{
			Username:   g.Username,
			Avatar:     g.Avatar,
			Role:       g.Role,
			Status:     storage.StatusActive,
			MutedUntil: mutedUntil(g.Username),
		})
	}

	return users, nil
}
