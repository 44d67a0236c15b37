package chat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"aura/internal/storage"
)

const guestSuffix = " (Guest)"

// hashPassword applies the salted hash used for every stored credential.
func (e *Engine) hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password + e.salt))
	return hex.EncodeToString(sum[:])
}

// cleanName validates a display name. A name the sanitizer would rewrite
// carries markup and is rejected outright, never silently altered.
func (e *Engine) cleanName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || e.sanitize(name) != name {
		return "", ErrInvalidUsername
	}
	return name, nil
}

// Register creates a new account. Username comparison is a case-sensitive
// exact match enforced by the accounts relation.
func (e *Engine) Register(ctx context.Context, username, password, avatarName string) error {
	username, err := e.cleanName(username)
	if err != nil {
		return err
	}
	if len(password) < e.minPasswordLen {
		return ErrPasswordTooShort
	}

	glyph, ok := avatarGlyph(avatarName)
	if !ok {
		return ErrUnknownAvatar
	}

	return e.store.CreateAccount(ctx, username, e.hashPassword(password), glyph, storage.RoleUser)
}

// Authenticate verifies credentials. A correct password on a banned account
// still fails with ErrBanned so the caller can refuse session creation.
func (e *Engine) Authenticate(ctx context.Context, username, password string) (storage.Account, error) {
	account, err := e.store.AccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotExist) {
			return storage.Account{}, ErrInvalidCredentials
		}
		return storage.Account{}, err
	}

	if account.PasswordHash != e.hashPassword(password) {
		return storage.Account{}, ErrInvalidCredentials
	}

	if account.Status == storage.StatusBanned {
		return storage.Account{}, ErrBanned
	}

	return account, nil
}

// Login authenticates and opens a session. The second return value flags an
// admin still on the shipped default password, so the UI can nag.
func (e *Engine) Login(ctx context.Context, username, password string, now time.Time) (*Session, bool, error) {
	account, err := e.Authenticate(ctx, username, password)
	if err != nil {
		return nil, false, err
	}

	defaultPass := account.Role == storage.RoleAdmin &&
		e.adminPassword != "" &&
		account.PasswordHash == e.hashPassword(e.adminPassword)

	sess := e.sessions.Create(account.Username, account.Role, account.Avatar, now)

	e.logger.Infof("User (%s) logged in", account.Username)

	return sess, defaultPass, nil
}

// GuestJoin opens an ephemeral guest session. Guests are never persisted as
// accounts; the display name only has to avoid colliding with a registered
// username.
func (e *Engine) GuestJoin(ctx context.Context, displayName, avatarName string, now time.Time) (*Session, error) {
	state, err := e.moderationState(ctx)
	if err != nil {
		return nil, err
	}
	if state.GuestLoginDisabled {
		return nil, ErrGuestLoginDisabled
	}

	displayName, err = e.cleanName(displayName)
	if err != nil {
		return nil, err
	}

	glyph, ok := avatarGlyph(avatarName)
	if !ok {
		return nil, ErrUnknownAvatar
	}

	_, err = e.store.AccountByUsername(ctx, displayName)
	if err == nil {
		return nil, storage.ErrDuplicateUsername
	}
	if !errors.Is(err, storage.ErrAccountNotExist) {
		return nil, err
	}

	sess := e.sessions.Create(displayName+guestSuffix, storage.RoleGuest, glyph, now)

	e.logger.Infof("Guest (%s) joined", sess.Username)

	return sess, nil
}

// ChangePassword is the self-service flow: the current password must verify
// before the new one is stored.
func (e *Engine) ChangePassword(ctx context.Context, username, currentPassword, newPassword string) error {
	if len(newPassword) < e.minPasswordLen {
		return ErrPasswordTooShort
	}

	account, err := e.store.AccountByUsername(ctx, username)
	if err != nil {
		return err
	}
	if account.PasswordHash != e.hashPassword(currentPassword) {
		return ErrInvalidCredentials
	}

	return e.store.SetPasswordHash(ctx, username, e.hashPassword(newPassword))
}

// ResetPassword is the admin flow: no current-password verification.
func (e *Engine) ResetPassword(ctx context.Context, username, newPassword string) error {
	if len(newPassword) < e.minPasswordLen {
		return ErrPasswordTooShort
	}

	return e.store.SetPasswordHash(ctx, username, e.hashPassword(newPassword))
}

// EnsureAdmin seeds the configured default admin account on first boot.
func (e *Engine) EnsureAdmin(ctx context.Context) error {
	if e.adminUsername == "" {
		return nil
	}

	return e.store.EnsureAccount(ctx, e.adminUsername, e.hashPassword(e.adminPassword), adminAvatar, storage.RoleAdmin)
}
