// Package chat implements the ephemeral chat and moderation engine: message
// retention with automatic expiry, multi-level moderation, per-session rate
// limiting and presence tracking, operated under a polling-refresh model
// where many clients re-read and re-write shared state every few seconds.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"aura/internal/storage"
)

const (
	defaultRetentionWindow = time.Hour
	defaultCooldown        = 3 * time.Second
	defaultMinPasswordLen  = 6
	defaultMessagesTTL     = 3 * time.Second
	defaultStateTTL        = 5 * time.Second

	cacheKeyMessages = "aura:messages"
	cacheKeyState    = "aura:moderation"
)

// Store is the persistence contract of the engine: the account, message and
// moderation relations. Every mutation behind it is a single atomic row
// operation; no method holds locks across calls.
type Store interface {
	CreateAccount(ctx context.Context, username, passwordHash, avatar, role string) error
	EnsureAccount(ctx context.Context, username, passwordHash, avatar, role string) error
	AccountByUsername(ctx context.Context, username string) (storage.Account, error)
	Accounts(ctx context.Context) ([]storage.Account, error)
	SetAccountStatus(ctx context.Context, username, status string) error
	SetPasswordHash(ctx context.Context, username, passwordHash string) error

	AppendMessage(ctx context.Context, author, avatar, body string, sentiment float64, now time.Time) (storage.Message, error)
	Messages(ctx context.Context) ([]storage.Message, error)
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ClearMessages(ctx context.Context) error
	LatestMessageID(ctx context.Context) (int64, bool, error)
	AddReaction(ctx context.Context, id int64, emoji string) (bool, error)

	ModerationState(ctx context.Context) (storage.ModerationState, error)
	SetChatMuteUntil(ctx context.Context, until time.Time) error
	SetGuestLoginDisabled(ctx context.Context, disabled bool) error
	UpsertUserMute(ctx context.Context, username string, until time.Time) error
	DeleteUserMute(ctx context.Context, username string) error
}

// Cache is an optional read-through cache in front of Messages and
// ModerationState. Staleness up to one poll interval is acceptable, so
// entries expire by TTL and are never invalidated on write.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// ErrCacheMiss is returned by Cache implementations for absent keys.
var ErrCacheMiss = errors.New("cache: miss")

// Engine combines the account store, moderation store, message store,
// retention sweeper and posting pipeline behind one API consumed by the
// HTTP boundary.
type Engine struct {
	logger   *zap.SugaredLogger
	store    Store
	cache    Cache
	sessions *Sessions

	analyze  func(string) float64
	sanitize func(string) string

	salt            string
	retentionWindow time.Duration
	cooldown        time.Duration
	minPasswordLen  int
	messagesTTL     time.Duration
	stateTTL        time.Duration

	adminUsername string
	adminPassword string
}

// Option alters the default Engine configuration.
type Option interface {
	apply(*Engine)
}

type optionFunc func(e *Engine)

func (f optionFunc) apply(e *Engine) { f(e) }

// WithSalt sets the application salt mixed into every credential hash.
func WithSalt(salt string) Option {
	return optionFunc(func(e *Engine) { e.salt = salt })
}

// WithCache puts a TTL cache in front of message and moderation reads.
func WithCache(c Cache) Option {
	return optionFunc(func(e *Engine) { e.cache = c })
}

// WithAnalyzer replaces the sentiment scorer. The function must be pure and
// return a polarity in [-1, 1]; a panicking analyzer degrades to 0.0.
func WithAnalyzer(f func(string) float64) Option {
	return optionFunc(func(e *Engine) { e.analyze = f })
}

// WithSanitizer replaces the markup sanitizer.
func WithSanitizer(f func(string) string) Option {
	return optionFunc(func(e *Engine) { e.sanitize = f })
}

// Cooldown sets the minimum gap between two posts from one session.
func Cooldown(d time.Duration) Option {
	return optionFunc(func(e *Engine) { e.cooldown = d })
}

// RetentionWindow sets the message expiry age.
func RetentionWindow(d time.Duration) Option {
	return optionFunc(func(e *Engine) { e.retentionWindow = d })
}

// WithDefaultAdmin configures the account seeded by EnsureAdmin and lets
// Login flag an admin still using the shipped password.
func WithDefaultAdmin(username, password string) Option {
	return optionFunc(func(e *Engine) {
		e.adminUsername = username
		e.adminPassword = password
	})
}

// NewEngine returns an Engine backed by the provided store.
func NewEngine(logger *zap.SugaredLogger, store Store, opts ...Option) *Engine {
	e := &Engine{
		logger:          logger,
		store:           store,
		sessions:        NewSessions(),
		sanitize:        Sanitize,
		retentionWindow: defaultRetentionWindow,
		cooldown:        defaultCooldown,
		minPasswordLen:  defaultMinPasswordLen,
		messagesTTL:     defaultMessagesTTL,
		stateTTL:        defaultStateTTL,
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

// Sessions exposes the session manager to the boundary layer for token
// resolution and logout.
func (e *Engine) Sessions() *Sessions {
	return e.sessions
}

// PostingAllowed is the moderation enforcement rule. Admins bypass the
// chat-wide mute; nobody bypasses an individual mute. Two independent
// checks, deliberately not an "admin short-circuits everything" branch.
func PostingAllowed(role, username string, now time.Time, state storage.ModerationState) bool {
	if state.ChatMuteUntil.After(now) && role != storage.RoleAdmin {
		return false
	}
	if until, ok := state.UserMutes[username]; ok && until.After(now) {
		return false
	}
	return true
}

// Refresh is one poll cycle: sweep expired messages, then snapshot the
// message log, the moderation state, the caller's posting eligibility and
// the online users.
type Refresh struct {
	Messages       []storage.Message       `json:"messages"`
	Moderation     storage.ModerationState `json:"moderation"`
	PostingAllowed bool                    `json:"posting_allowed"`
	Online         []Presence              `json:"online"`
}

func (e *Engine) Refresh(ctx context.Context, sess *Session, now time.Time) (Refresh, error) {
	if err := e.Sweep(ctx, now); err != nil {
		return Refresh{}, err
	}

	messages, err := e.messages(ctx)
	if err != nil {
		return Refresh{}, err
	}

	state, err := e.moderationState(ctx)
	if err != nil {
		return Refresh{}, err
	}

	sess.touch(now)

	allowed := sess.ReadyToPost(now, e.cooldown) &&
		PostingAllowed(sess.Role, sess.Username, now, state)

	return Refresh{
		Messages:       messages,
		Moderation:     state,
		PostingAllowed: allowed,
		Online:         e.sessions.Online(now),
	}, nil
}

// Sweep deletes messages older than the retention window. Runs at the top of
// every poll cycle and is idempotent; this is the only mechanism bounding
// storage growth.
func (e *Engine) Sweep(ctx context.Context, now time.Time) error {
	_, err := e.store.DeleteMessagesBefore(ctx, now.Add(-e.retentionWindow))
	return err
}

// Post runs the posting pipeline: rate limit, moderation, sanitize, score,
// append. The first four steps are pure checks; a rejected attempt leaves no
// stored side effect and does not consume the cooldown.
func (e *Engine) Post(ctx context.Context, sess *Session, body string, now time.Time) (storage.Message, error) {
	if !sess.ReadyToPost(now, e.cooldown) {
		return storage.Message{}, ErrRateLimited
	}

	state, err := e.moderationState(ctx)
	if err != nil {
		return storage.Message{}, err
	}
	if state.ChatMuteUntil.After(now) && sess.Role != storage.RoleAdmin {
		return storage.Message{}, &MutedError{Scope: MuteScopeChat, Until: state.ChatMuteUntil}
	}
	if until, ok := state.UserMutes[sess.Username]; ok && until.After(now) {
		return storage.Message{}, &MutedError{Scope: MuteScopeUser, Until: until}
	}

	clean := e.sanitize(body)
	score := e.score(clean)

	m, err := e.store.AppendMessage(ctx, sess.Username, sess.Avatar, clean, score, now)
	if err != nil {
		return storage.Message{}, err
	}

	sess.RecordPost(now)

	return m, nil
}

// AddReaction increments the emoji counter on a message. Reacting to a
// nonexistent or already-swept id is a silent no-op; counters only grow and
// repeated reactions from one user are not deduplicated.
func (e *Engine) AddReaction(ctx context.Context, id int64, emoji string) error {
	_, err := e.store.AddReaction(ctx, id, emoji)
	return err
}

// LatestMessageID returns the id of the newest message, with ok == false on
// an empty store.
func (e *Engine) LatestMessageID(ctx context.Context) (int64, bool, error) {
	return e.store.LatestMessageID(ctx)
}

// score shields the pipeline from a misbehaving analyzer: panics and
// out-of-range values degrade to a neutral 0.0 instead of blocking the post.
func (e *Engine) score(body string) (score float64) {
	if e.analyze == nil {
		return 0
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Warnf("sentiment analyzer panicked: %v", r)
			score = 0
		}
	}()

	score = e.analyze(body)
	if score < -1 || score > 1 {
		return 0
	}

	return score
}

func (e *Engine) messages(ctx context.Context) ([]storage.Message, error) {
	if e.cache != nil {
		if raw, err := e.cache.Get(ctx, cacheKeyMessages); err == nil {
			var messages []storage.Message
			if err := json.Unmarshal([]byte(raw), &messages); err == nil {
				return messages, nil
			}
		} else if !errors.Is(err, ErrCacheMiss) {
			e.logger.Debugf("message cache read failed: %v", err)
		}
	}

	messages, err := e.store.Messages(ctx)
	if err != nil {
		return nil, err
	}

	e.cacheSet(ctx, cacheKeyMessages, messages, e.messagesTTL)

	return messages, nil
}

func (e *Engine) moderationState(ctx context.Context) (storage.ModerationState, error) {
	if e.cache != nil {
		if raw, err := e.cache.Get(ctx, cacheKeyState); err == nil {
			var state storage.ModerationState
			if err := json.Unmarshal([]byte(raw), &state); err == nil {
				return state, nil
			}
		} else if !errors.Is(err, ErrCacheMiss) {
			e.logger.Debugf("state cache read failed: %v", err)
		}
	}

	state, err := e.store.ModerationState(ctx)
	if err != nil {
		return storage.ModerationState{}, err
	}

	e.cacheSet(ctx, cacheKeyState, state, e.stateTTL)

	return state, nil
}

func (e *Engine) cacheSet(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	if e.cache == nil {
		return
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return
	}

	if err := e.cache.Set(ctx, key, string(raw), ttl); err != nil {
		e.logger.Debugf("cache write for %s failed: %v", key, err)
	}
}
