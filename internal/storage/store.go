package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"aura/internal/storage/zapadapter"
)

var (
	ErrDuplicateUsername = errors.New("username already taken")
	ErrAccountNotExist   = errors.New("account does not exist")
)

// Keys of the app_state relation. Exactly one row per key; timestamps are
// stored as RFC 3339 text so the relation stays a plain key/value table.
const (
	stateKeyChatMuteUntil      = "chat_mute_until"
	stateKeyGuestLoginDisabled = "guest_login_disabled"
)

// Store defines fields used in db interaction processes
type Store struct {
	logger *zap.SugaredLogger
	db     *pgxpool.Pool
}

// New sets provided zap.Logger via zapadapter to pgxpool.Pool and returns instance of Store struct
func New(ctx context.Context, logger *zap.SugaredLogger, cfg Config, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = zapadapter.NewLogger(logger.Desugar())

	for _, opt := range opts {
		opt.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	return &Store{
		logger: logger,
		db:     pool,
	}, nil
}

// Close releases the underlying connection pool
func (s *Store) Close() {
	s.db.Close()
}

// CreateAccount inserts a new account row.
func (s *Store) CreateAccount(ctx context.Context, username, passwordHash, avatar, role string) error {
	s.logger.Debugf("Creating account (%s) with role %s", username, role)

	sql := "insert into accounts (username, password_hash, avatar, role, status, created_at) values ($1, $2, $3, $4, $5, $6)"
	_, err := s.db.Exec(ctx, sql, username, passwordHash, avatar, role, StatusActive, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.UniqueViolation {
				return ErrDuplicateUsername
			}
		}
		return err
	}

	return nil
}

// EnsureAccount inserts an account row unless one with the same username
// already exists. Used to seed the default admin on startup.
func (s *Store) EnsureAccount(ctx context.Context, username, passwordHash, avatar, role string) error {
	sql := `insert into accounts (username, password_hash, avatar, role, status, created_at)
			values ($1, $2, $3, $4, $5, $6)
			on conflict (username) do nothing`
	_, err := s.db.Exec(ctx, sql, username, passwordHash, avatar, role, StatusActive, time.Now())
	return err
}

// AccountByUsername retrieves a single account row by its exact, case-sensitive username.
func (s *Store) AccountByUsername(ctx context.Context, username string) (Account, error) {
	var a Account
	sql := "select username, password_hash, avatar, role, status, created_at from accounts where username = $1"
	err := s.db.QueryRow(ctx, sql, username).
		Scan(&a.Username, &a.PasswordHash, &a.Avatar, &a.Role, &a.Status, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotExist
		}
		return Account{}, err
	}

	return a, nil
}

// Accounts returns all account rows ordered by username.
func (s *Store) Accounts(ctx context.Context) ([]Account, error) {
	sql := "select username, password_hash, avatar, role, status, created_at from accounts order by username"
	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		err = rows.Scan(&a.Username, &a.PasswordHash, &a.Avatar, &a.Role, &a.Status, &a.CreatedAt)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return accounts, nil
}

// SetAccountStatus updates the status column for one account.
// Subsequent AccountByUsername calls see the new value immediately.
func (s *Store) SetAccountStatus(ctx context.Context, username, status string) error {
	s.logger.Debugf("Setting status %q for account (%s)", status, username)

	tag, err := s.db.Exec(ctx, "update accounts set status = $2 where username = $1", username, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotExist
	}

	return nil
}

// SetPasswordHash replaces the stored credential hash for one account.
func (s *Store) SetPasswordHash(ctx context.Context, username, passwordHash string) error {
	tag, err := s.db.Exec(ctx, "update accounts set password_hash = $2 where username = $1", username, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotExist
	}

	return nil
}

// AppendMessage creates a new message row and returns it with the assigned id.
// Validation happens upstream; the append itself always succeeds.
func (s *Store) AppendMessage(ctx context.Context, author, avatar, body string, sentiment float64, now time.Time) (Message, error) {
	s.logger.Debugf("Appending message from (%s)", author)

	m := Message{
		Author:    author,
		Avatar:    avatar,
		Body:      body,
		Sentiment: sentiment,
		Reactions: map[string]int{},
		CreatedAt: now,
	}

	sql := "insert into messages (author, avatar, body, sentiment, created_at) values ($1, $2, $3, $4, $5) returning id"
	err := s.db.QueryRow(ctx, sql, author, avatar, body, sentiment, now).Scan(&m.ID)
	if err != nil {
		return Message{}, err
	}

	return m, nil
}

// Messages returns all message rows ordered by id ascending.
// Id order is authoritative for display, not created_at.
func (s *Store) Messages(ctx context.Context) ([]Message, error) {
	sql := "select id, author, avatar, body, sentiment, reactions, created_at from messages order by id asc"
	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var reactions pgtype.JSONB
		err = rows.Scan(&m.ID, &m.Author, &m.Avatar, &m.Body, &m.Sentiment, &reactions, &m.CreatedAt)
		if err != nil {
			return nil, err
		}

		m.Reactions = map[string]int{}
		if err := reactions.AssignTo(&m.Reactions); err != nil {
			return nil, err
		}

		messages = append(messages, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d messages", len(messages))

	return messages, nil
}

// DeleteMessagesBefore removes every message created before cutoff and
// reports how many rows were deleted. Safe to call redundantly and
// concurrently: deleting an already-deleted row is a no-op.
func (s *Store) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, "delete from messages where created_at < $1", cutoff)
	if err != nil {
		return 0, err
	}

	if n := tag.RowsAffected(); n > 0 {
		s.logger.Debugf("Swept %d expired messages", n)
		return n, nil
	}

	return 0, nil
}

// ClearMessages deletes every message row. Admin bulk action.
func (s *Store) ClearMessages(ctx context.Context) error {
	_, err := s.db.Exec(ctx, "delete from messages")
	return err
}

// LatestMessageID returns the highest assigned message id.
// The second return value is false on an empty store.
func (s *Store) LatestMessageID(ctx context.Context) (int64, bool, error) {
	var id pgtype.Int8
	err := s.db.QueryRow(ctx, "select max(id) from messages").Scan(&id)
	if err != nil {
		return 0, false, err
	}
	if id.Status != pgtype.Present {
		return 0, false, nil
	}

	return id.Int, true, nil
}

// AddReaction increments the counter for emoji on one message by 1, creating
// the entry if absent. The whole increment is a single atomic row update.
// Returns false when no message with that id exists.
func (s *Store) AddReaction(ctx context.Context, id int64, emoji string) (bool, error) {
	sql := `update messages
			   set reactions = jsonb_set(
					coalesce(reactions, '{}'::jsonb),
					array[$2],
					(coalesce(reactions->>$2, '0')::int + 1)::text::jsonb)
			 where id = $1`
	tag, err := s.db.Exec(ctx, sql, id, emoji)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() > 0, nil
}

// ModerationState reads all three moderation facets. Expired user mutes are
// returned as-is; interpreting deadlines is the caller's job.
func (s *Store) ModerationState(ctx context.Context) (ModerationState, error) {
	state := ModerationState{UserMutes: map[string]time.Time{}}

	rows, err := s.db.Query(ctx, "select key, value from app_state")
	if err != nil {
		return ModerationState{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return ModerationState{}, err
		}

		switch key {
		case stateKeyChatMuteUntil:
			until, err := time.Parse(time.RFC3339Nano, value)
			if err != nil {
				return ModerationState{}, err
			}
			state.ChatMuteUntil = until
		case stateKeyGuestLoginDisabled:
			state.GuestLoginDisabled = value == "true"
		}
	}
	if rows.Err() != nil {
		return ModerationState{}, rows.Err()
	}

	muteRows, err := s.db.Query(ctx, "select username, muted_until from user_mutes")
	if err != nil {
		return ModerationState{}, err
	}
	defer muteRows.Close()

	for muteRows.Next() {
		var username string
		var until time.Time
		if err := muteRows.Scan(&username, &until); err != nil {
			return ModerationState{}, err
		}
		state.UserMutes[username] = until
	}
	if muteRows.Err() != nil {
		return ModerationState{}, muteRows.Err()
	}

	return state, nil
}

// SetChatMuteUntil stores the chat-wide mute deadline. Lifting the mute is
// expressed as a timestamp in the past, never a null.
func (s *Store) SetChatMuteUntil(ctx context.Context, until time.Time) error {
	s.logger.Debugf("Setting chat mute deadline to %s", until)

	return s.setState(ctx, stateKeyChatMuteUntil, until.UTC().Format(time.RFC3339Nano))
}

// SetGuestLoginDisabled stores the guest-login toggle.
func (s *Store) SetGuestLoginDisabled(ctx context.Context, disabled bool) error {
	value := "false"
	if disabled {
		value = "true"
	}
	return s.setState(ctx, stateKeyGuestLoginDisabled, value)
}

func (s *Store) setState(ctx context.Context, key, value string) error {
	sql := `insert into app_state (key, value) values ($1, $2)
			on conflict (key) do update set value = excluded.value`
	_, err := s.db.Exec(ctx, sql, key, value)
	return err
}

// UpsertUserMute replaces any existing mute deadline for username.
func (s *Store) UpsertUserMute(ctx context.Context, username string, until time.Time) error {
	s.logger.Debugf("Muting user (%s) until %s", username, until)

	sql := `insert into user_mutes (username, muted_until) values ($1, $2)
			on conflict (username) do update set muted_until = excluded.muted_until`
	_, err := s.db.Exec(ctx, sql, username, until)
	return err
}

// DeleteUserMute removes the mute row for username, if any.
func (s *Store) DeleteUserMute(ctx context.Context, username string) error {
	_, err := s.db.Exec(ctx, "delete from user_mutes where username = $1", username)
	return err
}
