package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aura/internal/chat/chattest"
	"aura/internal/storage"
)

var _ Store = (*chattest.Store)(nil)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func bootstrap(t *testing.T, opts ...Option) (*Engine, *chattest.Store) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	store := chattest.New()
	opts = append([]Option{WithSalt("test-salt"), WithDefaultAdmin("admin", "aura_admin_123")}, opts...)
	e := NewEngine(logger.Sugar(), store, opts...)
	require.NoError(t, e.EnsureAdmin(context.Background()))

	return e, store
}

func login(t *testing.T, e *Engine, username, password string) *Session {
	sess, _, err := e.Login(context.Background(), username, password, t0)
	require.NoError(t, err)
	return sess
}

func registerAndLogin(t *testing.T, e *Engine, username string) *Session {
	require.NoError(t, e.Register(context.Background(), username, "password1", "Wave"))
	return login(t, e, username, "password1")
}

func TestRegisterDuplicate(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)

	require.NoError(t, e.Register(context.Background(), "bob", "password1", "Wave"))
	err := e.Register(context.Background(), "bob", "password2", "Star")
	require.Equal(t, storage.ErrDuplicateUsername, err)
}

func TestRegisterShortPassword(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)

	err := e.Register(context.Background(), "bob", "12345", "Wave")
	require.Equal(t, ErrPasswordTooShort, err)
}

func TestRegisterRejectsMarkupUsername(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)

	for _, name := range []string{"a<b", "<b>bob</b>", "bob<script>"} {
		err := e.Register(context.Background(), name, "password1", "Wave")
		require.Equal(t, ErrInvalidUsername, err, name)
	}

	// names the sanitizer leaves alone still register
	require.NoError(t, e.Register(context.Background(), "a&b", "password1", "Wave"))
}

func TestGuestJoinRejectsMarkupName(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)

	_, err := e.GuestJoin(context.Background(), "a<b", "Wave", t0)
	require.Equal(t, ErrInvalidUsername, err)
}

func TestRegisterUnknownAvatar(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)

	err := e.Register(context.Background(), "bob", "password1", "Dragon")
	require.Equal(t, ErrUnknownAvatar, err)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)

	require.NoError(t, e.Register(context.Background(), "bob", "password1", "Wave"))

	_, err := e.Authenticate(context.Background(), "bob", "nope")
	require.Equal(t, ErrInvalidCredentials, err)
	_, err = e.Authenticate(context.Background(), "nobody", "password1")
	require.Equal(t, ErrInvalidCredentials, err)
}

func TestAuthenticateBanned(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)

	require.NoError(t, e.Register(context.Background(), "bob", "password1", "Wave"))
	require.NoError(t, e.SetStatus(context.Background(), "admin", "bob", storage.StatusBanned))

	_, err := e.Authenticate(context.Background(), "bob", "password1")
	require.Equal(t, ErrBanned, err)

	// unban takes effect immediately
	require.NoError(t, e.SetStatus(context.Background(), "admin", "bob", storage.StatusActive))
	_, err = e.Authenticate(context.Background(), "bob", "password1")
	require.NoError(t, err)
}

func TestLoginFlagsDefaultAdminPassword(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)

	_, usingDefault, err := e.Login(context.Background(), "admin", "aura_admin_123", t0)
	require.NoError(t, err)
	require.True(t, usingDefault)

	require.NoError(t, e.ResetPassword(context.Background(), "admin", "something-else"))
	_, usingDefault, err = e.Login(context.Background(), "admin", "something-else", t0)
	require.NoError(t, err)
	require.False(t, usingDefault)
}

func TestSetStatusSelf(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)

	err := e.SetStatus(context.Background(), "admin", "admin", storage.StatusBanned)
	require.Equal(t, ErrSelfStatusChange, err)
}

func TestChangePassword(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)

	require.NoError(t, e.Register(context.Background(), "bob", "password1", "Wave"))

	err := e.ChangePassword(context.Background(), "bob", "wrong", "password2")
	require.Equal(t, ErrInvalidCredentials, err)

	require.NoError(t, e.ChangePassword(context.Background(), "bob", "password1", "password2"))
	_, err = e.Authenticate(context.Background(), "bob", "password2")
	require.NoError(t, err)

	err = e.ChangePassword(context.Background(), "bob", "password2", "short")
	require.Equal(t, ErrPasswordTooShort, err)
}

func TestGuestJoinCollision(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)

	require.NoError(t, e.Register(context.Background(), "Sam", "password1", "Wave"))

	_, err := e.GuestJoin(context.Background(), "Sam", "Star", t0)
	require.Equal(t, storage.ErrDuplicateUsername, err)

	sess, err := e.GuestJoin(context.Background(), "Sam2", "Star", t0)
	require.NoError(t, err)
	require.Equal(t, "Sam2 (Guest)", sess.Username)
	require.Equal(t, storage.RoleGuest, sess.Role)
}

func TestGuestJoinDisabled(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)

	require.NoError(t, e.SetGuestLogin(context.Background(), false))
	_, err := e.GuestJoin(context.Background(), "Sam", "Star", t0)
	require.Equal(t, ErrGuestLoginDisabled, err)

	require.NoError(t, e.SetGuestLogin(context.Background(), true))
	_, err = e.GuestJoin(context.Background(), "Sam", "Star", t0)
	require.NoError(t, err)
}

func TestPostingAllowedTable(t *testing.T) {
	t.Parallel()

	now := t0
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	cases := []struct {
		name       string
		role       string
		globalMute time.Time
		userMute   time.Time
		allowed    bool
	}{
		{"user clear", storage.RoleUser, past, past, true},
		{"user global mute", storage.RoleUser, future, past, false},
		{"user individual mute", storage.RoleUser, past, future, false},
		{"user both mutes", storage.RoleUser, future, future, false},
		{"guest global mute", storage.RoleGuest, future, past, false},
		{"admin clear", storage.RoleAdmin, past, past, true},
		{"admin bypasses global mute", storage.RoleAdmin, future, past, true},
		{"admin bound by individual mute", storage.RoleAdmin, past, future, false},
		{"admin both mutes", storage.RoleAdmin, future, future, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			state := storage.ModerationState{
				ChatMuteUntil: tc.globalMute,
				UserMutes:     map[string]time.Time{"bob": tc.userMute},
			}
			require.Equal(t, tc.allowed, PostingAllowed(tc.role, "bob", now, state))
		})
	}
}

func TestPostRateLimit(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)
	sess := registerAndLogin(t, e, "bob")

	_, err := e.Post(context.Background(), sess, "first", t0)
	require.NoError(t, err)

	_, err = e.Post(context.Background(), sess, "too fast", t0.Add(time.Second))
	require.Equal(t, ErrRateLimited, err)

	_, err = e.Post(context.Background(), sess, "patient", t0.Add(3*time.Second))
	require.NoError(t, err)
}

func TestRateLimitIsPerSession(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)

	require.NoError(t, e.Register(context.Background(), "bob", "password1", "Wave"))
	tab1 := login(t, e, "bob", "password1")
	tab2 := login(t, e, "bob", "password1")

	_, err := e.Post(context.Background(), tab1, "from tab 1", t0)
	require.NoError(t, err)

	// second tab has its own cooldown; both posts land
	_, err = e.Post(context.Background(), tab2, "from tab 2", t0.Add(time.Second))
	require.NoError(t, err)
}

func TestRejectedPostLeavesNoSideEffects(t *testing.T) {
	t.Parallel()
	e, store := bootstrap(t)
	sess := registerAndLogin(t, e, "bob")

	require.NoError(t, e.MuteUser(context.Background(), "bob", 5*time.Minute, t0))

	_, err := e.Post(context.Background(), sess, "hello", t0.Add(time.Minute))
	var muted *MutedError
	require.True(t, errors.As(err, &muted))

	messages, err := store.Messages(context.Background())
	require.NoError(t, err)
	require.Empty(t, messages)

	// the rejected attempt did not consume the cooldown
	require.NoError(t, e.UnmuteUser(context.Background(), "bob"))
	_, err = e.Post(context.Background(), sess, "hello", t0.Add(time.Minute+time.Second))
	require.NoError(t, err)
}

func TestMutedUserScenario(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)
	sess := registerAndLogin(t, e, "bob")

	require.NoError(t, e.MuteUser(context.Background(), "bob", 5*time.Minute, t0))

	_, err := e.Post(context.Background(), sess, "hello", t0.Add(60*time.Second))
	var muted *MutedError
	require.True(t, errors.As(err, &muted))
	require.Equal(t, MuteScopeUser, muted.Scope)
	require.True(t, muted.Until.Equal(t0.Add(5*time.Minute)))

	m, err := e.Post(context.Background(), sess, "hello", t0.Add(301*time.Second))
	require.NoError(t, err)
	require.Equal(t, "bob", m.Author)

	refresh, err := e.Refresh(context.Background(), sess, t0.Add(302*time.Second))
	require.NoError(t, err)
	require.Len(t, refresh.Messages, 1)
	require.Equal(t, "bob", refresh.Messages[0].Author)
}

func TestGlobalMuteBlocksUsersNotAdmins(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)
	bob := registerAndLogin(t, e, "bob")
	admin := login(t, e, "admin", "aura_admin_123")

	require.NoError(t, e.MuteChat(context.Background(), 15*time.Minute, t0))

	_, err := e.Post(context.Background(), bob, "hello", t0.Add(time.Minute))
	var muted *MutedError
	require.True(t, errors.As(err, &muted))
	require.Equal(t, MuteScopeChat, muted.Scope)
	require.True(t, muted.Until.Equal(t0.Add(15*time.Minute)))

	_, err = e.Post(context.Background(), admin, "admins still talk", t0.Add(time.Minute))
	require.NoError(t, err)
}

func TestAdminBoundByIndividualMute(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)
	admin := login(t, e, "admin", "aura_admin_123")

	require.NoError(t, e.MuteUser(context.Background(), "admin", 5*time.Minute, t0))

	_, err := e.Post(context.Background(), admin, "hello", t0.Add(time.Minute))
	var muted *MutedError
	require.True(t, errors.As(err, &muted))
	require.Equal(t, MuteScopeUser, muted.Scope)
}

func TestUnmuteChatIdempotent(t *testing.T) {
	t.Parallel()
	e, store := bootstrap(t)

	require.NoError(t, e.UnmuteChat(context.Background(), t0))
	state, err := store.ModerationState(context.Background())
	require.NoError(t, err)
	first := state.ChatMuteUntil
	require.True(t, first.Before(t0))

	require.NoError(t, e.UnmuteChat(context.Background(), t0))
	state, err = store.ModerationState(context.Background())
	require.NoError(t, err)
	require.True(t, state.ChatMuteUntil.Equal(first))
}

func TestMuteUserUpsertReplaces(t *testing.T) {
	t.Parallel()
	e, store := bootstrap(t)

	require.NoError(t, e.MuteUser(context.Background(), "bob", 15*time.Minute, t0))
	require.NoError(t, e.MuteUser(context.Background(), "bob", 5*time.Minute, t0))

	state, err := store.ModerationState(context.Background())
	require.NoError(t, err)
	require.True(t, state.UserMutes["bob"].Equal(t0.Add(5*time.Minute)))
}

func TestSweepRetention(t *testing.T) {
	t.Parallel()
	e, store := bootstrap(t)
	sess := registerAndLogin(t, e, "bob")

	_, err := e.Post(context.Background(), sess, "old", t0)
	require.NoError(t, err)
	_, err = e.Post(context.Background(), sess, "fresh", t0.Add(30*time.Minute))
	require.NoError(t, err)

	now := t0.Add(time.Hour + time.Second)
	require.NoError(t, e.Sweep(context.Background(), now))

	messages, err := store.Messages(context.Background())
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "fresh", messages[0].Body)

	// idempotent: a second sweep with the same now deletes nothing
	require.NoError(t, e.Sweep(context.Background(), now))
	again, err := store.Messages(context.Background())
	require.NoError(t, err)
	require.Equal(t, messages, again)
}

func TestGuestMessageExpires(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)

	sess, err := e.GuestJoin(context.Background(), "Sam2", "Star", t0)
	require.NoError(t, err)

	_, err = e.Post(context.Background(), sess, "fleeting", t0)
	require.NoError(t, err)

	refresh, err := e.Refresh(context.Background(), sess, t0.Add(time.Hour+time.Second))
	require.NoError(t, err)
	require.Empty(t, refresh.Messages)
}

func TestRefreshPostingAllowed(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)
	sess := registerAndLogin(t, e, "bob")

	refresh, err := e.Refresh(context.Background(), sess, t0)
	require.NoError(t, err)
	require.True(t, refresh.PostingAllowed)

	_, err = e.Post(context.Background(), sess, "hello", t0)
	require.NoError(t, err)

	// cooldown makes the next poll report posting as unavailable
	refresh, err = e.Refresh(context.Background(), sess, t0.Add(time.Second))
	require.NoError(t, err)
	require.False(t, refresh.PostingAllowed)

	refresh, err = e.Refresh(context.Background(), sess, t0.Add(5*time.Second))
	require.NoError(t, err)
	require.True(t, refresh.PostingAllowed)
}

func TestReactionAccumulation(t *testing.T) {
	t.Parallel()
	e, store := bootstrap(t)
	sess := registerAndLogin(t, e, "bob")

	m, err := e.Post(context.Background(), sess, "react to me", t0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, e.AddReaction(context.Background(), m.ID, "❤️"))
	}

	messages, err := store.Messages(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, messages[0].Reactions["❤️"])

	// nonexistent id is a silent no-op
	require.NoError(t, e.AddReaction(context.Background(), m.ID+100, "❤️"))
}

func TestLatestMessageID(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)
	sess := registerAndLogin(t, e, "bob")

	_, ok, err := e.LatestMessageID(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	m, err := e.Post(context.Background(), sess, "latest", t0)
	require.NoError(t, err)

	id, ok, err := e.LatestMessageID(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, m.ID, id)
}

func TestClearMessages(t *testing.T) {
	t.Parallel()
	e, store := bootstrap(t)
	sess := registerAndLogin(t, e, "bob")

	_, err := e.Post(context.Background(), sess, "nuke me", t0)
	require.NoError(t, err)

	require.NoError(t, e.ClearMessages(context.Background()))

	messages, err := store.Messages(context.Background())
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestPostSanitizesBody(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)
	sess := registerAndLogin(t, e, "bob")

	m, err := e.Post(context.Background(), sess, "hi <b>there</b>", t0)
	require.NoError(t, err)
	require.Equal(t, "hi there", m.Body)
}

func TestPostScoresSentiment(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t, WithAnalyzer(func(string) float64 { return 0.75 }))
	sess := registerAndLogin(t, e, "bob")

	m, err := e.Post(context.Background(), sess, "scored", t0)
	require.NoError(t, err)
	require.Equal(t, 0.75, m.Sentiment)
}

func TestPanickingAnalyzerDegradesToNeutral(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t, WithAnalyzer(func(string) float64 { panic("no model") }))
	sess := registerAndLogin(t, e, "bob")

	m, err := e.Post(context.Background(), sess, "still posts", t0)
	require.NoError(t, err)
	require.Equal(t, 0.0, m.Sentiment)
}

func TestOutOfRangeAnalyzerDegradesToNeutral(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t, WithAnalyzer(func(string) float64 { return 40 }))
	sess := registerAndLogin(t, e, "bob")

	m, err := e.Post(context.Background(), sess, "still posts", t0)
	require.NoError(t, err)
	require.Equal(t, 0.0, m.Sentiment)
}

func TestStorageFaultSurfacesWithoutPartialState(t *testing.T) {
	t.Parallel()
	e, store := bootstrap(t)
	sess := registerAndLogin(t, e, "bob")

	storeErr := errors.New("storage unavailable")
	store.Err = storeErr

	_, err := e.Post(context.Background(), sess, "hello", t0)
	require.Equal(t, storeErr, err)

	// next poll cycle is the retry
	store.Err = nil
	_, err = e.Post(context.Background(), sess, "hello", t0.Add(5*time.Second))
	require.NoError(t, err)
}

func TestUsersListsAccountsAndGuests(t *testing.T) {
	t.Parallel()
	e, _ := bootstrap(t)

	require.NoError(t, e.Register(context.Background(), "bob", "password1", "Wave"))
	_, err := e.GuestJoin(context.Background(), "Sam", "Star", t0)
	require.NoError(t, err)
	require.NoError(t, e.MuteUser(context.Background(), "bob", 15*time.Minute, t0))

	users, err := e.Users(context.Background(), "admin", t0)
	require.NoError(t, err)

	byName := map[string]User{}
	for _, u := range users {
		byName[u.Username] = u
	}

	// the caller is excluded
	_, ok := byName["admin"]
	require.False(t, ok)

	bob, ok := byName["bob"]
	require.True(t, ok)
	require.NotNil(t, bob.MutedUntil)
	require.True(t, bob.MutedUntil.Equal(t0.Add(15*time.Minute)))

	guest, ok := byName["Sam (Guest)"]
	require.True(t, ok)
	require.Equal(t, storage.RoleGuest, guest.Role)
	require.Nil(t, guest.MutedUntil)
}
