package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aura/internal/storage"
)

func TestSessionsCreateAndGet(t *testing.T) {
	t.Parallel()

	ss := NewSessions()
	sess := ss.Create("bob", storage.RoleUser, "🌊", t0)
	require.NotEmpty(t, sess.Token)

	got, ok := ss.Get(sess.Token)
	require.True(t, ok)
	require.Equal(t, sess, got)

	other := ss.Create("bob", storage.RoleUser, "🌊", t0)
	require.NotEqual(t, sess.Token, other.Token)

	_, ok = ss.Get("unknown")
	require.False(t, ok)
}

func TestSessionsDelete(t *testing.T) {
	t.Parallel()

	ss := NewSessions()
	sess := ss.Create("bob", storage.RoleUser, "🌊", t0)

	ss.Delete(sess.Token)
	_, ok := ss.Get(sess.Token)
	require.False(t, ok)
}

func TestSessionCooldown(t *testing.T) {
	t.Parallel()

	ss := NewSessions()
	sess := ss.Create("bob", storage.RoleUser, "🌊", t0)

	require.True(t, sess.ReadyToPost(t0, 3*time.Second))
	sess.RecordPost(t0)
	require.False(t, sess.ReadyToPost(t0.Add(2*time.Second), 3*time.Second))
	require.True(t, sess.ReadyToPost(t0.Add(3*time.Second), 3*time.Second))
}

func TestOnlineWindow(t *testing.T) {
	t.Parallel()

	ss := NewSessions()
	sess := ss.Create("bob", storage.RoleUser, "🌊", t0)

	online := ss.Online(t0.Add(5 * time.Second))
	require.Len(t, online, 1)
	require.Equal(t, "bob", online[0].Username)

	// silent past the presence window
	require.Empty(t, ss.Online(t0.Add(2*time.Minute)))

	// a fresh poll brings the session back
	sess.touch(t0.Add(2 * time.Minute))
	require.Len(t, ss.Online(t0.Add(2*time.Minute)), 1)
}

func TestOnlineDedupesByUsername(t *testing.T) {
	t.Parallel()

	ss := NewSessions()
	ss.Create("bob", storage.RoleUser, "🌊", t0)
	ss.Create("bob", storage.RoleUser, "🌊", t0)

	require.Len(t, ss.Online(t0), 1)
}

func TestActiveGuestsFiltersRoles(t *testing.T) {
	t.Parallel()

	ss := NewSessions()
	ss.Create("bob", storage.RoleUser, "🌊", t0)
	ss.Create("Sam (Guest)", storage.RoleGuest, "⭐", t0)

	guests := ss.ActiveGuests(t0)
	require.Len(t, guests, 1)
	require.Equal(t, "Sam (Guest)", guests[0].Username)
}
