package socket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddRemove(t *testing.T) {
	h, _, _ := newTestHub(t, testConfig())
	r := h.registry

	a1 := addSession(h, "alice")
	a2 := addSession(h, "alice")
	b1 := addSession(h, "bob")

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 2, r.Users())
	assert.Len(t, r.SessionsOf("alice"), 2)

	got, ok := r.Get(b1.ID)
	require.True(t, ok)
	assert.Same(t, b1, got)

	rm, ok := r.Remove(a1.ID)
	require.True(t, ok)
	assert.False(t, rm.LastForUser)
	assert.Same(t, a1, rm.Session)

	_, ok = r.Remove(a1.ID)
	assert.False(t, ok, "second remove is a no-op")

	rm, ok = r.Remove(a2.ID)
	require.True(t, ok)
	assert.True(t, rm.LastForUser)
	assert.Empty(t, r.SessionsOf("alice"))
	assert.Equal(t, 1, r.Users())
}

func TestRegistry_ReleaseAcrossTabs(t *testing.T) {
	h, _, _ := newTestHub(t, testConfig())
	r := h.registry

	a1 := addSession(h, "alice")
	a2 := addSession(h, "alice")

	require.True(t, r.TrackRoom(a1.ID, "42"))
	require.True(t, r.TrackRoom(a1.ID, "7"))
	require.True(t, r.TrackRoom(a2.ID, "42"))
	assert.ElementsMatch(t, []string{"42", "7"}, r.RoomsOf(a1.ID))

	rm, ok := r.Remove(a1.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"7"}, rm.Release, "room 42 is still held by the other tab")

	rm, ok = r.Remove(a2.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"42"}, rm.Release)
	assert.Empty(t, r.RoomsOf(a2.ID))
}

func TestRegistry_TrackRoom(t *testing.T) {
	h, _, _ := newTestHub(t, testConfig())
	r := h.registry

	assert.False(t, r.TrackRoom("missing", "42"))

	s := addSession(h, "alice")
	require.True(t, r.TrackRoom(s.ID, "42"))
	r.UntrackRoom(s.ID, "42")
	r.UntrackRoom(s.ID, "42")
	assert.Empty(t, r.RoomsOf(s.ID))

	rm, ok := r.Remove(s.ID)
	require.True(t, ok)
	assert.Empty(t, rm.Release)
}
