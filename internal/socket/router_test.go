package socket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whiteboard/internal/redis"
)

func join(t *testing.T, h *Hub, s *Session, roomID string) {
	t.Helper()
	require.NoError(t, h.router.Dispatch(context.Background(), s, JoinRoom{RoomID: roomID}))
}

func TestRouter_ChatFanOut(t *testing.T) {
	h, _, writer := newTestHub(t, testConfig())
	ctx := context.Background()

	a1 := addSession(h, "alice")
	a2 := addSession(h, "alice")
	b1 := addSession(h, "bob")
	c1 := addSession(h, "carol")

	join(t, h, a1, "42")
	join(t, h, b1, "42")
	join(t, h, c1, "7")

	err := h.router.Route(ctx, a1, []byte(`{"type":"chat","roomId":"42","shapeId":"abc","shapeType":"rect","message":"{\"x\":1}","sessionId":"spoof"}`))
	require.NoError(t, err)

	assert.Empty(t, drain(t, a1), "sender session gets no echo")
	assert.Empty(t, drain(t, c1), "other rooms are untouched")

	want := map[string]any{
		"type":      "chat",
		"message":   `{"x":1}`,
		"roomId":    "42",
		"shapeId":   "abc",
		"shapeType": "rect",
		"userId":    "alice",
	}
	for _, s := range []*Session{a2, b1} {
		frames := drain(t, s)
		require.Len(t, frames, 1)
		assert.Equal(t, want, frames[0])
	}

	intents := writer.all()
	require.Len(t, intents, 1)
	assert.Equal(t, redis.IntentChat, intents[0].Type)
	assert.Equal(t, "alice", intents[0].UserID)
	assert.Equal(t, "42", intents[0].RoomID)
	assert.Equal(t, "abc", intents[0].ShapeID)
	assert.Equal(t, "rect", intents[0].ShapeType)
	assert.JSONEq(t, `"{\"x\":1}"`, string(intents[0].Message))
}

func TestRouter_ShapeUpdate(t *testing.T) {
	h, _, writer := newTestHub(t, testConfig())

	a1 := addSession(h, "alice")
	b1 := addSession(h, "bob")
	join(t, h, a1, "42")
	join(t, h, b1, "42")

	require.NoError(t, h.router.Route(context.Background(), b1, []byte(`{"type":"shapeUpdate","roomId":"42","shapeId":"abc","message":{"x":2}}`)))

	frames := drain(t, a1)
	require.Len(t, frames, 1)
	assert.Equal(t, "shapeUpdate", frames[0]["type"])
	assert.Equal(t, "bob", frames[0]["userId"])
	assert.Equal(t, map[string]any{"x": float64(2)}, frames[0]["message"])
	assert.NotContains(t, frames[0], "sessionId")

	intents := writer.all()
	require.Len(t, intents, 1)
	assert.Equal(t, redis.IntentShapeUpdate, intents[0].Type)
	assert.Empty(t, intents[0].ShapeType)
}

func TestRouter_PreviewAndCursorAreNotPersisted(t *testing.T) {
	h, _, writer := newTestHub(t, testConfig())
	ctx := context.Background()

	a1 := addSession(h, "alice")
	b1 := addSession(h, "bob")
	join(t, h, a1, "42")
	join(t, h, b1, "42")

	require.NoError(t, h.router.Route(ctx, a1, []byte(`{"type":"shapePreview","roomId":"42","previewType":"new","message":"{}"}`)))
	require.NoError(t, h.router.Route(ctx, a1, []byte(`{"type":"mouseMovement","roomId":"42","x":3,"y":4}`)))

	frames := drain(t, b1)
	require.Len(t, frames, 2)
	assert.Equal(t, "shapePreview", frames[0]["type"])
	assert.Equal(t, "new", frames[0]["previewType"])
	assert.Equal(t, map[string]any{
		"type":   "mouseMovement",
		"roomId": "42",
		"x":      float64(3),
		"y":      float64(4),
		"userId": "alice",
	}, frames[1])

	assert.Empty(t, writer.all())
}

func TestRouter_EmptyRoom(t *testing.T) {
	h, _, writer := newTestHub(t, testConfig())

	a1 := addSession(h, "alice")
	b1 := addSession(h, "bob")

	require.NoError(t, h.router.Route(context.Background(), a1, []byte(`{"type":"mouseMovement","roomId":"nobody-here","x":1,"y":1}`)))
	assert.Empty(t, drain(t, a1))
	assert.Empty(t, drain(t, b1))
	assert.Empty(t, writer.all())
}

func TestRouter_SenderNeedNotBeMember(t *testing.T) {
	h, _, _ := newTestHub(t, testConfig())

	a1 := addSession(h, "alice")
	b1 := addSession(h, "bob")
	join(t, h, b1, "42")

	require.NoError(t, h.router.Route(context.Background(), a1, []byte(`{"type":"mouseMovement","roomId":"42","x":1,"y":1}`)))
	assert.Len(t, drain(t, b1), 1)
}

func TestRouter_JoinLeave(t *testing.T) {
	h, members, _ := newTestHub(t, testConfig())
	ctx := context.Background()

	a1 := addSession(h, "alice")
	b1 := addSession(h, "bob")

	join(t, h, b1, "42")
	join(t, h, b1, "42")
	got, err := members.Members(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, got)
	assert.Equal(t, []string{"42"}, h.registry.RoomsOf(b1.ID))

	require.NoError(t, h.router.Dispatch(ctx, b1, LeaveRoom{RoomID: "42"}))
	require.NoError(t, h.router.Dispatch(ctx, b1, LeaveRoom{RoomID: "42"}))
	assert.Empty(t, h.registry.RoomsOf(b1.ID))

	require.NoError(t, h.router.Route(ctx, a1, []byte(`{"type":"mouseMovement","roomId":"42","x":1,"y":1}`)))
	assert.Empty(t, drain(t, b1), "left sessions receive nothing")
}

func TestRouter_RejectsBadFrames(t *testing.T) {
	h, _, writer := newTestHub(t, testConfig())
	ctx := context.Background()
	a1 := addSession(h, "alice")

	assert.ErrorIs(t, h.router.Route(ctx, a1, []byte(`not json`)), ErrMalformedFrame)
	assert.ErrorIs(t, h.router.Route(ctx, a1, []byte(`{"type":"erase","roomId":"42"}`)), ErrUnknownType)
	assert.ErrorIs(t, h.router.Route(ctx, a1, []byte(`{"type":"chat","roomId":"42"}`)), ErrInvalidMessage)

	// The session stays usable.
	_, ok := h.registry.Get(a1.ID)
	assert.True(t, ok)
	assert.Empty(t, writer.all())
}

func TestRouter_StoreFailure(t *testing.T) {
	h, members, writer := newTestHub(t, testConfig())
	ctx := context.Background()
	a1 := addSession(h, "alice")

	boom := errors.New("redis down")
	members.fail(boom)

	assert.ErrorIs(t, h.router.Route(ctx, a1, []byte(`{"type":"join_room","roomId":"42"}`)), boom)

	// Shapes are still handed to the queue when fan-out fails.
	assert.ErrorIs(t, h.router.Route(ctx, a1, []byte(`{"type":"chat","roomId":"42","shapeId":"abc","message":"{}"}`)), boom)
	assert.Len(t, writer.all(), 1)
}

func TestRouter_FullBuffers(t *testing.T) {
	cfg := testConfig()
	cfg.SendBuffer = 1
	h, _, _ := newTestHub(t, cfg)

	a1 := addSession(h, "alice")
	b1 := addSession(h, "bob")
	join(t, h, a1, "42")
	join(t, h, b1, "42")

	ok, _ := b1.trySend([]byte(`{}`))
	require.True(t, ok)

	require.NoError(t, h.router.Route(context.Background(), a1, []byte(`{"type":"mouseMovement","roomId":"42","x":1,"y":1}`)))
	assert.Empty(t, h.unregister, "dropped cursor frames do not evict")

	require.NoError(t, h.router.Route(context.Background(), a1, []byte(`{"type":"chat","roomId":"42","shapeId":"abc","message":"{}"}`)))
	select {
	case s := <-h.unregister:
		assert.Same(t, b1, s)
	case <-time.After(time.Second):
		t.Fatal("slow session was not evicted")
	}
}

func TestSessionInitIsFirst(t *testing.T) {
	h, _, _ := newTestHub(t, testConfig())
	s := NewSession(h, newFakeConn(), "alice")
	require.NoError(t, s.sendInit())

	frames := drain(t, s)
	require.Len(t, frames, 1)
	assert.Equal(t, map[string]any{"type": "session-init", "sessionId": s.ID}, frames[0])

	s.closeSend()
	assert.Error(t, s.sendInit())
}
