package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"whiteboard/internal/redis"
)

// MembershipStore is the shared room -> user ID set store.
type MembershipStore interface {
	AddMember(ctx context.Context, roomID, userID string) error
	RemoveMember(ctx context.Context, roomID, userID string) error
	Members(ctx context.Context, roomID string) ([]string, error)
	ReleaseMemberships(ctx context.Context, userID string, roomIDs []string) error
}

// IntentWriter hands persistence intents to the durable queue.
type IntentWriter interface {
	Enqueue(in redis.Intent) bool
}

// Router classifies client frames and applies per-type side effects. It holds
// no state of its own.
type Router struct {
	registry *Registry
	members  MembershipStore
	intents  IntentWriter
	metrics  *Metrics
	log      *slog.Logger
}

func NewRouter(registry *Registry, members MembershipStore, intents IntentWriter, metrics *Metrics, log *slog.Logger) *Router {
	return &Router{
		registry: registry,
		members:  members,
		intents:  intents,
		metrics:  metrics,
		log:      log,
	}
}

// Route decodes one frame from the session and dispatches it. Errors are logged
// here and returned for callers that care; none of them should close the socket.
func (r *Router) Route(ctx context.Context, from *Session, data []byte) error {
	msg, err := ParseMessage(data)
	if err != nil {
		r.metrics.RejectedFrames.Inc()
		r.log.Warn("dropping client frame", "session", from.ID, "user", from.UserID, "error", err)
		return err
	}

	if err := r.Dispatch(ctx, from, msg); err != nil {
		r.metrics.StoreErrors.Inc()
		r.log.Error("message handler failed", "type", msg.Type(), "room", msg.Room(), "session", from.ID, "user", from.UserID, "error", err)
		return err
	}
	return nil
}

func (r *Router) Dispatch(ctx context.Context, from *Session, msg Message) error {
	r.metrics.Routed.WithLabelValues(string(msg.Type())).Inc()

	switch m := msg.(type) {
	case JoinRoom:
		return r.joinRoom(ctx, from, m)
	case LeaveRoom:
		return r.leaveRoom(ctx, from, m)
	case Chat:
		return r.chat(ctx, from, m)
	case ShapeUpdate:
		return r.shapeUpdate(ctx, from, m)
	case ShapePreview:
		return r.shapePreview(ctx, from, m)
	case MouseMovement:
		return r.mouseMovement(ctx, from, m)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
}

func (r *Router) joinRoom(ctx context.Context, from *Session, m JoinRoom) error {
	r.registry.TrackRoom(from.ID, m.RoomID)
	if err := r.members.AddMember(ctx, m.RoomID, from.UserID); err != nil {
		return err
	}
	r.log.Debug("joined room", "room", m.RoomID, "session", from.ID, "user", from.UserID)
	return nil
}

func (r *Router) leaveRoom(ctx context.Context, from *Session, m LeaveRoom) error {
	r.registry.UntrackRoom(from.ID, m.RoomID)
	if err := r.members.RemoveMember(ctx, m.RoomID, from.UserID); err != nil {
		return err
	}
	r.log.Debug("left room", "room", m.RoomID, "session", from.ID, "user", from.UserID)
	return nil
}

func (r *Router) chat(ctx context.Context, from *Session, m Chat) error {
	frame := chatFrame{
		Type:      MsgChat,
		Message:   rawOrNull(m.Payload),
		RoomID:    m.RoomID,
		ShapeID:   m.ShapeID,
		ShapeType: m.ShapeType,
		UserID:    from.UserID,
	}
	fanErr := r.fanOut(ctx, from, m.RoomID, frame, reliable)

	r.enqueue(redis.Intent{
		Type:      redis.IntentChat,
		UserID:    from.UserID,
		RoomID:    m.RoomID,
		ShapeID:   m.ShapeID,
		ShapeType: m.ShapeType,
		Message:   m.Payload,
	})
	return fanErr
}

func (r *Router) shapeUpdate(ctx context.Context, from *Session, m ShapeUpdate) error {
	frame := shapeUpdateFrame{
		Type:    MsgShapeUpdate,
		Message: rawOrNull(m.Payload),
		RoomID:  m.RoomID,
		ShapeID: m.ShapeID,
		UserID:  from.UserID,
	}
	fanErr := r.fanOut(ctx, from, m.RoomID, frame, reliable)

	r.enqueue(redis.Intent{
		Type:    redis.IntentShapeUpdate,
		UserID:  from.UserID,
		RoomID:  m.RoomID,
		ShapeID: m.ShapeID,
		Message: m.Payload,
	})
	return fanErr
}

func (r *Router) shapePreview(ctx context.Context, from *Session, m ShapePreview) error {
	frame := shapePreviewFrame{
		Type:        MsgShapePreview,
		Message:     rawOrNull(m.Payload),
		RoomID:      m.RoomID,
		ShapeID:     m.ShapeID,
		PreviewType: m.PreviewType,
		UserID:      from.UserID,
	}
	return r.fanOut(ctx, from, m.RoomID, frame, lossy)
}

func (r *Router) mouseMovement(ctx context.Context, from *Session, m MouseMovement) error {
	frame := mouseMovementFrame{
		Type:   MsgMouseMovement,
		RoomID: m.RoomID,
		X:      m.X,
		Y:      m.Y,
		UserID: from.UserID,
	}
	return r.fanOut(ctx, from, m.RoomID, frame, lossy)
}

// fanOut delivers frame to every live session of every room member except the
// sending session itself. Other sessions of the sender still receive it.
func (r *Router) fanOut(ctx context.Context, from *Session, roomID string, frame any, t tier) error {
	members, err := r.members.Members(ctx, roomID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode %T: %w", frame, err)
	}

	for _, userID := range members {
		for _, s := range r.registry.SessionsOf(userID) {
			if s.UserID == from.UserID && s.ID == from.ID {
				continue
			}
			s.deliver(payload, t)
		}
	}
	return nil
}

func (r *Router) enqueue(in redis.Intent) {
	if !r.intents.Enqueue(in) {
		r.log.Error("persistence intent not queued", "type", in.Type, "shapeId", in.ShapeID, "room", in.RoomID)
	}
}
