package socket

import (
	"encoding/json"
	"errors"
	"fmt"

	"whiteboard/internal/ident"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown message type")
	ErrInvalidMessage = errors.New("invalid message")
)

type MessageType string

const (
	MsgSessionInit   MessageType = "session-init"
	MsgJoinRoom      MessageType = "join_room"
	MsgLeaveRoom     MessageType = "leave_room"
	MsgChat          MessageType = "chat"
	MsgMouseMovement MessageType = "mouseMovement"
	MsgShapeUpdate   MessageType = "shapeUpdate"
	MsgShapePreview  MessageType = "shapePreview"
)

type PreviewType string

const (
	PreviewNew          PreviewType = "new"
	PreviewModification PreviewType = "modification"
)

// envelope is the wire form of every client frame. Fields a client sends that
// are not listed here (sessionId, userId) are ignored; identity comes from the
// authenticated session.
type envelope struct {
	Type        MessageType     `json:"type"`
	RoomID      string          `json:"roomId"`
	ShapeID     string          `json:"shapeId,omitempty"`
	ShapeType   string          `json:"shapeType,omitempty"`
	Message     json.RawMessage `json:"message,omitempty"`
	X           *float64        `json:"x,omitempty"`
	Y           *float64        `json:"y,omitempty"`
	PreviewType PreviewType     `json:"previewType,omitempty"`
}

// Message is a decoded client frame: one of JoinRoom, LeaveRoom, Chat,
// ShapeUpdate, ShapePreview or MouseMovement.
type Message interface {
	Type() MessageType
	Room() string
}

type JoinRoom struct {
	RoomID string
}

type LeaveRoom struct {
	RoomID string
}

// Chat announces a new permanent shape.
type Chat struct {
	RoomID    string
	ShapeID   string
	ShapeType string
	Payload   json.RawMessage
}

type ShapeUpdate struct {
	RoomID  string
	ShapeID string
	Payload json.RawMessage
}

// ShapePreview is in-progress drawing state; never persisted.
type ShapePreview struct {
	RoomID      string
	ShapeID     string
	PreviewType PreviewType
	Payload     json.RawMessage
}

type MouseMovement struct {
	RoomID string
	X, Y   float64
}

func (JoinRoom) Type() MessageType      { return MsgJoinRoom }
func (LeaveRoom) Type() MessageType     { return MsgLeaveRoom }
func (Chat) Type() MessageType          { return MsgChat }
func (ShapeUpdate) Type() MessageType   { return MsgShapeUpdate }
func (ShapePreview) Type() MessageType  { return MsgShapePreview }
func (MouseMovement) Type() MessageType { return MsgMouseMovement }

func (m JoinRoom) Room() string      { return m.RoomID }
func (m LeaveRoom) Room() string     { return m.RoomID }
func (m Chat) Room() string          { return m.RoomID }
func (m ShapeUpdate) Room() string   { return m.RoomID }
func (m ShapePreview) Room() string  { return m.RoomID }
func (m MouseMovement) Room() string { return m.RoomID }

// ParseMessage decodes and validates one client frame.
func ParseMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch env.Type {
	case MsgJoinRoom, MsgLeaveRoom, MsgChat, MsgShapeUpdate, MsgShapePreview, MsgMouseMovement:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if !ident.Valid(env.RoomID) {
		return nil, fmt.Errorf("%w: %s has invalid roomId", ErrInvalidMessage, env.Type)
	}

	switch env.Type {
	case MsgJoinRoom:
		return JoinRoom{RoomID: env.RoomID}, nil

	case MsgLeaveRoom:
		return LeaveRoom{RoomID: env.RoomID}, nil

	case MsgChat:
		if !ident.Valid(env.ShapeID) {
			return nil, fmt.Errorf("%w: chat has invalid shapeId", ErrInvalidMessage)
		}
		return Chat{RoomID: env.RoomID, ShapeID: env.ShapeID, ShapeType: env.ShapeType, Payload: env.Message}, nil

	case MsgShapeUpdate:
		if !ident.Valid(env.ShapeID) {
			return nil, fmt.Errorf("%w: shapeUpdate has invalid shapeId", ErrInvalidMessage)
		}
		return ShapeUpdate{RoomID: env.RoomID, ShapeID: env.ShapeID, Payload: env.Message}, nil

	case MsgShapePreview:
		if env.PreviewType != PreviewNew && env.PreviewType != PreviewModification {
			return nil, fmt.Errorf("%w: previewType %q", ErrInvalidMessage, env.PreviewType)
		}
		return ShapePreview{RoomID: env.RoomID, ShapeID: env.ShapeID, PreviewType: env.PreviewType, Payload: env.Message}, nil

	default:
		if env.X == nil || env.Y == nil {
			return nil, fmt.Errorf("%w: mouseMovement without coordinates", ErrInvalidMessage)
		}
		return MouseMovement{RoomID: env.RoomID, X: *env.X, Y: *env.Y}, nil
	}
}

// Outbound frames. Each carries the sender's userId and never a sessionId.

type sessionInitFrame struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
}

type chatFrame struct {
	Type      MessageType     `json:"type"`
	Message   json.RawMessage `json:"message"`
	RoomID    string          `json:"roomId"`
	ShapeID   string          `json:"shapeId"`
	ShapeType string          `json:"shapeType"`
	UserID    string          `json:"userId"`
}

type shapeUpdateFrame struct {
	Type    MessageType     `json:"type"`
	Message json.RawMessage `json:"message"`
	RoomID  string          `json:"roomId"`
	ShapeID string          `json:"shapeId"`
	UserID  string          `json:"userId"`
}

type shapePreviewFrame struct {
	Type        MessageType     `json:"type"`
	Message     json.RawMessage `json:"message"`
	RoomID      string          `json:"roomId"`
	ShapeID     string          `json:"shapeId,omitempty"`
	PreviewType PreviewType     `json:"previewType"`
	UserID      string          `json:"userId"`
}

type mouseMovementFrame struct {
	Type   MessageType `json:"type"`
	RoomID string      `json:"roomId"`
	X      float64     `json:"x"`
	Y      float64     `json:"y"`
	UserID string      `json:"userId"`
}

// rawOrNull keeps an absent payload valid JSON inside outbound frames.
func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
