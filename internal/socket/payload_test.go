package socket

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Message
		wantErr error
	}{
		{
			name: "join",
			in:   `{"type":"join_room","roomId":"42"}`,
			want: JoinRoom{RoomID: "42"},
		},
		{
			name: "leave ignores client identity",
			in:   `{"type":"leave_room","roomId":"42","userId":"mallory","sessionId":"x"}`,
			want: LeaveRoom{RoomID: "42"},
		},
		{
			name: "chat",
			in:   `{"type":"chat","roomId":"42","shapeId":"abc","shapeType":"rect","message":"{\"x\":1}"}`,
			want: Chat{RoomID: "42", ShapeID: "abc", ShapeType: "rect", Payload: json.RawMessage(`"{\"x\":1}"`)},
		},
		{
			name: "shape update",
			in:   `{"type":"shapeUpdate","roomId":"42","shapeId":"abc","message":{"x":2}}`,
			want: ShapeUpdate{RoomID: "42", ShapeID: "abc", Payload: json.RawMessage(`{"x":2}`)},
		},
		{
			name: "preview",
			in:   `{"type":"shapePreview","roomId":"42","previewType":"modification","shapeId":"abc","message":"{}"}`,
			want: ShapePreview{RoomID: "42", ShapeID: "abc", PreviewType: PreviewModification, Payload: json.RawMessage(`"{}"`)},
		},
		{
			name: "mouse at origin",
			in:   `{"type":"mouseMovement","roomId":"42","x":0,"y":0}`,
			want: MouseMovement{RoomID: "42"},
		},
		{
			name: "mouse",
			in:   `{"type":"mouseMovement","roomId":"42","x":10.5,"y":-3}`,
			want: MouseMovement{RoomID: "42", X: 10.5, Y: -3},
		},
		{name: "not json", in: `{"type":`, wantErr: ErrMalformedFrame},
		{name: "wrong field type", in: `{"type":"join_room","roomId":42}`, wantErr: ErrMalformedFrame},
		{name: "unknown type", in: `{"type":"draw","roomId":"42"}`, wantErr: ErrUnknownType},
		{name: "missing type", in: `{"roomId":"42"}`, wantErr: ErrUnknownType},
		{name: "missing room", in: `{"type":"join_room"}`, wantErr: ErrInvalidMessage},
		{name: "room with space", in: `{"type":"join_room","roomId":"a b"}`, wantErr: ErrInvalidMessage},
		{name: "room too long", in: `{"type":"join_room","roomId":"` + strings.Repeat("r", 129) + `"}`, wantErr: ErrInvalidMessage},
		{name: "chat without shape", in: `{"type":"chat","roomId":"42","message":"{}"}`, wantErr: ErrInvalidMessage},
		{name: "update without shape", in: `{"type":"shapeUpdate","roomId":"42"}`, wantErr: ErrInvalidMessage},
		{name: "preview bad kind", in: `{"type":"shapePreview","roomId":"42","previewType":"final"}`, wantErr: ErrInvalidMessage},
		{name: "mouse without y", in: `{"type":"mouseMovement","roomId":"42","x":1}`, wantErr: ErrInvalidMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMessage([]byte(tt.in))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "42", got.Room())
		})
	}
}

func TestOutboundFramesOmitSessionID(t *testing.T) {
	data, err := json.Marshal(chatFrame{
		Type:      MsgChat,
		Message:   rawOrNull(nil),
		RoomID:    "42",
		ShapeID:   "abc",
		ShapeType: "rect",
		UserID:    "alice",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"chat","message":null,"roomId":"42","shapeId":"abc","shapeType":"rect","userId":"alice"}`, string(data))
}
