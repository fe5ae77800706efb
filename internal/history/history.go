// Package history serves a room's persisted shapes so a client can rebuild
// the board after joining.
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"whiteboard/internal/ident"
	"whiteboard/internal/store"
)

// Lister is the read side of the shape store.
type Lister interface {
	RoomShapes(ctx context.Context, roomID string) ([]store.Shape, error)
}

// item carries the stored shape text twice: as data, the record's own field,
// and as message, the field drawing clients parse to rebuild a shape.
type item struct {
	ShapeID   string    `json:"shapeId"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	ShapeType string    `json:"type"`
	Data      string    `json:"data"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

type response struct {
	Messages []item `json:"messages"`
}

// Handler serves GET /chats/{roomId}.
func Handler(shapes Lister, log *slog.Logger, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.PathValue("roomId")
		if !ident.Valid(roomID) {
			http.Error(w, "invalid room id", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		list, err := shapes.RoomShapes(ctx, roomID)
		if err != nil {
			log.Error("failed to load room history", "room", roomID, "error", err)
			http.Error(w, "history unavailable", http.StatusServiceUnavailable)
			return
		}
		out := response{Messages: make([]item, 0, len(list))}
		for _, s := range list {
			out.Messages = append(out.Messages, item{
				ShapeID:   s.ShapeID,
				RoomID:    s.RoomID,
				UserID:    s.UserID,
				ShapeType: s.ShapeType,
				Data:      s.Data,
				Message:   s.Data,
				CreatedAt: s.CreatedAt,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			log.Debug("history write failed", "room", roomID, "error", err)
		}
	}
}
