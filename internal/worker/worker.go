package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"whiteboard/internal/redis"
	"whiteboard/internal/store"
)

var ErrUnknownIntent = errors.New("unknown intent type")

// Source yields queued intents, blocking until one is available.
type Source interface {
	Pop(ctx context.Context) (redis.Intent, error)
}

// Worker drains the durable queue into the shape store. Delivery is
// at-least-once; the store's upserts make replays harmless.
type Worker struct {
	source  Source
	shapes  store.ShapeStore
	log     *slog.Logger
	backoff time.Duration

	processed atomic.Uint64
	failed    atomic.Uint64
}

func New(source Source, shapes store.ShapeStore, log *slog.Logger, backoff time.Duration) *Worker {
	return &Worker{
		source:  source,
		shapes:  shapes,
		log:     log,
		backoff: backoff,
	}
}

// Run loops until ctx is cancelled. Errors never end the loop; each one is
// logged and followed by a fixed backoff.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("persistence worker started, waiting for items")

	for {
		if err := ctx.Err(); err != nil {
			w.log.Info("persistence worker stopped")
			return err
		}

		in, err := w.source.Pop(ctx)
		if err == nil {
			err = w.Apply(ctx, in)
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.failed.Add(1)
			w.log.Error("persistence worker item failed", "error", err, "backoff", w.backoff)
			w.sleep(ctx)
			continue
		}
		w.processed.Add(1)
	}
}

// Apply writes one intent to the store.
func (w *Worker) Apply(ctx context.Context, in redis.Intent) error {
	shape := store.Shape{
		ShapeID:   in.ShapeID,
		RoomID:    in.RoomID,
		UserID:    in.UserID,
		ShapeType: in.ShapeType,
		Data:      payloadText(in.Message),
	}

	switch in.Type {
	case redis.IntentChat:
		if err := w.shapes.CreateShape(ctx, shape); err != nil {
			return err
		}
	case redis.IntentShapeUpdate:
		if err := w.shapes.UpdateShapeData(ctx, shape); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownIntent, in.Type)
	}

	w.log.Debug("shape persisted", "type", in.Type, "shapeId", in.ShapeID, "roomId", in.RoomID)
	return nil
}

func (w *Worker) sleep(ctx context.Context) {
	t := time.NewTimer(w.backoff)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (w *Worker) Stats() (processed, failed uint64) {
	return w.processed.Load(), w.failed.Load()
}

// payloadText unwraps a JSON string payload (the drawing layer sends the shape
// as a serialized string); any other JSON value is stored as its raw text.
func payloadText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
