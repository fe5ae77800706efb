package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

var ErrMalformedIntent = errors.New("malformed persistence intent")

type IntentType string

const (
	IntentChat        IntentType = "chat"
	IntentShapeUpdate IntentType = "shapeUpdate"
)

// Intent is a queued instruction to write a shape to durable storage.
type Intent struct {
	Type      IntentType      `json:"type"`
	UserID    string          `json:"userId"`
	RoomID    string          `json:"roomId"`
	ShapeID   string          `json:"shapeId"`
	ShapeType string          `json:"shapeType,omitempty"`
	Message   json.RawMessage `json:"message"`
}

// Queue is the durable list between the broker (LPUSH) and the worker (BRPOP).
// Items are consumed in push order; QueueWriter keeps push order per shape.
type Queue struct {
	rdb *goredis.Client
	key string
}

func NewQueue(rdb *goredis.Client, key string) *Queue {
	return &Queue{rdb: rdb, key: key}
}

func (q *Queue) Key() string { return q.key }

func (q *Queue) Push(ctx context.Context, in Intent) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("redis LPUSH %s failed: %w", q.key, err)
	}
	return nil
}

// Pop blocks without timeout until an item is available. A popped item that
// cannot be decoded is gone from the queue and is reported as ErrMalformedIntent.
func (q *Queue) Pop(ctx context.Context) (Intent, error) {
	res, err := q.rdb.BRPop(ctx, 0, q.key).Result()
	if err != nil {
		return Intent{}, fmt.Errorf("redis BRPOP %s failed: %w", q.key, err)
	}
	if len(res) != 2 {
		return Intent{}, fmt.Errorf("%w: unexpected BRPOP reply of %d elements", ErrMalformedIntent, len(res))
	}

	var in Intent
	if err := json.Unmarshal([]byte(res[1]), &in); err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrMalformedIntent, err)
	}
	return in, nil
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
