package redis

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// QueueWriter hands persistence intents to the durable queue off the socket
// read path. Intents are buffered in memory and pushed by a fixed worker pool.
// Each worker owns one shard; all intents for a shape hash to the same shard,
// so they reach the queue in enqueue order.
type QueueWriter struct {
	queue     *Queue
	log       *slog.Logger
	opTimeout time.Duration

	shards []chan Intent
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	written  atomic.Uint64
	errors   atomic.Uint64
}

type QueueWriterConfig struct {
	BufferSize int
	Workers    int
	OpTimeout  time.Duration
}

func NewQueueWriter(queue *Queue, log *slog.Logger, cfg QueueWriterConfig) *QueueWriter {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	perShard := cfg.BufferSize / cfg.Workers
	if perShard < 1 {
		perShard = 1
	}
	w := &QueueWriter{
		queue:     queue,
		log:       log,
		opTimeout: cfg.OpTimeout,
		shards:    make([]chan Intent, cfg.Workers),
	}

	w.wg.Add(len(w.shards))
	for i := range w.shards {
		w.shards[i] = make(chan Intent, perShard)
		go w.workerLoop(i, w.shards[i])
	}

	return w
}

func (w *QueueWriter) shardFor(in Intent) chan Intent {
	if len(w.shards) == 1 {
		return w.shards[0]
	}
	return w.shards[xxhash.Sum64String(in.ShapeID)%uint64(len(w.shards))]
}

// Enqueue accepts the intent for pushing. It returns false when the buffer is
// full or the writer is shut down; the intent is then lost.
func (w *QueueWriter) Enqueue(in Intent) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		return false
	}

	select {
	case w.shardFor(in) <- in:
		w.enqueued.Add(1)
		return true
	default:
		w.dropped.Add(1)
		w.log.Warn("queue buffer full, dropping intent",
			"type", in.Type, "shapeId", in.ShapeID, "roomId", in.RoomID)
		return false
	}
}

func (w *QueueWriter) workerLoop(workerID int, buf <-chan Intent) {
	defer w.wg.Done()

	for in := range buf {
		ctx, cancel := w.opContext()
		err := w.queue.Push(ctx, in)
		cancel()
		if err != nil {
			w.errors.Add(1)
			w.log.Error("queue push failed", "worker", workerID, "type", in.Type, "shapeId", in.ShapeID, "error", err)
			time.Sleep(20 * time.Millisecond)
			continue
		}
		w.written.Add(1)
	}
}

func (w *QueueWriter) opContext() (context.Context, context.CancelFunc) {
	if w.opTimeout > 0 {
		return context.WithTimeout(context.Background(), w.opTimeout)
	}
	return context.WithCancel(context.Background())
}

// Shutdown stops accepting intents and waits for the buffer to drain or ctx to end.
func (w *QueueWriter) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		for _, buf := range w.shards {
			close(buf)
		}
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *QueueWriter) Stats() (enqueued, dropped, written, errors uint64) {
	return w.enqueued.Load(), w.dropped.Load(), w.written.Load(), w.errors.Load()
}
