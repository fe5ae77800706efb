package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"whiteboard/internal/auth"
	"whiteboard/internal/logging"
)

type outbound struct {
	Type        string          `json:"type"`
	RoomID      string          `json:"roomId"`
	ShapeID     string          `json:"shapeId,omitempty"`
	ShapeType   string          `json:"shapeType,omitempty"`
	PreviewType string          `json:"previewType,omitempty"`
	Message     json.RawMessage `json:"message,omitempty"`
	X           *float64        `json:"x,omitempty"`
	Y           *float64        `json:"y,omitempty"`
}

type counters struct {
	sent     atomic.Uint64
	received atomic.Uint64
	failed   atomic.Uint64
}

func main() {
	var (
		wsURL     = flag.String("url", "ws://localhost:8080/ws", "WebSocket URL (without token)")
		secret    = flag.String("secret", os.Getenv("JWT_SECRET"), "HMAC secret used to mint tokens")
		clients   = flag.Int("clients", 200, "Number of concurrent sessions")
		room      = flag.String("room", "load-test", "Room every session joins")
		interval  = flag.Int("interval", 50, "Cursor send interval in ms per session")
		shapeRate = flag.Float64("shape-rate", 0.02, "Chance per tick of committing a new shape")
	)
	flag.Parse()

	log := slog.New(logging.NewConsoleHandler(os.Stdout, slog.LevelInfo))
	if *secret == "" {
		log.Error("a token secret is required (-secret or JWT_SECRET)")
		os.Exit(1)
	}
	verifier := auth.NewVerifier(*secret)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting load generator", "clients", *clients, "room", *room, "interval_ms", *interval)

	var stats counters
	var wg sync.WaitGroup
	wg.Add(*clients)
	for i := 0; i < *clients; i++ {
		userID := fmt.Sprintf("load-%d", i)
		token, err := verifier.Mint(userID, time.Hour)
		if err != nil {
			log.Error("mint token", "user", userID, "error", err)
			os.Exit(1)
		}
		go func() {
			defer wg.Done()
			c := &client{
				url:       *wsURL + "?token=" + url.QueryEscape(token),
				userID:    userID,
				room:      *room,
				interval:  time.Duration(*interval) * time.Millisecond,
				shapeRate: *shapeRate,
				stats:     &stats,
				log:       log.With("user", userID),
			}
			c.run(ctx)
		}()
	}

	report := time.NewTicker(5 * time.Second)
	defer report.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("stopping load generator")
			wg.Wait()
			log.Info("all sessions stopped", "sent", stats.sent.Load(), "received", stats.received.Load(), "failed", stats.failed.Load())
			return
		case <-report.C:
			log.Info("progress", "sent", stats.sent.Load(), "received", stats.received.Load(), "failed", stats.failed.Load())
		}
	}
}

type client struct {
	url       string
	userID    string
	room      string
	interval  time.Duration
	shapeRate float64
	stats     *counters
	log       *slog.Logger
}

func (c *client) run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := c.session(ctx); err != nil {
			c.stats.failed.Add(1)
			c.log.Debug("session ended", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(500 * time.Millisecond):
			}
		}
	}
}

func (c *client) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	var hello struct {
		Type      string `json:"type"`
		SessionID string `json:"sessionId"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("waiting for session-init: %w", err)
	}
	if hello.Type != "session-init" {
		return fmt.Errorf("first frame was %q", hello.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			c.stats.received.Add(1)
		}
	}()

	if err := c.send(conn, outbound{Type: "join_room", RoomID: c.room}); err != nil {
		return err
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	x, y := rand.Float64()*1000, rand.Float64()*1000
	angle := rand.Float64() * 2 * math.Pi

	for {
		select {
		case <-ctx.Done():
			_ = c.send(conn, outbound{Type: "leave_room", RoomID: c.room})
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
			return nil

		case <-ticker.C:
			angle += (rand.Float64()*2 - 1) * 0.2
			x += math.Cos(angle) * 4
			y += math.Sin(angle) * 4

			msg := outbound{Type: "mouseMovement", RoomID: c.room, X: &x, Y: &y}
			if rand.Float64() < 0.3 {
				msg = outbound{
					Type:        "shapePreview",
					RoomID:      c.room,
					PreviewType: "new",
					Message:     shapeJSON(x, y),
				}
			}
			if err := c.send(conn, msg); err != nil {
				return err
			}

			if rand.Float64() < c.shapeRate {
				if err := c.commitShape(conn, x, y); err != nil {
					return err
				}
			}
		}
	}
}

// commitShape creates a shape and immediately moves it once.
func (c *client) commitShape(conn *websocket.Conn, x, y float64) error {
	id := uuid.NewString()
	if err := c.send(conn, outbound{
		Type:      "chat",
		RoomID:    c.room,
		ShapeID:   id,
		ShapeType: "rect",
		Message:   shapeJSON(x, y),
	}); err != nil {
		return err
	}
	return c.send(conn, outbound{
		Type:    "shapeUpdate",
		RoomID:  c.room,
		ShapeID: id,
		Message: shapeJSON(x+10, y+10),
	})
}

func (c *client) send(conn *websocket.Conn, msg outbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	c.stats.sent.Add(1)
	return nil
}

func shapeJSON(x, y float64) json.RawMessage {
	data, _ := json.Marshal(map[string]float64{"x": x, "y": y, "width": 40, "height": 30})
	quoted, _ := json.Marshal(string(data))
	return quoted
}
