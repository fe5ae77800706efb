package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"whiteboard/internal/auth"
	"whiteboard/internal/config"
	"whiteboard/internal/history"
	"whiteboard/internal/logging"
	"whiteboard/internal/middleware"
	"whiteboard/internal/redis"
	"whiteboard/internal/socket"
	"whiteboard/internal/store"
	"whiteboard/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, logCloser, err := logging.New(logging.Config{
		Level:   cfg.LogLevel,
		Dir:     cfg.LogDir,
		Console: cfg.LogConsole,
		Dev:     cfg.Dev,
		Name:    "server",
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	pingCtx, cancel := context.WithTimeout(ctx, cfg.RedisOpTimeout())
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis not reachable at startup", "addr", cfg.RedisAddr, "error", err)
	}
	cancel()

	members := redis.NewRedisStore(rdb, cfg.RedisOpTimeout())
	queue := redis.NewQueue(rdb, cfg.QueueKey)
	writer := redis.NewQueueWriter(queue, log.With("component", "queue"), redis.QueueWriterConfig{
		BufferSize: cfg.QueueBuffer,
		Workers:    cfg.QueueWorkers,
		OpTimeout:  cfg.RedisOpTimeout(),
	})

	shapes, err := store.Open(ctx, store.Config{
		Driver:   cfg.StoreDriver,
		DSN:      cfg.StoreDSN,
		Database: cfg.MongoDatabase,
	}, log)
	if err != nil {
		_ = rdb.Close()
		return err
	}
	defer shapes.Close()

	metrics := socket.NewMetrics()
	metrics.ObserveQueueWriter(writer)

	hub := socket.NewHub(cfg, log.With("component", "hub"), metrics, members, writer)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", socket.WSHandler(hub, auth.NewVerifier(cfg.JWTSecret)))
	mux.HandleFunc("GET /chats/{roomId}", history.Handler(shapes, log, cfg.RedisOpTimeout()))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", socket.MetricsHandler(metrics))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           middleware.Recovery(log, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		log.Info("websocket server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.RunWorker {
		w := worker.New(queue, shapes, log.With("component", "worker"), cfg.WorkerBackoff())
		metrics.ObserveWorker(w)
		g.Go(func() error {
			if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if werr := writer.Shutdown(shutdownCtx); werr != nil {
			log.Warn("queue writer did not drain", "error", werr)
		}
		// Closing the client also unblocks a worker parked in BRPOP.
		_ = rdb.Close()
		return err
	})

	return g.Wait()
}
