package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"whiteboard/internal/config"
	"whiteboard/internal/logging"
	"whiteboard/internal/redis"
	"whiteboard/internal/store"
	"whiteboard/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
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
		Name:    "worker",
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shapes, err := store.Open(ctx, store.Config{
		Driver:   cfg.StoreDriver,
		DSN:      cfg.StoreDSN,
		Database: cfg.MongoDatabase,
	}, log)
	if err != nil {
		return err
	}
	defer shapes.Close()

	rdb := redis.NewClient(redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	queue := redis.NewQueue(rdb, cfg.QueueKey)
	w := worker.New(queue, shapes, log, cfg.WorkerBackoff())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// BRPOP with no timeout only returns once the client is closed.
		return rdb.Close()
	})

	err = g.Wait()
	processed, failed := w.Stats()
	log.Info("worker exited", "processed", processed, "failed", failed)
	return err
}
