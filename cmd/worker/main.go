// Package main implements the forest-fire worker, which connects to the
// coordinator once and computes row bands until told to stop.
//
// The worker:
//   - Dials the coordinator, retrying while it starts up
//   - Answers each Work request with the next state of its owned rows
//   - Exits cleanly on Terminate
//   - Exits with status 1 if the coordinator cannot be reached or goes away
//
// Configuration:
//   - -addr or COORDINATOR_ADDR: coordinator address (default "localhost:8000")
//   - -threads: goroutines per band (default 4, 1 = sequential)
//   - -config or FOREST_CONFIG: YAML file with the same keys as the coordinator
//
// Example usage:
//
//	COORDINATOR_ADDR=10.0.0.5:8000 ./worker -threads 8
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreamware/forestfire/internal/config"
	"github.com/dreamware/forestfire/internal/worker"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	cfg, err := config.Parse("worker", os.Args[1:], os.Getenv, (*config.Config).BindWorker)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		logFatal("config: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		log.Println("interrupted, shutting down")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		logFatal("worker: %v", err)
		return
	}
	log.Println("worker stopped")
}

// run connects to the coordinator and serves until Terminate. An interrupt
// is not an error.
func run(ctx context.Context, cfg config.Config) error {
	conn, err := worker.Dial(ctx, cfg.Addr, cfg.DialAttempts, time.Duration(cfg.DialDelay))
	if err != nil {
		return err
	}

	opts := []worker.Option{
		worker.WithThreads(cfg.Threads),
		worker.WithName(conn.LocalAddr().String()),
	}
	if cfg.Seed != 0 {
		opts = append(opts, worker.WithSeed(cfg.Seed))
	}

	w := worker.New(conn, opts...)
	log.Printf("worker[%s] ready, %d threads", conn.LocalAddr(), cfg.Threads)
	if err := w.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	stats := w.Stats()
	log.Printf("worker[%s] processed %d regions, %d rows", conn.LocalAddr(), stats.Regions, stats.Rows)
	return nil
}
