// Package main implements the forest-fire coordinator, which owns the grid
// and runs the simulation either across TCP workers or in process.
//
// Strategies:
//   - distributed: wait for -workers workers on -listen, hand each a row band
//     per iteration, stitch the results
//   - parallel: split each iteration over -threads goroutines
//   - sequential: single goroutine baseline
//
// Configuration is layered: defaults, the YAML file named by -config or
// FOREST_CONFIG, the COORDINATOR_ADDR environment variable, then flags.
//
// Example usage:
//
//	# Coordinator for a 300×300 grid, 20 iterations, two workers
//	./coordinator -size 300 -iterations 20 -workers 2
//
//	# In each worker terminal
//	./worker -addr localhost:8000
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreamware/forestfire/internal/census"
	"github.com/dreamware/forestfire/internal/config"
	"github.com/dreamware/forestfire/internal/coordinator"
	"github.com/dreamware/forestfire/internal/forest"
	"github.com/dreamware/forestfire/internal/parallel"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	cfg, err := config.Parse("coordinator", os.Args[1:], os.Getenv, (*config.Config).BindCoordinator)
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

	if _, err := run(ctx, cfg); err != nil {
		logFatal("coordinator: %v", err)
		return
	}
	log.Println("coordinator stopped")
}

// run builds the initial grid and simulates cfg.Iterations iterations with
// the configured strategy. It returns the final grid.
func run(ctx context.Context, cfg config.Config) (forest.Grid, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	log.Printf("simulation %dx%d, %d iterations, strategy %s, seed %d",
		cfg.Size, cfg.Size, cfg.Iterations, cfg.Strategy, seed)

	src := forest.NewSource(seed, 0)
	g := forest.NewRandomGrid(cfg.Size, cfg.Density, src)
	rec := census.NewMemoryRecorder()

	var (
		final forest.Grid
		err   error
	)
	switch cfg.Strategy {
	case config.StrategyDistributed:
		final, err = runDistributed(ctx, cfg, g, rec)
	case config.StrategyParallel:
		stepper := parallel.New(cfg.Threads, seed)
		final, err = simulate(ctx, cfg, g, rec, func(ctx context.Context, g forest.Grid) (forest.Grid, error) {
			return stepper.Step(ctx, g, cfg.Params)
		})
	case config.StrategySequential:
		final, err = simulate(ctx, cfg, g, rec, func(_ context.Context, g forest.Grid) (forest.Grid, error) {
			return forest.Step(g, cfg.Params, src)
		})
	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Strategy)
	}
	if err != nil {
		return final, err
	}

	if all := rec.All(); len(all) > 0 {
		log.Printf("final %s", all[len(all)-1])
	}
	return final, nil
}

// runDistributed drives the grid through a coordinator and its workers.
// Workers are told to stop on success; on failure or interrupt connections
// are simply closed.
func runDistributed(ctx context.Context, cfg config.Config, g forest.Grid, rec census.Recorder) (forest.Grid, error) {
	ccfg := cfg.Coordinator()
	ccfg.Recorder = rec
	c := coordinator.New(ccfg)
	defer c.Close()

	if err := c.Listen(); err != nil {
		return nil, err
	}
	if err := c.Accept(ctx); err != nil {
		return nil, err
	}

	final, err := c.Run(ctx, g, cfg.Iterations)
	if err != nil {
		return final, err
	}
	if err := c.Drain(); err != nil {
		log.Printf("drain: %v", err)
	}
	return final, nil
}

// stepFunc advances a whole grid by one iteration.
type stepFunc func(ctx context.Context, g forest.Grid) (forest.Grid, error)

// simulate runs the in-process strategies with the same census and progress
// reporting as the distributed one.
func simulate(ctx context.Context, cfg config.Config, g forest.Grid, rec census.Recorder, step stepFunc) (forest.Grid, error) {
	start := time.Now()
	for i := 0; i < cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return g, err
		}
		next, err := step(ctx, g)
		if err != nil {
			return g, fmt.Errorf("iteration %d: %w", i, err)
		}
		g = next

		snap := census.Take(i, g)
		if err := rec.Record(snap); err != nil {
			log.Printf("record census: %v", err)
		}
		if cfg.ReportEvery > 0 && i%cfg.ReportEvery == 0 {
			log.Printf("%s", snap)
		}
	}
	log.Printf("%s time: %.4fs", cfg.Strategy, time.Since(start).Seconds())
	return g, nil
}
