// Package worker implements the worker side of the forest-fire protocol: one
// persistent connection to the coordinator, answering one request at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dreamware/forestfire/internal/cluster"
	"github.com/dreamware/forestfire/internal/forest"
	"github.com/dreamware/forestfire/internal/parallel"
)

// ErrConnectionLost is returned by Serve when the coordinator goes away or
// sends something the worker cannot act on.
var ErrConnectionLost = errors.New("connection lost")

// Worker computes regions sent by the coordinator over conn.
//
// The loop is strictly sequential: read one frame, compute, write one frame.
// A worker never holds more than one unit of work. Computation of a single
// region may be spread over a parallel.Stepper when threads > 1.
type Worker struct {
	conn    net.Conn
	name    string
	seed    uint64
	threads int
	src     forest.Source
	stepper *parallel.Stepper
	stats   Stats

	closeOnce sync.Once
}

// Stats tracks operation counts for a worker
type Stats struct {
	Regions atomic.Uint64 // Work requests answered
	Rows    atomic.Uint64 // Owned rows computed
	Cells   atomic.Uint64 // Cells computed
}

// StatsSnapshot is a point-in-time copy of Stats
type StatsSnapshot struct {
	Regions uint64
	Rows    uint64
	Cells   uint64
}

// Option configures a Worker.
type Option func(*Worker)

// WithSeed seeds the worker's random source. Workers sharing a seed draw
// identical sequences, so give each worker its own.
func WithSeed(seed uint64) Option {
	return func(w *Worker) { w.seed = seed }
}

// WithThreads spreads each region over n goroutines. Values below 2 keep the
// sequential engine.
func WithThreads(n int) Option {
	return func(w *Worker) { w.threads = n }
}

// WithName sets the prefix used in log lines.
func WithName(name string) Option {
	return func(w *Worker) { w.name = name }
}

// New wraps an established connection.
func New(conn net.Conn, opts ...Option) *Worker {
	w := &Worker{
		conn: conn,
		name: conn.LocalAddr().String(),
		seed: uint64(time.Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.src = forest.NewSource(w.seed, 0)
	if w.threads > 1 {
		w.stepper = parallel.New(w.threads, w.seed)
	}
	return w
}

// Serve runs the request loop until the coordinator sends Terminate, the
// connection fails, or ctx is cancelled. A Terminate yields nil; a lost
// connection yields an error wrapping ErrConnectionLost. The connection is
// closed on return.
func (w *Worker) Serve(ctx context.Context) error {
	defer w.Close()

	stop := context.AfterFunc(ctx, func() {
		// Unblock a pending read; the peer may not see a clean shutdown.
		_ = w.conn.SetDeadline(time.Now())
	})
	defer stop()

	for {
		req, err := cluster.ReadRequest(w.conn)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("worker[%s] connection lost: %v", w.name, err)
			return fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}

		switch m := req.(type) {
		case cluster.Terminate:
			log.Printf("worker[%s] terminating after %d regions", w.name, w.stats.Regions.Load())
			return nil
		case cluster.Work:
			rows, err := w.compute(ctx, m)
			if err != nil {
				return fmt.Errorf("compute rows [%d,%d): %w", m.Region.Start, m.Region.End, err)
			}
			if err := cluster.WriteResult(w.conn, cluster.Result{Rows: rows}); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("worker[%s] connection lost: %v", w.name, err)
				return fmt.Errorf("%w: %w", ErrConnectionLost, err)
			}
		}
	}
}

// compute returns exactly the owned rows of the region; halo rows are only
// read.
func (w *Worker) compute(ctx context.Context, work cluster.Work) (forest.Grid, error) {
	from, to := work.Region.Interior()

	var (
		rows forest.Grid
		err  error
	)
	if w.stepper != nil {
		rows, err = w.stepper.StepRows(ctx, work.Region.Rows, from, to, work.Params)
	} else {
		rows, err = forest.StepRows(work.Region.Rows, from, to, work.Params, w.src)
	}
	if err != nil {
		return nil, err
	}

	w.stats.Regions.Add(1)
	w.stats.Rows.Add(uint64(len(rows)))
	w.stats.Cells.Add(uint64(len(rows) * rows.Width()))
	return rows, nil
}

// Stats returns current operation counts.
func (w *Worker) Stats() StatsSnapshot {
	return StatsSnapshot{
		Regions: w.stats.Regions.Load(),
		Rows:    w.stats.Rows.Load(),
		Cells:   w.stats.Cells.Load(),
	}
}

// Close closes the connection. Safe to call more than once.
func (w *Worker) Close() error {
	var err error
	w.closeOnce.Do(func() { err = w.conn.Close() })
	return err
}

// Dial connects to the coordinator, retrying to ride out a coordinator that
// is still starting.
//
// Retry strategy:
//   - attempts tries at most (minimum 1)
//   - delay between tries
//   - ctx cancellation stops retrying immediately
//
// Returns:
//   - the connection on success
//   - an error wrapping cluster.ErrConnection after the last failure
func Dial(ctx context.Context, addr string, attempts int, delay time.Duration) (net.Conn, error) {
	if attempts < 1 {
		attempts = 1
	}
	var (
		d       net.Dialer
		lastErr error
	)
	for i := 0; i < attempts; i++ {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			log.Printf("connected to coordinator @ %s", addr)
			return conn, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		log.Printf("dial retry %d: %v", i+1, err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: dial %s: %w", cluster.ErrConnection, addr, ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("%w: dial %s: %v", cluster.ErrConnection, addr, lastErr)
}
