package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/forestfire/internal/band"
	"github.com/dreamware/forestfire/internal/census"
	"github.com/dreamware/forestfire/internal/cluster"
	"github.com/dreamware/forestfire/internal/forest"
)

var (
	// ErrInvalidState is returned when a method is called in a lifecycle
	// state that does not allow it.
	ErrInvalidState = errors.New("invalid coordinator state")

	// ErrNoActiveWorkers is returned by Step once every worker has been
	// retired under the freeze policy.
	ErrNoActiveWorkers = errors.New("no active workers")
)

// State is a coordinator lifecycle state. States only move forward.
type State int

const (
	StateNew       State = iota // Created, not yet listening
	StateListening              // Listener bound
	StateAccepting              // Waiting for workers
	StateRunning                // All workers registered; iterations may run
	StateFailed                 // An iteration aborted; only Drain and Close remain
	StateDraining               // Sending Terminate
	StateClosed                 // Connections and listener closed
)

var stateNames = [...]string{"new", "listening", "accepting", "running", "failed", "draining", "closed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// FailurePolicy decides what a failed exchange does to the run.
type FailurePolicy string

const (
	// PolicyAbort stops the run at the first failed exchange.
	PolicyAbort FailurePolicy = "abort"
	// PolicyFreeze keeps the failed band's previous rows, retires the worker
	// and carries on. The band stays frozen for the rest of the run.
	PolicyFreeze FailurePolicy = "freeze"
)

// Validate rejects unknown policies.
func (p FailurePolicy) Validate() error {
	switch p {
	case PolicyAbort, PolicyFreeze:
		return nil
	}
	return fmt.Errorf("unknown failure policy %q", string(p))
}

// Dispatch decides how Work is exchanged with workers within one iteration.
type Dispatch string

const (
	// DispatchSerial sends to every worker in index order, then receives in
	// index order.
	DispatchSerial Dispatch = "serial"
	// DispatchConcurrent runs one send-then-receive exchange per worker on
	// its own goroutine.
	DispatchConcurrent Dispatch = "concurrent"
)

// Validate rejects unknown dispatch modes.
func (d Dispatch) Validate() error {
	switch d {
	case DispatchSerial, DispatchConcurrent:
		return nil
	}
	return fmt.Errorf("unknown dispatch mode %q", string(d))
}

// DefaultReportEvery is the progress log interval in iterations.
const DefaultReportEvery = 20

// Config holds coordinator settings.
type Config struct {
	ListenAddr    string          // TCP address to accept workers on
	Workers       int             // Number of workers to wait for
	Params        forest.Params   // Probabilities sent with every Work
	AcceptTimeout time.Duration   // Bound on Accept (0 = until ctx is done)
	IOTimeout     time.Duration   // Per send and per receive deadline (0 = none)
	FailurePolicy FailurePolicy   // Empty means PolicyAbort
	Dispatch      Dispatch        // Empty means DispatchSerial
	ReportEvery   int             // Progress log interval (0 = silent)
	Recorder      census.Recorder // Census sink; nil means in memory
}

// DefaultConfig returns a configuration for workers workers on addr with the
// classic probabilities.
func DefaultConfig(addr string, workers int) Config {
	return Config{
		ListenAddr:    addr,
		Workers:       workers,
		Params:        forest.DefaultParams(),
		AcceptTimeout: 60 * time.Second,
		IOTimeout:     30 * time.Second,
		FailurePolicy: PolicyAbort,
		Dispatch:      DispatchSerial,
		ReportEvery:   DefaultReportEvery,
	}
}

func (c Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("worker count %d must be positive", c.Workers)
	}
	if err := c.Params.Validate(); err != nil {
		return err
	}
	if err := c.FailurePolicy.Validate(); err != nil {
		return err
	}
	return c.Dispatch.Validate()
}

// WorkerError reports a failed exchange with one worker. Err wraps one of
// the cluster error kinds.
type WorkerError struct {
	Index     int    // Worker (and band) index
	Iteration int    // Iteration being computed
	Op        string // "send", "receive" or "validate"
	Err       error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d, iteration %d: %s: %v", e.Index, e.Iteration, e.Op, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// IterationReport describes how an iteration was computed.
type IterationReport struct {
	Iteration int
	Stale     []band.Band // Bands holding the previous iteration's rows
	Elapsed   time.Duration
}

// StaleRows returns the number of rows carried over unchanged.
func (r IterationReport) StaleRows() int {
	n := 0
	for _, b := range r.Stale {
		n += b.Height()
	}
	return n
}

// Coordinator owns the global grid and drives workers through iterations.
// Step, Run and Drain must be called from one goroutine; Close may be
// called from any goroutine to interrupt them.
type Coordinator struct {
	cfg      Config
	registry *WorkerRegistry
	health   *HealthMonitor
	census   census.Recorder

	mu    sync.Mutex // Protects state and ln
	state State
	ln    net.Listener
}

// New creates a coordinator in StateNew.
func New(cfg Config) *Coordinator {
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = PolicyAbort
	}
	if cfg.Dispatch == "" {
		cfg.Dispatch = DispatchSerial
	}
	if cfg.Recorder == nil {
		cfg.Recorder = census.NewMemoryRecorder()
	}

	c := &Coordinator{
		cfg:      cfg,
		registry: NewWorkerRegistry(cfg.Workers),
		// A failed exchange leaves the stream in an unknown position, so
		// one failure is enough.
		health: NewHealthMonitor(1),
		census: cfg.Recorder,
	}
	c.health.SetOnUnhealthy(func(index int) {
		log.Printf("worker %d is unhealthy and will receive no more work", index)
	})
	return c
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Registry returns the worker registry.
func (c *Coordinator) Registry() *WorkerRegistry { return c.registry }

// Health returns the worker health monitor.
func (c *Coordinator) Health() *HealthMonitor { return c.health }

// Census returns the recorder Run writes to.
func (c *Coordinator) Census() census.Recorder { return c.census }

// expect returns ErrInvalidState unless the coordinator is in want.
func (c *Coordinator) expect(want State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != want {
		return fmt.Errorf("%w: %s, expected %s", ErrInvalidState, c.state, want)
	}
	return nil
}

// advance moves from one state to the next, failing if another goroutine
// (Close) got there first.
func (c *Coordinator) advance(from, to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return fmt.Errorf("%w: %s, expected %s", ErrInvalidState, c.state, from)
	}
	c.state = to
	return nil
}

// Listen binds the listener.
func (c *Coordinator) Listen() error {
	if err := c.expect(StateNew); err != nil {
		return err
	}
	if err := c.cfg.validate(); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", c.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("%w: listen %s: %v", cluster.ErrConnection, c.cfg.ListenAddr, err)
	}

	c.mu.Lock()
	if c.state != StateNew {
		c.mu.Unlock()
		ln.Close()
		return fmt.Errorf("%w: closed while binding", ErrInvalidState)
	}
	c.ln = ln
	c.state = StateListening
	c.mu.Unlock()

	log.Printf("coordinator listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound listener address, or nil before Listen.
func (c *Coordinator) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln == nil {
		return nil
	}
	return c.ln.Addr()
}

// Accept blocks until cfg.Workers workers have connected. Each worker's
// index is its position in acceptance order. The listener is closed once
// the last worker is in; later connection attempts are refused.
//
// Cancelling ctx, or exceeding cfg.AcceptTimeout, closes the listener and
// returns an error wrapping both cluster.ErrConnection and the context
// error.
func (c *Coordinator) Accept(ctx context.Context) error {
	if err := c.advance(StateListening, StateAccepting); err != nil {
		return err
	}
	if c.cfg.AcceptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.AcceptTimeout)
		defer cancel()
	}

	c.mu.Lock()
	ln := c.ln
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	log.Printf("waiting for %d workers", c.registry.Capacity())
	for !c.registry.Full() {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %d of %d workers connected: %w",
					cluster.ErrConnection, c.registry.Len(), c.cfg.Workers, ctx.Err())
			}
			return fmt.Errorf("%w: accept: %v", cluster.ErrConnection, err)
		}
		info, err := c.registry.Register(conn)
		if err != nil {
			conn.Close()
			return err
		}
		c.health.Track(info.Index)
		log.Printf("worker %d connected from %s", info.Index, info.Addr)
	}

	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Printf("close listener: %v", err)
	}
	return c.advance(StateAccepting, StateRunning)
}

// outcome is the result of one worker's exchange within an iteration.
type outcome struct {
	band    band.Band
	rows    forest.Grid
	op      string
	err     error
	done    bool // Exchange finished, with rows or with err
	skipped bool // Worker retired; band left stale
}

// Step computes iteration i from g and returns the new grid. g is not
// modified. The new grid is returned only after every band has been
// received, validated and stitched; this is the barrier between
// iterations.
//
// Under PolicyAbort the first failure, in worker index order, is returned
// as a *WorkerError and the failed worker is retired. Under PolicyFreeze
// failed bands keep their rows from g, are listed in the report, and their
// workers are retired. Cancelling ctx interrupts in-flight exchanges and
// returns the context error.
//
// An abort or a cancellation can leave unread replies on other workers'
// connections, so either one moves the coordinator to StateFailed and every
// later Step returns ErrInvalidState.
func (c *Coordinator) Step(ctx context.Context, i int, g forest.Grid) (forest.Grid, IterationReport, error) {
	report := IterationReport{Iteration: i}
	if err := c.expect(StateRunning); err != nil {
		return nil, report, err
	}
	if err := g.ValidateSquare(); err != nil {
		return nil, report, fmt.Errorf("%w: %w", cluster.ErrValidation, err)
	}
	bands, err := band.Partition(len(g), c.registry.Len())
	if err != nil {
		return nil, report, fmt.Errorf("%w: %w", cluster.ErrValidation, err)
	}
	if c.registry.ActiveCount() == 0 {
		return nil, report, ErrNoActiveWorkers
	}

	start := time.Now()
	stop := context.AfterFunc(ctx, c.interrupt)
	defer stop()

	var outcomes []outcome
	if c.cfg.Dispatch == DispatchConcurrent {
		outcomes = c.dispatchConcurrent(ctx, g, bands)
	} else {
		outcomes = c.dispatchSerial(ctx, g, bands)
	}

	next := g.Clone()
	for _, o := range outcomes {
		if o.skipped {
			report.Stale = append(report.Stale, o.band)
			continue
		}
		if !o.done {
			continue
		}
		if o.err == nil {
			if err := band.Stitch(next, o.band, o.rows); err != nil {
				o.op, o.err = "validate", fmt.Errorf("%w: %v", cluster.ErrValidation, err)
			}
		}
		if o.err == nil {
			c.health.RecordSuccess(o.band.Index)
			continue
		}
		if err := ctx.Err(); err != nil {
			c.fail()
			return nil, report, err
		}

		werr := &WorkerError{Index: o.band.Index, Iteration: i, Op: o.op, Err: o.err}
		if c.cfg.FailurePolicy == PolicyAbort {
			c.health.MarkUnhealthy(o.band.Index, werr)
			c.retire(o.band.Index)
			c.fail()
			return nil, report, werr
		}
		c.health.RecordFailure(o.band.Index, werr)
		log.Printf("WARNING: %s left stale: %v", o.band, werr)
		c.retire(o.band.Index)
		report.Stale = append(report.Stale, o.band)
	}

	report.Elapsed = time.Since(start)
	return next, report, nil
}

// fail moves a running coordinator to StateFailed.
func (c *Coordinator) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRunning {
		c.state = StateFailed
	}
}

func (c *Coordinator) retire(index int) {
	if err := c.registry.Retire(index); err != nil {
		log.Printf("retire worker %d: %v", index, err)
	}
}

// dispatchSerial sends Work to every active worker in index order, then
// receives in index order. Under PolicyAbort it stops at the first failure.
func (c *Coordinator) dispatchSerial(ctx context.Context, g forest.Grid, bands []band.Band) []outcome {
	out := make([]outcome, len(bands))
	stopEarly := func() bool { return c.cfg.FailurePolicy == PolicyAbort || ctx.Err() != nil }

	conns := make([]net.Conn, len(bands))
	for i, b := range bands {
		out[i].band = b
		if !c.registry.Active(b.Index) {
			out[i].skipped = true
			continue
		}
		conn, err := c.registry.Conn(b.Index)
		if err == nil {
			err = c.send(ctx, conn, g, b)
		}
		if err != nil {
			out[i].op, out[i].err, out[i].done = "send", err, true
			if stopEarly() {
				return out
			}
			continue
		}
		conns[i] = conn
	}

	for i, conn := range conns {
		if conn == nil {
			continue
		}
		out[i].rows, out[i].err = c.receive(ctx, conn)
		out[i].done = true
		if out[i].err != nil {
			out[i].op = "receive"
			if stopEarly() {
				return out
			}
		}
	}
	return out
}

// dispatchConcurrent runs one exchange per active worker concurrently. Each
// connection still sees exactly one request followed by one response.
func (c *Coordinator) dispatchConcurrent(ctx context.Context, g forest.Grid, bands []band.Band) []outcome {
	out := make([]outcome, len(bands))

	var eg errgroup.Group
	for i, b := range bands {
		out[i].band = b
		if !c.registry.Active(b.Index) {
			out[i].skipped = true
			continue
		}
		eg.Go(func() error {
			o := &out[i]
			defer func() { o.done = true }()

			conn, err := c.registry.Conn(b.Index)
			if err == nil {
				err = c.send(ctx, conn, g, b)
			}
			if err != nil {
				o.op, o.err = "send", err
				return nil
			}
			if o.rows, o.err = c.receive(ctx, conn); o.err != nil {
				o.op = "receive"
			}
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

func (c *Coordinator) send(ctx context.Context, conn net.Conn, g forest.Grid, b band.Band) error {
	region, err := band.Extract(g, b)
	if err != nil {
		return fmt.Errorf("%w: %w", cluster.ErrValidation, err)
	}
	if err := c.arm(ctx, conn); err != nil {
		return err
	}
	return cluster.WriteRequest(conn, cluster.Work{Region: region, Params: c.cfg.Params})
}

func (c *Coordinator) receive(ctx context.Context, conn net.Conn) (forest.Grid, error) {
	if err := c.arm(ctx, conn); err != nil {
		return nil, err
	}
	res, err := cluster.ReadResult(conn)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// arm sets the per-exchange deadline. The context check comes after the
// deadline is set so a cancellation racing with it is never lost.
func (c *Coordinator) arm(ctx context.Context, conn net.Conn) error {
	var deadline time.Time
	if c.cfg.IOTimeout > 0 {
		deadline = time.Now().Add(c.cfg.IOTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set deadline: %v", cluster.ErrConnection, err)
	}
	return ctx.Err()
}

// interrupt unblocks every in-flight exchange.
func (c *Coordinator) interrupt() {
	for _, w := range c.registry.Workers() {
		if conn, err := c.registry.Conn(w.Index); err == nil {
			_ = conn.SetDeadline(time.Now())
		}
	}
}

// Run computes iterations steps starting from g and returns the final grid.
// A census is recorded after every iteration and progress is logged every
// cfg.ReportEvery iterations. On error the last complete grid is returned
// along with the error.
func (c *Coordinator) Run(ctx context.Context, g forest.Grid, iterations int) (forest.Grid, error) {
	log.Printf("simulating %dx%d for %d iterations on %d workers", len(g), len(g), iterations, c.registry.Len())

	start := time.Now()
	for i := 0; i < iterations; i++ {
		next, report, err := c.Step(ctx, i, g)
		if err != nil {
			return g, err
		}
		g = next

		snap := census.Take(i, g)
		snap.Stale = report.StaleRows()
		if err := c.census.Record(snap); err != nil {
			log.Printf("record census: %v", err)
		}
		if c.cfg.ReportEvery > 0 && i%c.cfg.ReportEvery == 0 {
			log.Printf("%s (%v)", snap, report.Elapsed)
		}
	}
	log.Printf("distributed time: %.4fs", time.Since(start).Seconds())
	return g, nil
}

// Drain sends Terminate to every active worker in index order, then closes
// all connections and the listener. Send failures are collected and
// returned together; they do not stop the drain. Drain is allowed after a
// failed iteration.
func (c *Coordinator) Drain() error {
	c.mu.Lock()
	if c.state != StateRunning && c.state != StateFailed {
		defer c.mu.Unlock()
		return fmt.Errorf("%w: %s, expected %s or %s", ErrInvalidState, c.state, StateRunning, StateFailed)
	}
	c.state = StateDraining
	c.mu.Unlock()

	health := c.health.GetAllWorkerHealth()
	for _, w := range c.registry.Workers() {
		if h, ok := health[w.Index]; ok && h.Status == StatusUnhealthy {
			log.Printf("worker %d unhealthy since %s: %s", w.Index, h.LastCheck.Format(time.RFC3339), h.LastError)
		}
	}

	var errs []error
	for _, w := range c.registry.Workers() {
		if !c.registry.Active(w.Index) {
			continue
		}
		conn, err := c.registry.Conn(w.Index)
		if err == nil {
			err = c.arm(context.Background(), conn)
		}
		if err == nil {
			err = cluster.WriteRequest(conn, cluster.Terminate{})
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("terminate worker %d: %w", w.Index, err))
		}
	}
	log.Printf("drained %d workers", c.registry.ActiveCount())

	if err := c.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close closes the listener and every worker connection without telling
// workers to stop. It is safe to call from any state and more than once.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	ln := c.ln
	c.mu.Unlock()

	var errs []error
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("close listener: %w", err))
		}
	}
	if err := c.registry.CloseAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
