// Package coordinator drives a distributed forest-fire simulation over a
// fixed set of TCP workers.
//
// # Overview
//
// The coordinator owns the global grid. Each iteration it splits the grid
// into one contiguous row band per worker, sends every worker its band
// padded with one halo row on each interior side, collects the computed
// rows and stitches them into the next grid. No iteration starts before the
// previous one is fully assembled.
//
// # Architecture
//
//	                 ┌─────────────────┐
//	                 │   Coordinator   │
//	                 │  grid (n × n)   │
//	                 └────────┬────────┘
//	      Work(band 0)        │        Work(band k-1)
//	     ┌────────────────────┼────────────────────┐
//	     ▼                    ▼                    ▼
//	┌──────────┐        ┌──────────┐         ┌──────────┐
//	│ Worker 0 │        │ Worker 1 │   ...   │ Worker k │
//	└──────────┘        └──────────┘         └──────────┘
//
// Core components:
//
// WorkerRegistry: workers in acceptance order
//   - Index i is assigned to the i-th accepted connection
//   - Worker i computes band i for the whole run
//   - Retired workers keep their index
//
// HealthMonitor: outcome of every exchange
//   - Status unknown, healthy or unhealthy per worker
//   - Callback when a worker turns unhealthy
//
// # Lifecycle
//
//	New → Listen → Accept → Step/Run ... → Drain
//	 │       │        │          │            │
//	new  listening accepting  running   draining → closed
//	                              │            ▲
//	                              └─ failed ───┘
//
// Calling a method in the wrong state returns ErrInvalidState. An aborted
// or cancelled Step moves to failed, where only Drain and Close are
// allowed. Close moves to closed from any state.
//
// # Iteration Protocol
//
// With serial dispatch (the default) one iteration is:
//
//  1. Partition the n rows into k bands (the last takes the remainder)
//  2. Send Work to workers 0..k-1 in order
//  3. Receive a Result from workers 0..k-1 in order
//  4. Check each Result has exactly the band's height at width n
//  5. Stitch all bands into a fresh grid
//
// Concurrent dispatch runs steps 2 and 3 per worker on separate goroutines.
// Each connection still carries strictly one request then one response.
//
// # Failure Handling
//
// Every exchange has a deadline (Config.IOTimeout). A failed send, receive
// or validation produces a *WorkerError that unwraps to one of the
// cluster error kinds:
//
//	errors.Is(err, cluster.ErrConnection) // peer gone, timeout
//	errors.Is(err, cluster.ErrFraming)    // bad frame or message shape
//	errors.Is(err, cluster.ErrValidation) // wrong row count, bad cells
//
// PolicyAbort returns the first failure in worker order, retires that
// worker and ends the run. Other connections may still hold a reply to the
// aborted request, so no further Step is accepted.
// PolicyFreeze keeps the failed band's previous rows, closes the worker's
// connection and never sends it work again; the band stays frozen for the
// rest of the run and each IterationReport lists it as stale.
//
// # Usage Example
//
//	c := coordinator.New(coordinator.DefaultConfig("localhost:8000", 4))
//	if err := c.Listen(); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//	if err := c.Accept(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	final, err := c.Run(ctx, forest.NewRandomGrid(300, 0.6, src), 100)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = c.Drain()
//
// # See Also
//
//   - internal/band: partitioning and halo extraction
//   - internal/cluster: wire messages and framing
//   - internal/worker: the other end of each connection
package coordinator
