package coordinator

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/dreamware/forestfire/internal/cluster"
)

// ErrRegistryFull is returned when more workers register than the run needs.
var ErrRegistryFull = errors.New("worker registry full")

// ErrUnknownWorker is returned for an index that was never registered.
var ErrUnknownWorker = errors.New("unknown worker")

// registration is one accepted worker connection.
type registration struct {
	conn    net.Conn
	info    cluster.WorkerInfo
	retired bool
}

// WorkerRegistry holds the workers of a run in acceptance order. The order
// is the authoritative mapping from worker index to band index: the worker
// accepted first computes band 0 for the whole run.
//
// Architecture:
//
//	┌───────────────────────────────────────┐
//	│           WorkerRegistry              │
//	├───────────────────────────────────────┤
//	│  workers: [0]→conn  [1]→conn  ...     │
//	│  capacity: k (fixed for the run)      │
//	├───────────────────────────────────────┤
//	│  Index → Band → Region → Work frame   │
//	└───────────────────────────────────────┘
//
// A retired worker keeps its index and band; it is just no longer sent work.
// Workers never join mid-run and indices are never reused.
//
// Concurrency Model:
//   - Read operations use RLock for parallel access
//   - Register and Retire use Lock
//   - Returned WorkerInfo values are copies
type WorkerRegistry struct {
	// workers is indexed by worker index.
	workers []*registration

	// mu protects workers.
	mu sync.RWMutex

	// capacity is the number of workers the run waits for.
	capacity int
}

// NewWorkerRegistry creates a registry expecting capacity workers.
//
// Example:
//
//	registry := NewWorkerRegistry(4)
//	info, err := registry.Register(conn)
//	// info.Index == 0 for the first connection
func NewWorkerRegistry(capacity int) *WorkerRegistry {
	return &WorkerRegistry{
		workers:  make([]*registration, 0, capacity),
		capacity: capacity,
	}
}

// Register records an accepted connection and assigns it the next index.
//
// Returns:
//   - the worker's info, Index equal to the number of earlier registrations
//   - ErrRegistryFull once capacity workers are registered
//
// Thread Safety:
// Safe for concurrent use; indices follow the order in which Register
// calls acquire the lock.
func (r *WorkerRegistry) Register(conn net.Conn) (cluster.WorkerInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.workers) >= r.capacity {
		return cluster.WorkerInfo{}, fmt.Errorf("%w: %d workers", ErrRegistryFull, r.capacity)
	}
	info := cluster.WorkerInfo{Index: len(r.workers), Addr: conn.RemoteAddr().String()}
	r.workers = append(r.workers, &registration{conn: conn, info: info})
	return info, nil
}

// Conn returns the connection of worker index.
func (r *WorkerRegistry) Conn(index int) (net.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if index < 0 || index >= len(r.workers) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownWorker, index)
	}
	return r.workers[index].conn, nil
}

// Workers returns every registered worker ordered by index.
func (r *WorkerRegistry) Workers() []cluster.WorkerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]cluster.WorkerInfo, len(r.workers))
	for i, w := range r.workers {
		out[i] = w.info
	}
	return out
}

// Retire closes a worker's connection and stops it receiving work. The
// index stays allocated. Retiring twice is a no-op.
func (r *WorkerRegistry) Retire(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index >= len(r.workers) {
		return fmt.Errorf("%w: %d", ErrUnknownWorker, index)
	}
	w := r.workers[index]
	if w.retired {
		return nil
	}
	w.retired = true
	return w.conn.Close()
}

// Active reports whether worker index is registered and not retired.
func (r *WorkerRegistry) Active(index int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return index >= 0 && index < len(r.workers) && !r.workers[index].retired
}

// ActiveCount returns the number of registered workers still receiving work.
func (r *WorkerRegistry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, w := range r.workers {
		if !w.retired {
			n++
		}
	}
	return n
}

// Len returns the number of registered workers, retired ones included.
func (r *WorkerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// Capacity returns the number of workers the run waits for.
func (r *WorkerRegistry) Capacity() int {
	return r.capacity
}

// Full reports whether every expected worker has registered.
func (r *WorkerRegistry) Full() bool {
	return r.Len() >= r.capacity
}

// CloseAll closes every connection that is not already retired and returns
// the joined close errors.
func (r *WorkerRegistry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, w := range r.workers {
		if w.retired {
			continue
		}
		w.retired = true
		if err := w.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close worker %d: %w", w.info.Index, err))
		}
	}
	return errors.Join(errs...)
}
