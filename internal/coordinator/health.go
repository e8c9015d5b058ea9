package coordinator

import (
	"log"
	"sync"
	"time"
)

// Worker health statuses.
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// WorkerHealth tracks the exchange history of a single worker.
// Thread-safe: Protected by HealthMonitor's mutex when accessed.
type WorkerHealth struct {
	LastCheck        time.Time // Timestamp of the last exchange attempt
	LastHealthy      time.Time // Timestamp of the last successful exchange
	LastError        string    // Most recent failure, empty after a success
	Status           string    // Current status: "healthy", "unhealthy", "unknown"
	Index            int       // Worker index (acceptance order)
	ConsecutiveFails int       // Number of consecutive failed exchanges
}

// HealthMonitor records the outcome of every exchange the coordinator has
// with its workers. Unlike a prober it never contacts workers itself: each
// iteration is the health check.
//
// A worker starts "unknown", turns "healthy" after its first good exchange,
// and becomes "unhealthy" after maxFailures consecutive failures or when
// MarkUnhealthy is called. An unhealthy worker stays unhealthy; its
// connection can no longer be trusted to be in step with the coordinator.
//
// Thread-safe: All methods are safe for concurrent access.
type HealthMonitor struct {
	workers     map[int]*WorkerHealth // Current health per worker index
	onUnhealthy func(index int)       // Callback when a worker becomes unhealthy
	mu          sync.RWMutex          // Protects workers and onUnhealthy
	maxFailures int                   // Consecutive failures before unhealthy
}

// NewHealthMonitor creates a monitor that marks a worker unhealthy after
// maxFailures consecutive failed exchanges. Values below 1 mean 1.
//
// Example:
//
//	monitor := NewHealthMonitor(3)
//	monitor.Track(0)
//	monitor.RecordFailure(0, err)
func NewHealthMonitor(maxFailures int) *HealthMonitor {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &HealthMonitor{
		maxFailures: maxFailures,
		workers:     make(map[int]*WorkerHealth),
	}
}

// SetOnUnhealthy sets the callback invoked, on its own goroutine, when a
// worker transitions to unhealthy.
func (h *HealthMonitor) SetOnUnhealthy(callback func(index int)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onUnhealthy = callback
}

// Track starts monitoring a worker. Tracking an index twice resets it.
func (h *HealthMonitor) Track(index int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	h.workers[index] = &WorkerHealth{
		Index:       index,
		Status:      StatusUnknown,
		LastCheck:   now,
		LastHealthy: now,
	}
}

// RecordSuccess notes a completed exchange. It does not revive an
// unhealthy worker.
func (h *HealthMonitor) RecordSuccess(index int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	health := h.get(index)
	now := time.Now()
	health.LastCheck = now
	if health.Status == StatusUnhealthy {
		return
	}
	health.Status = StatusHealthy
	health.ConsecutiveFails = 0
	health.LastHealthy = now
	health.LastError = ""
}

// RecordFailure notes a failed exchange and reports whether this failure
// made the worker unhealthy.
func (h *HealthMonitor) RecordFailure(index int, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	health := h.get(index)
	health.LastCheck = time.Now()
	health.ConsecutiveFails++
	if err != nil {
		health.LastError = err.Error()
	}
	log.Printf("Exchange with worker %d failed (attempt %d/%d): %v",
		index, health.ConsecutiveFails, h.maxFailures, err)

	if health.ConsecutiveFails >= h.maxFailures {
		return h.markUnhealthy(health)
	}
	return false
}

// MarkUnhealthy marks a worker unhealthy regardless of its failure count
// and reports whether its status changed.
func (h *HealthMonitor) MarkUnhealthy(index int, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	health := h.get(index)
	health.LastCheck = time.Now()
	if err != nil {
		health.LastError = err.Error()
	}
	return h.markUnhealthy(health)
}

// markUnhealthy must be called with h.mu held.
func (h *HealthMonitor) markUnhealthy(health *WorkerHealth) bool {
	if health.Status == StatusUnhealthy {
		return false
	}
	health.Status = StatusUnhealthy
	log.Printf("Worker %d marked as unhealthy after %d failures", health.Index, health.ConsecutiveFails)
	if h.onUnhealthy != nil {
		// Call callback without holding the lock
		go h.onUnhealthy(health.Index)
	}
	return true
}

// get returns the record for index, creating it if the worker was never
// tracked. Must be called with h.mu held.
func (h *HealthMonitor) get(index int) *WorkerHealth {
	health, exists := h.workers[index]
	if !exists {
		now := time.Now()
		health = &WorkerHealth{Index: index, Status: StatusUnknown, LastCheck: now, LastHealthy: now}
		h.workers[index] = health
	}
	return health
}

// GetWorkerHealth returns a copy of a worker's health, or nil if the worker
// is not being monitored.
func (h *HealthMonitor) GetWorkerHealth(index int) *WorkerHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.workers[index]
	if !exists {
		return nil
	}
	// Return a copy to prevent external modification
	c := *health
	return &c
}

// GetAllWorkerHealth returns copies of every worker's health keyed by index.
func (h *HealthMonitor) GetAllWorkerHealth() map[int]*WorkerHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[int]*WorkerHealth, len(h.workers))
	for index, health := range h.workers {
		c := *health
		result[index] = &c
	}
	return result
}

// IsHealthy reports whether a worker's last exchange succeeded. Unknown and
// unmonitored workers are not healthy.
func (h *HealthMonitor) IsHealthy(index int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.workers[index]
	return exists && health.Status == StatusHealthy
}

// IsUnhealthy reports whether a worker has been given up on.
func (h *HealthMonitor) IsUnhealthy(index int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.workers[index]
	return exists && health.Status == StatusUnhealthy
}
