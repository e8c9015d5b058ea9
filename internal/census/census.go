// Package census records how many cells hold each state after every
// iteration of a run.
package census

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/dreamware/forestfire/internal/forest"
)

// ErrIterationNotFound is returned when no census exists for an iteration
var ErrIterationNotFound = errors.New("iteration not found")

// Census is the population of one grid snapshot
type Census struct {
	Iteration int // Iteration that produced the grid
	Empty     int // Number of empty cells
	Tree      int // Number of tree cells
	Fire      int // Number of burning cells
	Stale     int // Rows left unchanged because a worker failed
}

// Take counts the cells of g for the given iteration
func Take(iteration int, g forest.Grid) Census {
	counts := g.Count()
	return Census{
		Iteration: iteration,
		Empty:     counts[forest.Empty],
		Tree:      counts[forest.Tree],
		Fire:      counts[forest.Fire],
	}
}

// Total returns the number of counted cells
func (c Census) Total() int { return c.Empty + c.Tree + c.Fire }

func (c Census) String() string {
	return fmt.Sprintf("iteration %d: empty=%d tree=%d fire=%d", c.Iteration, c.Empty, c.Tree, c.Fire)
}

// Recorder keeps the census history of a run
// All implementations must be thread-safe for concurrent access
type Recorder interface {
	// Record stores a census, replacing any earlier one for the same iteration
	Record(c Census) error

	// Get returns the census of an iteration
	// Returns ErrIterationNotFound if none was recorded
	Get(iteration int) (Census, error)

	// All returns every census ordered by iteration
	All() []Census

	// Len returns the number of recorded iterations
	Len() int
}

// MemoryRecorder implements Recorder in memory
// Uses sync.RWMutex for thread-safe concurrent access
type MemoryRecorder struct {
	mu   sync.RWMutex   // Protects concurrent access
	data map[int]Census // Census by iteration
}

// NewMemoryRecorder creates an empty in-memory recorder
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		data: make(map[int]Census),
	}
}

// Record stores a census
// Negative iterations are rejected
func (m *MemoryRecorder) Record(c Census) error {
	if c.Iteration < 0 {
		return fmt.Errorf("invalid iteration %d", c.Iteration)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[c.Iteration] = c
	return nil
}

// Get returns the census of an iteration
func (m *MemoryRecorder) Get(iteration int) (Census, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, exists := m.data[iteration]
	if !exists {
		return Census{}, ErrIterationNotFound
	}
	return c, nil
}

// All returns a copy of the history ordered by iteration
func (m *MemoryRecorder) All() []Census {
	m.mu.RLock()
	out := make([]Census, 0, len(m.data))
	for _, c := range m.data {
		out = append(out, c)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b Census) int { return a.Iteration - b.Iteration })
	return out
}

// Len returns the number of recorded iterations
func (m *MemoryRecorder) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
