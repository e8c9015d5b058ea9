// Package parallel advances forest-fire grids with a fixed pool of goroutines.
//
// The flat cell index range is cut into nearly equal chunks. Each task reads
// the shared prior rows, writes only its own private chunk, and the chunks are
// merged after every task has joined. No task writes into another task's
// output, so no locking is needed.
package parallel

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/forestfire/internal/forest"
)

const (
	// DefaultThreshold is the grid area below which coordination overhead
	// outweighs the benefit of splitting work (a 400×400 grid).
	DefaultThreshold = 400 * 400

	// minChunk is the smallest chunk worth handing to a goroutine.
	minChunk = 100
)

// Stepper computes next states with up to Tasks goroutines.
type Stepper struct {
	// Tasks is the pool size and the number of chunks.
	Tasks int

	// Threshold is the cell count below which the sequential engine runs.
	Threshold int

	// Seed derives one random stream per chunk and per call.
	Seed uint64

	calls atomic.Uint64
}

// New returns a Stepper with the default threshold.
func New(tasks int, seed uint64) *Stepper {
	if tasks < 1 {
		tasks = 1
	}
	return &Stepper{Tasks: tasks, Threshold: DefaultThreshold, Seed: seed}
}

// Chunk is the half-open flat cell range [Lo, Hi).
type Chunk struct {
	Lo, Hi int
}

// Chunks splits total cells into k ranges; the last takes the remainder.
func Chunks(total, k int) []Chunk {
	if k < 1 {
		k = 1
	}
	size := total / k
	out := make([]Chunk, k)
	for i := 0; i < k; i++ {
		lo := i * size
		hi := lo + size
		if i == k-1 {
			hi = total
		}
		out[i] = Chunk{Lo: lo, Hi: hi}
	}
	return out
}

// Step advances a whole grid by one generation.
func (s *Stepper) Step(ctx context.Context, g forest.Grid, p forest.Params) (forest.Grid, error) {
	return s.StepRows(ctx, g, 0, len(g), p)
}

// StepRows computes rows [from, to) of rows using all of rows as read-only
// context, which is how a worker computes the interior of a halo region.
func (s *Stepper) StepRows(ctx context.Context, rows forest.Grid, from, to int, p forest.Params) (forest.Grid, error) {
	if from < 0 || to > len(rows) || from > to {
		return nil, fmt.Errorf("row window [%d,%d) outside %d rows", from, to, len(rows))
	}
	call := s.calls.Add(1)
	width := rows.Width()
	total := (to - from) * width
	tasks := max(s.Tasks, 1)

	if total < s.Threshold || total/tasks < minChunk || tasks == 1 {
		return forest.StepRows(rows, from, to, p, forest.NewSource(s.Seed, call<<16))
	}

	chunks := Chunks(total, tasks)
	results := make([][]forest.Cell, len(chunks))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(tasks)
	for idx, ch := range chunks {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src := forest.NewSource(s.Seed, call<<16|uint64(idx))
			out := make([]forest.Cell, ch.Hi-ch.Lo)
			for k := ch.Lo; k < ch.Hi; k++ {
				i, j := from+k/width, k%width
				c, err := forest.NextAt(rows, i, j, p, src)
				if err != nil {
					return err
				}
				out[k-ch.Lo] = c
			}
			results[idx] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	next := forest.NewRows(to-from, width)
	for idx, ch := range chunks {
		for k, c := range results[idx] {
			flat := ch.Lo + k
			next[flat/width][flat%width] = c
		}
	}
	return next, nil
}
