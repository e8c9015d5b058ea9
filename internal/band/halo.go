package band

import (
	"errors"
	"fmt"

	"github.com/dreamware/forestfire/internal/forest"
)

// Region is the sub-grid sent to a worker: its band's rows plus at most one
// halo row above and one below. Halo rows are neighbour context only and
// are never part of a worker's answer.
type Region struct {
	// Rows holds the halo-padded rows in global order.
	Rows forest.Grid

	// Start and End are the global bounds [Start, End) of the owned rows.
	Start int
	End   int

	// HaloOffset is the number of halo rows before Start (0 or 1). Local row
	// HaloOffset corresponds to global row Start.
	HaloOffset int
}

// Extract copies the rows a worker needs for band b out of g: the global
// range [max(0, Start-1), min(n, End+1)) at full width. It never reads
// outside [0, n).
func Extract(g forest.Grid, b Band) (Region, error) {
	n := len(g)
	if b.Start < 0 || b.End > n || b.Start >= b.End {
		return Region{}, fmt.Errorf("%s outside grid of %d rows", b, n)
	}

	lo := max(0, b.Start-1)
	hi := min(n, b.End+1)

	rows := forest.NewRows(hi-lo, g.Width())
	for i := lo; i < hi; i++ {
		copy(rows[i-lo], g[i])
	}

	return Region{
		Rows:       rows,
		Start:      b.Start,
		End:        b.End,
		HaloOffset: b.Start - lo,
	}, nil
}

// Height is the number of owned rows.
func (r Region) Height() int { return r.End - r.Start }

// Interior returns the local row window [from, to) of the owned rows.
func (r Region) Interior() (from, to int) {
	return r.HaloOffset, r.HaloOffset + r.Height()
}

// GlobalRow maps a local row index of Rows to its global row.
func (r Region) GlobalRow(local int) int {
	return r.Start - r.HaloOffset + local
}

// Validate checks the region is self-consistent: a leading halo of 0 or 1
// rows, a trailing halo of 0 or 1 rows, rectangular rows and valid cells.
func (r Region) Validate() error {
	if r.Start < 0 || r.End <= r.Start {
		return fmt.Errorf("invalid row range [%d,%d)", r.Start, r.End)
	}
	if r.HaloOffset != 0 && r.HaloOffset != 1 {
		return fmt.Errorf("halo offset %d must be 0 or 1", r.HaloOffset)
	}
	if r.HaloOffset > r.Start {
		return errors.New("leading halo above row 0")
	}
	trailing := len(r.Rows) - r.HaloOffset - r.Height()
	if trailing != 0 && trailing != 1 {
		return fmt.Errorf("region has %d rows for %d owned rows and offset %d",
			len(r.Rows), r.Height(), r.HaloOffset)
	}
	return r.Rows.Validate()
}

// Step computes the next state of the owned rows using the halo rows as
// read-only context. The result has exactly Height rows.
func (r Region) Step(p forest.Params, src forest.Source) (forest.Grid, error) {
	from, to := r.Interior()
	return forest.StepRows(r.Rows, from, to, p, src)
}
