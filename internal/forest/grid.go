// Package forest implements the Forest-Fire cellular automaton: cell states,
// grids, the per-cell transition rule and the sequential stepping path that
// every other execution strategy builds on.
package forest

import (
	"errors"
	"fmt"
)

// ErrInvalidCell is returned when a value outside {Empty, Tree, Fire} is
// found where a cell state is expected.
var ErrInvalidCell = errors.New("invalid cell state")

// Cell is the state of a single grid position.
type Cell uint8

const (
	// Empty is bare ground that may grow a tree.
	Empty Cell = iota
	// Tree may ignite spontaneously or from a burning neighbour.
	Tree
	// Fire burns out to Empty on the next step.
	Fire
)

// Valid reports whether c is one of the three known states.
func (c Cell) Valid() bool { return c <= Fire }

func (c Cell) String() string {
	switch c {
	case Empty:
		return "empty"
	case Tree:
		return "tree"
	case Fire:
		return "fire"
	default:
		return fmt.Sprintf("cell(%d)", uint8(c))
	}
}

// Grid stores cell rows in row-major order. The global grid is square, but
// the same type also carries partial row blocks such as worker regions.
type Grid [][]Cell

// NewGrid allocates an n×n grid of Empty cells.
func NewGrid(n int) Grid {
	return NewRows(n, n)
}

// NewRows allocates a rows×width block of Empty cells backed by one slice.
func NewRows(rows, width int) Grid {
	if rows <= 0 {
		return Grid{}
	}
	if width < 0 {
		width = 0
	}
	backing := make([]Cell, rows*width)
	g := make(Grid, rows)
	for i := range g {
		g[i] = backing[i*width : (i+1)*width : (i+1)*width]
	}
	return g
}

// Height returns the number of rows.
func (g Grid) Height() int { return len(g) }

// Width returns the length of the first row, or 0 for an empty grid.
func (g Grid) Width() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// Clone returns a deep copy of g.
func (g Grid) Clone() Grid {
	out := NewRows(len(g), g.Width())
	for i, row := range g {
		copy(out[i], row)
	}
	return out
}

// Equal reports whether g and other have identical shape and contents.
func (g Grid) Equal(other Grid) bool {
	if len(g) != len(other) {
		return false
	}
	for i := range g {
		if len(g[i]) != len(other[i]) {
			return false
		}
		for j := range g[i] {
			if g[i][j] != other[i][j] {
				return false
			}
		}
	}
	return true
}

// Validate checks that g is rectangular and holds only valid cells.
func (g Grid) Validate() error {
	w := g.Width()
	for i, row := range g {
		if len(row) != w {
			return fmt.Errorf("row %d has width %d, expected %d", i, len(row), w)
		}
		for j, c := range row {
			if !c.Valid() {
				return fmt.Errorf("cell (%d,%d)=%d: %w", i, j, uint8(c), ErrInvalidCell)
			}
		}
	}
	return nil
}

// ValidateSquare is Validate plus the n×n shape check for a global grid.
func (g Grid) ValidateSquare() error {
	if len(g) == 0 {
		return errors.New("grid is empty")
	}
	if g.Width() != len(g) {
		return fmt.Errorf("grid is %dx%d, expected a square", len(g), g.Width())
	}
	return g.Validate()
}

// Count returns how many cells of g hold each state, indexed by Cell.
func (g Grid) Count() [3]int {
	var counts [3]int
	for _, row := range g {
		for _, c := range row {
			if c.Valid() {
				counts[c]++
			}
		}
	}
	return counts
}

// DefaultDensity is the share of cells that start as trees.
const DefaultDensity = 0.6

// NewRandomGrid draws an n×n grid where each cell is a Tree with probability
// density and Empty otherwise.
func NewRandomGrid(n int, density float64, src Source) Grid {
	g := NewGrid(n)
	for i := range g {
		for j := range g[i] {
			if src.Float64() < density {
				g[i][j] = Tree
			}
		}
	}
	return g
}
