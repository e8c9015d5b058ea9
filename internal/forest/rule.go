package forest

import (
	"errors"
	"fmt"
)

// Params are the per-step probabilities of the automaton.
type Params struct {
	GrowthProb float64 `yaml:"growth_prob"`
	IgniteProb float64 `yaml:"spontaneous_ignite_prob"`
}

// DefaultParams returns the classic growth and lightning probabilities.
func DefaultParams() Params {
	return Params{GrowthProb: 0.01, IgniteProb: 0.0001}
}

// Validate checks both probabilities lie in [0, 1].
func (p Params) Validate() error {
	if p.GrowthProb < 0 || p.GrowthProb > 1 {
		return fmt.Errorf("growth probability %v out of [0,1]", p.GrowthProb)
	}
	if p.IgniteProb < 0 || p.IgniteProb > 1 {
		return fmt.Errorf("ignite probability %v out of [0,1]", p.IgniteProb)
	}
	return nil
}

// Next applies the transition rule to one cell.
//
// Empty cells grow a tree when the draw is below GrowthProb. Tree cells always
// consume one draw and burn when it is below IgniteProb or when a Moore
// neighbour was on fire in the prior grid; the neighbour rule is not
// probabilistic. Fire burns out to Empty without consuming a draw.
func Next(c Cell, fireNeighbour bool, p Params, src Source) (Cell, error) {
	switch c {
	case Empty:
		if src.Float64() < p.GrowthProb {
			return Tree, nil
		}
		return Empty, nil
	case Tree:
		if src.Float64() < p.IgniteProb || fireNeighbour {
			return Fire, nil
		}
		return Tree, nil
	case Fire:
		return Empty, nil
	default:
		return c, fmt.Errorf("%w: %d", ErrInvalidCell, uint8(c))
	}
}

// HasFireNeighbour reports whether any of the up to eight cells around
// (i, j) is Fire. Neighbours outside rows are ignored; there is no wrap.
func HasFireNeighbour(rows Grid, i, j int) bool {
	for di := -1; di <= 1; di++ {
		ni := i + di
		if ni < 0 || ni >= len(rows) {
			continue
		}
		row := rows[ni]
		for dj := -1; dj <= 1; dj++ {
			if di == 0 && dj == 0 {
				continue
			}
			nj := j + dj
			if nj < 0 || nj >= len(row) {
				continue
			}
			if row[nj] == Fire {
				return true
			}
		}
	}
	return false
}

// NextAt computes the next state of rows[i][j] against the frozen rows.
func NextAt(rows Grid, i, j int, p Params, src Source) (Cell, error) {
	c := rows[i][j]
	fire := c == Tree && HasFireNeighbour(rows, i, j)
	next, err := Next(c, fire, p, src)
	if err != nil {
		return c, fmt.Errorf("cell (%d,%d): %w", i, j, err)
	}
	return next, nil
}

// StepRows computes the next state of rows [from, to) of rows, using every
// row of rows as read-only neighbour context. Draws are consumed in row-major
// order. The result has to-from rows; rows itself is never written.
func StepRows(rows Grid, from, to int, p Params, src Source) (Grid, error) {
	if from < 0 || to > len(rows) || from > to {
		return nil, fmt.Errorf("row window [%d,%d) outside %d rows", from, to, len(rows))
	}
	next := NewRows(to-from, rows.Width())
	for i := from; i < to; i++ {
		out := next[i-from]
		if len(rows[i]) != len(out) {
			return nil, errors.New("rows are not rectangular")
		}
		for j := range rows[i] {
			c, err := NextAt(rows, i, j, p, src)
			if err != nil {
				return nil, err
			}
			out[j] = c
		}
	}
	return next, nil
}

// Step advances the whole grid by one generation on the calling goroutine.
func Step(g Grid, p Params, src Source) (Grid, error) {
	return StepRows(g, 0, len(g), p, src)
}
