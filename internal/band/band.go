// Package band splits a square grid into contiguous row bands, one per
// worker, and builds the halo-padded regions that workers compute on.
package band

import (
	"fmt"

	"github.com/dreamware/forestfire/internal/forest"
)

// Band is the half-open row range [Start, End) owned by the worker with
// the given acceptance Index.
type Band struct {
	Index int
	Start int
	End   int
}

// Height is the number of rows in the band.
func (b Band) Height() int { return b.End - b.Start }

func (b Band) String() string {
	return fmt.Sprintf("band %d [%d,%d)", b.Index, b.Start, b.End)
}

// Partition divides n rows among k workers. Workers 0..k-2 get n/k rows and
// the last worker also takes the remainder, so every band but the last has
// the same height.
//
// Parameters:
//   - n: grid height, must be >= 1
//   - k: worker count, must satisfy 1 <= k <= n
//
// Returns:
//   - k bands ordered by index, disjoint, covering [0, n)
//
// Example:
//
//	bands, _ := Partition(10, 3)
//	// [0,3) [3,6) [6,10)
func Partition(n, k int) ([]Band, error) {
	if n < 1 {
		return nil, fmt.Errorf("grid height %d must be positive", n)
	}
	if k < 1 || k > n {
		return nil, fmt.Errorf("worker count %d must be in [1, %d]", k, n)
	}

	size := n / k
	bands := make([]Band, k)
	for i := 0; i < k; i++ {
		start := i * size
		end := start + size
		if i == k-1 {
			end = n
		}
		bands[i] = Band{Index: i, Start: start, End: end}
	}
	return bands, nil
}

// Stitch copies rows into dst at b's global offset after checking that the
// worker returned exactly the band's height at dst's width. Nothing is
// copied unless every row passes.
func Stitch(dst forest.Grid, b Band, rows forest.Grid) error {
	if len(rows) != b.Height() {
		return fmt.Errorf("%s: got %d rows, expected %d", b, len(rows), b.Height())
	}
	if b.Start < 0 || b.End > len(dst) {
		return fmt.Errorf("%s outside grid of %d rows", b, len(dst))
	}
	width := dst.Width()
	for i, row := range rows {
		if len(row) != width {
			return fmt.Errorf("%s: row %d has width %d, expected %d", b, i, len(row), width)
		}
	}
	for i, row := range rows {
		copy(dst[b.Start+i], row)
	}
	return nil
}
