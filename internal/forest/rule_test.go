package forest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gridOf(rows ...[]Cell) Grid { return Grid(rows) }

// TestScenarioLoneFire checks a single burning cell surrounded by empty ground.
func TestScenarioLoneFire(t *testing.T) {
	g := NewGrid(3)
	g[1][1] = Fire

	next, err := Step(g, Params{}, NewSource(1, 0))
	require.NoError(t, err)

	assert.True(t, next.Equal(NewGrid(3)), "expected an all-empty grid, got %v", next)
}

// TestScenarioCornerFire checks that fire spreads to Moore neighbours only.
func TestScenarioCornerFire(t *testing.T) {
	g := gridOf(
		[]Cell{Fire, Tree, Tree},
		[]Cell{Tree, Tree, Tree},
		[]Cell{Tree, Tree, Tree},
	)

	next, err := Step(g, Params{}, NewSource(1, 0))
	require.NoError(t, err)

	want := gridOf(
		[]Cell{Empty, Fire, Tree},
		[]Cell{Fire, Fire, Tree},
		[]Cell{Tree, Tree, Tree},
	)
	assert.Equal(t, want, next)
	assert.Equal(t, Fire, g[0][0], "prior grid must not be written")
}

func TestNextRules(t *testing.T) {
	tests := []struct {
		name string
		cell Cell
		fire bool
		p    Params
		draw float64
		want Cell
	}{
		{"empty grows below growth prob", Empty, false, Params{GrowthProb: 0.5}, 0.4, Tree},
		{"empty stays at growth prob", Empty, false, Params{GrowthProb: 0.5}, 0.5, Empty},
		{"empty ignores burning neighbour", Empty, true, Params{}, 0.0, Empty},
		{"tree ignites spontaneously", Tree, false, Params{IgniteProb: 0.2}, 0.1, Fire},
		{"tree survives", Tree, false, Params{IgniteProb: 0.2}, 0.3, Tree},
		{"tree catches from neighbour with zero ignite prob", Tree, true, Params{}, 0.99, Fire},
		{"fire burns out", Fire, false, Params{GrowthProb: 1, IgniteProb: 1}, 0.0, Empty},
		{"fire burns out next to fire", Fire, true, Params{GrowthProb: 1, IgniteProb: 1}, 0.0, Empty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &ScriptedSource{Draws: []float64{tt.draw}}
			got, err := Next(tt.cell, tt.fire, tt.p, src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextDrawConsumption(t *testing.T) {
	src := &ScriptedSource{Draws: []float64{0.9}}

	_, _ = Next(Fire, false, DefaultParams(), src)
	assert.Equal(t, 0, src.Consumed(), "fire must not draw")

	_, _ = Next(Tree, true, DefaultParams(), src)
	assert.Equal(t, 1, src.Consumed(), "tree draws even when a neighbour burns")

	_, _ = Next(Empty, false, DefaultParams(), src)
	assert.Equal(t, 2, src.Consumed())
}

func TestNextRejectsInvalidCell(t *testing.T) {
	_, err := Next(Cell(3), false, DefaultParams(), NewSource(1, 0))
	assert.ErrorIs(t, err, ErrInvalidCell)

	g := NewGrid(2)
	g[1][0] = Cell(7)
	_, err = Step(g, DefaultParams(), NewSource(1, 0))
	assert.ErrorIs(t, err, ErrInvalidCell)
}

// TestFireAlwaysBurnsOut runs many random grids and checks every Fire cell is
// Empty one step later, whatever the probabilities.
func TestFireAlwaysBurnsOut(t *testing.T) {
	src := NewSource(42, 7)
	p := Params{GrowthProb: 0.9, IgniteProb: 0.9}
	for trial := 0; trial < 20; trial++ {
		g := NewGrid(12)
		for i := range g {
			for j := range g[i] {
				g[i][j] = Cell(src.IntN(3))
			}
		}
		next, err := Step(g, p, src)
		require.NoError(t, err)
		for i := range g {
			for j := range g[i] {
				if g[i][j] == Fire {
					require.Equal(t, Empty, next[i][j], "fire at (%d,%d) did not burn out", i, j)
				}
				if g[i][j] == Tree && HasFireNeighbour(g, i, j) {
					require.Equal(t, Fire, next[i][j], "tree at (%d,%d) next to fire survived", i, j)
				}
			}
		}
	}
}

func TestNoGrowthWithZeroProbability(t *testing.T) {
	g := NewGrid(20)
	src := NewSource(3, 3)
	for iter := 0; iter < 10; iter++ {
		var err error
		g, err = Step(g, Params{GrowthProb: 0, IgniteProb: 0.5}, src)
		require.NoError(t, err)
	}
	assert.Equal(t, 400, g.Count()[Empty])
}

func TestHasFireNeighbourEdges(t *testing.T) {
	g := NewGrid(3)
	g[2][2] = Fire

	assert.True(t, HasFireNeighbour(g, 1, 1))
	assert.True(t, HasFireNeighbour(g, 2, 1))
	assert.False(t, HasFireNeighbour(g, 0, 0))
	assert.False(t, HasFireNeighbour(g, 2, 2), "a cell is not its own neighbour")
}

func TestStepRowsWindow(t *testing.T) {
	g := NewGrid(4)
	g[0][0] = Tree
	g[1][1] = Fire

	// Only row 0 is computed but row 1 supplies the fire.
	out, err := StepRows(g, 0, 1, Params{}, NewSource(1, 0))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, Fire, out[0][0])

	_, err = StepRows(g, 2, 5, Params{}, NewSource(1, 0))
	assert.Error(t, err)
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())
	assert.Error(t, Params{GrowthProb: -0.1}.Validate())
	assert.Error(t, Params{IgniteProb: 1.5}.Validate())
}
