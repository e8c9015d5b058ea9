package census

import (
	"sync"
	"testing"

	"github.com/dreamware/forestfire/internal/forest"
)

// TestMemoryRecorder tests the in-memory recorder implementation
func TestMemoryRecorder(t *testing.T) {
	t.Run("new recorder is empty", func(t *testing.T) {
		rec := NewMemoryRecorder()

		if rec.Len() != 0 {
			t.Errorf("Expected empty recorder, got %d entries", rec.Len())
		}

		// Get should return ErrIterationNotFound
		_, err := rec.Get(0)
		if err != ErrIterationNotFound {
			t.Errorf("Expected ErrIterationNotFound, got %v", err)
		}
	})

	t.Run("record and get", func(t *testing.T) {
		rec := NewMemoryRecorder()

		want := Census{Iteration: 3, Empty: 1, Tree: 2, Fire: 6}
		if err := rec.Record(want); err != nil {
			t.Fatalf("Failed to record: %v", err)
		}

		got, err := rec.Get(3)
		if err != nil {
			t.Fatalf("Failed to get census: %v", err)
		}
		if got != want {
			t.Errorf("Expected %v, got %v", want, got)
		}
	})

	t.Run("overwrite existing iteration", func(t *testing.T) {
		rec := NewMemoryRecorder()
		_ = rec.Record(Census{Iteration: 1, Tree: 5})
		_ = rec.Record(Census{Iteration: 1, Tree: 7})

		got, _ := rec.Get(1)
		if got.Tree != 7 {
			t.Errorf("Expected overwritten census, got %v", got)
		}
		if rec.Len() != 1 {
			t.Errorf("Expected 1 entry, got %d", rec.Len())
		}
	})

	t.Run("reject negative iteration", func(t *testing.T) {
		rec := NewMemoryRecorder()
		if err := rec.Record(Census{Iteration: -1}); err == nil {
			t.Error("Expected error for negative iteration")
		}
	})

	t.Run("all is ordered", func(t *testing.T) {
		rec := NewMemoryRecorder()
		for _, i := range []int{4, 0, 2, 1, 3} {
			_ = rec.Record(Census{Iteration: i})
		}

		all := rec.All()
		if len(all) != 5 {
			t.Fatalf("Expected 5 entries, got %d", len(all))
		}
		for i, c := range all {
			if c.Iteration != i {
				t.Errorf("Expected iteration %d at position %d, got %d", i, i, c.Iteration)
			}
		}
	})
}

// TestConcurrentRecord tests thread-safe recording
func TestConcurrentRecord(t *testing.T) {
	rec := NewMemoryRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(iter int) {
			defer wg.Done()
			_ = rec.Record(Census{Iteration: iter, Tree: iter})
			_, _ = rec.Get(iter)
			_ = rec.All()
		}(i)
	}
	wg.Wait()

	if rec.Len() != 50 {
		t.Errorf("Expected 50 entries, got %d", rec.Len())
	}
}

// TestTake tests counting a grid
func TestTake(t *testing.T) {
	g := forest.Grid{
		{forest.Empty, forest.Tree, forest.Fire},
		{forest.Tree, forest.Tree, forest.Empty},
	}

	c := Take(7, g)
	if c.Iteration != 7 || c.Empty != 2 || c.Tree != 3 || c.Fire != 1 {
		t.Errorf("Unexpected census %v", c)
	}
	if c.Total() != 6 {
		t.Errorf("Expected total 6, got %d", c.Total())
	}
	if c.String() != "iteration 7: empty=2 tree=3 fire=1" {
		t.Errorf("Unexpected string %q", c.String())
	}
}
