package forest

import "math/rand/v2"

// Source supplies uniform draws in [0, 1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// NewSource returns a deterministic PCG generator. Distinct streams with the
// same seed yield independent sequences, which lets concurrent tasks each own
// a generator without sharing one.
func NewSource(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream))
}

// ScriptedSource replays a fixed list of draws, cycling when exhausted. It
// exists so tests can feed identical draws to different execution paths.
type ScriptedSource struct {
	Draws []float64
	pos   int
}

// Float64 returns the next scripted draw, or 0.5 when no draws are set.
func (s *ScriptedSource) Float64() float64 {
	if len(s.Draws) == 0 {
		return 0.5
	}
	v := s.Draws[s.pos%len(s.Draws)]
	s.pos++
	return v
}

// Consumed reports how many draws have been taken.
func (s *ScriptedSource) Consumed() int { return s.pos }
