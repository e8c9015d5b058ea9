package cluster

import (
	"github.com/dreamware/forestfire/internal/band"
	"github.com/dreamware/forestfire/internal/forest"
)

// Wire command names.
const (
	CommandProcess = "process"
	CommandStop    = "stop"
)

// WorkerInfo identifies a registered worker connection. Index is the
// acceptance order and never changes for the life of a run.
type WorkerInfo struct {
	Index int    `json:"index"`
	Addr  string `json:"addr"`
}

// Request is a coordinator→worker message: either Work or Terminate.
type Request interface {
	Command() string
}

// Work asks a worker to compute the next state of a region's owned rows.
type Work struct {
	Region band.Region
	Params forest.Params
}

// Command implements Request.
func (Work) Command() string { return CommandProcess }

// Terminate tells a worker to close its connection and exit.
type Terminate struct{}

// Command implements Request.
func (Terminate) Command() string { return CommandStop }

// Result is a worker→coordinator message carrying the processed rows.
type Result struct {
	Rows forest.Grid
}

// JSON payload shapes. Pointer fields distinguish missing keys from zero
// values so that shape mismatches are rejected at decode time.

type regionPayload struct {
	Rows       [][]int `json:"rows"`
	Start      *int    `json:"original_row_start"`
	End        *int    `json:"original_row_end"`
	HaloOffset *int    `json:"halo_offset"`
}

type requestPayload struct {
	Command    string         `json:"command"`
	Region     *regionPayload `json:"region,omitempty"`
	GrowthProb *float64       `json:"growth_prob,omitempty"`
	IgniteProb *float64       `json:"spontaneous_ignite_prob,omitempty"`
}

type resultPayload struct {
	ProcessedRows [][]int `json:"processed_rows"`
}
