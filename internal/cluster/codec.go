package cluster

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dreamware/forestfire/internal/band"
	"github.com/dreamware/forestfire/internal/forest"
)

// EncodeRequest serializes a Work or Terminate message to its JSON payload.
func EncodeRequest(req Request) ([]byte, error) {
	switch m := req.(type) {
	case Work:
		start, end, offset := m.Region.Start, m.Region.End, m.Region.HaloOffset
		growth, ignite := m.Params.GrowthProb, m.Params.IgniteProb
		return json.Marshal(requestPayload{
			Command: CommandProcess,
			Region: &regionPayload{
				Rows:       toInts(m.Region.Rows),
				Start:      &start,
				End:        &end,
				HaloOffset: &offset,
			},
			GrowthProb: &growth,
			IgniteProb: &ignite,
		})
	case *Work:
		if m == nil {
			return nil, fmt.Errorf("%w: nil work request", ErrFraming)
		}
		return EncodeRequest(*m)
	case Terminate, *Terminate:
		return json.Marshal(requestPayload{Command: CommandStop})
	default:
		return nil, fmt.Errorf("%w: unknown request type %T", ErrFraming, req)
	}
}

// DecodeRequest parses a coordinator payload into Work or Terminate. Missing
// fields and unknown commands are framing errors; bad cell values, an
// inconsistent region or out-of-range probabilities are validation errors.
func DecodeRequest(data []byte) (Request, error) {
	var p requestPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: malformed request: %v", ErrFraming, err)
	}

	switch p.Command {
	case CommandStop:
		return Terminate{}, nil
	case CommandProcess:
	case "":
		return nil, fmt.Errorf("%w: request has no command", ErrFraming)
	default:
		return nil, fmt.Errorf("%w: unknown command %q", ErrFraming, p.Command)
	}

	if p.Region == nil || p.Region.Rows == nil || p.Region.Start == nil ||
		p.Region.End == nil || p.Region.HaloOffset == nil {
		return nil, fmt.Errorf("%w: process request without a complete region", ErrFraming)
	}
	if p.GrowthProb == nil || p.IgniteProb == nil {
		return nil, fmt.Errorf("%w: process request without probabilities", ErrFraming)
	}

	rows, err := fromInts(p.Region.Rows)
	if err != nil {
		return nil, err
	}
	work := Work{
		Region: band.Region{
			Rows:       rows,
			Start:      *p.Region.Start,
			End:        *p.Region.End,
			HaloOffset: *p.Region.HaloOffset,
		},
		Params: forest.Params{GrowthProb: *p.GrowthProb, IgniteProb: *p.IgniteProb},
	}
	if err := work.Region.Validate(); err != nil {
		return nil, fmt.Errorf("%w: region: %w", ErrValidation, err)
	}
	if err := work.Params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return work, nil
}

// EncodeResult serializes a worker answer.
func EncodeResult(res Result) ([]byte, error) {
	return json.Marshal(resultPayload{ProcessedRows: toInts(res.Rows)})
}

// DecodeResult parses a worker answer, rejecting a missing row list and any
// cell value outside {0,1,2}. Row-count checks against the assigned band are
// the caller's job.
func DecodeResult(data []byte) (Result, error) {
	var p resultPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Result{}, fmt.Errorf("%w: malformed result: %v", ErrFraming, err)
	}
	if p.ProcessedRows == nil {
		return Result{}, fmt.Errorf("%w: result without processed_rows", ErrFraming)
	}
	rows, err := fromInts(p.ProcessedRows)
	if err != nil {
		return Result{}, err
	}
	return Result{Rows: rows}, nil
}

// WriteRequest encodes req and writes it as one frame.
func WriteRequest(w io.Writer, req Request) error {
	data, err := EncodeRequest(req)
	if err != nil {
		return err
	}
	return WriteFrame(w, data)
}

// ReadRequest reads one frame and decodes it as a Request.
func ReadRequest(r io.Reader) (Request, error) {
	data, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return DecodeRequest(data)
}

// WriteResult encodes res and writes it as one frame.
func WriteResult(w io.Writer, res Result) error {
	data, err := EncodeResult(res)
	if err != nil {
		return err
	}
	return WriteFrame(w, data)
}

// ReadResult reads one frame and decodes it as a Result.
func ReadResult(r io.Reader) (Result, error) {
	data, err := ReadFrame(r)
	if err != nil {
		return Result{}, err
	}
	return DecodeResult(data)
}

func toInts(g forest.Grid) [][]int {
	out := make([][]int, len(g))
	for i, row := range g {
		out[i] = make([]int, len(row))
		for j, c := range row {
			out[i][j] = int(c)
		}
	}
	return out
}

func fromInts(rows [][]int) (forest.Grid, error) {
	g := make(forest.Grid, len(rows))
	for i, row := range rows {
		g[i] = make([]forest.Cell, len(row))
		for j, v := range row {
			if v < int(forest.Empty) || v > int(forest.Fire) {
				return nil, fmt.Errorf("%w: cell (%d,%d)=%d: %w", ErrValidation, i, j, v, forest.ErrInvalidCell)
			}
			g[i][j] = forest.Cell(v)
		}
	}
	return g, nil
}
