// Package cluster implements the wire protocol spoken between the forest-fire
// coordinator and its workers: length-prefixed frames carrying JSON payloads,
// the closed set of message variants, and the error kinds every I/O boundary
// reports.
//
// # Overview
//
// The coordinator owns the global grid and drives iterations. Each worker
// holds one persistent TCP connection and answers exactly one request at a
// time. This package knows nothing about iterations or scheduling; it only
// turns messages into bytes and back, and rejects anything that does not have
// the expected shape.
//
// # Architecture
//
//	              ┌──────────────┐
//	              │ Coordinator  │
//	              │              │
//	              │ - grid       │
//	              │ - bands      │
//	              └──────┬───────┘
//	                     │  Work / Terminate
//	      ┌──────────────┼──────────────┐
//	      │              │              │
//	┌─────▼─────┐ ┌─────▼─────┐ ┌─────▼─────┐
//	│ Worker 0  │ │ Worker 1  │ │ Worker 2  │
//	│ rows      │ │ rows      │ │ rows      │
//	│ [0,2)     │ │ [2,4)     │ │ [4,6)     │
//	└───────────┘ └───────────┘ └───────────┘
//	        Result (processed rows only)
//
// # Framing
//
// Every message is a 4-byte big-endian unsigned length followed by exactly
// that many bytes of UTF-8 JSON:
//
//	┌────────────┬──────────────────────────────┐
//	│ len uint32 │ payload (len bytes, JSON)    │
//	└────────────┴──────────────────────────────┘
//
// Readers take exactly four header bytes, then accumulate payload bytes until
// the declared length is reached. A clean close before a header is
// ErrConnectionClosed; anything cut short after that is ErrFraming.
//
// # Messages
//
// Coordinator to worker:
//
//	{"command":"process",
//	 "region":{"rows":[[1,1,0],[2,1,1]],
//	           "original_row_start":3,"original_row_end":4,"halo_offset":1},
//	 "growth_prob":0.01,"spontaneous_ignite_prob":0.0001}
//
//	{"command":"stop"}
//
// Worker to coordinator:
//
//	{"processed_rows":[[1,2,0]]}
//
// Cells are integers: 0 empty, 1 tree, 2 fire.
//
// # Failure Handling
//
//   - ErrConnection: dial, accept, read or write failed (includes timeouts)
//   - ErrFraming: truncated frames, oversized frames, malformed JSON, missing
//     fields, unknown commands
//   - ErrValidation: cell values outside {0,1,2}, inconsistent regions,
//     probabilities outside [0,1], row counts that do not match a band
//
// Errors wrap the kind with context, so callers branch with errors.Is.
//
// # Limitations
//
//   - No authentication or encryption
//   - JSON keeps the payload readable at the cost of size; a 1000×1000 grid
//     is about 2 MB per iteration
package cluster
