// Package solver defines the solver collaborator port.
package solver

import "context"

// Capabilities declares which optional operations a solver supports.
// Checked once at dispatch, never probed ad hoc at call sites.
type Capabilities struct {
	Streaming bool `json:"streaming"`
}

// ChunkFunc receives one incremental piece of solver output together with
// the accumulated text so far.
type ChunkFunc func(delta, accumulated string)

// Solver produces a textual response for a prompt. Implementations are
// invoked concurrently by the pool runner; each call is an independent
// failure boundary.
type Solver interface {
	// ID returns the stable participant identifier for this solver.
	ID() string

	Capabilities() Capabilities

	Solve(ctx context.Context, prompt string) (string, error)

	// SolveStreaming mirrors Solve but fires onChunk for every incremental
	// piece. Only valid when Capabilities().Streaming is true.
	SolveStreaming(ctx context.Context, prompt string, onChunk ChunkFunc) (string, error)
}
