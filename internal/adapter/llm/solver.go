package llm

import (
	"context"

	"github.com/arenaforge/arenaforge/internal/config"
	"github.com/arenaforge/arenaforge/internal/port/solver"
)

// Solver adapts one roster entry onto the shared completion client.
type Solver struct {
	spec   config.SolverSpec
	client *Client
}

// NewSolver creates the solver collaborator for a roster entry.
func NewSolver(spec config.SolverSpec, client *Client) *Solver {
	return &Solver{spec: spec, client: client}
}

// NewRoster builds a solver for every configured roster entry.
func NewRoster(specs []config.SolverSpec, client *Client) []solver.Solver {
	out := make([]solver.Solver, len(specs))
	for i, spec := range specs {
		out[i] = NewSolver(spec, client)
	}
	return out
}

func (s *Solver) ID() string { return s.spec.ID }

func (s *Solver) Capabilities() solver.Capabilities {
	return solver.Capabilities{Streaming: s.spec.Streaming}
}

func (s *Solver) Solve(ctx context.Context, prompt string) (string, error) {
	return s.client.Complete(ctx, s.spec.Model, prompt)
}

func (s *Solver) SolveStreaming(ctx context.Context, prompt string, onChunk solver.ChunkFunc) (string, error) {
	return s.client.CompleteStream(ctx, s.spec.Model, prompt, onChunk)
}
