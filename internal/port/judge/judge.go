// Package judge defines the judge collaborator port.
package judge

import (
	"context"

	"github.com/arenaforge/arenaforge/internal/domain/competition"
	"github.com/arenaforge/arenaforge/internal/domain/solution"
	"github.com/arenaforge/arenaforge/internal/domain/task"
)

// Judge ranks solver outcomes and names a winner (or none). Implementations
// must return a well-formed verdict for every input; unavailability is
// handled by the caller's fallback ranking.
type Judge interface {
	Rank(ctx context.Context, t task.Task, outcomes []solution.Outcome) (*competition.Verdict, error)
}
