// Package sourcecontrol defines the source-control collaborator port.
package sourcecontrol

import (
	"context"

	"github.com/arenaforge/arenaforge/internal/domain/solution"
	"github.com/arenaforge/arenaforge/internal/domain/task"
)

// Provider fetches tasks from, and publishes results back to, a source
// hosting platform.
type Provider interface {
	// Name returns the unique identifier for this provider (e.g. "github").
	Name() string

	// GetTask fetches the task behind an issue/ticket number.
	GetTask(ctx context.Context, sourceURL string, number int) (*task.Task, error)

	// PublishResult publishes a winning solution under the given author
	// label and returns the published URL. Fails when the solution holds no
	// change-set.
	PublishResult(ctx context.Context, t task.Task, sol *solution.Solution, authorLabel string) (string, error)
}
