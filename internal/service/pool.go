package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/arenaforge/arenaforge/internal/domain/event"
	"github.com/arenaforge/arenaforge/internal/domain/solution"
	"github.com/arenaforge/arenaforge/internal/domain/task"
	"github.com/arenaforge/arenaforge/internal/port/bus"
	"github.com/arenaforge/arenaforge/internal/port/contextprovider"
	"github.com/arenaforge/arenaforge/internal/port/solver"
)

// TruncationMarker is appended to retrieved context when it exceeds the
// configured byte ceiling.
const TruncationMarker = "\n[... context truncated ...]"

// PoolRunner fans one task out to every configured solver concurrently.
// Each invocation is an independent failure boundary; one solver's error
// never aborts its siblings.
type PoolRunner struct {
	solvers      []solver.Solver
	bus          bus.Bus
	maxParallel  int64
	solveTimeout time.Duration
	byteCeiling  int
}

// NewPoolRunner creates a pool over the given roster. maxParallel bounds
// concurrent solver calls; byteCeiling bounds the rendered context embedded
// in each prompt.
func NewPoolRunner(solvers []solver.Solver, b bus.Bus, maxParallel int, solveTimeout time.Duration, byteCeiling int) *PoolRunner {
	if maxParallel < 1 {
		maxParallel = len(solvers)
	}
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &PoolRunner{
		solvers:      solvers,
		bus:          b,
		maxParallel:  int64(maxParallel),
		solveTimeout: solveTimeout,
		byteCeiling:  byteCeiling,
	}
}

// OutcomeFunc is invoked once per solver as its result settles, from the
// solver's own goroutine.
type OutcomeFunc func(out solution.Outcome)

// SolveAll dispatches the task to every solver and blocks until all results
// have settled. The returned slice is ordered by roster index, not by
// completion; onOutcome (optional) fires per solver as each finishes.
func (p *PoolRunner) SolveAll(ctx context.Context, competitionID string, t task.Task, codeContext string, onOutcome OutcomeFunc) []solution.Outcome {
	outcomes := make([]solution.Outcome, len(p.solvers))
	prompt := p.BuildPrompt(t, codeContext)

	sem := semaphore.NewWeighted(p.maxParallel)
	var wg sync.WaitGroup

	for i, s := range p.solvers {
		wg.Add(1)
		go func(i int, s solver.Solver) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				outcomes[i] = solution.Outcome{AgentID: s.ID(), Error: err.Error()}
				if onOutcome != nil {
					onOutcome(outcomes[i])
				}
				return
			}
			defer sem.Release(1)

			outcomes[i] = p.solveOne(ctx, competitionID, s, prompt)
			if onOutcome != nil {
				onOutcome(outcomes[i])
			}
		}(i, s)
	}
	wg.Wait()

	return outcomes
}

// solveOne invokes a single solver with its own timeout and panic/error
// boundary and parses the response into a change-set.
func (p *PoolRunner) solveOne(ctx context.Context, competitionID string, s solver.Solver, prompt string) (out solution.Outcome) {
	out.AgentID = s.ID()
	started := time.Now()

	defer func() {
		out.ElapsedMS = time.Since(started).Milliseconds()
		if out.Solution != nil {
			out.Solution.ElapsedMS = out.ElapsedMS
		}
		if r := recover(); r != nil {
			out.Success = false
			out.Solution = nil
			out.Error = fmt.Sprintf("solver panic: %v", r)
			slog.Error("solver panicked", "agent_id", s.ID(), "panic", r)
		}
	}()

	callCtx := ctx
	if p.solveTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.solveTimeout)
		defer cancel()
	}

	raw, err := p.invoke(callCtx, competitionID, s, prompt)
	if err != nil {
		out.Error = err.Error()
		slog.Warn("solver failed", "agent_id", s.ID(), "error", err)
		return out
	}

	changes, explanation := solution.Parse(raw)
	if len(changes) == 0 {
		out.Error = "response contained no file changes"
		slog.Warn("solver produced no changes", "agent_id", s.ID())
		return out
	}

	out.Success = true
	out.Solution = &solution.Solution{
		AgentID:     s.ID(),
		RawText:     raw,
		Explanation: explanation,
		Changes:     changes,
	}
	return out
}

// invoke chooses the streaming call when the solver supports it, publishing
// each chunk as a fire-and-forget event. The accumulation buffer is owned by
// this call; the bus only ever sees copies.
func (p *PoolRunner) invoke(ctx context.Context, competitionID string, s solver.Solver, prompt string) (string, error) {
	if !s.Capabilities().Streaming {
		return s.Solve(ctx, prompt)
	}

	return s.SolveStreaming(ctx, prompt, func(delta, accumulated string) {
		p.bus.Publish(ctx, event.New(event.TypeAgentStreaming, competitionID, streamPayload{
			AgentID:  s.ID(),
			Delta:    delta,
			Received: len(accumulated),
		}))
	})
}

type streamPayload struct {
	AgentID  string `json:"agent_id"`
	Delta    string `json:"delta"`
	Received int    `json:"received"`
}

// BuildPrompt renders the task and the (truncated) retrieved context into
// the solver prompt.
func (p *PoolRunner) BuildPrompt(t task.Task, codeContext string) string {
	var sb strings.Builder

	sb.WriteString("You are competing against other agents to fix the following task.\n\n")
	fmt.Fprintf(&sb, "## Task: %s\n\n%s\n", t.Title, t.Body)
	if len(t.Labels) > 0 {
		fmt.Fprintf(&sb, "\nLabels: %s\n", strings.Join(t.Labels, ", "))
	}

	if codeContext != "" {
		sb.WriteString("\n## Relevant code context\n\n")
		sb.WriteString(TruncateContext(codeContext, p.byteCeiling))
		sb.WriteString("\n")
	}

	sb.WriteString(`
## Response format

Reply with a <changes> block listing every file you touch, then a short
explanation outside the block:

<changes>
<file path="relative/path.go" action="create|modify|delete">
full new file content
</file>
</changes>
`)
	return sb.String()
}

// TruncateContext enforces the hard byte ceiling on rendered context,
// appending the truncation marker when content was dropped.
func TruncateContext(s string, ceiling int) string {
	if ceiling <= 0 || len(s) <= ceiling {
		return s
	}
	return s[:ceiling] + TruncationMarker
}

// RenderContext formats retrieved snippets for prompt embedding.
func RenderContext(chunks []contextprovider.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, c := range chunks {
		if c.Score > 0 {
			fmt.Fprintf(&sb, "--- %s (%s %s, score %.3f)\n", c.FilePath, c.Kind, c.Name, c.Score)
		} else {
			fmt.Fprintf(&sb, "--- %s (%s %s)\n", c.FilePath, c.Kind, c.Name)
		}
		sb.WriteString(c.Code)
		sb.WriteString("\n\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
