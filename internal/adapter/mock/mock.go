// Package mock provides offline collaborator implementations so the service
// can run end to end without an LLM proxy, wallet daemon or source host.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arenaforge/arenaforge/internal/domain/solution"
	"github.com/arenaforge/arenaforge/internal/domain/task"
	"github.com/arenaforge/arenaforge/internal/port/contextprovider"
	"github.com/arenaforge/arenaforge/internal/port/solver"
	"github.com/arenaforge/arenaforge/internal/port/wallet"
)

// Solver produces a deterministic change-set after a short randomized delay,
// so concurrent competitions exercise the real pool and judging paths.
type Solver struct {
	id        string
	streaming bool
	maxDelay  time.Duration
}

// NewSolver creates a mock solver with the given id.
func NewSolver(id string, streaming bool) *Solver {
	return &Solver{id: id, streaming: streaming, maxDelay: 2 * time.Second}
}

func (s *Solver) ID() string { return s.id }

func (s *Solver) Capabilities() solver.Capabilities {
	return solver.Capabilities{Streaming: s.streaming}
}

func (s *Solver) Solve(ctx context.Context, prompt string) (string, error) {
	if err := s.sleep(ctx); err != nil {
		return "", err
	}
	return s.response(), nil
}

func (s *Solver) SolveStreaming(ctx context.Context, prompt string, onChunk solver.ChunkFunc) (string, error) {
	if err := s.sleep(ctx); err != nil {
		return "", err
	}
	full := s.response()
	var acc strings.Builder
	for _, line := range strings.SplitAfter(full, "\n") {
		acc.WriteString(line)
		onChunk(line, acc.String())
	}
	return full, nil
}

func (s *Solver) sleep(ctx context.Context) error {
	delay := time.Duration(rand.Int63n(int64(s.maxDelay)))
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Solver) response() string {
	return fmt.Sprintf(`Stubbed fix from %s.
<changes>
<file path="fix_%s.go" action="create">
package fix

// Placeholder change produced by the offline solver %s.
</file>
</changes>`, s.id, s.id, s.id)
}

var submissionRe = regexp.MustCompile(`## Submission (\S+)`)

// Completer answers judge prompts offline: it extracts the submission ids
// from the prompt and scores them in order of appearance.
type Completer struct{}

func (Completer) Complete(_ context.Context, _ string, prompt string) (string, error) {
	matches := submissionRe.FindAllStringSubmatch(prompt, -1)
	if len(matches) == 0 {
		return "", fmt.Errorf("no submissions in prompt")
	}

	var sb strings.Builder
	sb.WriteString(`{"winner_id": "` + matches[0][1] + `", "summary": "Offline judge: first listed submission wins.", "scores": [`)
	for i, m := range matches {
		if i > 0 {
			sb.WriteString(", ")
		}
		score := 90 - i*7
		fmt.Fprintf(&sb, `{"agent_id": %q, "correctness": %d, "code_quality": %d, "completeness": %d}`,
			m[1], score, score, score)
	}
	sb.WriteString("]}")
	return sb.String(), nil
}

// Wallet settles transfers instantly from an in-memory balance.
type Wallet struct {
	mu      sync.Mutex
	balance decimal.Decimal
	next    int
	network string
}

// NewWallet creates a mock wallet funded with the given balance.
func NewWallet(network string, balance decimal.Decimal) *Wallet {
	return &Wallet{network: network, balance: balance}
}

func (w *Wallet) Capabilities() wallet.Capabilities {
	return wallet.Capabilities{Balance: true, PayerAddress: true}
}

func (w *Wallet) Network() string { return w.network }

func (w *Wallet) Transfer(_ context.Context, to string, amount decimal.Decimal) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.balance.LessThan(amount) {
		return "", fmt.Errorf("insufficient funds: %s < %s", w.balance, amount)
	}
	w.balance = w.balance.Sub(amount)
	w.next++
	return fmt.Sprintf("mock-tx-%d", w.next), nil
}

func (w *Wallet) WaitConfirmed(ctx context.Context, _ string) error {
	return ctx.Err()
}

func (w *Wallet) Balance(context.Context) (decimal.Decimal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance, nil
}

func (w *Wallet) PayerAddress(context.Context) (string, error) {
	return "0xmockpayer", nil
}

// Source serves synthetic tasks and swallows publishes.
type Source struct {
	mu        sync.Mutex
	published int
}

func NewSource() *Source { return &Source{} }

func (s *Source) Name() string { return "mock" }

func (s *Source) GetTask(_ context.Context, sourceURL string, number int) (*task.Task, error) {
	return &task.Task{
		ID:        fmt.Sprintf("mock-%d", number),
		Number:    number,
		Title:     fmt.Sprintf("Synthetic task #%d", number),
		Body:      "Offline mode: there is no real issue behind this task.",
		SourceURL: sourceURL,
		Labels:    []string{"mock"},
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (s *Source) PublishResult(_ context.Context, t task.Task, sol *solution.Solution, _ string) (string, error) {
	if sol == nil || len(sol.Changes) == 0 {
		return "", fmt.Errorf("solution holds no change-set")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published++
	return fmt.Sprintf("%s#mock-result-%d", t.SourceURL, s.published), nil
}

// Retriever serves canned code context so retrieval-dependent paths can be
// exercised without a NATS worker fleet.
type Retriever struct {
	mu      sync.Mutex
	indexed map[string]bool
}

// NewRetriever creates an empty mock retrieval provider.
func NewRetriever() *Retriever {
	return &Retriever{indexed: make(map[string]bool)}
}

func (r *Retriever) IndexContext(_ context.Context, _, sourceURL string, onProgress contextprovider.ProgressFunc) (*contextprovider.IndexResult, error) {
	if onProgress != nil {
		onProgress("indexing", 1, 1)
	}
	r.mu.Lock()
	r.indexed[sourceURL] = true
	r.mu.Unlock()
	return &contextprovider.IndexResult{VersionID: "mock", ItemsIndexed: 2}, nil
}

func (r *Retriever) QueryContext(_ context.Context, _ task.Task, limit int, onProgress contextprovider.ProgressFunc) ([]contextprovider.Chunk, error) {
	if onProgress != nil {
		onProgress("querying", 1, 1)
	}
	chunks := []contextprovider.Chunk{
		{FilePath: "internal/retry/retry.go", Kind: "func", Name: "Do", Score: 0.92,
			Code: "func Do(ctx context.Context, fn func() error) error {\n\treturn fn()\n}"},
		{FilePath: "internal/retry/backoff.go", Kind: "type", Name: "Backoff", Score: 0.71,
			Code: "type Backoff struct {\n\tBase time.Duration\n}"},
	}
	if limit < len(chunks) {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

func (r *Retriever) IsIndexed(_ context.Context, sourceURL, _ string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexed[sourceURL], nil
}
