package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arenaforge/arenaforge/internal/domain"
	"github.com/arenaforge/arenaforge/internal/domain/competition"
	"github.com/arenaforge/arenaforge/internal/domain/event"
	"github.com/arenaforge/arenaforge/internal/domain/payment"
	"github.com/arenaforge/arenaforge/internal/domain/solution"
	"github.com/arenaforge/arenaforge/internal/domain/task"
	portbus "github.com/arenaforge/arenaforge/internal/port/bus"
	"github.com/arenaforge/arenaforge/internal/port/contextprovider"
	"github.com/arenaforge/arenaforge/internal/port/solver"
	"github.com/arenaforge/arenaforge/internal/port/wallet"
)

// mockStore records every mutation in memory. Individual operations can be
// forced to fail through the err* hooks.
type mockStore struct {
	mu sync.Mutex

	competitions map[string]*competition.Competition
	statuses     []competition.Status
	participants [][]competition.Participant
	verdict      *competition.Verdict
	winnerID     string
	settlement   *payment.Record
	paymentError string
	publishedURL string
	completedAt  *time.Time
	ledger       []payment.Record

	errSave         error
	errUpdateStatus func(competition.Status) error
	errParticipants error
	errLedger       error
}

func newMockStore() *mockStore {
	return &mockStore{competitions: map[string]*competition.Competition{}}
}

func (m *mockStore) SaveCompetition(_ context.Context, c *competition.Competition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errSave != nil {
		return m.errSave
	}
	m.competitions[c.ID] = c
	return nil
}

func (m *mockStore) GetCompetition(_ context.Context, id string) (*competition.Competition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.competitions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (m *mockStore) ListCompetitions(context.Context) ([]competition.Competition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []competition.Competition
	for _, c := range m.competitions {
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockStore) UpdateStatus(_ context.Context, _ string, status competition.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errUpdateStatus != nil {
		if err := m.errUpdateStatus(status); err != nil {
			return err
		}
	}
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *mockStore) UpdateParticipants(_ context.Context, _ string, ps []competition.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errParticipants != nil {
		return m.errParticipants
	}
	snapshot := make([]competition.Participant, len(ps))
	copy(snapshot, ps)
	m.participants = append(m.participants, snapshot)
	return nil
}

func (m *mockStore) UpdateVerdict(_ context.Context, _ string, v *competition.Verdict, winnerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verdict = v
	m.winnerID = winnerID
	return nil
}

func (m *mockStore) UpdateSettlement(_ context.Context, _ string, rec *payment.Record, paymentError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlement = rec
	m.paymentError = paymentError
	return nil
}

func (m *mockStore) UpdatePublishedURL(_ context.Context, _, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedURL = url
	return nil
}

func (m *mockStore) UpdateCompleted(_ context.Context, _ string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completedAt = &at
	return nil
}

func (m *mockStore) SaveLedgerEntry(_ context.Context, rec *payment.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errLedger != nil {
		return m.errLedger
	}
	m.ledger = append(m.ledger, *rec)
	return nil
}

func (m *mockStore) LedgerByCompetition(_ context.Context, competitionID string) ([]payment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []payment.Record
	for _, r := range m.ledger {
		if r.CompetitionID == competitionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) LedgerByAgent(_ context.Context, agentID string) ([]payment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []payment.Record
	for _, r := range m.ledger {
		if r.AgentID == agentID {
			out = append(out, r)
		}
	}
	return out, nil
}

// captureBus records published events in order.
type captureBus struct {
	mu     sync.Mutex
	events []event.Event
}

func (b *captureBus) Publish(_ context.Context, ev event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *captureBus) Subscribe(portbus.Handler) func() { return func() {} }

func (b *captureBus) typesFor(competitionID string) []event.Type {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []event.Type
	for _, ev := range b.events {
		if ev.CompetitionID == competitionID {
			out = append(out, ev.Type)
		}
	}
	return out
}

// mockSolver returns a canned response, an error, or panics.
type mockSolver struct {
	id        string
	response  string
	err       error
	panicWith any
	delay     time.Duration
	streaming bool
	chunks    []string
}

func (s *mockSolver) ID() string { return s.id }

func (s *mockSolver) Capabilities() solver.Capabilities {
	return solver.Capabilities{Streaming: s.streaming}
}

func (s *mockSolver) Solve(ctx context.Context, _ string) (string, error) {
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.response, s.err
}

func (s *mockSolver) SolveStreaming(_ context.Context, _ string, onChunk solver.ChunkFunc) (string, error) {
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	var acc string
	for _, c := range s.chunks {
		acc += c
		onChunk(c, acc)
	}
	if s.err != nil {
		return "", s.err
	}
	if acc == "" {
		return s.response, nil
	}
	return acc, nil
}

// mockJudge returns a fixed verdict or error.
type mockJudge struct {
	verdict *competition.Verdict
	err     error
	called  bool
}

func (j *mockJudge) Rank(_ context.Context, _ task.Task, _ []solution.Outcome) (*competition.Verdict, error) {
	j.called = true
	return j.verdict, j.err
}

// mockWallet scripts the settlement primitives.
type mockWallet struct {
	caps        wallet.Capabilities
	balance     decimal.Decimal
	balanceErr  error
	transferID  string
	transferErr error
	confirmErr  error
	payerErr    error

	transfers int
}

func (w *mockWallet) Capabilities() wallet.Capabilities { return w.caps }
func (w *mockWallet) Network() string                   { return "testnet" }

func (w *mockWallet) Transfer(_ context.Context, _ string, _ decimal.Decimal) (string, error) {
	w.transfers++
	if w.transferErr != nil {
		return "", w.transferErr
	}
	return w.transferID, nil
}

func (w *mockWallet) WaitConfirmed(ctx context.Context, _ string) error {
	if w.confirmErr != nil {
		return w.confirmErr
	}
	return ctx.Err()
}

func (w *mockWallet) Balance(context.Context) (decimal.Decimal, error) {
	return w.balance, w.balanceErr
}

func (w *mockWallet) PayerAddress(context.Context) (string, error) {
	if w.payerErr != nil {
		return "", w.payerErr
	}
	return "0xpayer", nil
}

// mockSource scripts the publish side of the source-control port.
type mockSource struct {
	url       string
	err       error
	published int
}

func (s *mockSource) Name() string { return "mock" }

func (s *mockSource) GetTask(context.Context, string, int) (*task.Task, error) {
	return nil, errors.New("not implemented")
}

func (s *mockSource) PublishResult(_ context.Context, _ task.Task, _ *solution.Solution, _ string) (string, error) {
	s.published++
	if s.err != nil {
		return "", s.err
	}
	return s.url, nil
}

// mockRetriever scripts the context-retrieval port and records call order.
type mockRetriever struct {
	mu        sync.Mutex
	indexed   bool
	lookupErr error
	indexErr  error
	queryErr  error
	chunks    []contextprovider.Chunk

	calls []string
}

func (r *mockRetriever) record(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

func (r *mockRetriever) callLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *mockRetriever) IsIndexed(context.Context, string, string) (bool, error) {
	r.record("is_indexed")
	return r.indexed, r.lookupErr
}

func (r *mockRetriever) IndexContext(_ context.Context, _, _ string, onProgress contextprovider.ProgressFunc) (*contextprovider.IndexResult, error) {
	r.record("index")
	if r.indexErr != nil {
		return nil, r.indexErr
	}
	if onProgress != nil {
		onProgress("indexing", 2, 2)
	}
	return &contextprovider.IndexResult{VersionID: "v1", ItemsIndexed: 2}, nil
}

func (r *mockRetriever) QueryContext(_ context.Context, _ task.Task, limit int, _ contextprovider.ProgressFunc) ([]contextprovider.Chunk, error) {
	r.record("query")
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	chunks := r.chunks
	if limit < len(chunks) {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

var errBoom = errors.New("boom")

// taggedResponse is a well-formed solver reply for tests.
const taggedResponse = `Fixed the bug.
<changes>
<file path="pkg/fix.go" action="modify">
package pkg
</file>
</changes>`
