package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/arenaforge/arenaforge/internal/adapter/memstore"
	"github.com/arenaforge/arenaforge/internal/adapter/ws"
	"github.com/arenaforge/arenaforge/internal/bus"
	"github.com/arenaforge/arenaforge/internal/config"
	"github.com/arenaforge/arenaforge/internal/domain/competition"
	"github.com/arenaforge/arenaforge/internal/domain/solution"
	"github.com/arenaforge/arenaforge/internal/domain/task"
	"github.com/arenaforge/arenaforge/internal/port/solver"
	walletport "github.com/arenaforge/arenaforge/internal/port/wallet"
	"github.com/arenaforge/arenaforge/internal/service"
)

// stubSolver answers instantly with a fixed change-set.
type stubSolver struct{ id string }

func (s stubSolver) ID() string                        { return s.id }
func (s stubSolver) Capabilities() solver.Capabilities { return solver.Capabilities{} }

func (s stubSolver) Solve(context.Context, string) (string, error) {
	return `done
<changes>
<file path="fix.go" action="create">package fix</file>
</changes>`, nil
}

func (s stubSolver) SolveStreaming(ctx context.Context, prompt string, _ solver.ChunkFunc) (string, error) {
	return s.Solve(ctx, prompt)
}

// stubJudge always crowns the first successful outcome.
type stubJudge struct{}

func (stubJudge) Rank(_ context.Context, _ task.Task, outcomes []solution.Outcome) (*competition.Verdict, error) {
	for _, o := range outcomes {
		if o.Success {
			return &competition.Verdict{
				WinnerID: o.AgentID,
				Scores:   []competition.Score{{AgentID: o.AgentID, Overall: 90}},
				Summary:  "stub",
			}, nil
		}
	}
	return &competition.Verdict{Summary: "no submissions"}, nil
}

// stubWallet settles instantly.
type stubWallet struct{}

func (stubWallet) Capabilities() walletport.Capabilities { return walletport.Capabilities{} }
func (stubWallet) Network() string                       { return "testnet" }
func (stubWallet) Transfer(context.Context, string, decimal.Decimal) (string, error) {
	return "tx-1", nil
}
func (stubWallet) WaitConfirmed(context.Context, string) error { return nil }
func (stubWallet) Balance(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (stubWallet) PayerAddress(context.Context) (string, error) { return "", nil }

// stubSource serves one issue.
type stubSource struct{}

func (stubSource) Name() string { return "stub" }

func (stubSource) GetTask(_ context.Context, sourceURL string, number int) (*task.Task, error) {
	if number != 7 {
		return nil, fmt.Errorf("unknown issue %d", number)
	}
	return &task.Task{
		ID: "stub#7", Number: 7, Title: "Stub issue", SourceURL: sourceURL,
	}, nil
}

func (stubSource) PublishResult(context.Context, task.Task, *solution.Solution, string) (string, error) {
	return "", fmt.Errorf("not supported")
}

func newTestServer(t *testing.T) (*httptest.Server, *memstore.Store) {
	t.Helper()

	st := memstore.New()
	b := bus.New()

	cfg := config.Defaults().Arena
	cfg.Roster = []config.SolverSpec{{ID: "solver-a", Model: "m", PayoutAddress: "0xa"}}

	pool := service.NewPoolRunner([]solver.Solver{stubSolver{id: "solver-a"}}, b, 0, time.Second, 0)
	settler := service.NewSettler(stubWallet{}, st, time.Second)
	policy, err := service.NewPayoutPolicy(cfg)
	if err != nil {
		t.Fatalf("payout policy: %v", err)
	}
	arena := service.NewArena(st, b, pool, stubJudge{}, settler, nil, nil, policy, nil, &cfg, config.Retrieval{QueryLimit: 8})

	hub := ws.NewHub(st)
	h := NewHandlers(context.Background(), arena, st, hub, stubSource{})

	r := chi.NewRouter()
	MountRoutes(r, h)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, st
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestCreateCompetitionInlineTask(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/competitions",
		`{"title": "Fix the crash", "body": "details", "amount": "12.50"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	comp := decode[competition.Competition](t, resp)
	if comp.Task.Title != "Fix the crash" {
		t.Errorf("task title = %q", comp.Task.Title)
	}
	if !comp.PayoutAmount.Equal(decimal.RequireFromString("12.50")) {
		t.Errorf("payout = %s, want 12.50", comp.PayoutAmount)
	}

	// The background run drives it to completion.
	waitForStatus(t, srv, comp.ID, competition.StatusCompleted)
}

// The response body must be the pending snapshot, serialized before the
// background run starts mutating the aggregate.
func TestCreateCompetitionResponseIsPendingSnapshot(t *testing.T) {
	srv, _ := newTestServer(t)

	for i := 0; i < 25; i++ {
		resp := postJSON(t, srv.URL+"/api/v1/competitions",
			fmt.Sprintf(`{"title": "Fix the crash %d"}`, i))
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", resp.StatusCode)
		}

		comp := decode[competition.Competition](t, resp)
		if comp.Status != competition.StatusPending {
			t.Fatalf("response status = %s, want pending", comp.Status)
		}
		for _, p := range comp.Participants {
			if p.State != competition.ParticipantIdle {
				t.Fatalf("participant %s = %s, want idle", p.AgentID, p.State)
			}
		}
	}
}

func TestCreateCompetitionFromSource(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/competitions",
		`{"source_url": "https://github.com/acme/widget", "issue_number": 7}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	comp := decode[competition.Competition](t, resp)
	if comp.Task.ID != "stub#7" {
		t.Errorf("task id = %q", comp.Task.ID)
	}
}

func TestCreateCompetitionValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		body string
		want int
	}{
		{`{}`, http.StatusBadRequest},
		{`{"source_url": "https://github.com/acme/widget"}`, http.StatusBadRequest},
		{`{"title": "t", "amount": "-5"}`, http.StatusBadRequest},
		{`{"title": "t", "amount": "soon"}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
		{`{"source_url": "https://github.com/acme/widget", "issue_number": 404}`, http.StatusBadGateway},
	}
	for _, c := range cases {
		resp := postJSON(t, srv.URL+"/api/v1/competitions", c.body)
		if resp.StatusCode != c.want {
			t.Errorf("body %s: status = %d, want %d", c.body, resp.StatusCode, c.want)
		}
		_ = resp.Body.Close()
	}
}

func TestGetCompetitionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/competitions/absent")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListAndLedgerEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/competitions", `{"title": "Fix it"}`)
	comp := decode[competition.Competition](t, resp)
	waitForStatus(t, srv, comp.ID, competition.StatusCompleted)

	listResp, err := http.Get(srv.URL + "/api/v1/competitions")
	if err != nil {
		t.Fatalf("GET list: %v", err)
	}
	list := decode[[]competition.Competition](t, listResp)
	if len(list) != 1 {
		t.Fatalf("list = %d entries, want 1", len(list))
	}

	ledgerResp, err := http.Get(srv.URL + "/api/v1/competitions/" + comp.ID + "/ledger")
	if err != nil {
		t.Fatalf("GET ledger: %v", err)
	}
	ledger := decode[[]json.RawMessage](t, ledgerResp)
	if len(ledger) != 1 {
		t.Errorf("ledger = %d entries, want 1", len(ledger))
	}

	agentResp, err := http.Get(srv.URL + "/api/v1/agents/solver-a/ledger")
	if err != nil {
		t.Fatalf("GET agent ledger: %v", err)
	}
	agentLedger := decode[[]json.RawMessage](t, agentResp)
	if len(agentLedger) != 1 {
		t.Errorf("agent ledger = %d entries, want 1", len(agentLedger))
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func waitForStatus(t *testing.T, srv *httptest.Server, id string, want competition.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(srv.URL + "/api/v1/competitions/" + id)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		comp := decode[competition.Competition](t, resp)
		if comp.Status == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("competition %s never reached %s", id, want)
}
