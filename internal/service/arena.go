package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arenaforge/arenaforge/internal/adapter/otel"
	"github.com/arenaforge/arenaforge/internal/config"
	"github.com/arenaforge/arenaforge/internal/domain"
	"github.com/arenaforge/arenaforge/internal/domain/competition"
	"github.com/arenaforge/arenaforge/internal/domain/event"
	"github.com/arenaforge/arenaforge/internal/domain/payment"
	"github.com/arenaforge/arenaforge/internal/domain/solution"
	"github.com/arenaforge/arenaforge/internal/domain/task"
	"github.com/arenaforge/arenaforge/internal/port/bus"
	"github.com/arenaforge/arenaforge/internal/port/contextprovider"
	"github.com/arenaforge/arenaforge/internal/port/judge"
	"github.com/arenaforge/arenaforge/internal/port/sourcecontrol"
	"github.com/arenaforge/arenaforge/internal/port/store"
)

// Arena owns the competition state machine. It is the single writer of
// Competition.status and the only emitter of lifecycle events. Run is the
// error boundary for the whole lifecycle: collaborator failures degrade,
// they never escape.
type Arena struct {
	store    store.Store
	bus      bus.Bus
	pool     *PoolRunner
	judge    judge.Judge
	settler  *Settler
	retrieve contextprovider.Provider // nil when retrieval is off
	source   sourcecontrol.Provider   // nil disables auto-publish
	payout   PayoutPolicy
	metrics  *otel.Metrics // nil-safe
	cfg      *config.Arena

	retrieval config.Retrieval

	// inflight guards against duplicate concurrent runs of one id.
	inflight sync.Map
}

// NewArena creates the competition runner with all dependencies. retrieve,
// source and metrics may be nil.
func NewArena(
	st store.Store,
	b bus.Bus,
	pool *PoolRunner,
	j judge.Judge,
	settler *Settler,
	retrieve contextprovider.Provider,
	source sourcecontrol.Provider,
	payout PayoutPolicy,
	metrics *otel.Metrics,
	cfg *config.Arena,
	retrieval config.Retrieval,
) *Arena {
	return &Arena{
		store:    st,
		bus:      b,
		pool:     pool,
		judge:    j,
		settler:  settler,
		retrieve: retrieve,
		source:   source,
		payout:   payout,
		metrics:  metrics,
		cfg:      cfg,

		retrieval: retrieval,
	}
}

// CreateCompetition builds the aggregate with every participant idle,
// persists it and emits competition:created. No other side effects.
func (a *Arena) CreateCompetition(ctx context.Context, t task.Task, amount *decimal.Decimal, autoPublish bool) (*competition.Competition, error) {
	payout := a.payout.Amount(t)
	if amount != nil {
		payout = *amount
	}

	participants := make([]competition.Participant, len(a.cfg.Roster))
	for i, s := range a.cfg.Roster {
		participants[i] = competition.Participant{
			AgentID:  s.ID,
			Model:    s.Model,
			Provider: s.Provider,
			State:    competition.ParticipantIdle,
		}
	}

	comp := &competition.Competition{
		ID:           uuid.NewString(),
		Task:         t,
		PayoutAmount: payout,
		Status:       competition.StatusPending,
		Participants: participants,
		AutoPublish:  autoPublish,
		CreatedAt:    time.Now().UTC(),
	}

	if err := a.store.SaveCompetition(ctx, comp); err != nil {
		return nil, fmt.Errorf("save competition: %w", err)
	}
	a.bus.Publish(ctx, event.New(event.TypeCompetitionCreated, comp.ID, comp))

	slog.Info("competition created",
		"competition_id", comp.ID,
		"task", t.Title,
		"payout", payout,
		"participants", len(participants),
	)
	return comp, nil
}

// Get returns one competition.
func (a *Arena) Get(ctx context.Context, id string) (*competition.Competition, error) {
	return a.store.GetCompetition(ctx, id)
}

// List returns all competitions.
func (a *Arena) List(ctx context.Context) ([]competition.Competition, error) {
	return a.store.ListCompetitions(ctx)
}

// Run drives one competition from running to completed. It returns an error
// only for preconditions (duplicate run, terminal competition) and for a
// failed persist of an authoritative status transition; every collaborator
// failure is degraded into competition state instead.
func (a *Arena) Run(ctx context.Context, comp *competition.Competition) (*competition.Competition, error) {
	if comp.Status.IsTerminal() {
		return comp, domain.ErrCompleted
	}
	if _, loaded := a.inflight.LoadOrStore(comp.ID, struct{}{}); loaded {
		return comp, domain.ErrAlreadyRunning
	}
	defer a.inflight.Delete(comp.ID)

	ctx, span := otel.StartCompetitionSpan(ctx, comp.ID, comp.Task.ID)
	defer span.End()
	started := time.Now()

	// Phase 1: running.
	if err := a.transition(ctx, comp, competition.StatusRunning); err != nil {
		return comp, err
	}
	a.bus.Publish(ctx, event.New(event.TypeCompetitionStarted, comp.ID, statusPayload{Status: comp.Status}))
	if a.metrics != nil {
		a.metrics.CompetitionsStarted.Add(ctx, 1)
	}

	// Phase 2: best-effort context retrieval. Never aborts the run.
	codeContext := a.retrieveContext(ctx, comp)

	// Phase 3: mark the whole roster solving with a shared start time.
	now := time.Now().UTC()
	for i := range comp.Participants {
		comp.Participants[i].State = competition.ParticipantSolving
		comp.Participants[i].StartedAt = &now
	}
	a.persistParticipants(ctx, comp)
	for i := range comp.Participants {
		a.bus.Publish(ctx, event.New(event.TypeAgentSolving, comp.ID, agentPayload{AgentID: comp.Participants[i].AgentID}))
	}

	// Phase 4: concurrent solving. Participant updates and per-agent events
	// are applied as each solver settles; the mutex serializes the
	// callbacks coming from the solver goroutines.
	var mu sync.Mutex
	outcomes := a.pool.SolveAll(ctx, comp.ID, comp.Task, codeContext, func(out solution.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		a.applyOutcome(ctx, comp, out)
	})

	// Phase 5: judging.
	if err := a.transition(ctx, comp, competition.StatusJudging); err != nil {
		return comp, err
	}
	a.bus.Publish(ctx, event.New(event.TypeCompetitionJudging, comp.ID, statusPayload{Status: comp.Status}))

	verdict := a.rank(ctx, comp, outcomes)

	// Phase 6: payment, when the verdict names a winner.
	if verdict.WinnerID != "" {
		comp.WinnerID = verdict.WinnerID
		comp.Verdict = verdict
		if err := a.transition(ctx, comp, competition.StatusPaying); err != nil {
			return comp, err
		}
		if err := a.store.UpdateVerdict(ctx, comp.ID, verdict, verdict.WinnerID); err != nil {
			slog.Error("persist verdict", "competition_id", comp.ID, "error", err)
		}
		a.bus.Publish(ctx, event.New(event.TypeCompetitionPaying, comp.ID, payingPayload{
			WinnerID: verdict.WinnerID,
			Amount:   comp.PayoutAmount.String(),
		}))

		a.settle(ctx, comp)
		a.publishWinner(ctx, comp)
	} else {
		comp.Verdict = verdict
		if err := a.store.UpdateVerdict(ctx, comp.ID, verdict, ""); err != nil {
			slog.Error("persist verdict", "competition_id", comp.ID, "error", err)
		}
	}

	// Phase 7: always terminate in completed.
	completedAt := time.Now().UTC()
	comp.Status = competition.StatusCompleted
	comp.CompletedAt = &completedAt
	if err := a.store.UpdateStatus(ctx, comp.ID, competition.StatusCompleted); err != nil {
		return comp, fmt.Errorf("persist completed status: %w", err)
	}
	if err := a.store.UpdateCompleted(ctx, comp.ID, completedAt); err != nil {
		slog.Error("persist completion time", "competition_id", comp.ID, "error", err)
	}
	a.bus.Publish(ctx, event.New(event.TypeCompetitionCompleted, comp.ID, comp))

	if a.metrics != nil {
		a.metrics.CompetitionsCompleted.Add(ctx, 1)
		a.metrics.CompetitionDuration.Record(ctx, time.Since(started).Seconds())
	}
	slog.Info("competition completed",
		"competition_id", comp.ID,
		"winner_id", comp.WinnerID,
		"duration", time.Since(started),
	)
	return comp, nil
}

// transition persists an authoritative forward status change. A refused or
// failed transition is fatal to the invocation: downstream phases depend on
// persisted state being correct.
func (a *Arena) transition(ctx context.Context, comp *competition.Competition, next competition.Status) error {
	if !comp.Status.CanAdvanceTo(next) {
		return fmt.Errorf("status %s cannot advance to %s", comp.Status, next)
	}
	if err := a.store.UpdateStatus(ctx, comp.ID, next); err != nil {
		return fmt.Errorf("persist status %s: %w", next, err)
	}
	comp.Status = next
	return nil
}

// retrieveContext runs the optional indexing/query phase. Any failure logs
// and yields empty context; retrieval is an enhancement, not a dependency.
func (a *Arena) retrieveContext(ctx context.Context, comp *competition.Competition) string {
	if a.retrieve == nil {
		return ""
	}

	onProgress := func(stage string, done, total int) {
		a.bus.Publish(ctx, event.New(event.TypeRAGProgress, comp.ID, ragPayload{Stage: stage, Done: done, Total: total}))
	}

	a.bus.Publish(ctx, event.New(event.TypeRAGIndexing, comp.ID, ragPayload{Stage: "indexing"}))
	a.ensureIndexed(ctx, comp, onProgress)

	chunks, err := a.retrieve.QueryContext(ctx, comp.Task, a.retrieval.QueryLimit, onProgress)
	if err != nil {
		slog.Warn("context retrieval failed, continuing without context",
			"competition_id", comp.ID, "error", err)
		a.bus.Publish(ctx, event.New(event.TypeRAGComplete, comp.ID, ragPayload{Stage: "failed"}))
		return ""
	}

	a.bus.Publish(ctx, event.New(event.TypeRAGComplete, comp.ID, ragPayload{Stage: "complete", Done: len(chunks), Total: len(chunks)}))
	return RenderContext(chunks)
}

// ensureIndexed indexes the source once per competition source URL. A
// failed lookup or indexing pass logs and falls through to the query; the
// worker may still hold a usable index.
func (a *Arena) ensureIndexed(ctx context.Context, comp *competition.Competition, onProgress contextprovider.ProgressFunc) {
	indexed, err := a.retrieve.IsIndexed(ctx, comp.Task.SourceURL, "")
	if err != nil {
		slog.Warn("index lookup failed", "competition_id", comp.ID, "error", err)
	}
	if indexed {
		return
	}

	res, err := a.retrieve.IndexContext(ctx, a.retrieval.LocalPath, comp.Task.SourceURL, onProgress)
	if err != nil {
		slog.Warn("context indexing failed", "competition_id", comp.ID, "error", err)
		return
	}
	slog.Info("context indexed",
		"competition_id", comp.ID,
		"version_id", res.VersionID,
		"items_indexed", res.ItemsIndexed,
	)
}

// applyOutcome records one solver result on its participant slot, persists
// the roster and emits the per-agent event. Called under the outcome mutex.
func (a *Arena) applyOutcome(ctx context.Context, comp *competition.Competition, out solution.Outcome) {
	p := comp.Participant(out.AgentID)
	if p == nil {
		slog.Error("outcome for unknown participant", "agent_id", out.AgentID)
		return
	}

	now := time.Now().UTC()
	p.CompletedAt = &now
	if out.Success {
		p.State = competition.ParticipantDone
		p.Solution = out.Solution
	} else {
		p.State = competition.ParticipantFailed
		p.Error = out.Error
		if a.metrics != nil {
			a.metrics.SolverFailures.Add(ctx, 1)
		}
	}
	if a.metrics != nil {
		a.metrics.SolveDuration.Record(ctx, float64(out.ElapsedMS)/1000)
	}

	a.persistParticipants(ctx, comp)

	if out.Success {
		a.bus.Publish(ctx, event.New(event.TypeAgentDone, comp.ID, agentPayload{
			AgentID:   out.AgentID,
			ElapsedMS: out.ElapsedMS,
		}))
	} else {
		a.bus.Publish(ctx, event.New(event.TypeAgentFailed, comp.ID, agentPayload{
			AgentID:   out.AgentID,
			ElapsedMS: out.ElapsedMS,
			Error:     out.Error,
		}))
	}
}

// rank obtains a verdict, guarding against a judge implementation that
// errors despite the port contract.
func (a *Arena) rank(ctx context.Context, comp *competition.Competition, outcomes []solution.Outcome) *competition.Verdict {
	successful := successfulOutcomes(outcomes)
	if len(successful) == 0 {
		return noSubmissionsVerdict(outcomes)
	}

	verdict, err := a.judge.Rank(ctx, comp.Task, outcomes)
	if err != nil || verdict == nil {
		slog.Warn("judge port failed, using fallback ranking", "competition_id", comp.ID, "error", err)
		return FallbackVerdict(successful)
	}
	return verdict
}

// settle pays the winner and folds the ledger record into the aggregate.
func (a *Arena) settle(ctx context.Context, comp *competition.Competition) {
	ctx, span := otel.StartSettlementSpan(ctx, comp.ID, comp.WinnerID)
	defer span.End()

	rec := a.settler.Settle(ctx, comp.ID, comp.WinnerID, a.payoutAddress(comp.WinnerID), comp.PayoutAmount)
	comp.Settlement = rec
	if rec.Status != payment.StatusConfirmed {
		comp.PaymentError = rec.Error
	}
	if a.metrics != nil {
		if comp.PaymentError == "" {
			a.metrics.PaymentsConfirmed.Add(ctx, 1)
		} else {
			a.metrics.PaymentsFailed.Add(ctx, 1)
		}
	}

	if err := a.store.UpdateSettlement(ctx, comp.ID, rec, comp.PaymentError); err != nil {
		slog.Error("persist settlement", "competition_id", comp.ID, "error", err)
	}
}

// publishWinner optionally publishes the winning solution. Publish failure
// is logged, never fatal.
func (a *Arena) publishWinner(ctx context.Context, comp *competition.Competition) {
	if !comp.AutoPublish || a.source == nil {
		return
	}
	winner := comp.Participant(comp.WinnerID)
	if winner == nil || winner.Solution == nil {
		return
	}

	url, err := a.source.PublishResult(ctx, comp.Task, winner.Solution, a.cfg.PublishAuthor)
	if err != nil {
		slog.Warn("auto-publish failed", "competition_id", comp.ID, "error", err)
		return
	}
	comp.PublishedURL = url
	if err := a.store.UpdatePublishedURL(ctx, comp.ID, url); err != nil {
		slog.Error("persist published url", "competition_id", comp.ID, "error", err)
	}
	slog.Info("winning solution published", "competition_id", comp.ID, "url", url)
}

// payoutAddress resolves the configured payout address for an agent.
func (a *Arena) payoutAddress(agentID string) string {
	for _, s := range a.cfg.Roster {
		if s.ID == agentID {
			return s.PayoutAddress
		}
	}
	return ""
}

// persistParticipants writes the roster snapshot; failures are logged, the
// in-memory aggregate stays authoritative for the rest of the run.
func (a *Arena) persistParticipants(ctx context.Context, comp *competition.Competition) {
	if err := a.store.UpdateParticipants(ctx, comp.ID, comp.Participants); err != nil {
		slog.Error("persist participants", "competition_id", comp.ID, "error", err)
	}
}

type statusPayload struct {
	Status competition.Status `json:"status"`
}

type agentPayload struct {
	AgentID   string `json:"agent_id"`
	ElapsedMS int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

type payingPayload struct {
	WinnerID string `json:"winner_id"`
	Amount   string `json:"amount"`
}

type ragPayload struct {
	Stage string `json:"stage"`
	Done  int    `json:"done,omitempty"`
	Total int    `json:"total,omitempty"`
}
