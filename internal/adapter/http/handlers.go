package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arenaforge/arenaforge/internal/adapter/ws"
	"github.com/arenaforge/arenaforge/internal/domain/task"
	"github.com/arenaforge/arenaforge/internal/port/sourcecontrol"
	"github.com/arenaforge/arenaforge/internal/port/store"
	"github.com/arenaforge/arenaforge/internal/service"
)

const maxBodyBytes = 256 * 1024

// Handlers carries the dependencies of all HTTP handlers.
type Handlers struct {
	arena  *service.Arena
	store  store.Store
	hub    *ws.Hub
	source sourcecontrol.Provider

	// runCtx parents the background competition runs so they survive the
	// request but stop with the server.
	runCtx context.Context
}

// NewHandlers creates the handler set. source may be nil; inline tasks still
// work without it.
func NewHandlers(runCtx context.Context, arena *service.Arena, st store.Store, hub *ws.Hub, source sourcecontrol.Provider) *Handlers {
	if runCtx == nil {
		runCtx = context.Background()
	}
	return &Handlers{arena: arena, store: st, hub: hub, source: source, runCtx: runCtx}
}

// createCompetitionRequest accepts either a source reference (issue to
// fetch) or an inline task, plus optional overrides.
type createCompetitionRequest struct {
	SourceURL   string `json:"source_url,omitempty"`
	IssueNumber int    `json:"issue_number,omitempty"`

	Title  string   `json:"title,omitempty"`
	Body   string   `json:"body,omitempty"`
	Labels []string `json:"labels,omitempty"`

	Amount      string `json:"amount,omitempty"`
	AutoPublish bool   `json:"auto_publish,omitempty"`
}

func (h *Handlers) CreateCompetition(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createCompetitionRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}

	t, ok := h.resolveTask(r.Context(), w, req)
	if !ok {
		return
	}

	var amount *decimal.Decimal
	if req.Amount != "" {
		parsed, err := decimal.NewFromString(req.Amount)
		if err != nil || !parsed.IsPositive() {
			writeError(w, http.StatusBadRequest, "amount must be a positive decimal")
			return
		}
		amount = &parsed
	}

	comp, err := h.arena.CreateCompetition(r.Context(), t, amount, req.AutoPublish)
	if err != nil {
		writeDomainError(w, err, "competition not created")
		return
	}

	// Serialize the pending snapshot before the run starts; Run mutates
	// the aggregate and must own the only live reference.
	writeJSON(w, http.StatusAccepted, comp)

	go func() {
		if _, err := h.arena.Run(h.runCtx, comp); err != nil {
			slog.Error("competition run failed", "competition_id", comp.ID, "error", err)
		}
	}()
}

// resolveTask builds the task from the request: inline when a title is
// given, otherwise fetched from the source provider.
func (h *Handlers) resolveTask(ctx context.Context, w http.ResponseWriter, req createCompetitionRequest) (task.Task, bool) {
	if strings.TrimSpace(req.Title) != "" {
		return task.Task{
			ID:        "inline-" + time.Now().UTC().Format("20060102150405"),
			Title:     req.Title,
			Body:      req.Body,
			SourceURL: req.SourceURL,
			Labels:    req.Labels,
			CreatedAt: time.Now().UTC(),
		}, true
	}

	if req.SourceURL == "" || req.IssueNumber == 0 {
		writeError(w, http.StatusBadRequest, "either title or source_url and issue_number are required")
		return task.Task{}, false
	}
	if h.source == nil {
		writeError(w, http.StatusBadRequest, "no source provider configured; submit an inline task")
		return task.Task{}, false
	}

	t, err := h.source.GetTask(ctx, req.SourceURL, req.IssueNumber)
	if err != nil {
		slog.Warn("fetch task failed", "source_url", req.SourceURL, "number", req.IssueNumber, "error", err)
		writeError(w, http.StatusBadGateway, "could not fetch task from source")
		return task.Task{}, false
	}
	return *t, true
}

func (h *Handlers) ListCompetitions(w http.ResponseWriter, r *http.Request) {
	comps, err := h.arena.List(r.Context())
	if err != nil {
		writeDomainError(w, err, "competitions not found")
		return
	}
	writeJSON(w, http.StatusOK, comps)
}

func (h *Handlers) GetCompetition(w http.ResponseWriter, r *http.Request) {
	comp, err := h.arena.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "competition not found")
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

func (h *Handlers) CompetitionLedger(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if _, err := h.arena.Get(r.Context(), id); err != nil {
		writeDomainError(w, err, "competition not found")
		return
	}
	recs, err := h.store.LedgerByCompetition(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "ledger not found")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handlers) AgentLedger(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.LedgerByAgent(r.Context(), urlParam(r, "agentID"))
	if err != nil {
		writeDomainError(w, err, "ledger not found")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.hub.HandleWS(w, r)
}
