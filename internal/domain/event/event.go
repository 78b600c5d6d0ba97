// Package event defines the typed lifecycle events emitted by the runner.
package event

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Type identifies the kind of lifecycle event.
type Type string

const (
	TypeCompetitionCreated   Type = "competition:created"
	TypeCompetitionStarted   Type = "competition:started"
	TypeCompetitionJudging   Type = "competition:judging"
	TypeCompetitionPaying    Type = "competition:paying"
	TypeCompetitionCompleted Type = "competition:completed"

	// TypeCompetitionSync is the synthetic catch-up frame sent to a newly
	// subscribing observer before any live event.
	TypeCompetitionSync Type = "competition:sync"

	TypeAgentSolving   Type = "agent:solving"
	TypeAgentStreaming Type = "agent:streaming"
	TypeAgentDone      Type = "agent:done"
	TypeAgentFailed    Type = "agent:failed"

	TypeRAGIndexing Type = "rag:indexing"
	TypeRAGProgress Type = "rag:progress"
	TypeRAGComplete Type = "rag:complete"
)

// Event is a single immutable lifecycle event. Events for one competition
// are emitted in strict lifecycle order and never replayed, except the
// synthetic sync frame.
type Event struct {
	Type          Type            `json:"type"`
	CompetitionID string          `json:"competition_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// New builds an event with the current timestamp and a marshaled payload.
// Marshal failures are logged and produce an empty payload rather than an
// error; event emission is always best-effort.
func New(t Type, competitionID string, payload any) Event {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			slog.Error("marshal event payload", "type", t, "error", err)
		} else {
			raw = data
		}
	}
	return Event{
		Type:          t,
		CompetitionID: competitionID,
		Timestamp:     time.Now().UTC(),
		Payload:       raw,
	}
}
