// Package competition defines the Competition aggregate and its lifecycle.
package competition

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/arenaforge/arenaforge/internal/domain/payment"
	"github.com/arenaforge/arenaforge/internal/domain/solution"
	"github.com/arenaforge/arenaforge/internal/domain/task"
)

// Status represents the current lifecycle phase of a competition.
// Transitions are strictly forward; StatusCompleted is terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusJudging   Status = "judging"
	StatusPaying    Status = "paying"
	StatusCompleted Status = "completed"
)

// rank orders statuses for monotonicity checks. Paying may be skipped when
// there is no winner.
var rank = map[Status]int{
	StatusPending:   0,
	StatusRunning:   1,
	StatusJudging:   2,
	StatusPaying:    3,
	StatusCompleted: 4,
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
func (s Status) CanAdvanceTo(next Status) bool {
	return rank[next] > rank[s]
}

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool { return s == StatusCompleted }

// ParticipantState represents one solver's progress within a competition.
type ParticipantState string

const (
	ParticipantIdle    ParticipantState = "idle"
	ParticipantSolving ParticipantState = "solving"
	ParticipantDone    ParticipantState = "done"
	ParticipantFailed  ParticipantState = "failed"
)

// Participant is the per-solver slot inside a competition. The roster is
// fixed at creation; a participant never transitions after reaching done or
// failed.
type Participant struct {
	AgentID     string             `json:"agent_id"`
	Model       string             `json:"model"`
	Provider    string             `json:"provider,omitempty"`
	State       ParticipantState   `json:"state"`
	Solution    *solution.Solution `json:"solution,omitempty"`
	Error       string             `json:"error,omitempty"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// Score is one participant's judged result.
type Score struct {
	AgentID      string  `json:"agent_id"`
	Correctness  float64 `json:"correctness"`
	CodeQuality  float64 `json:"code_quality"`
	Completeness float64 `json:"completeness"`
	Overall      float64 `json:"overall"`
	Note         string  `json:"note,omitempty"`
}

// Verdict is the judging result. An empty WinnerID means no winner.
type Verdict struct {
	WinnerID string  `json:"winner_id,omitempty"`
	Scores   []Score `json:"scores"`
	Summary  string  `json:"summary"`
	Fallback bool    `json:"fallback,omitempty"`
}

// Competition is the central aggregate driven by the runner.
type Competition struct {
	ID           string          `json:"id"`
	Task         task.Task       `json:"task"`
	PayoutAmount decimal.Decimal `json:"payout_amount"`
	Status       Status          `json:"status"`
	Participants []Participant   `json:"participants"`
	Verdict      *Verdict        `json:"verdict,omitempty"`
	WinnerID     string          `json:"winner_id,omitempty"`
	Settlement   *payment.Record `json:"settlement,omitempty"`
	PaymentError string          `json:"payment_error,omitempty"`
	AutoPublish  bool            `json:"auto_publish"`
	PublishedURL string          `json:"published_url,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Participant returns the slot for the given agent id, or nil.
func (c *Competition) Participant(agentID string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].AgentID == agentID {
			return &c.Participants[i]
		}
	}
	return nil
}
