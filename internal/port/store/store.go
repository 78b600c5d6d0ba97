// Package store defines the durable store port (interface).
package store

import (
	"context"
	"time"

	"github.com/arenaforge/arenaforge/internal/domain/competition"
	"github.com/arenaforge/arenaforge/internal/domain/payment"
)

// Store is the port interface for persisting competition aggregates and
// the payment ledger. Implementations must be safe for concurrent use by
// multiple in-flight competitions; all updates are keyed by competition id.
type Store interface {
	// Competitions
	SaveCompetition(ctx context.Context, c *competition.Competition) error
	GetCompetition(ctx context.Context, id string) (*competition.Competition, error)
	ListCompetitions(ctx context.Context) ([]competition.Competition, error)

	// Point updates. UpdateStatus persists the authoritative state
	// transition; its failure is fatal to the running invocation.
	UpdateStatus(ctx context.Context, id string, status competition.Status) error
	UpdateParticipants(ctx context.Context, id string, ps []competition.Participant) error
	UpdateVerdict(ctx context.Context, id string, v *competition.Verdict, winnerID string) error
	UpdateSettlement(ctx context.Context, id string, rec *payment.Record, paymentError string) error
	UpdatePublishedURL(ctx context.Context, id, url string) error
	UpdateCompleted(ctx context.Context, id string, at time.Time) error

	// Payment ledger (append-only)
	SaveLedgerEntry(ctx context.Context, rec *payment.Record) error
	LedgerByCompetition(ctx context.Context, competitionID string) ([]payment.Record, error)
	LedgerByAgent(ctx context.Context, agentID string) ([]payment.Record, error)
}
