// Package memstore provides an in-memory store implementation for mock mode
// and tests. Safe for concurrent use; aggregates are deep-copied through
// JSON on the way in and out so callers never share state with the store.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arenaforge/arenaforge/internal/domain"
	"github.com/arenaforge/arenaforge/internal/domain/competition"
	"github.com/arenaforge/arenaforge/internal/domain/payment"
)

type Store struct {
	mu           sync.RWMutex
	competitions map[string]*competition.Competition
	ledger       []payment.Record
}

func New() *Store {
	return &Store{competitions: make(map[string]*competition.Competition)}
}

func (s *Store) SaveCompetition(_ context.Context, c *competition.Competition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.competitions[c.ID]; exists {
		return fmt.Errorf("save competition %s: already exists", c.ID)
	}
	clone, err := cloneCompetition(c)
	if err != nil {
		return err
	}
	s.competitions[c.ID] = clone
	return nil
}

func (s *Store) GetCompetition(_ context.Context, id string) (*competition.Competition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.competitions[id]
	if !ok {
		return nil, fmt.Errorf("get competition %s: %w", id, domain.ErrNotFound)
	}
	return cloneCompetition(c)
}

func (s *Store) ListCompetitions(_ context.Context) ([]competition.Competition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]competition.Competition, 0, len(s.competitions))
	for _, c := range s.competitions {
		clone, err := cloneCompetition(c)
		if err != nil {
			return nil, err
		}
		out = append(out, *clone)
	}
	// Newest first, matching the SQL store.
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdateStatus(_ context.Context, id string, status competition.Status) error {
	return s.update(id, func(c *competition.Competition) {
		c.Status = status
	})
}

func (s *Store) UpdateParticipants(_ context.Context, id string, ps []competition.Participant) error {
	clone := make([]competition.Participant, len(ps))
	data, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("clone participants: %w", err)
	}
	if err := json.Unmarshal(data, &clone); err != nil {
		return fmt.Errorf("clone participants: %w", err)
	}
	return s.update(id, func(c *competition.Competition) {
		c.Participants = clone
	})
}

func (s *Store) UpdateVerdict(_ context.Context, id string, v *competition.Verdict, winnerID string) error {
	return s.update(id, func(c *competition.Competition) {
		c.Verdict = v
		c.WinnerID = winnerID
	})
}

func (s *Store) UpdateSettlement(_ context.Context, id string, rec *payment.Record, paymentError string) error {
	return s.update(id, func(c *competition.Competition) {
		c.Settlement = rec
		c.PaymentError = paymentError
	})
}

func (s *Store) UpdatePublishedURL(_ context.Context, id, url string) error {
	return s.update(id, func(c *competition.Competition) {
		c.PublishedURL = url
	})
}

func (s *Store) UpdateCompleted(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(c *competition.Competition) {
		c.CompletedAt = &at
	})
}

func (s *Store) SaveLedgerEntry(_ context.Context, rec *payment.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = append(s.ledger, *rec)
	return nil
}

func (s *Store) LedgerByCompetition(_ context.Context, competitionID string) ([]payment.Record, error) {
	return s.filterLedger(func(r payment.Record) bool { return r.CompetitionID == competitionID }), nil
}

func (s *Store) LedgerByAgent(_ context.Context, agentID string) ([]payment.Record, error) {
	return s.filterLedger(func(r payment.Record) bool { return r.AgentID == agentID }), nil
}

func (s *Store) update(id string, apply func(*competition.Competition)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.competitions[id]
	if !ok {
		return fmt.Errorf("update competition %s: %w", id, domain.ErrNotFound)
	}
	apply(c)
	return nil
}

func (s *Store) filterLedger(keep func(payment.Record) bool) []payment.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []payment.Record
	for _, r := range s.ledger {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func cloneCompetition(c *competition.Competition) (*competition.Competition, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("clone competition: %w", err)
	}
	var clone competition.Competition
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("clone competition: %w", err)
	}
	return &clone, nil
}
