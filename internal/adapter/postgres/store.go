package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arenaforge/arenaforge/internal/domain"
	"github.com/arenaforge/arenaforge/internal/domain/competition"
	"github.com/arenaforge/arenaforge/internal/domain/payment"
)

// Store implements the store port using PostgreSQL. Nested aggregate parts
// (task, participants, verdict, settlement) are stored as JSONB; columns
// carry what queries filter or order on.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const competitionColumns = `id, task, payout_amount, status, participants, verdict, winner_id,
	settlement, payment_error, auto_publish, published_url, created_at, completed_at`

func (s *Store) SaveCompetition(ctx context.Context, c *competition.Competition) error {
	taskJSON, err := json.Marshal(c.Task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	participantsJSON, err := json.Marshal(c.Participants)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO competitions (id, task, payout_amount, status, participants, auto_publish, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, taskJSON, c.PayoutAmount, c.Status, participantsJSON, c.AutoPublish, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("save competition %s: %w", c.ID, err)
	}
	return nil
}

func (s *Store) GetCompetition(ctx context.Context, id string) (*competition.Competition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+competitionColumns+` FROM competitions WHERE id = $1`, id)

	c, err := scanCompetition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get competition %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get competition %s: %w", id, err)
	}
	return &c, nil
}

func (s *Store) ListCompetitions(ctx context.Context) ([]competition.Competition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+competitionColumns+` FROM competitions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list competitions: %w", err)
	}
	defer rows.Close()

	var out []competition.Competition
	for rows.Next() {
		c, err := scanCompetition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status competition.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE competitions SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update status %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateParticipants(ctx context.Context, id string, ps []competition.Participant) error {
	participantsJSON, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE competitions SET participants = $2 WHERE id = $1`, id, participantsJSON)
	if err != nil {
		return fmt.Errorf("update participants %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update participants %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateVerdict(ctx context.Context, id string, v *competition.Verdict, winnerID string) error {
	verdictJSON, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE competitions SET verdict = $2, winner_id = $3 WHERE id = $1`,
		id, verdictJSON, winnerID)
	if err != nil {
		return fmt.Errorf("update verdict %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update verdict %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateSettlement(ctx context.Context, id string, rec *payment.Record, paymentError string) error {
	settlementJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal settlement: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE competitions SET settlement = $2, payment_error = $3 WHERE id = $1`,
		id, settlementJSON, paymentError)
	if err != nil {
		return fmt.Errorf("update settlement %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update settlement %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) UpdatePublishedURL(ctx context.Context, id, url string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE competitions SET published_url = $2 WHERE id = $1`, id, url)
	if err != nil {
		return fmt.Errorf("update published url %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update published url %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateCompleted(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE competitions SET completed_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("update completed %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update completed %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) SaveLedgerEntry(ctx context.Context, rec *payment.Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO payment_ledger (id, competition_id, agent_id, payout_address, payer_address,
		   amount, settlement_id, status, network, reason, error, created_at, confirmed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.CompetitionID, rec.AgentID, rec.PayoutAddress, rec.PayerAddress, rec.Amount,
		rec.SettlementID, rec.Status, rec.Network, rec.Reason, rec.Error, rec.CreatedAt, rec.ConfirmedAt)
	if err != nil {
		return fmt.Errorf("save ledger entry %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) LedgerByCompetition(ctx context.Context, competitionID string) ([]payment.Record, error) {
	return s.ledger(ctx, `competition_id`, competitionID)
}

func (s *Store) LedgerByAgent(ctx context.Context, agentID string) ([]payment.Record, error) {
	return s.ledger(ctx, `agent_id`, agentID)
}

func (s *Store) ledger(ctx context.Context, column, value string) ([]payment.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, competition_id, agent_id, payout_address, payer_address, amount,
		   settlement_id, status, network, reason, error, created_at, confirmed_at
		 FROM payment_ledger WHERE `+column+` = $1 ORDER BY created_at`, value)
	if err != nil {
		return nil, fmt.Errorf("ledger by %s: %w", column, err)
	}
	defer rows.Close()

	var out []payment.Record
	for rows.Next() {
		var r payment.Record
		if err := rows.Scan(&r.ID, &r.CompetitionID, &r.AgentID, &r.PayoutAddress, &r.PayerAddress,
			&r.Amount, &r.SettlementID, &r.Status, &r.Network, &r.Reason, &r.Error, &r.CreatedAt,
			&r.ConfirmedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
