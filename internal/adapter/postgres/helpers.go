package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arenaforge/arenaforge/internal/domain/competition"
)

// scanCompetition hydrates one row into the aggregate, decoding the JSONB
// columns. Works for both QueryRow and rows iteration.
func scanCompetition(row pgx.Row) (competition.Competition, error) {
	var (
		c                competition.Competition
		taskJSON         []byte
		participantsJSON []byte
		verdictJSON      []byte
		settlementJSON   []byte
	)

	err := row.Scan(&c.ID, &taskJSON, &c.PayoutAmount, &c.Status, &participantsJSON,
		&verdictJSON, &c.WinnerID, &settlementJSON, &c.PaymentError,
		&c.AutoPublish, &c.PublishedURL, &c.CreatedAt, &c.CompletedAt)
	if err != nil {
		return c, err
	}

	if err := json.Unmarshal(taskJSON, &c.Task); err != nil {
		return c, fmt.Errorf("unmarshal task: %w", err)
	}
	if err := json.Unmarshal(participantsJSON, &c.Participants); err != nil {
		return c, fmt.Errorf("unmarshal participants: %w", err)
	}
	if len(verdictJSON) > 0 {
		if err := json.Unmarshal(verdictJSON, &c.Verdict); err != nil {
			return c, fmt.Errorf("unmarshal verdict: %w", err)
		}
	}
	if len(settlementJSON) > 0 {
		if err := json.Unmarshal(settlementJSON, &c.Settlement); err != nil {
			return c, fmt.Errorf("unmarshal settlement: %w", err)
		}
	}
	return c, nil
}
