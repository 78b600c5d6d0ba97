package service

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/arenaforge/arenaforge/internal/config"
	"github.com/arenaforge/arenaforge/internal/domain/task"
)

// PayoutPolicy decides the reward amount for a task at competition creation.
type PayoutPolicy interface {
	Amount(t task.Task) decimal.Decimal
}

// NewPayoutPolicy builds the configured policy. The config is validated at
// load time; unparseable amounts cannot reach this point.
func NewPayoutPolicy(cfg config.Arena) (PayoutPolicy, error) {
	fixed, err := decimal.NewFromString(cfg.PayoutFixed)
	if err != nil {
		return nil, fmt.Errorf("payout_fixed: %w", err)
	}

	switch cfg.PayoutPolicy {
	case "fixed":
		return fixedPolicy{amount: fixed}, nil
	case "label":
		return labelPolicy{prefix: cfg.PayoutLabelPrefix, fallback: fixed}, nil
	case "random":
		min, err := decimal.NewFromString(cfg.PayoutMin)
		if err != nil {
			return nil, fmt.Errorf("payout_min: %w", err)
		}
		max, err := decimal.NewFromString(cfg.PayoutMax)
		if err != nil {
			return nil, fmt.Errorf("payout_max: %w", err)
		}
		if max.LessThan(min) {
			return nil, fmt.Errorf("payout_max %s is below payout_min %s", max, min)
		}
		return randomPolicy{min: min, max: max}, nil
	default:
		return nil, fmt.Errorf("unknown payout policy %q", cfg.PayoutPolicy)
	}
}

type fixedPolicy struct {
	amount decimal.Decimal
}

func (p fixedPolicy) Amount(task.Task) decimal.Decimal { return p.amount }

// labelPolicy derives the amount from a "<prefix><amount>" task label,
// falling back to the fixed amount when no label parses.
type labelPolicy struct {
	prefix   string
	fallback decimal.Decimal
}

func (p labelPolicy) Amount(t task.Task) decimal.Decimal {
	for _, l := range t.Labels {
		if !strings.HasPrefix(l, p.prefix) {
			continue
		}
		if amt, err := decimal.NewFromString(strings.TrimPrefix(l, p.prefix)); err == nil && amt.IsPositive() {
			return amt
		}
	}
	return p.fallback
}

// randomPolicy draws a bounded random amount, rounded to two places.
type randomPolicy struct {
	min, max decimal.Decimal
}

func (p randomPolicy) Amount(task.Task) decimal.Decimal {
	span := p.max.Sub(p.min)
	if span.IsZero() {
		return p.min
	}
	f := decimal.NewFromFloat(rand.Float64())
	return p.min.Add(span.Mul(f)).Round(2)
}
