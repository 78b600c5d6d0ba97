package service

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/arenaforge/arenaforge/internal/config"
	"github.com/arenaforge/arenaforge/internal/domain/task"
)

func payoutConfig(policy string) config.Arena {
	cfg := config.Defaults().Arena
	cfg.PayoutPolicy = policy
	cfg.PayoutFixed = "25"
	cfg.PayoutMin = "5"
	cfg.PayoutMax = "50"
	cfg.PayoutLabelPrefix = "bounty:"
	return cfg
}

func TestFixedPolicy(t *testing.T) {
	p, err := NewPayoutPolicy(payoutConfig("fixed"))
	if err != nil {
		t.Fatalf("NewPayoutPolicy: %v", err)
	}
	if got := p.Amount(task.Task{}); !got.Equal(decimal.NewFromInt(25)) {
		t.Errorf("amount = %s, want 25", got)
	}
}

func TestLabelPolicy(t *testing.T) {
	p, err := NewPayoutPolicy(payoutConfig("label"))
	if err != nil {
		t.Fatalf("NewPayoutPolicy: %v", err)
	}

	cases := []struct {
		labels []string
		want   string
	}{
		{[]string{"bug", "bounty:40"}, "40"},
		{[]string{"bounty:12.50"}, "12.5"},
		{[]string{"bounty:garbage"}, "25"},  // unparseable falls back
		{[]string{"bounty:-3"}, "25"},       // non-positive falls back
		{[]string{"bug", "help-wanted"}, "25"},
		{nil, "25"},
	}
	for _, c := range cases {
		got := p.Amount(task.Task{Labels: c.labels})
		if !got.Equal(decimal.RequireFromString(c.want)) {
			t.Errorf("labels %v: amount = %s, want %s", c.labels, got, c.want)
		}
	}
}

func TestRandomPolicyBounds(t *testing.T) {
	p, err := NewPayoutPolicy(payoutConfig("random"))
	if err != nil {
		t.Fatalf("NewPayoutPolicy: %v", err)
	}

	min := decimal.NewFromInt(5)
	max := decimal.NewFromInt(50)
	for i := 0; i < 100; i++ {
		got := p.Amount(task.Task{})
		if got.LessThan(min) || got.GreaterThan(max) {
			t.Fatalf("amount %s outside [%s, %s]", got, min, max)
		}
		if got.Exponent() < -2 {
			t.Fatalf("amount %s has more than two decimal places", got)
		}
	}
}

func TestRandomPolicyDegenerateRange(t *testing.T) {
	cfg := payoutConfig("random")
	cfg.PayoutMin = "10"
	cfg.PayoutMax = "10"
	p, err := NewPayoutPolicy(cfg)
	if err != nil {
		t.Fatalf("NewPayoutPolicy: %v", err)
	}
	if got := p.Amount(task.Task{}); !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("amount = %s, want 10", got)
	}
}

func TestNewPayoutPolicyRejectsBadConfig(t *testing.T) {
	cases := []func(*config.Arena){
		func(c *config.Arena) { c.PayoutPolicy = "tidal" },
		func(c *config.Arena) { c.PayoutFixed = "not-a-number" },
		func(c *config.Arena) { c.PayoutPolicy = "random"; c.PayoutMin = "60" }, // min above max
		func(c *config.Arena) { c.PayoutPolicy = "random"; c.PayoutMax = "x" },
	}
	for i, mutate := range cases {
		cfg := payoutConfig("fixed")
		mutate(&cfg)
		if _, err := NewPayoutPolicy(cfg); err == nil {
			t.Errorf("case %d: bad config accepted", i)
		}
	}
}
