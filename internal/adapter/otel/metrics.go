package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "arenaforge"

// Metrics holds all ArenaForge metric instruments.
type Metrics struct {
	CompetitionsStarted   metric.Int64Counter
	CompetitionsCompleted metric.Int64Counter
	SolverFailures        metric.Int64Counter
	PaymentsConfirmed     metric.Int64Counter
	PaymentsFailed        metric.Int64Counter
	CompetitionDuration   metric.Float64Histogram
	SolveDuration         metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.CompetitionsStarted, err = meter.Int64Counter("arenaforge.competitions.started",
		metric.WithDescription("Number of competitions started"))
	if err != nil {
		return nil, err
	}

	m.CompetitionsCompleted, err = meter.Int64Counter("arenaforge.competitions.completed",
		metric.WithDescription("Number of competitions completed"))
	if err != nil {
		return nil, err
	}

	m.SolverFailures, err = meter.Int64Counter("arenaforge.solvers.failed",
		metric.WithDescription("Number of failed solver attempts"))
	if err != nil {
		return nil, err
	}

	m.PaymentsConfirmed, err = meter.Int64Counter("arenaforge.payments.confirmed",
		metric.WithDescription("Number of confirmed payouts"))
	if err != nil {
		return nil, err
	}

	m.PaymentsFailed, err = meter.Int64Counter("arenaforge.payments.failed",
		metric.WithDescription("Number of failed payouts"))
	if err != nil {
		return nil, err
	}

	m.CompetitionDuration, err = meter.Float64Histogram("arenaforge.competition.duration_seconds",
		metric.WithDescription("Competition duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.SolveDuration, err = meter.Float64Histogram("arenaforge.solve.duration_seconds",
		metric.WithDescription("Per-solver duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
