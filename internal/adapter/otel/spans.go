package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "arenaforge"

// StartCompetitionSpan starts a span covering one competition run.
func StartCompetitionSpan(ctx context.Context, competitionID, taskID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "competition.run",
		trace.WithAttributes(
			attribute.String("competition.id", competitionID),
			attribute.String("task.id", taskID),
		),
	)
}

// StartSettlementSpan starts a span covering one payout attempt.
func StartSettlementSpan(ctx context.Context, competitionID, agentID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "competition.settle",
		trace.WithAttributes(
			attribute.String("competition.id", competitionID),
			attribute.String("agent.id", agentID),
		),
	)
}
