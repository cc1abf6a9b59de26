package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "wirechat"

// StartCompletionSpan starts a span covering one completion stream on the
// reference server.
func StartCompletionSpan(ctx context.Context, conversationID int64, model string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "completion",
		trace.WithAttributes(
			attribute.Int64("conversation.id", conversationID),
			attribute.String("completion.model", model),
		),
	)
}

// StartForkSpan starts a span covering a conversation branch operation.
func StartForkSpan(ctx context.Context, conversationID int64, sequence int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "fork",
		trace.WithAttributes(
			attribute.Int64("conversation.id", conversationID),
			attribute.Int("fork.sequence", sequence),
		),
	)
}
