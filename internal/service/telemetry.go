package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/gym-class-booking/internal/observability"
)

var tracer = otel.Tracer("github.com/iliyamo/gym-class-booking/internal/service")

// finish records err on span and ends it.
func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// EventPublisher hands domain events to the broker. Implementations must
// be safe for concurrent use.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type discardEvents struct{}

func (discardEvents) Publish(context.Context, string, any) error { return nil }

// publish is best effort: the state change it describes is already
// committed, so a broker failure is logged and counted but not returned.
func publish(ctx context.Context, events EventPublisher, routingKey string, event any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := events.Publish(ctx, routingKey, event); err != nil {
		observability.EventPublishFailures.WithLabelValues(routingKey).Inc()
		slog.WarnContext(ctx, "event publish failed", "routing_key", routingKey, "err", err)
	}
}

func orDiscard(events EventPublisher) EventPublisher {
	if events == nil {
		return discardEvents{}
	}
	return events
}
