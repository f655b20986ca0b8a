package eventhub

import (
	"context"

	"github.com/devigned/tab"
)

func (s *Scope) startSpanFromContext(ctx context.Context, operationName string) (context.Context, tab.Spanner) {
	ctx, span := tab.StartSpan(ctx, operationName)
	applyComponentInfo(span)
	span.AddAttributes(tab.StringAttribute("scope.id", s.id))
	return ctx, span
}

func applyComponentInfo(span tab.Spanner) {
	span.AddAttributes(
		tab.StringAttribute("component", "github.com/Azure/azure-event-hubs-amqp-go"),
		tab.StringAttribute("version", Version),
	)
}
