package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopProvider_StartSpanAndRecordMetric(t *testing.T) {
	p := NewNoopProvider("decision-core-test")

	ctx, span := p.StartSpan(context.Background(), "orchestrate")
	require.NotNil(t, ctx)
	span.SetAttribute("event.type", "NEW_ORDER")
	span.RecordError(nil)
	span.End()

	p.RecordMetric("decisioncore.sla.breaches", 1, map[string]string{"service_type": "EXPRESS"})
	p.RecordHistogram("decisioncore.route.optimize.ms", 42.5, map[string]string{"algorithm": "nn"})
}

func TestNoopProvider_ShutdownSucceeds(t *testing.T) {
	p := NewNoopProvider("decision-core-test")
	require.NoError(t, p.Shutdown(context.Background()))
}
