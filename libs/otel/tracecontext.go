package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContext is the W3C trace context in its header form, suitable for
// storing next to a row that is processed later by another goroutine.
type TraceContext struct {
	Traceparent string
	Tracestate  string
}

func CaptureTraceContext(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{Traceparent: carrier.Get("traceparent"), Tracestate: carrier.Get("tracestate")}
}

func (tc TraceContext) Empty() bool {
	return tc.Traceparent == ""
}

// Into returns parent carrying tc as its remote span context. An empty tc
// leaves parent untouched.
func (tc TraceContext) Into(parent context.Context) context.Context {
	if tc.Empty() {
		return parent
	}
	carrier := propagation.MapCarrier{"traceparent": tc.Traceparent}
	if tc.Tracestate != "" {
		carrier["tracestate"] = tc.Tracestate
	}
	return otel.GetTextMapPropagator().Extract(parent, carrier)
}
