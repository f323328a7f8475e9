package agent

import (
	"context"

	"github.com/google/uuid"
)

// Trace groups all runs of one top-level request in logs.
type Trace struct {
	ID   string
	Name string
}

type traceKey struct{}

// WithTrace attaches a new trace named name to ctx.
func WithTrace(ctx context.Context, name string) (context.Context, Trace) {
	t := Trace{ID: uuid.NewString(), Name: name}
	return context.WithValue(ctx, traceKey{}, t), t
}

// TraceFrom returns the trace attached to ctx, or the zero Trace.
func TraceFrom(ctx context.Context) Trace {
	t, _ := ctx.Value(traceKey{}).(Trace)
	return t
}
