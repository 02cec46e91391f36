package pipeline

import "context"

// Trace records what the pipeline did with one request, for middleware
// sitting outside it (request metrics and logs). It belongs to a single
// request goroutine.
type Trace struct {
	Bypassed  bool
	Stage     string
	Outcome   Outcome
	Completed bool
}

// Admission labels for Trace.Label besides stage names.
const (
	LabelNone      = "none"
	LabelBypass    = "bypass"
	LabelForwarded = "forwarded"
	LabelAborted   = "aborted"
)

type traceKey struct{}

// WithTrace attaches a fresh Trace to ctx.
func WithTrace(ctx context.Context) (context.Context, *Trace) {
	t := &Trace{}
	return context.WithValue(ctx, traceKey{}, t), t
}

// TraceFrom returns the Trace attached by WithTrace, or nil.
func TraceFrom(ctx context.Context) *Trace {
	t, _ := ctx.Value(traceKey{}).(*Trace)
	return t
}

// Label condenses the trace into a low-cardinality metric label: "bypass",
// "forwarded", the name of the stage that short-circuited, "aborted" when a
// stage never returned, or "none" when no pipeline ran.
func (t *Trace) Label() string {
	switch {
	case t == nil:
		return LabelNone
	case t.Bypassed:
		return LabelBypass
	case !t.Completed && t.Stage == "":
		return LabelNone
	case !t.Completed:
		return LabelAborted
	case t.Outcome == ShortCircuit:
		return t.Stage
	default:
		return LabelForwarded
	}
}
