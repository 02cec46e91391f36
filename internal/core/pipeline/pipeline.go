// Package pipeline composes request admission stages into a single
// chi-compatible middleware.
//
// Every inbound request first passes the bypass check. Requests whose path
// falls under a bypass prefix go straight to the business handler. All other
// requests run through the configured stages in order; any stage may write a
// response and stop the pipeline, in which case the handler is never invoked.
package pipeline

import (
	"net/http"
)

// Outcome is the control-flow result of a single stage.
type Outcome int

const (
	// Forward hands the request to the next stage (or the handler).
	Forward Outcome = iota
	// ShortCircuit means the stage already wrote a response.
	ShortCircuit
)

func (o Outcome) String() string {
	switch o {
	case Forward:
		return "forwarded"
	case ShortCircuit:
		return "short_circuited"
	default:
		return "unknown"
	}
}

// Stage is a single request interceptor.
//
// Process may return a derived request (for example one carrying extra
// context values) which is passed on to the following stages. A stage that
// returns ShortCircuit must have written the response itself.
type Stage interface {
	Name() string
	Process(w http.ResponseWriter, r *http.Request) (*http.Request, Outcome)
}

// Pipeline runs an ordered list of stages ahead of the business handlers.
type Pipeline struct {
	bypass BypassList
	stages []Stage
}

// New builds a pipeline. Stages run in the order given.
func New(bypass BypassList, stages ...Stage) *Pipeline {
	kept := make([]Stage, 0, len(stages))
	for _, stage := range stages {
		if stage != nil {
			kept = append(kept, stage)
		}
	}
	return &Pipeline{
		bypass: bypass,
		stages: kept,
	}
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, 0, len(p.stages))
	for _, stage := range p.stages {
		names = append(names, stage.Name())
	}
	return names
}

// Bypass returns the configured bypass prefixes.
func (p *Pipeline) Bypass() BypassList {
	return p.bypass
}

// Run executes the bypass check and every stage against the request.
// The returned request is the one the business handler should receive.
// Panics raised by a stage are not recovered here.
func (p *Pipeline) Run(w http.ResponseWriter, r *http.Request) (*http.Request, Outcome) {
	trace := TraceFrom(r.Context())
	if trace == nil {
		trace = &Trace{}
	}

	if p.bypass.Matches(r.URL.Path) {
		trace.Bypassed = true
		trace.Completed = true
		return r, Forward
	}

	for _, stage := range p.stages {
		trace.Stage = stage.Name()
		next, outcome := stage.Process(w, r)
		if outcome == ShortCircuit {
			trace.Outcome = ShortCircuit
			trace.Completed = true
			return r, ShortCircuit
		}
		if next != nil {
			r = next
		}
	}

	trace.Stage = ""
	trace.Outcome = Forward
	trace.Completed = true
	return r, Forward
}

// Handler wraps next with the pipeline. It has the shape of a chi middleware.
func (p *Pipeline) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwarded, outcome := p.Run(w, r)
		if outcome == ShortCircuit {
			return
		}
		next.ServeHTTP(w, forwarded)
	})
}
