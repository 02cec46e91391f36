package token

import "github.com/flightontime/flightontime/internal/core"

// Reason explains why a token was rejected.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonMalformed covers unparseable tokens and tokens missing required claims.
	ReasonMalformed
	// ReasonSignatureMismatch means the signature does not verify under the
	// configured secret and algorithm.
	ReasonSignatureMismatch
	// ReasonExpired means exp is at or before the current time.
	ReasonExpired
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonMalformed:
		return "malformed"
	case ReasonSignatureMismatch:
		return "signature_mismatch"
	case ReasonExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Result is the outcome of validating a token: either a principal or a
// rejection reason, never both.
type Result struct {
	principal core.Principal
	reason    Reason
}

// Valid wraps a verified principal.
func Valid(p core.Principal) Result {
	return Result{principal: p}
}

// Invalid wraps a rejection reason.
func Invalid(reason Reason) Result {
	if reason == ReasonNone {
		reason = ReasonMalformed
	}
	return Result{reason: reason}
}

// IsValid reports whether the token verified.
func (r Result) IsValid() bool {
	return r.reason == ReasonNone
}

// Principal returns the verified identity when the result is valid.
func (r Result) Principal() (core.Principal, bool) {
	if !r.IsValid() {
		return core.Principal{}, false
	}
	return r.principal, true
}

// Reason returns the rejection reason, ReasonNone for valid results.
func (r Result) Reason() Reason {
	return r.reason
}

// Label is a short metrics-friendly description of the result.
func (r Result) Label() string {
	if r.IsValid() {
		return "valid"
	}
	return r.reason.String()
}
