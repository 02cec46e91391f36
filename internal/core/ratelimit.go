package core

import "time"

// AdmissionEvent describes a single rate limit decision.
type AdmissionEvent struct {
	Key       ClientKey
	Allowed   bool
	Method    string
	Path      string
	RequestID string
	At        time.Time
}

// AdmissionStats aggregates rate limit decisions for one client key.
type AdmissionStats struct {
	Key            ClientKey  `json:"client_key" yaml:"client_key"`
	Allowed        int64      `json:"allowed" yaml:"allowed"`
	Rejected       int64      `json:"rejected" yaml:"rejected"`
	FirstSeen      time.Time  `json:"first_seen" yaml:"first_seen"`
	LastSeen       time.Time  `json:"last_seen" yaml:"last_seen"`
	LastRejectedAt *time.Time `json:"last_rejected_at,omitempty" yaml:"last_rejected_at,omitempty"`
}

// Add folds one event into the aggregate.
func (s *AdmissionStats) Add(event AdmissionEvent) {
	if s.Key == "" {
		s.Key = event.Key
	}
	if s.FirstSeen.IsZero() || event.At.Before(s.FirstSeen) {
		s.FirstSeen = event.At
	}
	if event.At.After(s.LastSeen) {
		s.LastSeen = event.At
	}
	if event.Allowed {
		s.Allowed++
		return
	}
	s.Rejected++
	if s.LastRejectedAt == nil || event.At.After(*s.LastRejectedAt) {
		at := event.At
		s.LastRejectedAt = &at
	}
}
