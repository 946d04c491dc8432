package event

import (
	"fmt"
	"time"

	"github.com/aura-rover/aura-backend/internal/shared"
)

type Type string

const (
	TypeUnknownFace Type = "unknown_face"
	TypeFire        Type = "fire"
	TypeGas         Type = "gas"
	TypeManual      Type = "manual"
)

// State is the enrichment lifecycle of an event. It is a closed set
// with an explicit transition table so that an invalid state can never
// reach storage.
type State string

const (
	StatePending     State = "pending"
	StateProcessing  State = "processing"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
	StateUnavailable State = "unavailable"
	StateSkipped     State = "skipped"
)

var transitions = map[State][]State{
	StatePending:    {StateProcessing, StateSkipped},
	StateProcessing: {StateSucceeded, StateFailed, StateUnavailable},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateUnavailable, StateSkipped:
		return true
	}
	return false
}

// Retryable reports whether a manual analyze trigger may start a fresh
// attempt. A succeeded analysis is never redone in place.
func (s State) Retryable() bool {
	switch s {
	case StateFailed, StateUnavailable, StateSkipped:
		return true
	}
	return false
}

func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Event is the unit of the alerting pipeline, created once per trigger
// and mutated only as enrichment progresses.
type Event struct {
	ID        string         `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at" gorm:"index"`
	Type      Type           `json:"type" gorm:"index"`
	Source    string         `json:"source,omitempty"`
	HasImage  bool           `json:"has_image"`
	Metadata  shared.JSONMap `json:"metadata,omitempty" gorm:"type:json"`

	State             State      `json:"state" gorm:"index"`
	ShortSummary      string     `json:"short_summary,omitempty"`
	LongSummary       string     `json:"long_summary,omitempty"`
	AnalyzerRaw       string     `json:"-"`
	AnalyzerModel     string     `json:"analyzer_model,omitempty"`
	AnalyzerLatencyMS int64      `json:"analyzer_latency_ms,omitempty"`
	AnalyzedAt        *time.Time `json:"analyzed_at,omitempty"`
}

func (Event) TableName() string { return "events" }

// Transition moves the event to the next enrichment state, rejecting
// anything outside the transition table.
func (e *Event) Transition(to State) error {
	if !e.State.CanTransition(to) {
		return fmt.Errorf("invalid enrichment transition %s -> %s", e.State, to)
	}
	e.State = to
	return nil
}

// ResetForRetry rewinds a terminal-but-not-succeeded event back to
// pending so a manual analyze trigger can start a fresh attempt.
func (e *Event) ResetForRetry() error {
	if !e.State.Retryable() {
		return fmt.Errorf("enrichment state %s cannot be retried", e.State)
	}
	e.State = StatePending
	e.ShortSummary = ""
	e.LongSummary = ""
	e.AnalyzerRaw = ""
	e.AnalyzerModel = ""
	e.AnalyzerLatencyMS = 0
	e.AnalyzedAt = nil
	return nil
}
