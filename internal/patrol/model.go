package patrol

import (
	"fmt"
	"time"

	"github.com/aura-rover/aura-backend/internal/event"
	"github.com/aura-rover/aura-backend/internal/shared"
)

// Path is a named route the rover can drive, expressed as an ordered
// list of waypoint labels. Schedule holds HH:MM slots at which the
// rover starts the path on its own.
type Path struct {
	ID        string             `json:"id" gorm:"primaryKey"`
	Name      string             `json:"name" gorm:"uniqueIndex"`
	Steps     shared.StringSlice `json:"steps" gorm:"type:json"`
	Schedule  shared.StringSlice `json:"schedule,omitempty" gorm:"type:json"`
	CreatedAt time.Time          `json:"created_at"`
}

func (Path) TableName() string { return "patrol_paths" }

type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
)

// Session is one run of a patrol. At most one session is active at a
// time; starting a new one force-completes whatever was running.
type Session struct {
	ID        string        `json:"id" gorm:"primaryKey"`
	PathID    string        `json:"path_id,omitempty" gorm:"index"`
	PathName  string        `json:"path_name,omitempty"`
	Status    SessionStatus `json:"status" gorm:"index"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`

	Report string `json:"report,omitempty"`

	AnalysisState event.State `json:"analysis_state" gorm:"index"`
	Analysis      string      `json:"analysis,omitempty"`
	AnalyzedAt    *time.Time  `json:"analyzed_at,omitempty"`
}

func (Session) TableName() string { return "patrol_sessions" }

// TransitionAnalysis moves the session's analysis to the next state.
// Sessions share the event state machine, so the same transition table
// applies.
func (s *Session) TransitionAnalysis(to event.State) error {
	if !s.AnalysisState.CanTransition(to) {
		return fmt.Errorf("invalid analysis transition %s -> %s", s.AnalysisState, to)
	}
	s.AnalysisState = to
	return nil
}

// ResetAnalysisForRetry rewinds a terminal-but-not-succeeded analysis
// back to pending for a fresh attempt.
func (s *Session) ResetAnalysisForRetry() error {
	if !s.AnalysisState.Retryable() {
		return fmt.Errorf("analysis state %s cannot be retried", s.AnalysisState)
	}
	s.AnalysisState = event.StatePending
	s.Analysis = ""
	s.AnalyzedAt = nil
	return nil
}

// Window returns the time range the session covers, using now for a
// session that has not ended.
func (s *Session) Window(now time.Time) (time.Time, time.Time) {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	return s.StartedAt, end
}
