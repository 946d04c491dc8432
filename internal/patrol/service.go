package patrol

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aura-rover/aura-backend/internal/analyzer"
	"github.com/aura-rover/aura-backend/internal/event"
	"github.com/aura-rover/aura-backend/internal/roverlog"
	"github.com/aura-rover/aura-backend/internal/shared"
)

// Service runs the patrol session lifecycle and builds the end-of-run
// reports.
type Service struct {
	store    *Store
	events   *event.Store
	logs     *roverlog.Store
	analyzer *analyzer.Client
	logger   *slog.Logger
}

func NewService(store *Store, events *event.Store, logs *roverlog.Store, an *analyzer.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		events:   events,
		logs:     logs,
		analyzer: an,
		logger:   logger.With("component", "patrol"),
	}
}

// Start begins a new session. A still-active previous session is
// force-completed first so there is never more than one running.
func (s *Service) Start(ctx context.Context, pathID string) (*Session, error) {
	sess := &Session{Status: StatusActive}

	if pathID != "" {
		p, err := s.store.GetPath(ctx, pathID)
		if err != nil {
			return nil, err
		}
		sess.PathID = p.ID
		sess.PathName = p.Name
	}

	if prev, err := s.store.ActiveSession(ctx); err == nil {
		s.logger.Warn("force-completing stale patrol session", "session_id", prev.ID)
		if err := s.completeSession(ctx, prev, StatusCompleted); err != nil {
			return nil, err
		}
	}

	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	s.logs.Append(ctx, "info", "patrol", roverlog.CategoryPatrol,
		fmt.Sprintf("patrol started on %s", orFreeRoam(sess.PathName)),
		shared.JSONMap{"session_id": sess.ID})

	return sess, nil
}

// Stop completes the active session and attaches the window report.
func (s *Service) Stop(ctx context.Context) (*Session, error) {
	sess, err := s.store.ActiveSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.completeSession(ctx, sess, StatusCompleted); err != nil {
		return nil, err
	}

	s.logs.Append(ctx, "info", "patrol", roverlog.CategoryPatrol,
		fmt.Sprintf("patrol completed on %s", orFreeRoam(sess.PathName)),
		shared.JSONMap{"session_id": sess.ID})

	return sess, nil
}

// Cancel abandons the active session without a report.
func (s *Service) Cancel(ctx context.Context) (*Session, error) {
	sess, err := s.store.ActiveSession(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess.Status = StatusCancelled
	sess.EndedAt = &now
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}

	s.logs.Append(ctx, "info", "patrol", roverlog.CategoryPatrol,
		"patrol cancelled", shared.JSONMap{"session_id": sess.ID})

	return sess, nil
}

func (s *Service) completeSession(ctx context.Context, sess *Session, status SessionStatus) error {
	now := time.Now().UTC()
	if sess.EndedAt == nil {
		sess.EndedAt = &now
	}
	sess.Status = status

	start, end := sess.Window(now)
	report, err := s.SummarizeWindow(ctx, start, end)
	if err != nil {
		s.logger.Warn("failed to build patrol report", "session_id", sess.ID, "error", err)
	} else {
		sess.Report = report
	}

	return s.store.UpdateSession(ctx, sess)
}

// SummarizeWindow builds a deterministic plain-text report of what
// happened in a time range, from event and log counts alone. It works
// with or without the analyzer.
func (s *Service) SummarizeWindow(ctx context.Context, start, end time.Time) (string, error) {
	eventCounts, err := s.events.CountByType(ctx, start, end)
	if err != nil {
		return "", fmt.Errorf("count events: %w", err)
	}
	logCounts, err := s.logs.CountByCategory(ctx, start, end)
	if err != nil {
		return "", fmt.Errorf("count logs: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Patrol window %s to %s.\n",
		start.Format("2006-01-02 15:04"), end.Format("2006-01-02 15:04"))

	if len(eventCounts) == 0 {
		b.WriteString("No alerts were raised.\n")
	} else {
		b.WriteString("Alerts:\n")
		for _, typ := range sortedTypes(eventCounts) {
			fmt.Fprintf(&b, "- %s: %d\n", strings.ReplaceAll(string(typ), "_", " "), eventCounts[typ])
		}
	}

	if len(logCounts) > 0 {
		b.WriteString("Sensor activity:\n")
		for _, cat := range sortedKeys(logCounts) {
			fmt.Fprintf(&b, "- %s: %d\n", strings.ReplaceAll(cat, "_", " "), logCounts[cat])
		}
	}

	return b.String(), nil
}

// Analyze asks the model to comment on a session's report and records
// the result through the same state machine events use. A successful
// analysis is never redone; terminal failures reset for a fresh
// attempt on the next call. The report itself is rebuilt first when
// the session finished without one.
func (s *Service) Analyze(ctx context.Context, sessionID string) (*Session, event.Outcome, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}

	if sess.AnalysisState == event.StateSucceeded {
		return sess, event.OutcomeAlreadyAnalyzed, nil
	}
	if sess.AnalysisState.Terminal() {
		if err := sess.ResetAnalysisForRetry(); err != nil {
			s.logger.Warn("session analysis not retryable", "session_id", sess.ID, "state", sess.AnalysisState)
			return sess, event.OutcomeAlreadyAnalyzed, nil
		}
	}

	if !s.analyzer.Configured() {
		s.finishAnalysis(ctx, sess, event.StateSkipped, "")
		return sess, event.OutcomeSkipped, nil
	}

	if sess.Report == "" {
		start, end := sess.Window(time.Now().UTC())
		report, err := s.SummarizeWindow(ctx, start, end)
		if err != nil {
			return nil, "", err
		}
		sess.Report = report
	}

	if err := sess.TransitionAnalysis(event.StateProcessing); err != nil {
		return nil, "", err
	}
	s.saveSession(ctx, sess)

	prompt := "You are reviewing a security rover's patrol report. " +
		"Point out anything that needs operator attention, in two or three short sentences.\n\n" + sess.Report

	res, err := s.analyzer.AnalyzeText(ctx, prompt)
	if err != nil {
		if shared.IsUnavailable(err) {
			s.logger.Warn("analyzer unavailable for session analysis", "session_id", sess.ID, "error", err)
			s.finishAnalysis(ctx, sess, event.StateUnavailable, "")
			return sess, event.OutcomeUnavailable, nil
		}
		s.logger.Error("session analysis failed", "session_id", sess.ID, "error", err)
		s.finishAnalysis(ctx, sess, event.StateFailed, "")
		return sess, event.OutcomeFailed, nil
	}

	s.finishAnalysis(ctx, sess, event.StateSucceeded, strings.TrimSpace(res.Content))
	return sess, event.OutcomeAnalyzed, nil
}

func (s *Service) finishAnalysis(ctx context.Context, sess *Session, to event.State, analysis string) {
	if err := sess.TransitionAnalysis(to); err != nil {
		s.logger.Error("analysis transition rejected", "session_id", sess.ID, "error", err)
		return
	}
	if analysis != "" {
		now := time.Now().UTC()
		sess.Analysis = analysis
		sess.AnalyzedAt = &now
	}
	s.saveSession(ctx, sess)
}

func (s *Service) saveSession(ctx context.Context, sess *Session) {
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		s.logger.Error("failed to persist session", "session_id", sess.ID, "state", sess.AnalysisState, "error", err)
	}
}

func sortedTypes(m map[event.Type]int64) []event.Type {
	keys := make([]event.Type, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orFreeRoam(name string) string {
	if name == "" {
		return "free roam"
	}
	return name
}
