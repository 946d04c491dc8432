package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aura-rover/aura-backend/internal/analyzer"
	"github.com/aura-rover/aura-backend/internal/event"
	"github.com/aura-rover/aura-backend/internal/patrol"
	"github.com/aura-rover/aura-backend/internal/roverlog"
)

type Window string

const (
	WindowDay   Window = "day"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
	WindowYear  Window = "year"
)

func ParseWindow(s string) (Window, error) {
	switch Window(strings.ToLower(strings.TrimSpace(s))) {
	case WindowDay, "":
		return WindowDay, nil
	case WindowWeek:
		return WindowWeek, nil
	case WindowMonth:
		return WindowMonth, nil
	case WindowYear:
		return WindowYear, nil
	}
	return "", fmt.Errorf("unknown analytics window %q", s)
}

// Range returns the half-open time range ending at now.
func (w Window) Range(now time.Time) (time.Time, time.Time) {
	switch w {
	case WindowWeek:
		return now.Add(-7 * 24 * time.Hour), now
	case WindowMonth:
		return now.AddDate(0, -1, 0), now
	case WindowYear:
		return now.AddDate(-1, 0, 0), now
	default:
		return now.Add(-24 * time.Hour), now
	}
}

// Report is the aggregate view of a time window. Every number in it is
// derived from storage alone; the optional annotation is the only part
// that involves the model.
type Report struct {
	Window Window    `json:"window"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`

	TotalEvents      int64                `json:"total_events"`
	EventsByType     map[event.Type]int64 `json:"events_by_type"`
	LogsByCategory   map[string]int64     `json:"logs_by_category"`
	PatrolSessions   int64                `json:"patrol_sessions"`
	BusiestHour      int                  `json:"busiest_hour"`
	BusiestHourCount int64                `json:"busiest_hour_count"`
	UnknownFaceShare float64              `json:"unknown_face_share"`

	Annotation string `json:"annotation,omitempty"`
}

// Aggregator computes window reports over events, logs and patrols.
type Aggregator struct {
	events   *event.Store
	logs     *roverlog.Store
	patrols  *patrol.Store
	analyzer *analyzer.Client
	logger   *slog.Logger
}

func NewAggregator(events *event.Store, logs *roverlog.Store, patrols *patrol.Store, an *analyzer.Client, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		events:   events,
		logs:     logs,
		patrols:  patrols,
		analyzer: an,
		logger:   logger.With("component", "analytics"),
	}
}

// Build computes the report for a window ending now.
func (a *Aggregator) Build(ctx context.Context, w Window, now time.Time) (*Report, error) {
	start, end := w.Range(now)

	r := &Report{
		Window:      w,
		Start:       start,
		End:         end,
		BusiestHour: -1,
	}

	counts, err := a.events.CountByType(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	r.EventsByType = counts
	for _, n := range counts {
		r.TotalEvents += n
	}
	if r.TotalEvents > 0 {
		r.UnknownFaceShare = float64(counts[event.TypeUnknownFace]) / float64(r.TotalEvents)
	}

	logCounts, err := a.logs.CountByCategory(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("count logs: %w", err)
	}
	r.LogsByCategory = logCounts

	sessions, err := a.patrols.CountSessionsBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("count patrols: %w", err)
	}
	r.PatrolSessions = sessions

	if r.TotalEvents > 0 {
		events, err := a.events.Between(ctx, start, end)
		if err != nil {
			return nil, fmt.Errorf("load events: %w", err)
		}
		r.BusiestHour, r.BusiestHourCount = busiestHour(events)
	}

	return r, nil
}

// Annotate asks the model for a one-paragraph read of the report. It
// is strictly best-effort: any analyzer problem leaves the report
// un-annotated.
func (a *Aggregator) Annotate(ctx context.Context, r *Report) {
	if !a.analyzer.Configured() {
		return
	}

	res, err := a.analyzer.AnalyzeText(ctx, annotationPrompt(r))
	if err != nil {
		a.logger.Warn("analytics annotation failed", "error", err)
		return
	}
	r.Annotation = strings.TrimSpace(res.Content)
}

func annotationPrompt(r *Report) string {
	var b strings.Builder
	b.WriteString("You are summarizing activity statistics from a security rover. ")
	b.WriteString("Give a short operator-facing read of these numbers in two or three sentences.\n\n")
	fmt.Fprintf(&b, "Window: last %s (%s to %s)\n", r.Window,
		r.Start.Format("2006-01-02 15:04"), r.End.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Total alerts: %d\n", r.TotalEvents)
	for _, typ := range sortedEventTypes(r.EventsByType) {
		fmt.Fprintf(&b, "- %s: %d\n", strings.ReplaceAll(string(typ), "_", " "), r.EventsByType[typ])
	}
	fmt.Fprintf(&b, "Patrol runs: %d\n", r.PatrolSessions)
	if r.BusiestHour >= 0 {
		fmt.Fprintf(&b, "Busiest hour: %02d:00 with %d alerts\n", r.BusiestHour, r.BusiestHourCount)
	}
	return b.String()
}

// busiestHour finds the UTC hour of day with the most events.
func busiestHour(events []event.Event) (int, int64) {
	var perHour [24]int64
	for i := range events {
		perHour[events[i].CreatedAt.UTC().Hour()]++
	}
	best, bestCount := -1, int64(0)
	for h, n := range perHour {
		if n > bestCount {
			best, bestCount = h, n
		}
	}
	return best, bestCount
}

func sortedEventTypes(m map[event.Type]int64) []event.Type {
	keys := make([]event.Type, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
