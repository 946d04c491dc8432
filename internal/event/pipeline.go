package event

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aura-rover/aura-backend/internal/analyzer"
	"github.com/aura-rover/aura-backend/internal/feed"
	"github.com/aura-rover/aura-backend/internal/media"
	"github.com/aura-rover/aura-backend/internal/notifier"
	"github.com/aura-rover/aura-backend/internal/roverlog"
	"github.com/aura-rover/aura-backend/internal/shared"
)

// Outcome describes what a single enrichment attempt did.
type Outcome string

const (
	OutcomeAnalyzed        Outcome = "analyzed"
	OutcomeAlreadyAnalyzed Outcome = "already_analyzed"
	OutcomeUnavailable     Outcome = "unavailable"
	OutcomeFailed          Outcome = "failed"
	OutcomeSkipped         Outcome = "skipped"
)

// Trigger is the input to event creation. The image, when present, is
// stashed in media storage under the new event's id.
type Trigger struct {
	Type           Type
	Source         string
	Image          []byte
	Metadata       shared.JSONMap
	SkipEnrichment bool
}

// Pipeline creates, enriches and announces events. Creation is
// strictly best-effort: a storage outage must never stop the caller
// from finishing its own work.
type Pipeline struct {
	store    *Store
	media    *media.Store
	analyzer *analyzer.Client
	notifier *notifier.Notifier
	hub      *feed.Hub
	logs     *roverlog.Store
	logger   *slog.Logger
}

func NewPipeline(store *Store, mediaStore *media.Store, an *analyzer.Client, n *notifier.Notifier, hub *feed.Hub, logs *roverlog.Store, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		media:    mediaStore,
		analyzer: an,
		notifier: n,
		hub:      hub,
		logs:     logs,
		logger:   logger.With("component", "event-pipeline"),
	}
}

// Create persists a new event for the trigger and announces it on the
// live feed. It never returns an error: when persistence fails the
// event is returned unsaved so enrichment and notification can still
// describe it.
func (p *Pipeline) Create(ctx context.Context, t Trigger) *Event {
	e := &Event{
		ID:        shared.NewID("evt_"),
		CreatedAt: time.Now().UTC(),
		Type:      t.Type,
		Source:    t.Source,
		HasImage:  len(t.Image) > 0,
		Metadata:  t.Metadata,
		State:     StatePending,
	}

	if len(t.Image) > 0 {
		if err := p.media.SaveEventImage(ctx, e.ID, t.Image); err != nil {
			p.logger.Warn("failed to save event image", "event_id", e.ID, "error", err)
			e.HasImage = false
		}
	}

	if err := p.store.Create(ctx, e); err != nil {
		p.logger.Error("failed to persist event", "event_id", e.ID, "type", e.Type, "error", err)
	}

	p.logs.Append(ctx, "warning", "event-pipeline", logCategory(e.Type),
		fmt.Sprintf("%s event %s from %s", e.Type, e.ID, orUnknown(e.Source)),
		shared.JSONMap{"event_id": e.ID})

	p.hub.Broadcast("event.created", e)
	return e
}

// Enrich runs the analyzer over the event image (or metadata for
// image-less events) and records the result. The event's state always
// ends terminal after this call.
func (p *Pipeline) Enrich(ctx context.Context, e *Event) Outcome {
	if e.State.Terminal() {
		// Terminal states exit only through the manual analyze
		// trigger, which resets the event before calling here.
		return terminalOutcome(e.State)
	}

	if !p.analyzer.Configured() {
		p.finish(ctx, e, StateSkipped, nil)
		return OutcomeSkipped
	}

	if err := e.Transition(StateProcessing); err != nil {
		p.logger.Warn("enrichment transition rejected", "event_id", e.ID, "error", err)
		return OutcomeFailed
	}
	p.saveState(ctx, e)

	res, err := p.analyze(ctx, e)
	if err != nil {
		if shared.IsUnavailable(err) {
			p.logger.Warn("analyzer unavailable", "event_id", e.ID, "error", err)
			p.finish(ctx, e, StateUnavailable, nil)
			return OutcomeUnavailable
		}
		p.logger.Error("enrichment failed", "event_id", e.ID, "error", err)
		p.finish(ctx, e, StateFailed, nil)
		return OutcomeFailed
	}

	p.finish(ctx, e, StateSucceeded, res)
	p.hub.Broadcast("event.analyzed", e)
	return OutcomeAnalyzed
}

func (p *Pipeline) analyze(ctx context.Context, e *Event) (*analyzer.Result, error) {
	prompt := promptFor(e)
	if e.HasImage {
		img, err := p.media.EventImage(ctx, e.ID)
		if err == nil {
			return p.analyzer.AnalyzeImage(ctx, img, prompt)
		}
		p.logger.Warn("event image missing, analyzing without it", "event_id", e.ID, "error", err)
	}
	return p.analyzer.AnalyzeText(ctx, prompt)
}

func (p *Pipeline) finish(ctx context.Context, e *Event, to State, res *analyzer.Result) {
	if err := e.Transition(to); err != nil {
		p.logger.Error("enrichment transition rejected", "event_id", e.ID, "error", err)
		return
	}
	if res != nil {
		now := time.Now().UTC()
		e.ShortSummary = firstSentence(res.Content)
		e.LongSummary = strings.TrimSpace(res.Content)
		e.AnalyzerRaw = string(res.Raw)
		e.AnalyzerModel = res.Model
		e.AnalyzerLatencyMS = res.LatencyMS
		e.AnalyzedAt = &now
	}
	p.saveState(ctx, e)
}

func (p *Pipeline) saveState(ctx context.Context, e *Event) {
	if err := p.store.Update(ctx, e); err != nil {
		p.logger.Error("failed to persist event state", "event_id", e.ID, "state", e.State, "error", err)
	}
}

// Notify pushes the event to the operator channel. It reads the event
// but never mutates it, so a notification failure cannot corrupt the
// enrichment record.
func (p *Pipeline) Notify(ctx context.Context, e *Event) bool {
	caption := e.ShortSummary
	if caption == "" {
		caption = e.LongSummary
	}
	if caption == "" {
		caption = fmt.Sprintf("%s alert from %s", strings.ReplaceAll(string(e.Type), "_", " "), orUnknown(e.Source))
	}

	if e.HasImage {
		img, err := p.media.EventImage(ctx, e.ID)
		if err == nil {
			return p.notifier.SendPhoto(ctx, img, caption)
		}
		p.logger.Warn("event image missing for notification", "event_id", e.ID, "error", err)
	}
	return p.notifier.SendText(ctx, caption)
}

// Process runs the full create-enrich-notify sequence for a trigger.
func (p *Pipeline) Process(ctx context.Context, t Trigger) *Event {
	e := p.Create(ctx, t)
	if !t.SkipEnrichment {
		p.Enrich(ctx, e)
	} else if e.State == StatePending {
		p.finish(ctx, e, StateSkipped, nil)
	}
	p.Notify(ctx, e)
	return e
}

// Reanalyze is the manual analyze trigger for an event whose previous
// attempt did not succeed. It is the only path out of a terminal
// state: the event is rewound to pending here, then enriched afresh.
func (p *Pipeline) Reanalyze(ctx context.Context, id string) (*Event, Outcome, error) {
	e, err := p.store.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if e.State == StateSucceeded {
		return e, OutcomeAlreadyAnalyzed, nil
	}
	if e.State.Terminal() {
		if err := e.ResetForRetry(); err != nil {
			p.logger.Warn("enrichment not retryable", "event_id", e.ID, "state", e.State)
			return e, terminalOutcome(e.State), nil
		}
	}
	outcome := p.Enrich(ctx, e)
	return e, outcome, nil
}

// terminalOutcome maps an end state to the outcome of the attempt
// that produced it.
func terminalOutcome(s State) Outcome {
	switch s {
	case StateSucceeded:
		return OutcomeAlreadyAnalyzed
	case StateUnavailable:
		return OutcomeUnavailable
	case StateSkipped:
		return OutcomeSkipped
	default:
		return OutcomeFailed
	}
}

func promptFor(e *Event) string {
	switch e.Type {
	case TypeUnknownFace:
		return "A security rover spotted a person its face database does not recognize. " +
			"Describe the person and anything notable about the scene in two or three short sentences."
	case TypeFire:
		return "A security rover's flame sensor fired. Describe what is visible and whether it looks like an actual fire, in two or three short sentences."
	case TypeGas:
		return "A security rover's gas sensor detected elevated levels. Describe the scene and any likely source, in two or three short sentences."
	default:
		if e.Metadata != nil {
			if prompt, ok := e.Metadata["prompt"].(string); ok && prompt != "" {
				return prompt
			}
		}
		return "Describe this scene captured by a patrolling security rover in two or three short sentences."
	}
}

func logCategory(t Type) string {
	switch t {
	case TypeFire:
		return roverlog.CategoryFire
	case TypeGas:
		return roverlog.CategoryGas
	case TypeUnknownFace:
		return roverlog.CategoryFaceRec
	default:
		return ""
	}
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			return s[:i+1]
		}
		if i >= 200 {
			return s[:i] + "..."
		}
	}
	return s
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown source"
	}
	return s
}
