package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aura-rover/aura-backend/internal/analytics"
	"github.com/aura-rover/aura-backend/internal/event"
	"github.com/aura-rover/aura-backend/internal/roverlog"
	"github.com/aura-rover/aura-backend/internal/shared"
)

const unavailableReply = "AI analysis server is currently unavailable"

// Handle answers one chat message. Slash commands hit the table, plain
// text goes through cheap heuristics first and the model last.
func (l *Loop) Handle(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		l.handleCommand(ctx, text)
		return
	}
	l.handleFreeText(ctx, text)
}

// normalizeCommand lowercases the first token and strips the optional
// @botname suffix Telegram appends in group chats.
func normalizeCommand(text string) string {
	cmd := strings.Fields(text)[0]
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}

func (l *Loop) handleCommand(ctx context.Context, text string) {
	switch normalizeCommand(text) {
	case "/status":
		l.notifier.SendText(ctx, l.statusReport(ctx))
	case "/last_ai":
		l.sendLastAI(ctx)
	case "/last_event":
		l.sendLastEvent(ctx)
	case "/analyze":
		l.analyzeFrame(ctx)
	case "/analytics_day":
		l.sendAnalytics(ctx, analytics.WindowDay)
	case "/analytics_week":
		l.sendAnalytics(ctx, analytics.WindowWeek)
	case "/analytics_month":
		l.sendAnalytics(ctx, analytics.WindowMonth)
	case "/analytics_year":
		l.sendAnalytics(ctx, analytics.WindowYear)
	default:
		// Unknown commands are left unanswered so the chat does not
		// fill with noise when other bots share it.
	}
}

func (l *Loop) statusReport(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("Rover status\n")
	fmt.Fprintf(&b, "Uptime: %s\n", time.Since(l.started).Round(time.Second))
	fmt.Fprintf(&b, "AI analyzer: %s\n", upDown(l.analyzer.IsAvailable(ctx)))
	fmt.Fprintf(&b, "Face detector: %s\n", upDown(l.detector.IsAvailable(ctx)))

	if n, err := l.events.CountSince(ctx, time.Now().UTC().Add(-24*time.Hour)); err == nil {
		fmt.Fprintf(&b, "Alerts in last 24h: %d\n", n)
	}
	if sess, err := l.patrols.ActiveSession(ctx); err == nil {
		fmt.Fprintf(&b, "Patrol: active on %s since %s\n",
			orFreeRoam(sess.PathName), sess.StartedAt.Format("15:04"))
	} else {
		b.WriteString("Patrol: idle\n")
	}
	return b.String()
}

func (l *Loop) sendLastAI(ctx context.Context) {
	e, err := l.events.LatestAnalyzed(ctx)
	if errors.Is(err, shared.ErrNotFound) {
		l.notifier.SendText(ctx, "No analyzed events yet.")
		return
	}
	if err != nil {
		l.logger.Error("failed to load latest analysis", "error", err)
		return
	}
	l.sendEvent(ctx, e, e.LongSummary)
}

func (l *Loop) sendLastEvent(ctx context.Context) {
	events, err := l.events.Recent(ctx, 1)
	if err != nil {
		l.logger.Error("failed to load latest event", "error", err)
		return
	}
	if len(events) == 0 {
		l.notifier.SendText(ctx, "No events recorded yet.")
		return
	}
	e := &events[0]
	l.sendEvent(ctx, e, describeEvent(e))
}

// sendEvent delivers an event with its snapshot when one exists.
func (l *Loop) sendEvent(ctx context.Context, e *event.Event, caption string) {
	if caption == "" {
		caption = describeEvent(e)
	}
	if e.HasImage {
		if img, err := l.media.EventImage(ctx, e.ID); err == nil {
			l.notifier.SendPhoto(ctx, img, caption)
			return
		}
	}
	l.notifier.SendText(ctx, caption)
}

func (l *Loop) analyzeFrame(ctx context.Context) {
	frame, err := l.media.LatestFrame(ctx)
	if errors.Is(err, shared.ErrNotFound) {
		l.notifier.SendText(ctx, "No camera frame has been received yet.")
		return
	}
	if err != nil {
		l.logger.Error("failed to load latest frame", "error", err)
		return
	}

	res, err := l.analyzer.AnalyzeImage(ctx, frame,
		"Describe this scene captured by a patrolling security rover in two or three short sentences.")
	if err != nil {
		if shared.IsUnavailable(err) {
			l.notifier.SendText(ctx, unavailableReply)
			return
		}
		l.logger.Error("frame analysis failed", "error", err)
		l.notifier.SendText(ctx, "Frame analysis failed.")
		return
	}
	l.notifier.SendPhoto(ctx, frame, res.Content)
}

func (l *Loop) sendAnalytics(ctx context.Context, w analytics.Window) {
	report, err := l.analytics.Build(ctx, w, time.Now().UTC())
	if err != nil {
		l.logger.Error("failed to build analytics", "error", err, "window", w)
		return
	}
	l.analytics.Annotate(ctx, report)
	l.notifier.SendText(ctx, renderAnalytics(report))
}

func renderAnalytics(r *analytics.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analytics, last %s\n", r.Window)
	fmt.Fprintf(&b, "Total alerts: %d\n", r.TotalEvents)
	types := make([]event.Type, 0, len(r.EventsByType))
	for typ := range r.EventsByType {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, typ := range types {
		fmt.Fprintf(&b, "- %s: %d\n", strings.ReplaceAll(string(typ), "_", " "), r.EventsByType[typ])
	}
	fmt.Fprintf(&b, "Patrol runs: %d\n", r.PatrolSessions)
	if r.BusiestHour >= 0 {
		fmt.Fprintf(&b, "Busiest hour: %02d:00 (%d alerts)\n", r.BusiestHour, r.BusiestHourCount)
	}
	if r.Annotation != "" {
		b.WriteString("\n" + r.Annotation)
	}
	return b.String()
}

// handleFreeText answers plain questions. Cheap local heuristics come
// first so the common questions work even with the model down.
func (l *Loop) handleFreeText(ctx context.Context, text string) {
	lower := strings.ToLower(text)

	if isGreeting(lower) {
		l.notifier.SendText(ctx, "Hello. I am the rover's monitoring assistant. Ask me about alerts, patrols or what the camera sees.")
		return
	}
	if isIdentityQuestion(lower) {
		l.notifier.SendText(ctx, "I am the monitoring assistant for your security rover. I watch its camera and sensors and answer questions about what happened.")
		return
	}

	if cat := sensorCategoryAsk(lower); cat != "" {
		l.answerLastSensor(ctx, cat)
		return
	}

	if wantsUnknownPersonPhoto(lower) {
		l.sendUnknownPersonPhoto(ctx)
		return
	}

	l.askModel(ctx, text)
}

func isGreeting(lower string) bool {
	for _, g := range []string{"hi", "hello", "hey", "yo", "good morning", "good evening", "good afternoon"} {
		if lower == g || strings.HasPrefix(lower, g+" ") || strings.HasPrefix(lower, g+"!") || strings.HasPrefix(lower, g+",") {
			return true
		}
	}
	return false
}

func isIdentityQuestion(lower string) bool {
	return strings.Contains(lower, "who are you") || strings.Contains(lower, "what are you")
}

// sensorCategoryAsk maps "when was the last fire" style questions to a
// log category.
func sensorCategoryAsk(lower string) string {
	if !strings.Contains(lower, "last") && !strings.Contains(lower, "recent") {
		return ""
	}
	switch {
	case strings.Contains(lower, "fire") || strings.Contains(lower, "flame"):
		return roverlog.CategoryFire
	case strings.Contains(lower, "gas") || strings.Contains(lower, "smoke"):
		return roverlog.CategoryGas
	case strings.Contains(lower, "edge") || strings.Contains(lower, "cliff"):
		return roverlog.CategoryEdge
	case strings.Contains(lower, "obstacle") || strings.Contains(lower, "collision"):
		return roverlog.CategoryObstacle
	}
	return ""
}

func (l *Loop) answerLastSensor(ctx context.Context, category string) {
	entry, err := l.logs.LastByCategory(ctx, category)
	if errors.Is(err, shared.ErrNotFound) {
		l.notifier.SendText(ctx, fmt.Sprintf("No %s activity on record.", strings.ReplaceAll(category, "_", " ")))
		return
	}
	if err != nil {
		l.logger.Error("failed to load sensor log", "error", err, "category", category)
		return
	}
	l.notifier.SendText(ctx, fmt.Sprintf("Last %s activity: %s (%s)",
		strings.ReplaceAll(category, "_", " "), entry.Message,
		entry.CreatedAt.Format("2006-01-02 15:04 MST")))
}

func wantsUnknownPersonPhoto(lower string) bool {
	mentionsPhoto := strings.Contains(lower, "photo") || strings.Contains(lower, "picture") || strings.Contains(lower, "image")
	mentionsStranger := strings.Contains(lower, "unknown") || strings.Contains(lower, "stranger") || strings.Contains(lower, "intruder")
	return mentionsPhoto && mentionsStranger
}

func (l *Loop) sendUnknownPersonPhoto(ctx context.Context) {
	e, err := l.events.LatestByType(ctx, event.TypeUnknownFace)
	if errors.Is(err, shared.ErrNotFound) {
		l.notifier.SendText(ctx, "No unknown person has been spotted.")
		return
	}
	if err != nil {
		l.logger.Error("failed to load unknown-face event", "error", err)
		return
	}
	l.sendEvent(ctx, e, "Most recent unknown person, seen "+e.CreatedAt.Format("2006-01-02 15:04 MST"))
}

// askModel is the last resort: feed the question plus recent context
// to the model and relay its answer.
func (l *Loop) askModel(ctx context.Context, question string) {
	if !l.analyzer.Configured() {
		l.notifier.SendText(ctx, unavailableReply)
		return
	}

	l.notifier.SendText(ctx, "Checking...")

	res, err := l.analyzer.AnalyzeText(ctx, l.contextPrompt(ctx, question))
	if err != nil {
		if shared.IsUnavailable(err) {
			l.notifier.SendText(ctx, unavailableReply)
			return
		}
		l.logger.Error("free-text answer failed", "error", err)
		l.notifier.SendText(ctx, "I could not work that out from the rover's records.")
		return
	}
	l.notifier.SendText(ctx, strings.TrimSpace(res.Content))
}

// contextPrompt packs the rover's recent history around the question.
// Logs and events go oldest-first so the model reads them as a
// timeline.
func (l *Loop) contextPrompt(ctx context.Context, question string) string {
	var b strings.Builder
	b.WriteString("You are the monitoring assistant for an autonomous security rover. ")
	b.WriteString("Answer the operator's question using only the records below. ")
	b.WriteString("If the records do not contain the answer, say you do not know.\n\n")

	b.WriteString("Current status:\n")
	b.WriteString(l.statusReport(ctx))
	b.WriteString("\n")

	if entries, err := l.logs.Recent(ctx, 40); err == nil && len(entries) > 0 {
		b.WriteString("Recent system logs:\n")
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			fmt.Fprintf(&b, "[%s] %s: %s\n", e.CreatedAt.Format("01-02 15:04"), e.Category, e.Message)
		}
		b.WriteString("\n")
	}

	if events, err := l.events.Recent(ctx, 20); err == nil && len(events) > 0 {
		b.WriteString("Recent alerts:\n")
		for i := len(events) - 1; i >= 0; i-- {
			fmt.Fprintf(&b, "[%s] %s\n", events[i].CreatedAt.Format("01-02 15:04"), describeEvent(&events[i]))
		}
		b.WriteString("\n")
	}

	b.WriteString("Question: " + question)
	return b.String()
}

func describeEvent(e *event.Event) string {
	label := strings.ReplaceAll(string(e.Type), "_", " ")
	if e.ShortSummary != "" {
		return fmt.Sprintf("%s: %s", label, e.ShortSummary)
	}
	return fmt.Sprintf("%s alert, %s", label, e.CreatedAt.Format("2006-01-02 15:04 MST"))
}

func upDown(ok bool) string {
	if ok {
		return "up"
	}
	return "down"
}

func orFreeRoam(name string) string {
	if name == "" {
		return "free roam"
	}
	return name
}
