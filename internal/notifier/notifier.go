package notifier

import (
	"context"
	"log/slog"

	"github.com/aura-rover/aura-backend/internal/telegram"
	"golang.org/x/time/rate"
)

// Notifier is the best-effort outbound channel to the operator chat.
// It never raises to callers: every failure mode, including a missing
// bot configuration, collapses to a false return so that notification
// problems cannot break a detection or enrichment flow.
type Notifier struct {
	client  *telegram.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func New(client *telegram.Client, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client: client,
		// Telegram flood control allows roughly one message per second
		// per chat; alert storms get smoothed instead of dropped by the
		// API.
		limiter: rate.NewLimiter(rate.Limit(1), 5),
		logger:  logger.With("component", "notifier"),
	}
}

func (n *Notifier) Enabled() bool {
	return n.client != nil && n.client.Configured()
}

// SendText delivers text to the operator chat. Returns whether the
// message was delivered.
func (n *Notifier) SendText(ctx context.Context, text string) bool {
	if !n.Enabled() {
		n.logger.Debug("notifier not configured, skipping text send")
		return false
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return false
	}

	if err := n.client.SendMessage(ctx, text); err != nil {
		n.logger.Warn("failed to send message", "error", err)
		return false
	}
	return true
}

// SendPhoto delivers photo bytes with a caption. Falls back to text-only
// delivery when there are no bytes to attach.
func (n *Notifier) SendPhoto(ctx context.Context, photo []byte, caption string) bool {
	if len(photo) == 0 {
		return n.SendText(ctx, caption)
	}
	if !n.Enabled() {
		n.logger.Debug("notifier not configured, skipping photo send")
		return false
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return false
	}

	if err := n.client.SendPhoto(ctx, photo, caption); err != nil {
		n.logger.Warn("failed to send photo", "error", err)
		return false
	}
	return true
}
