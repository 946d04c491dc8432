package bot

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/aura-rover/aura-backend/internal/analytics"
	"github.com/aura-rover/aura-backend/internal/analyzer"
	"github.com/aura-rover/aura-backend/internal/detector"
	"github.com/aura-rover/aura-backend/internal/event"
	"github.com/aura-rover/aura-backend/internal/media"
	"github.com/aura-rover/aura-backend/internal/notifier"
	"github.com/aura-rover/aura-backend/internal/patrol"
	"github.com/aura-rover/aura-backend/internal/roverlog"
	"github.com/aura-rover/aura-backend/internal/telegram"
)

const pollRetryDelay = 3 * time.Second

// Loop is the Telegram operator console: it long-polls the bot API for
// messages in the configured chat and answers commands and free-text
// questions. One Loop runs for the lifetime of the process.
type Loop struct {
	telegram  *telegram.Client
	notifier  *notifier.Notifier
	analyzer  *analyzer.Client
	detector  *detector.Client
	events    *event.Store
	logs      *roverlog.Store
	patrols   *patrol.Store
	media     *media.Store
	analytics *analytics.Aggregator
	logger    *slog.Logger

	cursor  int64
	started time.Time
}

func NewLoop(tg *telegram.Client, n *notifier.Notifier, an *analyzer.Client, det *detector.Client, events *event.Store, logs *roverlog.Store, patrols *patrol.Store, mediaStore *media.Store, agg *analytics.Aggregator, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		telegram:  tg,
		notifier:  n,
		analyzer:  an,
		detector:  det,
		events:    events,
		logs:      logs,
		patrols:   patrols,
		media:     mediaStore,
		analytics: agg,
		logger:    logger.With("component", "bot"),
		started:   time.Now().UTC(),
	}
}

// Run polls until the context is cancelled. A failing poll or a
// panicking handler never kills the loop; it logs and keeps going.
func (l *Loop) Run(ctx context.Context) {
	if !l.telegram.Configured() {
		l.logger.Info("telegram not configured, command loop disabled")
		return
	}
	l.logger.Info("command loop started")

	for {
		if err := l.poll(ctx); err != nil {
			if ctx.Err() != nil {
				l.logger.Info("command loop stopped")
				return
			}
			l.logger.Warn("poll failed", "error", err)
			select {
			case <-time.After(pollRetryDelay):
			case <-ctx.Done():
				l.logger.Info("command loop stopped")
				return
			}
		}
		if ctx.Err() != nil {
			l.logger.Info("command loop stopped")
			return
		}
	}
}

// poll fetches one batch of updates and dispatches them. The cursor
// moves past an update before it is handled, so a message that crashes
// its handler is consumed rather than replayed forever. A failed poll
// leaves the cursor alone.
func (l *Loop) poll(ctx context.Context) error {
	updates, err := l.telegram.GetUpdates(ctx, l.cursor)
	if err != nil {
		return err
	}

	for _, u := range updates {
		if u.UpdateID >= l.cursor {
			l.cursor = u.UpdateID + 1
		}
		l.dispatch(ctx, u)
	}
	return nil
}

func (l *Loop) dispatch(ctx context.Context, u telegram.Update) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("message handler panicked", "update_id", u.UpdateID, "panic", r)
		}
	}()

	if u.Message == nil || u.Message.Text == "" {
		return
	}
	if !l.fromOperatorChat(u.Message) {
		l.logger.Warn("ignoring message from foreign chat", "chat_id", u.Message.Chat.ID)
		return
	}

	l.logger.Info("handling message", "update_id", u.UpdateID)
	l.Handle(ctx, u.Message.Text)
}

func (l *Loop) fromOperatorChat(m *telegram.Message) bool {
	return strconv.FormatInt(m.Chat.ID, 10) == l.telegram.ChatID()
}
