package bootstrap

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/aura-rover/aura-backend/internal/analytics"
	"github.com/aura-rover/aura-backend/internal/analyzer"
	"github.com/aura-rover/aura-backend/internal/bot"
	"github.com/aura-rover/aura-backend/internal/detector"
	"github.com/aura-rover/aura-backend/internal/event"
	"github.com/aura-rover/aura-backend/internal/media"
	"github.com/aura-rover/aura-backend/internal/notifier"
	"github.com/aura-rover/aura-backend/internal/patrol"
	"github.com/aura-rover/aura-backend/internal/roverlog"
	"github.com/aura-rover/aura-backend/internal/telegram"
)

func ProvideBotLoop(
	tg *telegram.Client,
	n *notifier.Notifier,
	an *analyzer.Client,
	det *detector.Client,
	events *event.Store,
	logs *roverlog.Store,
	patrols *patrol.Store,
	mediaStore *media.Store,
	agg *analytics.Aggregator,
	logger *slog.Logger,
) *bot.Loop {
	return bot.NewLoop(tg, n, an, det, events, logs, patrols, mediaStore, agg, logger)
}

// StartBotLoop runs the Telegram command loop for the process lifetime.
// The loop's context is cancelled on shutdown, which unblocks the
// long poll.
func StartBotLoop(lc fx.Lifecycle, loop *bot.Loop) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				loop.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

var BotModule = fx.Options(
	fx.Provide(ProvideBotLoop),
	fx.Invoke(StartBotLoop),
)
