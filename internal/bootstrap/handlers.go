package bootstrap

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/aura-rover/aura-backend/internal/analytics"
	"github.com/aura-rover/aura-backend/internal/analyzer"
	"github.com/aura-rover/aura-backend/internal/detector"
	"github.com/aura-rover/aura-backend/internal/event"
	"github.com/aura-rover/aura-backend/internal/facematch"
	"github.com/aura-rover/aura-backend/internal/feed"
	"github.com/aura-rover/aura-backend/internal/media"
	"github.com/aura-rover/aura-backend/internal/notifier"
	"github.com/aura-rover/aura-backend/internal/patrol"
	"github.com/aura-rover/aura-backend/internal/person"
	"github.com/aura-rover/aura-backend/internal/roverlog"
	"github.com/aura-rover/aura-backend/internal/telegram"
)

func ProvideMatcher(cfg *Config) *facematch.Matcher {
	return facematch.New(cfg.MatchThreshold, cfg.MatchMinScore)
}

func ProvideNotifier(tg *telegram.Client, logger *slog.Logger) *notifier.Notifier {
	return notifier.New(tg, logger)
}

func ProvideFeedHub(logger *slog.Logger) *feed.Hub {
	return feed.NewHub(logger)
}

func ProvideEventPipeline(store *event.Store, mediaStore *media.Store, an *analyzer.Client, n *notifier.Notifier, hub *feed.Hub, logs *roverlog.Store, logger *slog.Logger) *event.Pipeline {
	return event.NewPipeline(store, mediaStore, an, n, hub, logs, logger)
}

func ProvidePatrolService(store *patrol.Store, events *event.Store, logs *roverlog.Store, an *analyzer.Client, logger *slog.Logger) *patrol.Service {
	return patrol.NewService(store, events, logs, an, logger)
}

func ProvideAggregator(events *event.Store, logs *roverlog.Store, patrols *patrol.Store, an *analyzer.Client, logger *slog.Logger) *analytics.Aggregator {
	return analytics.NewAggregator(events, logs, patrols, an, logger)
}

func ProvidePersonHandler(store *person.Store, det *detector.Client, mediaStore *media.Store, logger *slog.Logger) *person.Handler {
	return person.NewHandler(store, det, mediaStore, logger)
}

func ProvideEventHandler(pipeline *event.Pipeline, store *event.Store, det *detector.Client, people *person.Store, matcher *facematch.Matcher, mediaStore *media.Store, an *analyzer.Client, n *notifier.Notifier, logger *slog.Logger) *event.Handler {
	return event.NewHandler(pipeline, store, det, people, matcher, mediaStore, an, n, logger)
}

func ProvidePatrolHandler(store *patrol.Store, service *patrol.Service, logger *slog.Logger) *patrol.Handler {
	return patrol.NewHandler(store, service, logger)
}

func ProvideLogHandler(store *roverlog.Store, logger *slog.Logger) *roverlog.Handler {
	return roverlog.NewHandler(store, logger)
}

func ProvideMediaHandler(store *media.Store) *media.Handler {
	return media.NewHandler(store)
}

func ProvideAnalyticsHandler(aggregator *analytics.Aggregator, logger *slog.Logger) *analytics.Handler {
	return analytics.NewHandler(aggregator, logger)
}

func ProvideFeedHandler(hub *feed.Hub, logger *slog.Logger) *feed.Handler {
	return feed.NewHandler(hub, logger)
}

type HandlerParams struct {
	fx.In

	PersonHandler    *person.Handler
	EventHandler     *event.Handler
	PatrolHandler    *patrol.Handler
	LogHandler       *roverlog.Handler
	MediaHandler     *media.Handler
	AnalyticsHandler *analytics.Handler
	FeedHandler      *feed.Handler
}

func RegisterRoutes(e *echo.Echo, params HandlerParams) {
	api := e.Group("/api")

	params.PersonHandler.RegisterRoutes(api)
	params.EventHandler.RegisterRoutes(api)
	params.PatrolHandler.RegisterRoutes(api)
	params.LogHandler.RegisterRoutes(api)
	params.MediaHandler.RegisterRoutes(api)
	params.AnalyticsHandler.RegisterRoutes(api)
	params.FeedHandler.RegisterRoutes(api)
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideMatcher,
		ProvideNotifier,
		ProvideFeedHub,
		ProvideEventPipeline,
		ProvidePatrolService,
		ProvideAggregator,
		ProvidePersonHandler,
		ProvideEventHandler,
		ProvidePatrolHandler,
		ProvideLogHandler,
		ProvideMediaHandler,
		ProvideAnalyticsHandler,
		ProvideFeedHandler,
	),
	fx.Invoke(RegisterRoutes),
)
