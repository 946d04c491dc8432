package bootstrap

import (
	"log/slog"

	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/aura-rover/aura-backend/internal/event"
	"github.com/aura-rover/aura-backend/internal/media"
	"github.com/aura-rover/aura-backend/internal/patrol"
	"github.com/aura-rover/aura-backend/internal/person"
	"github.com/aura-rover/aura-backend/internal/roverlog"
)

func ProvidePersonStore(db *gorm.DB, qdrantClient *qdrant.Client) *person.Store {
	return person.NewStore(db, qdrantClient)
}

func ProvideEventStore(db *gorm.DB) *event.Store {
	return event.NewStore(db)
}

func ProvidePatrolStore(db *gorm.DB) *patrol.Store {
	return patrol.NewStore(db)
}

func ProvideLogStore(db *gorm.DB, logger *slog.Logger) *roverlog.Store {
	return roverlog.NewStore(db, logger)
}

func ProvideMediaStore(redisClient *redis.Client, cfg *Config) *media.Store {
	return media.NewStore(redisClient, cfg.FrameTTL)
}

func RunMigrations(people *person.Store, events *event.Store, patrols *patrol.Store, logs *roverlog.Store) error {
	if err := people.Migrate(); err != nil {
		return err
	}
	if err := events.Migrate(); err != nil {
		return err
	}
	if err := patrols.Migrate(); err != nil {
		return err
	}
	return logs.Migrate()
}

var StoresModule = fx.Options(
	fx.Provide(
		ProvidePersonStore,
		ProvideEventStore,
		ProvidePatrolStore,
		ProvideLogStore,
		ProvideMediaStore,
	),
	fx.Invoke(RunMigrations),
)
