package bootstrap

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"ivdhub/internal/bootstrap/config"
	"ivdhub/internal/bootstrap/database"
	"ivdhub/internal/bootstrap/logging"
	"ivdhub/internal/infrastructure/feed"
	sqliterepo "ivdhub/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "ivdhub/internal/infrastructure/persistence/sqlite/uow"
	"ivdhub/internal/ports"
	"ivdhub/internal/usecase/pipeline"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(sqliterepo.NewRawRepository, fx.As(new(ports.RawRepository))),
		fx.Annotate(sqliterepo.NewRunRepository, fx.As(new(ports.RunRepository))),
		fx.Annotate(sqliterepo.NewSourceConfigRepository, fx.As(new(ports.SourceConfigRepository))),
		fx.Annotate(sqliterepo.NewRegistrationRepository, fx.As(new(ports.RegistrationRepository))),
		fx.Annotate(sqliterepo.NewProductRepository, fx.As(new(ports.ProductRepository))),
		fx.Annotate(sqliterepo.NewDeviceRepository, fx.As(new(ports.DeviceRepository))),
		fx.Annotate(sqliterepo.NewHistoryRepository, fx.As(new(ports.HistoryRepository))),
		fx.Annotate(sqliterepo.NewQueueRepository, fx.As(new(ports.QueueRepository))),
		fx.Annotate(sqliterepo.NewArchiveRepository, fx.As(new(ports.ArchiveRepository))),
		fx.Annotate(sqliterepo.NewMetricsRepository, fx.As(new(ports.MetricsRepository))),
		fx.Annotate(sqliterepo.NewCheckpointStore, fx.As(new(ports.CheckpointStore))),
	),
	fx.Provide(
		fx.Annotate(sqliteuow.NewUnitOfWork, fx.As(new(ports.UnitOfWork))),
	),
	fx.Provide(provideFetcher),
	fx.Provide(provideParserRegistry),
	fx.Provide(providePipelineDeps),
	fx.Provide(pipeline.NewService),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

func provideFetcher(cfg config.Config) feed.Fetcher {
	client := &http.Client{
		Timeout: time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
	}
	return feed.NewHTTPFetcher(client, cfg.Fetch.MaxAttempts, cfg.Fetch.RetryWait)
}

func provideParserRegistry() *feed.Registry {
	return feed.NewRegistry(
		feed.NewRegistryJSON(),
		feed.NewUDIJSON(),
		feed.NewNHSACSV(),
		feed.NewProcurementHTML(),
	)
}

type pipelineParams struct {
	fx.In

	UoW           ports.UnitOfWork
	Raws          ports.RawRepository
	Runs          ports.RunRepository
	Sources       ports.SourceConfigRepository
	Registrations ports.RegistrationRepository
	Products      ports.ProductRepository
	Devices       ports.DeviceRepository
	History       ports.HistoryRepository
	Queue         ports.QueueRepository
	Archive       ports.ArchiveRepository
	Metrics       ports.MetricsRepository
	Checkpoints   ports.CheckpointStore
	Fetcher       feed.Fetcher
	Parsers       *feed.Registry
}

func providePipelineDeps(p pipelineParams) pipeline.Deps {
	return pipeline.Deps{
		UoW:           p.UoW,
		Raws:          p.Raws,
		Runs:          p.Runs,
		Sources:       p.Sources,
		Registrations: p.Registrations,
		Products:      p.Products,
		Devices:       p.Devices,
		History:       p.History,
		Queue:         p.Queue,
		Archive:       p.Archive,
		Metrics:       p.Metrics,
		Checkpoints:   p.Checkpoints,
		Fetcher:       p.Fetcher,
		Parsers:       p.Parsers,
	}
}
