package bootstrap

import (
	"context"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"foodtrace/internal/bootstrap/config"
	"foodtrace/internal/bootstrap/database"
	"foodtrace/internal/bootstrap/logging"
	"foodtrace/internal/domain/trace"
	"foodtrace/internal/errs"
	cacheinfra "foodtrace/internal/infrastructure/cache"
	lockinfra "foodtrace/internal/infrastructure/lock"
	sqliterepo "foodtrace/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "foodtrace/internal/infrastructure/persistence/sqlite/uow"
	"foodtrace/internal/ports"
	"foodtrace/internal/usecase/traceability"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewTraceRepository,
			fx.As(new(ports.TraceRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewDirectoryRepository,
			fx.As(
				new(ports.ProductDirectory),
				new(ports.IdentityDirectory),
				new(ports.SensorDirectory),
				new(ports.DirectoryWriter),
			),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(provideCache),
	fx.Provide(provideLocker),
	fx.Provide(provideTemperaturePolicies),
	fx.Provide(provideTraceabilityService),
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

func provideApp(cfg config.Config, db *gorm.DB, directory ports.DirectoryWriter) *App {
	return &App{
		Config:    cfg,
		DB:        db,
		Directory: directory,
	}
}

func provideCache(cfg config.Config, db *gorm.DB) ports.Cache {
	if strings.EqualFold(cfg.Cache.Driver, "memory") {
		return cacheinfra.NewMemoryCache(cfg.Cache.Size, cfg.Cache.TTL)
	}
	return cacheinfra.NewSQLiteCache(db, cfg.Cache.TTL)
}

func provideLocker(lc fx.Lifecycle, ctx context.Context, cfg config.Config) ports.Locker {
	if !strings.EqualFold(cfg.Lock.Driver, "redis") {
		return lockinfra.NewKeyedMutex()
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr})
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return client.Close()
		},
	})
	logging.Info(
		logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx")),
		"using redis locker",
		slog.String("addr", cfg.Lock.RedisAddr),
	)
	return lockinfra.NewRedisLocker(client, cfg.Lock.TTL)
}

func provideTemperaturePolicies(cfg config.Config) (traceability.TemperaturePolicies, error) {
	policies, err := traceability.LoadTemperaturePolicies(cfg.Traceability.PolicyFile)
	if err != nil {
		return nil, errs.Wrap(err, "load temperature policies")
	}
	return policies, nil
}

type serviceParams struct {
	fx.In

	Config     config.Config
	Repo       ports.TraceRepository
	UoW        ports.UnitOfWork
	Locker     ports.Locker
	Products   ports.ProductDirectory
	Identities ports.IdentityDirectory
	Sensors    ports.SensorDirectory
	Cache      ports.Cache
	Policies   traceability.TemperaturePolicies
}

func provideTraceabilityService(p serviceParams) *traceability.Service {
	return traceability.NewService(traceability.Dependencies{
		Repo:       p.Repo,
		UoW:        p.UoW,
		Locker:     p.Locker,
		Products:   p.Products,
		Identities: p.Identities,
		Sensors:    p.Sensors,
		Cache:      p.Cache,
	}, traceability.Options{
		SensorReadingLimit: p.Config.Traceability.SensorReadingLimit,
		SensorLookback:     p.Config.Traceability.SensorLookback,
		DefaultBand: trace.TemperatureBand{
			Min: p.Config.Traceability.DefaultMinTemp,
			Max: p.Config.Traceability.DefaultMaxTemp,
		},
		Policies: p.Policies,
	})
}
