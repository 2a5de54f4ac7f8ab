package injector

import (
	"context"
	"time"

	"github.com/lk2023060901/searchview-backend/internal/conf"
	"github.com/lk2023060901/searchview-backend/internal/pkg/database"
	"github.com/lk2023060901/searchview-backend/internal/pkg/logger"
	pkgminio "github.com/lk2023060901/searchview-backend/internal/pkg/minio"
	pkgredis "github.com/lk2023060901/searchview-backend/internal/pkg/redis"
	"github.com/lk2023060901/searchview-backend/internal/pkg/sse"
	"github.com/lk2023060901/searchview-backend/internal/pkg/workerpool"
	"github.com/lk2023060901/searchview-backend/internal/server"
	"github.com/lk2023060901/searchview-backend/internal/server/middleware"
	"github.com/lk2023060901/searchview-backend/internal/views/biz"
	"github.com/lk2023060901/searchview-backend/internal/views/client"
	"github.com/lk2023060901/searchview-backend/internal/views/data"
	"github.com/lk2023060901/searchview-backend/internal/views/service"
	"go.uber.org/zap"
)

const startupTimeout = 10 * time.Second

// Data layer helpers

func provideRedisClient(config *conf.Config, log *logger.Logger) (*pkgredis.Client, func(), error) {
	rdb, err := pkgredis.New(&config.Redis, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := rdb.Close(); err != nil {
			log.Warn("failed to close redis client", zap.Error(err))
		}
	}
	return rdb, cleanup, nil
}

func provideDatabase(config *conf.Config, log *logger.Logger) (*database.DB, func(), error) {
	db, err := database.New(&config.Database, log)
	if err != nil {
		return nil, nil, err
	}
	if err := db.AutoMigrate(&data.WidgetPO{}); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
	return db, cleanup, nil
}

func provideMinIOClient(config *conf.Config, log *logger.Logger) (*pkgminio.Client, func(), error) {
	mc, err := pkgminio.NewClient(&config.MinIO, log)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	if err := mc.EnsureBucket(ctx); err != nil {
		_ = mc.Close()
		return nil, nil, err
	}

	cleanup := func() {
		_ = mc.Close()
	}
	return mc, cleanup, nil
}

func provideWorkerPool(config *conf.Config, log *logger.Logger) (*workerpool.Pool, func(), error) {
	pool, err := workerpool.New(&config.Pool, log.Logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := pool.Shutdown(config.Server.ShutdownTimeout); err != nil {
			log.Warn("worker pool shutdown timed out", zap.Error(err))
		}
	}
	return pool, cleanup, nil
}

// Repository providers

func provideResultRepo(redis *pkgredis.Client, config *conf.Config) *data.ResultRepo {
	return data.NewResultRepo(redis, config.Views.SnapshotTTL)
}

func provideWidgetRepo(db *database.DB) *data.WidgetRepo {
	return data.NewWidgetRepo(db.DB)
}

// Service providers

// providePoller 未启用后端执行时返回 nil
func providePoller(config *conf.Config, uc *biz.SearchUseCase, log *logger.Logger) (*client.Poller, error) {
	if !config.Views.ExecuteEnabled {
		log.Info("search backend execution disabled")
		return nil, nil
	}

	backend, err := client.NewClient(&config.Backend, log)
	if err != nil {
		return nil, err
	}
	return client.NewPoller(backend, uc, &config.Backend, log), nil
}

func provideSearchService(
	config *conf.Config,
	uc *biz.SearchUseCase,
	poller *client.Poller,
	pool *workerpool.Pool,
	hub *sse.Hub,
	log *logger.Logger,
) *service.SearchService {
	return service.NewSearchService(uc, poller, pool, hub, log, config.Views.StreamKeepAlive)
}

func provideHealthChecks(redis *pkgredis.Client, db *database.DB, minio *pkgminio.Client) map[string]server.HealthCheck {
	return map[string]server.HealthCheck{
		"redis":    redis.Ping,
		"database": db.HealthCheck,
		"minio":    minio.Ping,
	}
}

func provideRateLimiter(config *conf.Config, redis *pkgredis.Client, log *logger.Logger) server.RateLimitMiddleware {
	if !config.RateLimit.Enabled {
		return nil
	}
	return server.RateLimitMiddleware(middleware.RateLimiter(redis, config.RateLimit, log))
}

func newApp(
	config *conf.Config,
	log *logger.Logger,
	httpServer *server.HTTPServer,
	eventBus *data.EventBus,
) *App {
	return &App{
		Config:     config,
		Logger:     log,
		HTTPServer: httpServer,
		EventBus:   eventBus,
	}
}
