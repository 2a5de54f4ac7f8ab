//go:build wireinject
// +build wireinject

package injector

import (
	"github.com/google/wire"
	"github.com/lk2023060901/searchview-backend/internal/conf"
	"github.com/lk2023060901/searchview-backend/internal/pkg/logger"
	"github.com/lk2023060901/searchview-backend/internal/pkg/sse"
	"github.com/lk2023060901/searchview-backend/internal/server"
	"github.com/lk2023060901/searchview-backend/internal/views/biz"
	"github.com/lk2023060901/searchview-backend/internal/views/data"
)

// ProviderSet is the Wire provider set for all dependencies
var ProviderSet = wire.NewSet(
	// Data layer
	dataProviderSet,

	// Repositories
	repositoryProviderSet,

	// Use cases
	useCaseProviderSet,

	// HTTP services
	serviceProviderSet,

	// Servers
	serverProviderSet,
)

// Data layer providers
var dataProviderSet = wire.NewSet(
	provideRedisClient,
	provideDatabase,
	provideMinIOClient,
	provideWorkerPool,
	sse.NewHub,
)

// Repository providers
var repositoryProviderSet = wire.NewSet(
	provideResultRepo,
	provideWidgetRepo,
	data.NewExportStore,
	data.NewEventBus,
	wire.Bind(new(biz.ResultRepo), new(*data.ResultRepo)),
	wire.Bind(new(biz.WidgetRepo), new(*data.WidgetRepo)),
	wire.Bind(new(biz.ExportStore), new(*data.ExportStore)),
	wire.Bind(new(biz.Publisher), new(*data.EventBus)),
)

// Use case providers
var useCaseProviderSet = wire.NewSet(
	biz.NewSearchUseCase,
)

// Service providers
var serviceProviderSet = wire.NewSet(
	providePoller,
	provideSearchService,
)

// Server providers
var serverProviderSet = wire.NewSet(
	provideHealthChecks,
	provideRateLimiter,
	server.NewHTTPServer,
)

// InitializeApp initializes the application with Wire
func InitializeApp(config *conf.Config, log *logger.Logger) (*App, func(), error) {
	wire.Build(ProviderSet, newApp)
	return nil, nil, nil
}
