package injector

import (
	"context"

	"github.com/lk2023060901/searchview-backend/internal/conf"
	"github.com/lk2023060901/searchview-backend/internal/pkg/logger"
	"github.com/lk2023060901/searchview-backend/internal/server"
	"github.com/lk2023060901/searchview-backend/internal/views/data"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// App encapsulates all application dependencies
type App struct {
	Config     *conf.Config
	Logger     *logger.Logger
	HTTPServer *server.HTTPServer
	EventBus   *data.EventBus
}

// Run 启动 HTTP 服务和事件总线, ctx 取消后优雅退出
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.EventBus.Run(gctx)
	})
	g.Go(a.HTTPServer.Start)
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.HTTPServer.Stop(shutdownCtx); err != nil {
			a.Logger.Error("HTTP server forced to shutdown", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}
