package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/searchview-backend/internal/conf"
	"github.com/lk2023060901/searchview-backend/internal/pkg/logger"
	"github.com/lk2023060901/searchview-backend/internal/pkg/workerpool"
	"github.com/lk2023060901/searchview-backend/internal/views/service"
	"go.uber.org/zap"
)

// HealthCheck 依赖探活, 返回 nil 表示可用
type HealthCheck func(ctx context.Context) error

// RateLimitMiddleware 作用于 /api/v1 的限流中间件, 为 nil 时不限流
type RateLimitMiddleware gin.HandlerFunc

type HTTPServer struct {
	server *http.Server
	router *gin.Engine
	logger *logger.Logger
}

func NewHTTPServer(
	config *conf.Config,
	log *logger.Logger,
	searchService *service.SearchService,
	pool *workerpool.Pool,
	checks map[string]HealthCheck,
	limiter RateLimitMiddleware,
) *HTTPServer {
	if config.Server.Mode != "" {
		gin.SetMode(config.Server.Mode)
	}

	router := gin.New()
	router.Use(logger.GinRecovery(log))
	router.Use(logger.GinLoggerWithConfig(log, logger.MiddlewareOptions{
		SkipPaths: []string{"/health", "/ready"},
	}))

	router.GET("/health", health(pool))
	router.GET("/ready", readiness(checks))

	api := router.Group("/api/v1")
	if limiter != nil {
		api.Use(gin.HandlerFunc(limiter))
	}
	searchService.RegisterRoutes(api)

	return &HTTPServer{
		server: &http.Server{
			Addr:              config.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		router: router,
		logger: log.Named("http"),
	}
}

// health 存活检查, 附带 worker pool 的运行状态
func health(pool *workerpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		}
		if pool != nil {
			stats := pool.Stats()
			body["workers"] = gin.H{
				"running":   pool.Running(),
				"free":      pool.Free(),
				"submitted": stats.Submitted,
				"completed": stats.Completed,
				"failed":    stats.Failed,
			}
		}
		c.JSON(http.StatusOK, body)
	}
}

// readiness 逐个执行探活, 任一失败返回 503
func readiness(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		c.JSON(status, gin.H{"checks": results})
	}
}

// Handler 返回路由, 便于测试
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}
