package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/lk2023060901/searchview-backend/internal/conf"
	"github.com/lk2023060901/searchview-backend/internal/pkg/injector"
	"github.com/lk2023060901/searchview-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "config file path")
)

func main() {
	flag.Parse()

	// Load configuration
	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(&config.Log)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	// Initialize global logger
	if err := logger.InitGlobal(&config.Log); err != nil {
		log.Fatal("failed to initialize global logger", zap.Error(err))
	}

	log.Info("config loaded successfully", zap.String("path", *configFile))

	app, cleanup, err := injector.InitializeApp(config, log)
	if err != nil {
		log.Fatal("failed to initialize application", zap.Error(err))
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("server starting", zap.String("addr", config.Server.Addr()))
	if err := app.Run(ctx); err != nil {
		log.Error("server exited with error", zap.Error(err))
		return
	}

	log.Info("server exited")
}
