package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ledMatrix/pkg/logging"
	"ledMatrix/sender/internal/config"
	"ledMatrix/sender/internal/control"
	"ledMatrix/sender/internal/controller"
	"ledMatrix/sender/internal/entity"
	"ledMatrix/sender/internal/publisher"
	"ledMatrix/sender/internal/runner"
)

func main() {
	cfg := config.MustNew(os.Getenv(entity.EnvConfigPath))

	logger, err := logging.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := cfg.Catalog()
	if err != nil {
		logger.Fatal("sources", zap.Error(err))
	}

	pub := publisher.New(cfg.Address, []byte(cfg.Topic), logger)
	if err := pub.Start(ctx); err != nil {
		logger.Fatal("publisher init", zap.Error(err))
	}

	frames := runner.New(catalog, cfg.Source, pub, cfg.FPS, logger)

	logger.Info("starting",
		zap.String("address", cfg.Address),
		zap.String("topic", cfg.Topic),
		zap.String("source", cfg.Source),
		zap.Strings("sources", catalog.Names()),
		zap.Int("fps", cfg.FPS),
		zap.String("http", cfg.HTTP.Addr),
		zap.String("mqtt", cfg.MQTT.Broker),
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MQTT.Broker != "" {
		ctl := control.New(cfg.Control(), frames, logger)
		frames.AddObserver(ctl)

		g.Go(func() error {
			return ctl.Run(gctx)
		})
	}

	if cfg.HTTP.Addr != "" {
		server := controller.NewServer(cfg.HTTP.Addr, controller.Deps{
			Runner:  frames,
			Sources: catalog,
			Stats:   pub,
		}, logger)

		g.Go(func() error {
			return server.Start(gctx)
		})
	}

	g.Go(func() error {
		return frames.Run(gctx)
	})

	runErr := g.Wait()

	if err := pub.Stop(); err != nil {
		logger.Warn("publisher close", zap.Error(err))
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Fatal("sender stopped", zap.Error(runErr))
	}
	logger.Info("sender stopped")
}
