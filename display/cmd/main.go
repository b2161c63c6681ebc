package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ledMatrix/display/internal/button"
	"ledMatrix/display/internal/compositor"
	"ledMatrix/display/internal/config"
	"ledMatrix/display/internal/controller"
	"ledMatrix/display/internal/db"
	"ledMatrix/display/internal/debounce"
	"ledMatrix/display/internal/entity"
	"ledMatrix/display/internal/loop"
	"ledMatrix/display/internal/matrix"
	"ledMatrix/display/internal/receiver"
	"ledMatrix/display/internal/selector"
	"ledMatrix/display/internal/subscription"
	"ledMatrix/display/internal/telemetry"
	"ledMatrix/pkg/logging"
	"ledMatrix/pkg/transport"
)

const reportTimeout = 5 * time.Second

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

	driver, err := newDriver(cfg, logger)
	if err != nil {
		logger.Fatal("panel init", zap.String("driver", cfg.Panel.Driver), zap.Error(err))
	}
	panel := matrix.New(matrix.Config{
		Width:       cfg.Panel.Width,
		Height:      cfg.Panel.Height,
		RefreshHz:   cfg.Panel.RefreshHz,
		SwapTimeout: cfg.Panel.SwapTimeout,
	}, driver, logger)

	scaler, err := compositor.ScalerByName(cfg.Panel.Scaler)
	if err != nil {
		logger.Fatal("scaler", zap.Error(err))
	}

	topic := []byte(cfg.Receive.Topic)
	sel := selector.New(cfg.DefaultAddress())
	manager := subscription.New(topic, transport.NewSubscriber, panel, logger)
	recv := receiver.New(manager, topic, receiver.ErrorPolicy{
		Mode:           receiver.Mode(cfg.Receive.ErrorPolicy),
		MaxConsecutive: cfg.Receive.MaxErrors,
	}, logger)
	agg := telemetry.New()

	var closers []io.Closer
	if cfg.Button.Enabled {
		input := button.New(button.Config{Chip: cfg.Button.Chip, Offset: cfg.Button.Offset}, logger)
		filter := debounce.New(debounce.Config{
			Window: cfg.Button.Window,
			Settle: cfg.Button.Settle,
			High:   cfg.Sources.Primary,
			Low:    cfg.Sources.Secondary,
		}, input, sel, logger)

		if err := input.Start(filter); err != nil {
			_ = panel.Close()
			logger.Fatal("button init", zap.Error(err))
		}
		closers = append(closers, input)
	}

	displayLoop := loop.New(loop.Deps{
		Selector:   sel,
		Connector:  manager,
		Receiver:   recv,
		Compositor: compositor.New(scaler, logger),
		Panel:      panel,
		Recorder:   agg,
		Closers:    closers,
	}, cfg.Receive.Timeout, logger)

	logger.Info("starting",
		zap.String("primary", cfg.Sources.Primary),
		zap.String("secondary", cfg.Sources.Secondary),
		zap.String("default", cfg.Sources.Default),
		zap.ByteString("topic", topic),
		zap.String("driver", cfg.Panel.Driver),
		zap.Bool("button", cfg.Button.Enabled),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return panel.Run(gctx)
	})

	var report telemetry.Report
	g.Go(func() error {
		var err error
		report, err = displayLoop.Run(gctx)
		return err
	})

	if cfg.HTTP.Addr != "" {
		server := controller.NewServer(cfg.HTTP.Addr, controller.Deps{
			Selector:      sel,
			Subscriptions: manager,
			Phases:        displayLoop,
			Telemetry:     agg,
			Sources:       cfg,
		}, logger)

		g.Go(func() error {
			return server.Start(gctx)
		})
	}

	runErr := g.Wait()

	if err := panel.Close(); err != nil {
		logger.Warn("panel close", zap.Error(err))
	}

	if report.Frames > 0 && cfg.Report.RedisAddr != "" {
		storeReport(cfg.Report, &report, logger)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Fatal("display stopped", zap.Error(runErr))
	}
	logger.Info("display stopped")
}

func newDriver(cfg *config.Config, logger *zap.Logger) (matrix.Driver, error) {
	if cfg.Panel.Driver == config.DriverHeadless {
		return matrix.NewHeadless(cfg.Panel.Width, cfg.Panel.Height, logger), nil
	}

	p := cfg.Panel.Pins
	return matrix.NewHUB75(matrix.HUB75Config{
		Width:     cfg.Panel.Width,
		Height:    cfg.Panel.Height,
		BitPlanes: cfg.Panel.BitPlanes,
		RowTime:   cfg.Panel.RowTime,
		Pins: matrix.PinMap{
			Chip: cfg.Panel.Chip,
			R1:   p.R1, G1: p.G1, B1: p.B1,
			R2: p.R2, G2: p.G2, B2: p.B2,
			CLK: p.CLK, OE: p.OE, LAT: p.LAT,
			Addr: []int{p.A, p.B, p.C, p.D, p.E},
		},
	}, logger)
}

func storeReport(cfg config.ReportConfig, report *telemetry.Report, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	client, err := transport.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("report store unavailable", zap.Error(err))
		return
	}
	defer client.Close()

	if err := db.PostReport(ctx, client, cfg.Key, report, cfg.TTL); err != nil {
		logger.Warn("store report", zap.Error(err))
		return
	}
	logger.Info("report stored", zap.String("key", cfg.Key))
}
