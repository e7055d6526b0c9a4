package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/crisos/crisos-core/internal/app/bootstrap"
	appconfig "github.com/crisos/crisos-core/internal/config"
	"github.com/crisos/crisos-core/internal/notify"
	"github.com/crisos/crisos-core/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting crisos alert worker",
		"env", cfg.Env,
		"provider", cfg.AlertEmailProvider,
		"workers", cfg.AlertWorkerCount,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("alert worker error", "error", err)
		os.Exit(1)
	}
	logger.Info("alert worker stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg.AlertQueueURL == "" {
		return errors.New("ALERT_QUEUE_URL is required")
	}
	alerter, err := bootstrap.BuildAlerter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if alerter == nil {
		return errors.New("no alert transport configured; set ALERT_EMAIL_PROVIDER and ALERT_EMAIL_TO")
	}
	awsCfg, err := bootstrap.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return err
	}
	queue := notify.NewSQSQueue(bootstrap.BuildSQSClient(awsCfg, cfg), cfg.AlertQueueURL)
	return serve(ctx, queue, alerter, cfg, logger)
}

func serve(ctx context.Context, queue notify.AlertQueue, alerter *notify.Alerter, cfg *appconfig.Config, logger *logging.Logger) error {
	worker := notify.NewAlertWorker(queue, alerter, logger, notify.WithWorkerCount(cfg.AlertWorkerCount))
	worker.Start(ctx)
	<-ctx.Done()
	logger.Info("shutting down alert worker...")
	worker.Wait()
	return nil
}
