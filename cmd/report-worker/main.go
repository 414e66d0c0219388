package main

import (
	"context"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/scheduler"
	"fintrack/internal/worker"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting report-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	// Validate already rejected unknown periods.
	period, _ := core.ParsePeriodStrict(cfg.ReportPeriod)

	snapshots := cli.InitSnapshots(logger, cfg.SQLiteDBPath)

	startCtx, startCancel := context.WithTimeout(context.Background(), startupTimeout)
	session, backendResult, err := cli.OpenSession(startCtx, logger, cfg, snapshots)
	startCancel()
	if err != nil {
		logger.Error("Failed to open session", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	publisher, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	sched := scheduler.New(logger, cfg.Location())
	job := worker.NewReportJob(session, publisher, period, logger)
	if err := sched.AddJob(cfg.ReportSchedule, job); err != nil {
		logger.Error("Failed to schedule report job", log.FieldError, err, "schedule", cfg.ReportSchedule)
		os.Exit(1)
	}
	sched.Start()

	if cfg.ReportRunOnStart {
		if err := sched.RunNow(job); err != nil {
			logger.Error("Startup report failed", log.FieldError, err, log.FieldJob, job.Name())
		}
	}

	next := sched.Next()
	if len(next) > 0 {
		logger.Info("Report job scheduled",
			log.FieldJob, job.Name(),
			"schedule", cfg.ReportSchedule,
			"timezone", cfg.Location().String(),
			"next_run", next[0].Format(time.RFC3339))
	}

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(context.Context) {
		sched.Stop()
		if err := publisher.Close(); err != nil {
			logger.Error("AMQP close error", log.FieldError, err)
		}
		_ = session.Close()
		if err := backendResult.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
		if snapshots != nil {
			_ = snapshots.Close()
		}
	})

	cli.WaitForShutdown(ctx, done)
	logger.Info("Report worker stopped")
}
