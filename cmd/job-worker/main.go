// Package main 后台任务执行器入口（job-worker）
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"saas-tenancy-api/internal/config"
	"saas-tenancy-api/internal/infrastructure/messaging"
	"saas-tenancy-api/internal/wire"
	"saas-tenancy-api/pkg/logger"
	"saas-tenancy-api/pkg/metrics"
	"saas-tenancy-api/pkg/tracer"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "job-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	var wg sync.WaitGroup
	runPeriodic(ctx, &wg, "trial_sweep", cfg.Jobs.TrialSweepInterval, func(ctx context.Context, now time.Time) (int, error) {
		return worker.Billing.SweepTrials(ctx, now)
	})
	runPeriodic(ctx, &wg, "usage_rollup", cfg.Jobs.UsageRollupInterval, func(ctx context.Context, now time.Time) (int, error) {
		return worker.Billing.RollupUsage(ctx, now)
	})
	runPeriodic(ctx, &wg, "payment_reconcile", cfg.Jobs.PaymentReconcileInterval, func(ctx context.Context, now time.Time) (int, error) {
		return worker.Billing.ReleaseStalePayments(ctx, now)
	})

	// 审计事件外发：Redis Stream -> Kafka
	if worker.Consumer != nil && worker.Kafka != nil {
		worker.Consumer.RegisterHandler(messaging.MessageTypeAuditEvent, worker.Kafka.Forward)
		if err := worker.Consumer.Start(ctx); err != nil {
			logger.Fatal(ctx, "failed to start audit consumer", err)
		}
		defer worker.Consumer.Stop()
	} else {
		logger.Info(ctx, "audit forwarding disabled", "redis", worker.Consumer != nil, "kafka", worker.Kafka != nil)
	}

	log := logger.FromContext(ctx)

	var metricsSrv *http.Server
	if cfg.Observability.Metrics.Enabled && cfg.Observability.Metrics.WorkerAddr != "" {
		metricsSrv = serveMetrics(ctx, cfg.Observability.Metrics.WorkerAddr, cfg.Observability.Metrics.Path)
	}

	log.Info("job-worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("job-worker shutting down")
	cancel()
	wg.Wait()

	if metricsSrv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics server forced to shutdown", "error", err)
		}
	}
}

// serveMetrics 在独立端口暴露 Prometheus 指标（任务计数、死信队列长度）
func serveMetrics(ctx context.Context, addr, path string) *http.Server {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info(ctx, "metrics server starting", "addr", addr, "path", path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "metrics server error", err)
		}
	}()
	return srv
}

// runPeriodic 按固定间隔执行任务，interval <= 0 时不启动
func runPeriodic(ctx context.Context, wg *sync.WaitGroup, name string, interval time.Duration, job func(context.Context, time.Time) (int, error)) {
	if interval <= 0 {
		logger.Info(ctx, "periodic job disabled", "job", name)
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				n, err := job(ctx, now.UTC())
				metrics.JobRunsTotal.WithLabelValues(name, metrics.StatusLabel(err)).Inc()
				if err != nil {
					logger.Error(ctx, "periodic job failed", err, "job", name)
					continue
				}
				logger.Debug(ctx, "periodic job finished", "job", name, "processed", n)
			}
		}
	}()
}
