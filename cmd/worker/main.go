package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hrstream/knowledge-retrieval/internal/bootstrap"
	"github.com/hrstream/knowledge-retrieval/internal/config"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "knowledge-worker")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", app.WorkerMetrics.Handler())
	metricsSrv := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: metricsMux,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Error("metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	app.Logger.Info("worker_started", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribePageCrawled(ctx, func(handlerCtx context.Context, pageID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		app.WorkerMetrics.StartPage()
		start := time.Now()
		perr := app.Processor.ProcessByID(processCtx, pageID)
		app.WorkerMetrics.FinishPage(time.Since(start), perr)
		return perr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
