package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hrstream/knowledge-retrieval/internal/bootstrap"
	"github.com/hrstream/knowledge-retrieval/internal/config"
)

func main() {
	snapshotPath := flag.String("snapshot", "", "path to the crawler snapshot JSON file")
	flag.Parse()
	if *snapshotPath == "" {
		log.Fatal("missing -snapshot flag")
	}

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "knowledge-loader")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	file, err := os.Open(*snapshotPath)
	if err != nil {
		log.Fatalf("open snapshot: %v", err)
	}
	defer file.Close()

	created, err := app.Ingestor.IngestSnapshot(ctx, file)
	if err != nil {
		log.Fatalf("ingest snapshot: %v", err)
	}
	app.Logger.Info("snapshot_ingested", "pages", created)
}
