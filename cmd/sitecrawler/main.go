package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sitecrawler/internal/config"
	"sitecrawler/internal/crawler"
	"sitecrawler/internal/storage"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to crawler configuration file")
	outPath := flag.String("out", "", "Optional path to write crawl results as JSON")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	var store crawler.Store
	if cfg.DB.Driver != "" && cfg.DB.DSN != "" {
		writer, err := storage.NewSQLWriter(cfg.DB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialise storage: %v\n", err)
			os.Exit(1)
		}
		store = storage.NewPipeline(writer, nil)
	}

	engine, err := crawler.NewEngine(cfg, store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	results, stats, err := engine.Crawl(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "crawler stopped with error: %v\n", err)
	}

	if *outPath != "" {
		data, merr := json.MarshalIndent(results, "", "  ")
		if merr != nil {
			fmt.Fprintf(os.Stderr, "failed to encode results: %v\n", merr)
			os.Exit(1)
		}
		if werr := os.WriteFile(*outPath, data, 0o644); werr != nil {
			fmt.Fprintf(os.Stderr, "failed to write results: %v\n", werr)
			os.Exit(1)
		}
	}

	fmt.Printf("crawled %d pages (%d failed, %d skipped, %d unique URLs seen)\n",
		stats.PagesCrawled, stats.PagesFailed, stats.PagesSkipped, stats.URLsSeen)

	if err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}
