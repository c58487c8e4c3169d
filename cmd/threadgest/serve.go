package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/threadgest/internal/analyze"
	"github.com/dgallion1/threadgest/internal/api"
	"github.com/dgallion1/threadgest/internal/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel()}))

	if err := cfg.ValidateServer(); err != nil {
		log.Error("invalid configuration", "error", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	profiles, err := loadProfiles(cfg)
	if err != nil {
		return err
	}
	llm, err := newLLM(cfg)
	if err != nil {
		return err
	}
	var analyzer *analyze.Analyzer
	if llm != nil {
		analyzer = analyze.NewAnalyzer(llm, cfg.AnalyzeConcurrency, log)
	} else {
		log.Warn("no LLM API key configured, analysis disabled", "provider", cfg.LLMProvider)
	}

	// Initialize pipeline.
	f := newFetcher(cfg, log)
	scraper := pipeline.NewScraper(f, pipeline.NewDiscoverer(f, cfg.DiscoveryCacheTTL, log), log)
	orch := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		WorkerCount:  cfg.WorkerCount,
		MaxQueueSize: cfg.MaxQueueSize,
		JobTTL:       cfg.RunTTL,
		Chunk:        chunkConfig(cfg),
	}, scraper, analyzer, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, llm, profiles, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		// Stop accepting requests before the queue closes.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()

		closeLLM(llm)
		f.Close()
	}()

	log.Info("starting threadgest", "port", cfg.Port, "provider", cfg.LLMProvider, "analysis", llm != nil)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", "error", err)
		return err
	}
	return nil
}
