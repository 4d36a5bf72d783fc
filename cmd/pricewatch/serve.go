package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/pricewatch/api"
	"github.com/use-agent/pricewatch/cache"
	"github.com/use-agent/pricewatch/crawler"
	"github.com/use-agent/pricewatch/registry"
	"github.com/use-agent/pricewatch/site"
	"github.com/use-agent/pricewatch/store"
	"github.com/use-agent/pricewatch/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default).",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	slog.Info("pricewatch starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxPages", cfg.Browser.MaxPages,
		"resultsDir", cfg.Results.Dir,
	)

	// ── 1. Product store ────────────────────────────────────────────
	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	// ── 2. Scraper (browser launches on first use) ──────────────────
	sc, rod := newScraper(cfg)
	defer rod.Close()

	// ── 3. Crawler service ──────────────────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries)
	defer cc.Close()

	notifier := webhook.NewNotifier(cfg.Webhook)
	defer notifier.Wait()

	svc := crawler.New(crawler.Deps{
		Sites:    site.DefaultRegistry(),
		Runner:   sc,
		Sink:     sc.Sink(),
		Registry: registry.New(),
		Cache:    cc,
		Products: st,
		Notifier: notifier,
		Timeout:  cfg.Scraper.CrawlTimeout,
	})
	batches := crawler.NewBatches(svc, st, cfg.Browser.MaxPages)
	defer batches.Close()

	// ── 4. Router ───────────────────────────────────────────────────
	router := api.NewRouter(cfg, api.Services{
		Products: st,
		Crawler:  svc,
		Batches:  batches,
		Pool:     rod,
	}, time.Now())

	// ── 5. HTTP server ──────────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ── 6. Graceful shutdown ────────────────────────────────────────
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	// Give in-flight requests 5 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Deferred closes drain the page pool and kill Chrome.
	slog.Info("pricewatch stopped")
	return nil
}
