// Package crawler accepts scrape triggers and terminations. It enforces one
// in-flight scrape per URL, bounds each run, and fans the outcome out to
// the product store, the cache and the webhook.
package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/pricewatch/cache"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/registry"
	"github.com/use-agent/pricewatch/results"
	"github.com/use-agent/pricewatch/site"
	"github.com/use-agent/pricewatch/webhook"
)

// Runner scrapes one URL with a site strategy and persists the result.
type Runner interface {
	Run(ctx context.Context, st *site.Site, url string) (*models.ScrapeResult, error)
}

// ProductStore receives the serialized result of SKU-tagged scrapes.
type ProductStore interface {
	SetOutputBySKU(ctx context.Context, sku, output string) (int64, error)
}

// Deps are the collaborators of a Service. Cache, Products and Notifier
// are optional.
type Deps struct {
	Sites    *site.Registry
	Runner   Runner
	Sink     *results.Sink
	Registry *registry.Registry
	Cache    *cache.Cache
	Products ProductStore
	Notifier *webhook.Notifier

	// Timeout bounds a whole run. Zero means no bound.
	Timeout time.Duration
}

// Service runs scrapes on behalf of API callers.
// It is safe for concurrent use.
type Service struct {
	Deps
}

// New returns a Service. Sites, Runner, Sink and Registry are required.
func New(d Deps) *Service {
	return &Service{Deps: d}
}

// Run scrapes req.URL and returns its result.
//
// An unsupported URL is not an error: the response reports Supported=false.
// A URL already in flight fails with CRAWLER_RUNNING. The run is detached
// from ctx so a disconnecting client does not abort it; only Terminate or
// the run timeout do.
func (s *Service) Run(ctx context.Context, req *models.CrawlerRequest) (*models.CrawlerResponse, error) {
	start := time.Now()
	url := strings.TrimSpace(req.URL)

	st, ok := s.Sites.Resolve(url)
	if !ok {
		slog.Info("unsupported url", "url", url)
		return &models.CrawlerResponse{
			Success:   false,
			Supported: false,
			Message:   models.MsgUnsupportedURL,
			Timing:    models.TimingInfo{TotalMs: time.Since(start).Milliseconds()},
		}, nil
	}

	resp := &models.CrawlerResponse{Supported: true, Site: st.Name}

	// ── Cache ───────────────────────────────────────────────────────
	cacheKey := cache.Key(url)
	if req.MaxAge > 0 && s.Cache != nil {
		if r, hit := s.Cache.Get(cacheKey, req.MaxAge); hit {
			slog.Debug("cache hit", "url", url, "site", st.Name)
			resp.Success = true
			resp.Message = models.MsgCrawlerCompleted
			resp.ScrapeResult = r
			resp.CacheStatus = "hit"
			resp.Timing.TotalMs = time.Since(start).Milliseconds()
			return resp, nil
		}
		resp.CacheStatus = "miss"
	}

	// ── Register ────────────────────────────────────────────────────
	entry := registry.Entry{ID: uuid.NewString(), URL: url, Site: st.Name}
	if req.SKU != nil {
		entry.SKU = *req.SKU
	}
	runCtx, release, err := s.Registry.Start(context.WithoutCancel(ctx), entry)
	if err != nil {
		if errors.Is(err, registry.ErrAlreadyRunning) {
			return nil, models.NewAPIError(models.ErrCodeCrawlerRunning, models.MsgCrawlerRunning, err)
		}
		return nil, models.NewAPIError(models.ErrCodeInternal, "failed to register crawler", err)
	}
	defer release()
	resp.RunID = entry.ID

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, s.Timeout)
		defer cancel()
	}

	log := slog.With("run_id", entry.ID, "site", st.Name, "url", url)
	log.Info("crawler started", "sku", entry.SKU)

	// ── Scrape ──────────────────────────────────────────────────────
	scrapeStart := time.Now()
	result, err := s.scrape(runCtx, st, url)
	resp.Timing.ScrapeMs = time.Since(scrapeStart).Milliseconds()
	if err != nil {
		apiErr := classify(runCtx, err)
		log.Warn("crawler failed", "code", apiErr.Code, "error", err)
		s.Notifier.Notify(&webhook.Event{
			Type: webhook.EventScrapeFailed, RunID: entry.ID, URL: url, Site: st.Name,
			Data: apiErr.ToDetail(),
		})
		return nil, apiErr
	}

	// ── Fan out ─────────────────────────────────────────────────────
	if s.Cache != nil {
		s.Cache.Set(cacheKey, result)
	}
	if entry.SKU != "" && s.Products != nil {
		s.saveOutput(context.WithoutCancel(ctx), log, entry.SKU, result)
	}
	s.Notifier.Notify(&webhook.Event{
		Type: webhook.EventScrapeCompleted, RunID: entry.ID, URL: url, Site: st.Name,
		Data: result,
	})

	resp.Success = true
	resp.Message = models.MsgCrawlerCompleted
	resp.ScrapeResult = result
	resp.Timing.TotalMs = time.Since(start).Milliseconds()
	log.Info("crawler completed", "status", result.Status, "total_ms", resp.Timing.TotalMs)
	return resp, nil
}

// scrape calls the runner, turning a panic into an error.
func (s *Service) scrape(ctx context.Context, st *site.Site, url string) (result *models.ScrapeResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic during scrape", "site", st.Name, "url", url, "panic", rec, "stack", string(debug.Stack()))
			result = nil
			err = models.NewAPIError(models.ErrCodeInternal, "unexpected extraction failure", fmt.Errorf("panic: %v", rec))
		}
	}()
	return s.Runner.Run(ctx, st, url)
}

func (s *Service) saveOutput(ctx context.Context, log *slog.Logger, sku string, result *models.ScrapeResult) {
	b, err := json.Marshal(result)
	if err != nil {
		log.Warn("encode product output failed", "error", err)
		return
	}
	n, err := s.Products.SetOutputBySKU(ctx, sku, string(b))
	switch {
	case err != nil:
		log.Warn("store product output failed", "sku", sku, "error", err)
	case n == 0:
		log.Info("no product with sku, output not stored", "sku", sku)
	}
}

// Terminate cancels the scrape running for url.
func (s *Service) Terminate(url string) error {
	url = strings.TrimSpace(url)
	if err := s.Registry.Terminate(url); err != nil {
		if errors.Is(err, registry.ErrNotRunning) {
			return models.NewAPIError(models.ErrCodeCrawlerNotRunning, models.MsgNoRunningProcess, err)
		}
		return models.NewAPIError(models.ErrCodeInternal, "failed to terminate crawler", err)
	}
	slog.Info("crawler terminated", "url", url)
	return nil
}

// Running lists the scrapes in flight, oldest first.
func (s *Service) Running() []models.RunningCrawler {
	entries := s.Registry.Running()
	out := make([]models.RunningCrawler, len(entries))
	for i, e := range entries {
		out[i] = models.RunningCrawler{ID: e.ID, URL: e.URL, Site: e.Site, SKU: e.SKU, StartedAt: e.StartedAt}
	}
	return out
}

// Result reads back the last result file written for the named site.
func (s *Service) Result(siteName string) (*models.ScrapeResult, error) {
	st, ok := s.Sites.ByName(siteName)
	if !ok {
		return nil, models.NewAPIError(models.ErrCodeNotFound, "unknown site "+siteName, nil)
	}
	r, err := s.Sink.Read(st.ResultFile)
	if errors.Is(err, results.ErrNoResult) {
		return nil, models.NewAPIError(models.ErrCodeResultNotFound, models.MsgNoResultFound, err)
	}
	if err != nil {
		return nil, models.NewAPIError(models.ErrCodeInternal, "failed to read result file", err)
	}
	return r, nil
}

// classify maps a scrape error to its API error, giving termination and
// the run timeout precedence over whatever the runner reported.
func classify(ctx context.Context, err error) *models.APIError {
	switch {
	case errors.Is(context.Cause(ctx), registry.ErrTerminated):
		return models.NewAPIError(models.ErrCodeTerminated, models.MsgCrawlerTerminated, err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return models.NewAPIError(models.ErrCodeTimeout, "crawler exceeded its time limit", err)
	}
	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return models.NewAPIError(models.ErrCodeInternal, "crawler failed", err)
}
