// Package scraper runs the extraction pipeline for one product URL:
// navigate, detect a dead page, extract fields, classify availability,
// and persist the result file.
package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/use-agent/pricewatch/engine"
	"github.com/use-agent/pricewatch/extract"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/results"
	"github.com/use-agent/pricewatch/site"
)

// Options tunes the pipeline.
type Options struct {
	// Strict reports unresolved availability as StatusUnknown instead of
	// the site fallback.
	Strict bool

	// DebugDir receives page dumps when availability is unresolved.
	DebugDir string
}

// Scraper owns the navigators and writes results through a sink.
// It is safe for concurrent use.
type Scraper struct {
	navigators map[site.Engine]engine.Navigator
	extractor  *extract.Extractor
	sink       *results.Sink
	opts       Options
}

// New builds a Scraper. Navigators are keyed by their Name, which must
// match a site.Engine value.
func New(x *extract.Extractor, sink *results.Sink, opts Options, navigators ...engine.Navigator) *Scraper {
	m := make(map[site.Engine]engine.Navigator, len(navigators))
	for _, n := range navigators {
		m[site.Engine(n.Name())] = n
	}
	return &Scraper{navigators: m, extractor: x, sink: sink, opts: opts}
}

// Sink returns the result sink.
func (s *Scraper) Sink() *results.Sink {
	return s.sink
}

// Run scrapes url with the strategy of st and overwrites st.ResultFile.
//
// Pipeline:
//
//	Open → (timeout: continue with partial content) → Actions → IsBroken
//	IsBroken → {Link broken, "0", "Link broken"} → Persist
//	otherwise → Category → Price → Availability → Persist
//
// Nothing is persisted when ctx ends before the result is complete.
func (s *Scraper) Run(ctx context.Context, st *site.Site, url string) (*models.ScrapeResult, error) {
	log := slog.With("site", st.Name, "url", url)
	start := time.Now()

	nav, ok := s.navigators[st.Engine]
	if !ok {
		return nil, models.NewAPIError(models.ErrCodeInternal, "no navigator for engine "+string(st.Engine), nil)
	}

	// ── 1. Navigate ─────────────────────────────────────────────────
	page, err := nav.Open(ctx, &engine.OpenRequest{
		URL:           url,
		ReadySelector: st.ReadySelector,
		Timeout:       st.ReadyTimeout,
		Stealth:       st.Stealth,
	})
	if err != nil {
		return nil, categorizeError(err, "failed to open product page")
	}
	defer page.Close()

	if page.Partial() {
		log.Warn("page load timed out, extracting from partial content")
	}
	log.Debug("page opened", "engine", nav.Name(), "status_code", page.StatusCode())

	// ── 2. Site interactions ────────────────────────────────────────
	if err := runActions(ctx, page, st.Actions); err != nil {
		return nil, categorizeError(err, "page interaction failed")
	}

	// ── 3. Broken link check ────────────────────────────────────────
	var result *models.ScrapeResult
	if s.extractor.IsBroken(ctx, page, st.Broken) {
		result = models.BrokenResult()
	} else {
		// ── 4. Fields + availability ────────────────────────────────
		result = &models.ScrapeResult{}
		result.Category = s.extractor.Category(ctx, page, st.Breadcrumb)

		price, discount := s.extractor.Price(ctx, page, st.Price)
		result.Price = price
		if discount != nil {
			log.Debug("discount found", "discount", *discount)
		}

		status, resolved := s.extractor.Availability(ctx, page, st.Availability, st.Fallback)
		if !resolved {
			log.Warn("availability unresolved, using fallback", "fallback", st.Fallback, "strict", s.opts.Strict)
			if s.opts.Strict {
				status = models.StatusUnknown
			}
			dumpPage(ctx, s.opts.DebugDir, st.Name, page)
		}
		result.Status = status
	}

	if err := ctx.Err(); err != nil {
		return nil, categorizeError(context.Cause(ctx), "scrape interrupted before the result was written")
	}

	// ── 5. Persist ──────────────────────────────────────────────────
	if err := s.sink.Write(st.ResultFile, result); err != nil {
		return nil, models.NewAPIError(models.ErrCodeInternal, "failed to write result file", err)
	}

	log.Info("scrape finished",
		"status", result.Status,
		"price", deref(result.Price),
		"category", deref(result.Category),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// categorizeError wraps raw errors into typed APIErrors so the API layer
// can map them to appropriate HTTP status codes.
func categorizeError(err error, msg string) *models.APIError {
	var apiErr *models.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewAPIError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewAPIError(models.ErrCodeTerminated, "scrape canceled", err)
	default:
		return models.NewAPIError(models.ErrCodeNavigation, msg, err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
