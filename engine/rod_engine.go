package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/models"
	"github.com/ysmood/gson"
)

// RodEngine renders pages in a shared headless Chromium. The browser is
// launched on first use so HTTP-only deployments never start it.
// It is safe for concurrent use.
type RodEngine struct {
	browserCfg config.BrowserConfig
	scraperCfg config.ScraperConfig

	mu       sync.Mutex
	browser  *rod.Browser
	pagePool rod.Pool[rod.Page]
	pid      int

	activePages atomic.Int32
}

// NewRodEngine returns an engine that has not launched its browser yet.
func NewRodEngine(browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig) *RodEngine {
	if browserCfg.MaxPages < 1 {
		browserCfg.MaxPages = 1
	}
	return &RodEngine{browserCfg: browserCfg, scraperCfg: scraperCfg}
}

func (e *RodEngine) Name() string { return "browser" }

// launch starts Chromium and the page pool once.
func (e *RodEngine) launch() (*rod.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser != nil {
		return e.browser, nil
	}

	l := launcher.New().
		Headless(e.browserCfg.Headless).
		NoSandbox(e.browserCfg.NoSandbox)

	if e.browserCfg.BrowserBin != "" {
		l = l.Bin(e.browserCfg.BrowserBin)
	}
	if e.browserCfg.DefaultProxy != "" {
		l = l.Proxy(e.browserCfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewAPIError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL, "pid", l.PID())

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewAPIError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	e.browser = browser
	e.pid = l.PID()
	e.pagePool = rod.NewPagePool(e.browserCfg.MaxPages)
	slog.Info("page pool created", "maxPages", e.browserCfg.MaxPages)
	return browser, nil
}

// Open navigates a pooled tab to req.URL and waits for req.ReadySelector.
//
// Stealth JS, extra headers and the hijack router are installed before
// navigation since they only affect navigations that start afterwards.
// Running out of req.Timeout during navigation or the ready wait marks the
// page partial instead of failing.
func (e *RodEngine) Open(ctx context.Context, req *OpenRequest) (Page, error) {
	browser, err := e.launch()
	if err != nil {
		return nil, err
	}

	raw, err := e.pagePool.Get(func() (*rod.Page, error) {
		return browser.Page(proto.TargetCreateTarget{})
	})
	if err != nil {
		return nil, models.NewAPIError(models.ErrCodeBrowserCrash, "failed to acquire page from pool", err)
	}
	e.activePages.Add(1)

	rp := &rodPage{engine: e, raw: raw, url: req.URL}
	opened := false
	defer func() {
		if !opened {
			_ = rp.Close()
		}
	}()

	if req.Stealth {
		if _, evalErr := raw.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}
	if e.browserCfg.UserAgent != "" {
		_ = raw.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      e.browserCfg.UserAgent,
			AcceptLanguage: "es-MX,es;q=0.9",
		})
	}

	headers := make(map[string]string, len(req.Headers)+1)
	if u, parseErr := url.Parse(req.URL); parseErr == nil {
		headers["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
	}
	for k, v := range req.Headers {
		headers[k] = v
	}
	_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}.Call(raw)

	rp.router = setupHijack(raw, e.scraperCfg.BlockedResourceTypes, true)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.scraperCfg.NavigationTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	nav := raw.Context(navCtx)

	waitErr := nav.Navigate(req.URL)
	if waitErr == nil {
		waitErr = nav.WaitLoad()
	}
	if waitErr == nil && req.ReadySelector != "" {
		_, waitErr = nav.Element(req.ReadySelector)
	}
	if waitErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("rod_engine: %w", context.Cause(ctx))
		}
		if !errors.Is(waitErr, context.DeadlineExceeded) {
			return nil, models.NewAPIError(models.ErrCodeNavigation, "navigation to target URL failed", waitErr)
		}
		slog.Debug("page load timed out, continuing with partial content",
			"url", req.URL, "timeout", timeout)
		rp.partial = true
	}

	rp.page = raw.Context(ctx)
	rp.status = navigationStatus(rp.page)
	if finalURL := evalStringOrEmpty(rp.page, `() => window.location.href`); finalURL != "" {
		rp.url = finalURL
	}

	opened = true
	return rp, nil
}

// Stats returns a snapshot of the pool's current state.
func (e *RodEngine) Stats() models.PoolStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.PoolStats{
		Launched:    e.browser != nil,
		MaxPages:    e.browserCfg.MaxPages,
		ActivePages: int(e.activePages.Load()),
		BrowserPID:  e.pid,
	}
}

// Close drains the page pool and kills the browser process if it was launched.
func (e *RodEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser == nil {
		return
	}
	slog.Info("browser shutting down: draining page pool")
	e.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	if err := e.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
	e.browser = nil
	slog.Info("browser shutdown complete")
}

// rodPage is a pooled tab. raw has no request context so cleanup still
// works after the scrape context is canceled.
type rodPage struct {
	engine *RodEngine
	raw    *rod.Page
	page   *rod.Page
	router *rod.HijackRouter

	url     string
	status  int
	partial bool

	closeOnce sync.Once
}

func (p *rodPage) URL() string     { return p.url }
func (p *rodPage) StatusCode() int { return p.status }
func (p *rodPage) Partial() bool   { return p.partial }
func (p *rodPage) Live() bool      { return true }

func (p *rodPage) Title(ctx context.Context) string {
	return evalStringOrEmpty(p.page.Context(ctx), `() => document.title`)
}

func (p *rodPage) Query(ctx context.Context, selector string) ([]Node, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("rod_engine: query %q: %w", selector, err)
	}

	nodes := make([]Node, 0, len(els))
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			return nil, fmt.Errorf("rod_engine: read text of %q: %w", selector, err)
		}
		visible, err := el.Visible()
		if err != nil {
			return nil, fmt.Errorf("rod_engine: visibility of %q: %w", selector, err)
		}
		attrs := make(map[string]string, len(trackedAttrs))
		for _, name := range trackedAttrs {
			v, err := el.Attribute(name)
			if err != nil {
				return nil, fmt.Errorf("rod_engine: attribute %s of %q: %w", name, selector, err)
			}
			if v != nil {
				attrs[name] = *v
			}
		}
		nodes = append(nodes, Node{Text: collapseSpace(text), Attrs: attrs, Visible: visible})
	}
	return nodes, nil
}

func (p *rodPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) bool {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := p.page.Context(waitCtx).Element(selector)
	return err == nil
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("rod_engine: click %q: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) EnterText(ctx context.Context, selector, text string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("rod_engine: enter text %q: %w", selector, err)
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("rod_engine: clear %q: %w", selector, err)
	}
	return el.Input(text)
}

func (p *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

// Close blanks the tab and returns it to the pool.
func (p *rodPage) Close() error {
	p.closeOnce.Do(func() {
		if p.router != nil {
			_ = p.router.Stop()
		}
		if err := p.raw.Navigate("about:blank"); err != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", err)
		}
		p.engine.pagePool.Put(p.raw)
		p.engine.activePages.Add(-1)
	})
	return nil
}

// navigationStatus reads the main document status from the Navigation
// Timing entry. Event listeners are avoided because they conflict with
// the hijack router's Fetch domain.
func navigationStatus(p *rod.Page) int {
	res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors.
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
