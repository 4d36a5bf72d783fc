package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/use-agent/pricewatch/cache"
	"github.com/use-agent/pricewatch/engine"
	"github.com/use-agent/pricewatch/extract"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/registry"
	"github.com/use-agent/pricewatch/results"
	"github.com/use-agent/pricewatch/retry"
	"github.com/use-agent/pricewatch/scraper"
	"github.com/use-agent/pricewatch/site"
)

const productURL = "https://shop.example.com/p/42"

var testSite = &site.Site{
	Name:       "example",
	Hosts:      []string{"shop.example.com"},
	ResultFile: "result_example.json",
	Engine:     site.EngineHTTP,
	Fallback:   models.StatusLinkBroken,
}

// runnerFunc adapts a function to Runner, persisting successful results
// like the real scraper does.
type runnerFunc struct {
	sink  *results.Sink
	calls atomic.Int32
	fn    func(ctx context.Context) (*models.ScrapeResult, error)
}

func (r *runnerFunc) Run(ctx context.Context, st *site.Site, _ string) (*models.ScrapeResult, error) {
	r.calls.Add(1)
	res, err := r.fn(ctx)
	if err != nil {
		return nil, err
	}
	return res, r.sink.Write(st.ResultFile, res)
}

type fakeProducts struct {
	mu      sync.Mutex
	outputs map[string]string
}

func (f *fakeProducts) SetOutputBySKU(_ context.Context, sku, output string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[sku] = output
	return 1, nil
}

func inStock() (*models.ScrapeResult, error) {
	price, category := "199.00", "Electrónica"
	return &models.ScrapeResult{Price: &price, Status: models.StatusInStock, Category: &category}, nil
}

func newService(t *testing.T, fn func(ctx context.Context) (*models.ScrapeResult, error)) (*Service, *runnerFunc) {
	t.Helper()
	sites, err := site.NewRegistry(testSite)
	require.NoError(t, err)
	sink := results.NewSink(t.TempDir())
	runner := &runnerFunc{sink: sink, fn: fn}
	c := cache.New(10)
	t.Cleanup(c.Close)
	return New(Deps{
		Sites:    sites,
		Runner:   runner,
		Sink:     sink,
		Registry: registry.New(),
		Cache:    c,
		Timeout:  5 * time.Second,
	}), runner
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *models.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, code, apiErr.Code)
}

func TestRunUnsupportedURL(t *testing.T) {
	svc, runner := newService(t, func(context.Context) (*models.ScrapeResult, error) { return inStock() })

	resp, err := svc.Run(context.Background(), &models.CrawlerRequest{URL: "https://unknown.example.org/p"})
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.False(t, resp.Supported)
	require.Equal(t, models.MsgUnsupportedURL, resp.Message)
	require.Zero(t, runner.calls.Load())
}

func TestRunSuccessStoresOutput(t *testing.T) {
	svc, _ := newService(t, func(context.Context) (*models.ScrapeResult, error) { return inStock() })
	products := &fakeProducts{outputs: map[string]string{}}
	svc.Products = products

	sku := "SKU-1"
	resp, err := svc.Run(context.Background(), &models.CrawlerRequest{URL: productURL, SKU: &sku})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, "example", resp.Site)
	require.NotEmpty(t, resp.RunID)
	require.Equal(t, models.StatusInStock, resp.Status)

	require.JSONEq(t, `{"price":"199.00","status":"In stock","category":"Electrónica"}`, products.outputs[sku])

	stored, err := svc.Result("example")
	require.NoError(t, err)
	require.Equal(t, resp.ScrapeResult, stored)
	require.Zero(t, svc.Registry.Len())
}

func TestRunUsesCache(t *testing.T) {
	svc, runner := newService(t, func(context.Context) (*models.ScrapeResult, error) { return inStock() })

	first, err := svc.Run(context.Background(), &models.CrawlerRequest{URL: productURL, MaxAge: 60_000})
	require.NoError(t, err)
	require.Equal(t, "miss", first.CacheStatus)

	second, err := svc.Run(context.Background(), &models.CrawlerRequest{URL: productURL, MaxAge: 60_000})
	require.NoError(t, err)
	require.Equal(t, "hit", second.CacheStatus)
	require.Equal(t, first.ScrapeResult, second.ScrapeResult)
	require.EqualValues(t, 1, runner.calls.Load())
}

func TestRunRejectsDuplicate(t *testing.T) {
	unblock := make(chan struct{})
	svc, _ := newService(t, func(context.Context) (*models.ScrapeResult, error) {
		<-unblock
		return inStock()
	})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background(), &models.CrawlerRequest{URL: productURL})
		done <- err
	}()
	require.Eventually(t, func() bool { return svc.Registry.Has(productURL) }, time.Second, time.Millisecond)

	_, err := svc.Run(context.Background(), &models.CrawlerRequest{URL: productURL})
	requireCode(t, err, models.ErrCodeCrawlerRunning)

	running := svc.Running()
	require.Len(t, running, 1)
	require.Equal(t, productURL, running[0].URL)

	close(unblock)
	require.NoError(t, <-done)
	require.Zero(t, svc.Registry.Len())
}

func TestConcurrentRunsAcceptExactlyOne(t *testing.T) {
	unblock := make(chan struct{})
	svc, _ := newService(t, func(context.Context) (*models.ScrapeResult, error) {
		<-unblock
		return inStock()
	})

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := svc.Run(context.Background(), &models.CrawlerRequest{URL: productURL})
			errs <- err
		}()
	}

	// Every goroutine but the accepted one fails fast.
	for i := 0; i < n-1; i++ {
		requireCode(t, <-errs, models.ErrCodeCrawlerRunning)
	}
	close(unblock)
	require.NoError(t, <-errs)
	require.Zero(t, svc.Registry.Len())
}

func TestRegistryClearedOnEveryExit(t *testing.T) {
	tests := []struct {
		name string
		fn   func(ctx context.Context) (*models.ScrapeResult, error)
		code string
	}{
		{"failure", func(context.Context) (*models.ScrapeResult, error) {
			return nil, models.NewAPIError(models.ErrCodeNavigation, "boom", errors.New("dial"))
		}, models.ErrCodeNavigation},
		{"panic", func(context.Context) (*models.ScrapeResult, error) {
			panic("selector exploded")
		}, models.ErrCodeInternal},
		{"plain error", func(context.Context) (*models.ScrapeResult, error) {
			return nil, errors.New("unexpected")
		}, models.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(t, tt.fn)
			_, err := svc.Run(context.Background(), &models.CrawlerRequest{URL: productURL})
			requireCode(t, err, tt.code)
			require.False(t, svc.Registry.Has(productURL))
		})
	}
}

func TestRunTimeout(t *testing.T) {
	svc, _ := newService(t, func(ctx context.Context) (*models.ScrapeResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	svc.Timeout = 20 * time.Millisecond

	_, err := svc.Run(context.Background(), &models.CrawlerRequest{URL: productURL})
	requireCode(t, err, models.ErrCodeTimeout)
	require.Zero(t, svc.Registry.Len())
}

func TestRunSurvivesCallerCancel(t *testing.T) {
	started := make(chan struct{})
	svc, _ := newService(t, func(ctx context.Context) (*models.ScrapeResult, error) {
		close(started)
		time.Sleep(20 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return inStock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	resp, err := svc.Run(ctx, &models.CrawlerRequest{URL: productURL})
	require.NoError(t, err)
	require.True(t, resp.Success)
}

func TestTerminate(t *testing.T) {
	svc, _ := newService(t, func(ctx context.Context) (*models.ScrapeResult, error) {
		<-ctx.Done()
		return nil, context.Cause(ctx)
	})

	requireCode(t, svc.Terminate(productURL), models.ErrCodeCrawlerNotRunning)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background(), &models.CrawlerRequest{URL: productURL})
		done <- err
	}()
	require.Eventually(t, func() bool { return svc.Registry.Has(productURL) }, time.Second, time.Millisecond)

	require.NoError(t, svc.Terminate(productURL))
	requireCode(t, <-done, models.ErrCodeTerminated)
	require.Zero(t, svc.Registry.Len())

	_, err := svc.Result("example")
	requireCode(t, err, models.ErrCodeResultNotFound)
}

func TestResultUnknownSite(t *testing.T) {
	svc, _ := newService(t, func(context.Context) (*models.ScrapeResult, error) { return inStock() })
	_, err := svc.Result("nope")
	requireCode(t, err, models.ErrCodeNotFound)
}

// TestEndToEnd drives the real scraper over HTTP fixtures.
func TestEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gone":
			w.WriteHeader(http.StatusGone)
		case "/in-stock":
			_, _ = w.Write([]byte(`<div class="product"><ul class="crumbs"><li>Inicio</li><li>Audio</li></ul>
				<span class="price">$199.00</span><button class="buy">Comprar</button></div>`))
		case "/sold-out":
			_, _ = w.Write([]byte(`<div class="product"><ul class="crumbs"><li>Inicio</li><li>Audio</li></ul>
				<span class="price">$199.00</span><button class="buy" aria-disabled="true">Agotado</button></div>`))
		}
	}))
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	fixture := &site.Site{
		Name:       "fixture",
		Hosts:      []string{u.Host},
		ResultFile: "result_fixture.json",
		Engine:     site.EngineHTTP,
		Broken:     site.BrokenRule{StatusCodes: []int{http.StatusGone}, Missing: []string{"div.product"}},
		Breadcrumb: site.BreadcrumbRule{Selector: "ul.crumbs li", Index: 1},
		Price:      site.PriceRule{Original: "span.price"},
		Availability: []site.AvailabilityRule{
			{Status: models.StatusOutOfStock, Selector: "button.buy", Disabled: true},
			{Status: models.StatusInStock, Selector: "button.buy", Enabled: true},
		},
		Fallback: models.StatusLinkBroken,
	}
	sites, err := site.NewRegistry(fixture)
	require.NoError(t, err)
	sink := results.NewSink(t.TempDir())
	sc := scraper.New(extract.New(retry.Policy{Attempts: 3, Delay: time.Millisecond}), sink, scraper.Options{},
		engine.NewHTTPEngine(2*time.Second, ""))
	svc := New(Deps{Sites: sites, Runner: sc, Sink: sink, Registry: registry.New(), Timeout: 5 * time.Second})

	tests := []struct {
		path string
		want string
	}{
		{"/gone", `{"price":"0","status":"Link broken","category":"Link broken"}`},
		{"/in-stock", `{"price":"199.00","status":"In stock","category":"Audio"}`},
		{"/sold-out", `{"price":"199.00","status":"Out of stock","category":"Audio"}`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := svc.Run(context.Background(), &models.CrawlerRequest{URL: srv.URL + tt.path})
			require.NoError(t, err)
			require.True(t, resp.Success)

			stored, err := svc.Result("fixture")
			require.NoError(t, err)
			got, err := json.Marshal(stored)
			require.NoError(t, err)
			require.JSONEq(t, tt.want, string(got))
			require.Zero(t, svc.Registry.Len())
		})
	}
}
