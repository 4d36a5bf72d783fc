// Command benchmark measures /run_crawler latency of a running pricewatch
// server and writes a JSON report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jedib0t/go-pretty/v6/table"
)

var (
	apiURL = flag.String("api-url", "http://localhost:8000", "pricewatch API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	urls   = flag.String("urls", "", "comma-separated product URLs; default: every stored product")
	runs   = flag.Int("runs", 3, "number of runs per URL for averaging")
	output = flag.String("output", "benchmark-results.json", "JSON output file path")
)

type crawlerResponse struct {
	Success   bool   `json:"success"`
	Supported bool   `json:"supported"`
	Site      string `json:"site"`
	Status    string `json:"status"`
	Timing    struct {
		TotalMs  int64 `json:"total_ms"`
		ScrapeMs int64 `json:"scrape_ms"`
	} `json:"timing"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type runResult struct {
	Run      int    `json:"run"`
	TotalMs  int64  `json:"total_ms"`
	ScrapeMs int64  `json:"scrape_ms"`
	Status   string `json:"status,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

type urlResult struct {
	URL        string      `json:"url"`
	Site       string      `json:"site"`
	Runs       []runResult `json:"runs"`
	AvgTotalMs float64     `json:"avg_total_ms"`
	Failures   int         `json:"failures"`
}

type benchmarkReport struct {
	Timestamp  string      `json:"timestamp"`
	APIURL     string      `json:"api_url"`
	RunsPerURL int         `json:"runs_per_url"`
	Results    []urlResult `json:"results"`
}

func main() {
	flag.Parse()

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(*apiURL, "/")).
		SetTimeout(5 * time.Minute)
	if *apiKey != "" {
		client.SetAuthToken(*apiKey)
	}

	if err := checkHealth(client, 10*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	targets, err := targetURLs(client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list products: %v\n", err)
		os.Exit(1)
	}
	if len(targets) == 0 {
		fmt.Fprintln(os.Stderr, "no URLs to benchmark: pass -urls or create products first")
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerURL: *runs,
	}
	for _, u := range targets {
		fmt.Printf("Benchmarking %s ...\n", u)
		ur := urlResult{URL: u}
		for i := 1; i <= *runs; i++ {
			rr, site := runOnce(client, u, i)
			if site != "" {
				ur.Site = site
			}
			if rr.Success {
				fmt.Printf("  run %d: %dms %s\n", i, rr.TotalMs, rr.Status)
			} else {
				fmt.Printf("  run %d: FAILED %s\n", i, rr.Error)
			}
			ur.Runs = append(ur.Runs, rr)
		}
		ur.AvgTotalMs, ur.Failures = summarize(ur.Runs)
		report.Results = append(report.Results, ur)
	}

	printTable(report.Results)

	data, err := json.MarshalIndent(report, "", "  ")
	if err == nil {
		err = os.WriteFile(*output, data, 0o644)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "write report: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

// checkHealth fails when the API does not answer /health with a 2xx
// within timeout.
func checkHealth(client *resty.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := client.R().SetContext(ctx).Get("/api/v1/health")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("health returned HTTP %d", resp.StatusCode())
	}
	return nil
}

func targetURLs(client *resty.Client) ([]string, error) {
	if *urls != "" {
		var out []string
		for _, u := range strings.Split(*urls, ",") {
			if u = strings.TrimSpace(u); u != "" {
				out = append(out, u)
			}
		}
		return out, nil
	}

	var list struct {
		Products []struct {
			URL string `json:"url"`
		} `json:"products"`
	}
	resp, err := client.R().SetResult(&list).SetQueryParam("limit", "1000").Get("/api/v1/products")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("status %d", resp.StatusCode())
	}
	out := make([]string, 0, len(list.Products))
	for _, p := range list.Products {
		out = append(out, p.URL)
	}
	return out, nil
}

// runOnce triggers one scrape. The cache is bypassed so every run opens
// the page.
func runOnce(client *resty.Client, url string, run int) (runResult, string) {
	rr := runResult{Run: run}

	var cr crawlerResponse
	resp, err := client.R().
		SetBody(map[string]any{"url": url}).
		SetResult(&cr).
		SetError(&cr).
		Post("/api/v1/run_crawler")
	if err != nil {
		rr.Error = err.Error()
		return rr, ""
	}

	rr.Success = cr.Success
	rr.TotalMs = cr.Timing.TotalMs
	rr.ScrapeMs = cr.Timing.ScrapeMs
	rr.Status = cr.Status
	switch {
	case cr.Error != nil:
		rr.Error = cr.Error.Code + ": " + cr.Error.Message
	case !cr.Supported:
		rr.Error = "unsupported URL"
	case !cr.Success:
		rr.Error = fmt.Sprintf("HTTP %d", resp.StatusCode())
	}
	return rr, cr.Site
}

func summarize(runs []runResult) (avg float64, failures int) {
	var ok int
	for _, r := range runs {
		if !r.Success {
			failures++
			continue
		}
		ok++
		avg += float64(r.TotalMs)
	}
	if ok > 0 {
		avg /= float64(ok)
	}
	return avg, failures
}

func printTable(results []urlResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"URL", "Site", "Avg latency", "Failures", "Last status"})
	for _, r := range results {
		last := "-"
		for _, run := range r.Runs {
			if run.Success {
				last = run.Status
			}
		}
		latency := "FAILED"
		if r.Failures < len(r.Runs) {
			latency = fmt.Sprintf("%dms", int64(r.AvgTotalMs))
		}
		t.AppendRow(table.Row{truncate(r.URL, 60), r.Site, latency, fmt.Sprintf("%d/%d", r.Failures, len(r.Runs)), last})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
