package models

import "time"

// CrawlerRequest is the payload for POST /api/v1/run_crawler.
type CrawlerRequest struct {
	// URL is the product page to scrape. Required.
	URL string `json:"url" binding:"required,url"`

	// SKU, when set, receives the serialized result as its product output.
	SKU *string `json:"sku,omitempty"`

	// MaxAge returns a cached result younger than this many milliseconds
	// instead of scraping again. 0 disables the cache.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// TerminateRequest is the JSON payload for POST /api/v1/terminate_crawler.
// The URL may also be given as the ?url= query parameter.
type TerminateRequest struct {
	URL string `json:"url"`
}

// CrawlerResponse is the response for POST /api/v1/run_crawler.
type CrawlerResponse struct {
	Success bool `json:"success"`

	// Supported is false when no site strategy matches the URL.
	Supported bool `json:"supported"`

	Message string `json:"message,omitempty"`
	Site    string `json:"site,omitempty"`
	RunID   string `json:"run_id,omitempty"`

	// Embedded result: price, status, category.
	*ScrapeResult

	// CacheStatus is "hit" or "miss" when max_age was requested.
	CacheStatus string `json:"cache_status,omitempty"`

	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// RunningCrawler describes an in-flight scrape.
type RunningCrawler struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Site      string    `json:"site"`
	SKU       string    `json:"sku,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// TerminateResponse acknowledges a termination.
type TerminateResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// Crawler response messages.
const (
	MsgUnsupportedURL    = "Unsupported URL"
	MsgCrawlerRunning    = "Crawler is already running for this URL"
	MsgCrawlerTerminated = "Crawler terminated successfully"
	MsgNoRunningProcess  = "No running process for this URL"
	MsgCrawlerCompleted  = "Crawler completed successfully"
	MsgNoResultFound     = "No result found"
)
