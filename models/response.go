package models

// ErrorResponse is the body of every non-2xx response outside the crawler routes.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// ScrapeMs is the time spent navigating and extracting.
	ScrapeMs int64 `json:"scrape_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status          string    `json:"status"` // "healthy" or "degraded"
	Uptime          string    `json:"uptime"`
	PoolStats       PoolStats `json:"pool_stats"`
	RunningCrawlers int       `json:"running_crawlers"`
	RSSBytes        uint64    `json:"rss_bytes"`
	BrowserRSSBytes uint64    `json:"browser_rss_bytes,omitempty"`
	Version         string    `json:"version"`
}

// PoolStats reports the state of the browser page pool.
type PoolStats struct {
	Launched    bool `json:"launched"`
	MaxPages    int  `json:"max_pages"`
	ActivePages int  `json:"active_pages"`
	BrowserPID  int  `json:"browser_pid"`
}
