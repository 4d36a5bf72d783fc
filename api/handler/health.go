package handler

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/use-agent/pricewatch/models"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// PoolStatser reports browser pool utilisation.
type PoolStatser interface {
	Stats() models.PoolStats
}

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when more than 80% of browser pages are active.
func Health(pool PoolStatser, cr Crawler, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := pool.Stats()

		status := "healthy"
		if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
			status = "degraded"
		}

		resp := models.HealthResponse{
			Status:          status,
			Uptime:          time.Since(startTime).Round(time.Second).String(),
			PoolStats:       stats,
			RunningCrawlers: len(cr.Running()),
			RSSBytes:        rss(c.Request.Context(), os.Getpid()),
			Version:         Version,
		}
		if stats.BrowserPID > 0 {
			resp.BrowserRSSBytes = rss(c.Request.Context(), stats.BrowserPID)
		}
		c.JSON(http.StatusOK, resp)
	}
}

// rss returns the resident set size of pid, or 0 when it cannot be read.
func rss(ctx context.Context, pid int) uint64 {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return 0
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0
	}
	return mem.RSS
}
