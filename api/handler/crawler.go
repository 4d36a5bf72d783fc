package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricewatch/models"
)

// Crawler runs and terminates scrapes.
type Crawler interface {
	Run(ctx context.Context, req *models.CrawlerRequest) (*models.CrawlerResponse, error)
	Terminate(url string) error
	Running() []models.RunningCrawler
	Result(siteName string) (*models.ScrapeResult, error)
}

// RunCrawler handles POST /api/v1/run_crawler.
//
// An unsupported URL is answered with 200 and supported=false; a URL that
// is already being scraped with 409.
func RunCrawler(cr Crawler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CrawlerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.CrawlerResponse{
				Error: &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()},
			})
			return
		}

		resp, err := cr.Run(c.Request.Context(), &req)
		if err != nil {
			apiErr := toAPIError(err)
			if apiErr.Code == models.ErrCodeInternal {
				_ = c.Error(err)
			}
			c.JSON(mapErrorToStatus(apiErr), models.CrawlerResponse{
				Success:   false,
				Supported: true,
				Message:   apiErr.Message,
				Error:     apiErr.ToDetail(),
			})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// TerminateCrawler handles POST /api/v1/terminate_crawler. The URL comes
// from the ?url= query parameter or a JSON body.
func TerminateCrawler(cr Crawler) gin.HandlerFunc {
	return func(c *gin.Context) {
		url := c.Query("url")
		if url == "" && c.Request.ContentLength != 0 {
			var req models.TerminateRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				invalidInput(c, err)
				return
			}
			url = req.URL
		}
		if strings.TrimSpace(url) == "" {
			invalidInput(c, errors.New("url is required"))
			return
		}

		if err := cr.Terminate(url); err != nil {
			apiErr := toAPIError(err)
			c.JSON(mapErrorToStatus(apiErr), models.TerminateResponse{
				Success: false,
				Message: apiErr.Message,
				Error:   apiErr.ToDetail(),
			})
			return
		}
		c.JSON(http.StatusOK, models.TerminateResponse{Success: true, Message: models.MsgCrawlerTerminated})
	}
}

// ListCrawlers handles GET /api/v1/crawlers.
func ListCrawlers(cr Crawler) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"crawlers": cr.Running()})
	}
}

// GetResult handles GET /api/v1/results/:site.
func GetResult(cr Crawler) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, err := cr.Result(c.Param("site"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, r)
	}
}
