package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricewatch/models"
)

// BatchRunner runs groups of scrapes in the background.
type BatchRunner interface {
	Submit(ctx context.Context, req *models.BatchRequest) (*models.BatchResponse, error)
	Get(id string) (*models.BatchStatusResponse, bool)
}

// PostBatch handles POST /api/v1/run_crawler/batch. The scrapes run in the
// background; poll GET /api/v1/batch/:id for progress.
func PostBatch(br BatchRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}
		ack, err := br.Submit(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, ack)
	}
}

// GetBatch handles GET /api/v1/batch/:id.
func GetBatch(br BatchRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := br.Get(c.Param("id"))
		if !ok {
			respondError(c, models.NewAPIError(models.ErrCodeNotFound, "batch job not found", nil))
			return
		}
		c.JSON(http.StatusOK, s)
	}
}
