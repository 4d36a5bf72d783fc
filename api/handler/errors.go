package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/store"
)

// toAPIError returns err as an APIError, classifying the store sentinels.
func toAPIError(err error) *models.APIError {
	var apiErr *models.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, store.ErrNotFound):
		return models.NewAPIError(models.ErrCodeNotFound, models.MsgProductNotFound, err)
	default:
		return models.NewAPIError(models.ErrCodeInternal, "internal error", err)
	}
}

// respondError writes err as an ErrorResponse with the mapped status.
func respondError(c *gin.Context, err error) {
	apiErr := toAPIError(err)
	if apiErr.Code == models.ErrCodeInternal {
		_ = c.Error(err)
	}
	c.JSON(mapErrorToStatus(apiErr), models.ErrorResponse{
		Success: false,
		Error:   apiErr.ToDetail(),
	})
}

func invalidInput(c *gin.Context, err error) {
	respondError(c, models.NewAPIError(models.ErrCodeInvalidInput, err.Error(), err))
}

// statusClientClosedRequest reports a scrape that was terminated before it
// could answer.
const statusClientClosedRequest = 499

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.APIError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case models.ErrCodeNotFound, models.ErrCodeCrawlerNotRunning, models.ErrCodeResultNotFound:
		return http.StatusNotFound
	case models.ErrCodeCrawlerRunning:
		return http.StatusConflict
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case models.ErrCodeTerminated:
		return statusClientClosedRequest
	case models.ErrCodeNavigation:
		return http.StatusBadGateway
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
