package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricewatch/models"
)

// abort stops the chain with a structured error body.
func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Success: false,
		Error:   &models.ErrorDetail{Code: code, Message: message},
	})
}
