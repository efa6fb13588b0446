package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/san-kum/shot-tracer/server/models"
)

// abortWithError stops the chain with the same envelope the handlers use.
func abortWithError(c *gin.Context, status int, code, message string, details map[string]any) {
	c.AbortWithStatusJSON(status, models.APIResponse{
		Success: false,
		Error: &models.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}
