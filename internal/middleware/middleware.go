// Package middleware holds the gin middleware shared by all routes.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/wso2/financial-services-consent-mgt/internal/utils"
	pkgutils "github.com/wso2/financial-services-consent-mgt/pkg/utils"
)

// RequestContext extracts the org-id and client-id headers into the gin
// context so handlers do not read headers directly.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if orgID := c.GetHeader("org-id"); orgID != "" {
			utils.SetContextValue(c, "orgID", orgID)
		}
		if clientID := c.GetHeader("client-id"); clientID != "" {
			utils.SetContextValue(c, "clientID", clientID)
		}
		c.Next()
	}
}

// CorrelationID assigns each request a correlation ID, honouring one supplied
// by the caller, and echoes it on the response.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("x-correlation-id")
		if correlationID == "" {
			correlationID = pkgutils.GenerateID()
		}
		utils.SetContextValue(c, "correlationID", correlationID)
		c.Header("x-correlation-id", correlationID)
		c.Next()
	}
}

// RequestLogger logs one structured line per request. Header-derived values
// are sanitized before logging.
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"status":         c.Writer.Status(),
			"duration_ms":    time.Since(start).Milliseconds(),
			"correlation_id": utils.GetCorrelationIDFromContext(c),
			"client_id":      pkgutils.SanitizeLogValue(utils.GetClientIDFromContext(c)),
		}).Info("Request completed")
	}
}
