package router

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/wso2/financial-services-consent-mgt/internal/handlers"
	"github.com/wso2/financial-services-consent-mgt/internal/middleware"
	"github.com/wso2/financial-services-consent-mgt/internal/service"
)

// Setup configures all API routes
func Setup(consentService *service.ConsentService, logger *logrus.Logger, healthCheck gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestContext())
	router.Use(middleware.RequestLogger(logger))

	router.GET("/health", healthCheck)

	consentHandler := handlers.NewConsentHandler(consentService)

	v1 := router.Group("/api/v1")
	{
		consents := v1.Group("/consents")
		{
			consents.POST("", consentHandler.CreateConsent)
			consents.GET("", consentHandler.SearchConsents)
			consents.GET("/:consentId", consentHandler.GetConsent)
			consents.PUT("/:consentId", consentHandler.AmendConsent)
			consents.DELETE("/:consentId", consentHandler.RevokeConsent)

			consents.PUT("/:consentId/status", consentHandler.UpdateConsentStatus)
			consents.GET("/:consentId/status-audit", consentHandler.GetStatusAudit)

			consents.GET("/:consentId/history", consentHandler.GetAmendmentHistory)
			consents.GET("/:consentId/history/state", consentHandler.GetConsentStateAt)

			consents.POST("/:consentId/file", consentHandler.UploadConsentFile)
			consents.GET("/:consentId/file", consentHandler.GetConsentFile)
		}
	}

	return router
}
