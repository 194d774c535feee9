package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/wso2/financial-services-consent-mgt/internal/config"
	"github.com/wso2/financial-services-consent-mgt/internal/dao"
	"github.com/wso2/financial-services-consent-mgt/internal/database"
	"github.com/wso2/financial-services-consent-mgt/internal/idempotency"
	"github.com/wso2/financial-services-consent-mgt/internal/router"
	"github.com/wso2/financial-services-consent-mgt/internal/service"
)

// Version information (set by build script)
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	logger.WithFields(logrus.Fields{
		"version":    version,
		"build_date": buildDate,
	}).Info("Starting Consent Management Server...")

	configPath := os.Getenv("CONFIG_PATH")

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	db, err := database.Initialize(&cfg.Database.Consent, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db, logger); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	consentDAO := dao.NewConsentDAO(db)
	attributeDAO := dao.NewConsentAttributeDAO(db)
	authDAO := dao.NewAuthResourceDAO(db)
	mappingDAO := dao.NewConsentMappingDAO(db)
	fileDAO := dao.NewConsentFileDAO(db)
	statusAuditDAO := dao.NewStatusAuditDAO(db)
	historyDAO := dao.NewConsentHistoryDAO(db)

	store := service.NewConsentStore(consentDAO, attributeDAO, authDAO, mappingDAO, fileDAO)
	recorder := service.NewAuditRecorder(statusAuditDAO, historyDAO, cfg.AmendmentHistory, logger)
	validator := idempotency.NewValidator(store, idempotency.Config{
		Enabled:             cfg.Idempotency.Enabled,
		AllowedWindow:       cfg.Idempotency.AllowedWindow(),
		HeaderName:          cfg.Idempotency.HeaderName,
		AllowedConsentTypes: cfg.Idempotency.AllowedConsentTypes,
	}, logger)

	consentService := service.NewConsentService(
		consentDAO,
		attributeDAO,
		authDAO,
		mappingDAO,
		fileDAO,
		historyDAO,
		store,
		recorder,
		validator,
		db,
		logger,
	)

	logger.Info("Services initialized successfully")

	expiryCtx, stopExpiry := context.WithCancel(context.Background())
	defer stopExpiry()
	if cfg.ConsentExpiry.Enabled {
		go runExpirySweeper(expiryCtx, consentService, cfg.ConsentExpiry.Interval, logger)
	}

	healthCheck := func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	}

	ginRouter := router.Setup(consentService, logger, healthCheck)

	serverAddr := cfg.Server.GetServerAddress()
	server := &http.Server{
		Addr:           serverAddr,
		Handler:        ginRouter,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.WithField("addr", serverAddr).Info("Starting HTTP server...")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited gracefully")
}

// runExpirySweeper periodically moves overdue consents into expired across
// all organizations until ctx is cancelled.
func runExpirySweeper(ctx context.Context, consentService *service.ConsentService, interval time.Duration, logger *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.WithField("interval", interval.String()).Info("Consent expiry sweeper started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := consentService.ExpireOverdueConsents(ctx, "")
			if err != nil {
				logger.WithError(err).Error("Consent expiry sweep failed")
			}
			if count > 0 {
				logger.WithField("count", count).Info("Expired overdue consents")
			}
		}
	}
}
