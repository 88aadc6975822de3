// Package server exposes meetings over a JSON HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/zulandar/minutes/internal/config"
	"github.com/zulandar/minutes/internal/intake"
	"github.com/zulandar/minutes/internal/logger"
	"github.com/zulandar/minutes/internal/metrics"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	DB             *gorm.DB
	Intake         *intake.Service
	Port           int
	MaxUploadBytes int64
	Log            *logrus.Entry
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(opts StartOpts) *gin.Engine {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = config.MaxUploadBytes
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), metrics.GinMiddleware(), requestLogger(logger.Component(opts.Log, "http")))
	registerRoutes(router, opts)
	return router
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("server: db is required")
	}
	if opts.Intake == nil {
		return fmt.Errorf("server: intake is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	log := logger.Component(opts.Log, "server")

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown")
		}
	}()

	log.WithField("port", opts.Port).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func requestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request")
	}
}
