package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arwahdevops/shipmigrate/internal/cleanup"
	"github.com/arwahdevops/shipmigrate/internal/config"
	"github.com/arwahdevops/shipmigrate/internal/credential"
	"github.com/arwahdevops/shipmigrate/internal/engine"
	"github.com/arwahdevops/shipmigrate/internal/integrity"
	"github.com/arwahdevops/shipmigrate/internal/metrics"
	"github.com/arwahdevops/shipmigrate/internal/migration"
	"github.com/arwahdevops/shipmigrate/internal/report"
	"github.com/arwahdevops/shipmigrate/internal/validation"
)

// Operations adalah bagian engine yang diekspos lewat HTTP.
type Operations interface {
	Migrate(ctx context.Context, req engine.MigrateRequest) (*migration.Log, error)
	VerifyIntegrity(ctx context.Context) (*integrity.Report, error)
	ValidateData(ctx context.Context) (*validation.Report, error)
	CleanupData(ctx context.Context) (*cleanup.Report, error)
	GenerateQualityReport(ctx context.Context) (*report.QualityReport, []string, error)
	UpdateUserCredentials(ctx context.Context) (*credential.UpdateResult, error)
	CreateDefaultUsers(ctx context.Context) (*credential.DefaultsResult, error)
	SetupPermissions(ctx context.Context) (*credential.PermissionsResult, error)
	ValidateUserCredentials(ctx context.Context) (*credential.ValidationResult, error)
	CompleteCredentialUpdate(ctx context.Context, req engine.MigrateRequest) *credential.CompleteResult
	Ping(ctx context.Context) error
}

// NewRouter memasang health, metrics, pprof (opsional), dan API /api/v1.
func NewRouter(cfg *config.Config, ops Operations, metricsStore *metrics.Store, logger *zap.Logger) *gin.Engine {
	log := logger.Named("http-server")
	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSAllowedOrigins) == 0 || (len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	}
	corsConfig.AddAllowHeaders("Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	r.Use(cors.New(corsConfig))

	// Liveness: proses hidup
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	// Readiness: database tujuan bisa di-ping
	r.GET("/readyz", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := ops.Ping(pingCtx); err != nil {
			log.Warn("Readiness check failed", zap.Error(err))
			c.String(http.StatusServiceUnavailable, fmt.Sprintf("Not Ready: destination_db_status=Error (%v)", err))
			return
		}
		c.String(http.StatusOK, "Ready")
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metricsStore.Registry, promhttp.HandlerOpts{})))

	if cfg.EnablePprof {
		log.Info("Enabling pprof endpoints on /debug/pprof/")
		pp := r.Group("/debug/pprof")
		pp.GET("/", gin.WrapF(pprof.Index))
		pp.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pp.GET("/profile", gin.WrapF(pprof.Profile))
		pp.GET("/symbol", gin.WrapF(pprof.Symbol))
		pp.GET("/trace", gin.WrapF(pprof.Trace))
		pp.GET("/:profile", func(c *gin.Context) {
			pprof.Handler(c.Param("profile")).ServeHTTP(c.Writer, c.Request)
		})
	}

	h := &handlers{ops: ops, logger: log}
	api := r.Group("/api/v1")
	api.POST("/migrate", h.migrate)
	api.GET("/integrity", h.integrity)
	api.GET("/validation", h.validation)
	api.POST("/cleanup", h.cleanup)
	api.POST("/reports/quality", h.qualityReport)
	creds := api.Group("/credentials")
	creds.POST("/update", h.updateCredentials)
	creds.POST("/defaults", h.defaultUsers)
	creds.POST("/permissions", h.permissions)
	creds.POST("/complete", h.completeCredentials)
	creds.GET("/validation", h.validateCredentials)

	return r
}

// Run menjalankan HTTP server sampai ctx dibatalkan, lalu shutdown dengan timeout.
func Run(ctx context.Context, cfg *config.Config, ops Operations, metricsStore *metrics.Store, logger *zap.Logger) error {
	log := logger.Named("http-server")
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewRouter(cfg, ops, metricsStore, logger),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Minute, // migrate dan report bisa lama
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			log.Error("HTTP server ListenAndServe error", zap.Error(err))
			return fmt.Errorf("http server on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server due to context cancellation...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server graceful shutdown failed", zap.Error(err))
		return err
	}
	log.Info("HTTP server gracefully stopped")
	return nil
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			log.Error(c.Errors.String(), fields...)
			return
		}
		log.Debug("HTTP request", fields...)
	}
}
