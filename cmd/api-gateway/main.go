package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/pdfshrink/cmd/api-gateway/middleware"
	"github.com/lgulliver/pdfshrink/cmd/api-gateway/routes"
	apitypes "github.com/lgulliver/pdfshrink/cmd/api-gateway/types"
	"github.com/lgulliver/pdfshrink/internal/common"
	"github.com/lgulliver/pdfshrink/internal/compress"
	"github.com/lgulliver/pdfshrink/internal/metrics"
	"github.com/lgulliver/pdfshrink/internal/service"
	"github.com/lgulliver/pdfshrink/internal/storage"
	"github.com/lgulliver/pdfshrink/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const serviceName = "pdfshrink-api-gateway"

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	cfg.Logging.SetupLogging()

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().Msg("starting pdfshrink API gateway")

	// Initialize storage
	storageFactory := storage.NewStorageFactory(&cfg.Storage)
	store, err := storageFactory.CreateStorage()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}

	engine := compress.NewGhostscriptEngine(cfg.Compression.Binary)
	checkCtx, cancelCheck := context.WithTimeout(context.Background(), 10*time.Second)
	if err := engine.Available(checkCtx); err != nil {
		log.Fatal().Err(err).Str("binary", cfg.Compression.Binary).Msg("ghostscript is not available")
	}
	cancelCheck()

	// Initialize database
	db, err := common.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	var recorder metrics.Recorder = metrics.Noop{}
	if cfg.Metrics.Enabled {
		recorder = metrics.NewProm(cfg.Metrics.Namespace)
	}

	svc := service.NewService(store, engine, cfg, recorder).WithJobs(db)

	if cfg.Redis.Enabled {
		cache, err := common.NewCache(&cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer cache.Close()
		svc.WithCache(cache)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweepDone := make(chan struct{})
	if cfg.Retention.Periodic {
		go func() {
			defer close(sweepDone)
			err := svc.Sweeper().Run(ctx, cfg.Retention.Interval, cfg.Retention.DeleteAfter)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("periodic cleanup exited")
			}
		}()
	} else {
		close(sweepDone)
	}

	router := setupRouter(svc, recorder, cfg)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	} else {
		log.Info().Msg("server shutdown complete")
	}
	<-sweepDone
}

// loadConfig reads PDFSHRINK_CONFIG when set, otherwise the environment alone
func loadConfig() (*config.Config, error) {
	if path := os.Getenv("PDFSHRINK_CONFIG"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.LoadFromEnv(), nil
}

func setupRouter(svc routes.PDFServiceInterface, recorder metrics.Recorder, cfg *config.Config) *gin.Engine {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = 32 << 20

	router.Use(middleware.RequestLogger(recorder))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, apitypes.HealthResponse{
			Status:  "healthy",
			Service: serviceName,
			Time:    time.Now().UTC(),
		})
	}
	router.GET("/", health)
	router.GET("/health", health)

	if cfg.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	routes.PDFRoutes(router.Group("/api"), svc, routes.UploadBodyLimit(cfg.Upload.MaxFilesPerRequest, cfg.Upload.MaxFileSize))

	return router
}
