package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"genescore/internal/api"
	"genescore/internal/config"
	"genescore/internal/container"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	gin.SetMode(appConfig.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appContainer, err := container.New(appConfig)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}
	if err := appContainer.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	if err := appContainer.Start(ctx); err != nil {
		log.Fatalf("Failed to start container: %v", err)
	}
	logger := appContainer.Logger

	admin := api.NewAdminHandler(appContainer.SourceService, appContainer.IngestionService,
		appContainer.ScoreService, appContainer.SSEHub, logger.With("admin"))
	read := api.NewReadApp(appContainer.ScoreService, logger.With("read"))

	servers := []*http.Server{
		{Addr: ":" + appConfig.Server.AdminPort, Handler: admin.Router(), ReadHeaderTimeout: 10 * time.Second},
		{Addr: ":" + appConfig.Server.ReadPort, Handler: read.Handler(), ReadHeaderTimeout: 10 * time.Second},
	}

	// Start pprof server for performance profiling
	if appConfig.Profiling.Enabled {
		go func() {
			logger.Info("profiling server starting on :%s", appConfig.Profiling.Port)
			if err := http.ListenAndServe(":"+appConfig.Profiling.Port, nil); err != nil {
				logger.Error("pprof server failed: %v", err)
			}
		}()
	}

	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info("listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server %s failed: %v", srv.Addr, err)
				stop()
			}
		}(srv)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server %s shutdown: %v", srv.Addr, err)
		}
	}
	if err := appContainer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("container shutdown: %v", err)
	}
}
