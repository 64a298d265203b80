// Command main is the entry point for the Oristagram backend server.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/bearkuang/oristagram/docs"
	"github.com/bearkuang/oristagram/internal/bootstrap"
	"github.com/bearkuang/oristagram/internal/config"
	"github.com/bearkuang/oristagram/internal/middleware"
	"github.com/bearkuang/oristagram/internal/observability"
	"github.com/bearkuang/oristagram/internal/server"
)

// @title Oristagram API
// @version 1.0
// @description Photo and short video sharing API with posts, reels, tags, follows, comments and direct messages
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@oristagram.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8375
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	seedPreset := flag.String("seed-preset", "", "Seed an empty development database with this preset")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	flushTraces, err := observability.InitTracing(observability.TracingConfigFrom(cfg, "1.0"))
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	db, redisClient, err := bootstrap.InitRuntime(cfg, bootstrap.Options{SeedPreset: *seedPreset})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	// Create server with dependency injection
	srv, err := server.NewServerWithDeps(cfg, db, redisClient)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		middleware.Logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			middleware.Logger.Error("server shutdown error", slog.String("error", err.Error()))
		}
		if err := flushTraces(ctx); err != nil {
			middleware.Logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
		srv.Close()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
