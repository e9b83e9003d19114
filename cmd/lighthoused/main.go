// Command lighthoused is the reference dashboard server: REST ingest,
// trace storage and the realtime fanout channel.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/config"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/server/api"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/server/auth"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/server/hub"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/server/store"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting lighthoused...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabasePath)
	log.Printf("Auth required: %v", cfg.RequireAuth)

	db, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	connectionHub := hub.NewHub()
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go connectionHub.Run(hubCtx)

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience,
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	h := api.NewHandler(db, connectionHub, issuer, cfg)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h.RegisterRoutes(e)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %d", cfg.HTTPPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down lighthoused...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}
	stopHub()

	log.Println("Lighthoused stopped")
}
