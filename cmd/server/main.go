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

	"docsync/internal/api"
	"docsync/internal/collab"
	"docsync/internal/config"
	"docsync/internal/db"
	"docsync/internal/repository"
	"docsync/internal/telemetry"
)

func main() {
	log.Println("🚀 Starting docsync collaboration server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Tracing first so every operation gets a span; failure is non-fatal.
	jaegerShutdown, err := telemetry.InitJaeger("docsync", cfg.JaegerEndpoint)
	if err != nil {
		log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	// Optional role store. Without it, join-time role checks are skipped and
	// access enforcement lives entirely upstream.
	var roles collab.RoleResolver
	if cfg.RoleStoreEnabled() {
		database, err := db.NewGorm(cfg)
		if err != nil {
			log.Fatalf("❌ Failed to connect to role store: %v", err)
		}
		defer database.Close()
		roles = repository.NewRoleRepository(database.DB)
	} else {
		log.Println("  Role store not configured, join-time role checks disabled")
	}

	hub := collab.NewHub(collab.Config{
		CursorTimeout: cfg.CursorTimeout,
		SweepInterval: cfg.SweepInterval,
		Roles:         roles,
	})
	hub.Start()

	wsHandler := collab.NewWebSocketHandler(hub, cfg.SendBuffer)
	handler := api.NewHandler(hub, wsHandler)
	router := api.SetupRoutes(handler)

	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Collaboration server listening on http://%s", addr)
		log.Printf("   WS     /ws                       - presence connection")
		log.Printf("   GET    /api/health               - liveness")
		log.Printf("   GET    /api/rooms                - occupied rooms")
		log.Printf("   GET    /api/rooms/{id}/presence  - room presence snapshot")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	hub.Shutdown()

	log.Println("✓ Server shutdown complete")
}
