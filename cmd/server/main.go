// Package main is the entry point for the Study Viewer API server.
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

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/study-viewer/internal/config"
	"github.com/Shimizu-Technology/study-viewer/internal/handlers"
	"github.com/Shimizu-Technology/study-viewer/internal/middleware"
	"github.com/Shimizu-Technology/study-viewer/internal/router"
	"github.com/Shimizu-Technology/study-viewer/internal/services/render"
	"github.com/Shimizu-Technology/study-viewer/internal/services/tutor"
	"github.com/Shimizu-Technology/study-viewer/internal/services/viewer"
	"github.com/Shimizu-Technology/study-viewer/internal/services/webhook"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("🚀 Study Viewer API %s starting...", Version)

	// Step 1: Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	log.Printf("📋 Config loaded: port=%s, max_viewers=%d, gin_mode=%s", cfg.Port, cfg.MaxViewers, cfg.GinMode)
	if cfg.ViewerConfigPath != "" {
		log.Printf("🔧 Viewer tuning from %s", cfg.ViewerConfigPath)
	}

	gin.SetMode(cfg.GinMode)

	// Step 2: Create Services
	renderer, err := render.NewRenderer()
	if err != nil {
		log.Fatalf("❌ Failed to initialize renderer: %v", err)
	}
	renderer.LimitConcurrency(cfg.RenderConcurrency)
	log.Printf("✅ Renderer ready (%d concurrent rasterizations)", cfg.RenderConcurrency)

	tutorService := tutor.New(cfg.OpenRouterAPIKey, cfg.OpenRouterModel, cfg.OpenRouterBaseURL)
	if tutorService.IsConfigured() {
		log.Printf("✅ AI actions enabled (model: %s)", tutorService.Model())
	} else {
		log.Println("⚠️  AI actions disabled (set OPENROUTER_API_KEY to enable)")
	}

	// Host event notifications
	hostEvents := webhook.New(cfg.HostWebhookURL, cfg.HostWebhookSecret)
	if hostEvents.IsConfigured() {
		log.Println("✅ Host events will be posted to HOST_WEBHOOK_URL")
	}

	// Step 3: Create the Viewer Registry
	registry := viewer.NewRegistry(cfg.MaxViewers, cfg.ViewerIdleTTL)
	log.Printf("✅ Viewer registry ready (idle viewers closed after %s)", cfg.ViewerIdleTTL)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	defer rateLimiter.Stop()

	// Step 4: Setup HTTP Router
	h := handlers.NewHandler(registry, renderer, tutorService, hostEvents, cfg)
	h.Version = Version
	r := router.Setup(h, rateLimiter, cfg.AllowedOrigins)

	// Step 5: Start the HTTP Server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  60 * time.Second, // uploads
		WriteTimeout: 150 * time.Second, // AI replies can be slow
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Server listening on http://localhost:%s", cfg.Port)
		log.Printf("📖 Health check: http://localhost:%s/api/v1/health", cfg.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	// Step 6: Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("🛑 Received signal %v, shutting down gracefully...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	// Close every viewer first so their close events are sent, then
	// let pending deliveries finish.
	registry.Shutdown()
	log.Println("⏳ Viewers closed")
	hostEvents.Shutdown()

	log.Println("👋 Server stopped. Goodbye!")
}
