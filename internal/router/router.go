// Package router sets up all HTTP routes for the API.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/study-viewer/internal/handlers"
	"github.com/Shimizu-Technology/study-viewer/internal/middleware"
)

// Setup creates and configures the Gin router with all routes.
func Setup(h *handlers.Handler, rateLimiter *middleware.RateLimiter, allowedOrigins []string) *gin.Engine {
	r := gin.Default()
	r.Use(middleware.CORS(allowedOrigins))

	// --- Public Routes ---
	r.GET("/api/v1/health", h.HealthCheck)

	// API Documentation
	r.GET("/api/docs", h.ServeSwaggerUI)
	r.GET("/api/docs/openapi.yaml", h.ServeOpenAPISpec)

	// --- Viewer Routes (rate limited per client) ---
	api := r.Group("/api/v1")
	api.Use(rateLimiter.RateLimit())
	{
		// Lifecycle
		api.POST("/viewers", h.CreateViewer)
		api.GET("/viewers/:id", h.GetViewer)
		api.DELETE("/viewers/:id", h.CloseViewer)

		// Navigation and zoom
		api.PUT("/viewers/:id/page", h.SetPage)
		api.PUT("/viewers/:id/scale", h.SetScale)
		api.POST("/viewers/:id/zoom", h.Zoom)
		api.POST("/viewers/:id/keys", h.PressKey)

		// Rendered output
		api.GET("/viewers/:id/surface.png", h.Surface)
		api.GET("/viewers/:id/text-layer", h.TextLayer)
		api.GET("/viewers/:id/export", h.ExportText)

		// Selection menu and AI actions
		api.POST("/viewers/:id/selection", h.Select)
		api.GET("/viewers/:id/selection", h.GetSelection)
		api.DELETE("/viewers/:id/selection", h.ClearSelection)
		api.POST("/viewers/:id/actions", h.RunAction)
		api.POST("/viewers/:id/ask", h.Ask)
	}

	return r
}
