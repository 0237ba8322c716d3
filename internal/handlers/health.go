// Package handlers contains HTTP handler functions for the API.
//
// Go Pattern: Handlers in Gin receive a *gin.Context which provides:
// - Request data (params, query, body, headers)
// - Response methods (JSON, String, Status)
// - Middleware data (c.Get/c.Set)
//
// Unlike Ruby controllers, Go handlers are plain functions - no class inheritance.
// We group related handlers into a struct (Handler) that holds shared dependencies.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/study-viewer/internal/config"
	"github.com/Shimizu-Technology/study-viewer/internal/models"
	"github.com/Shimizu-Technology/study-viewer/internal/services/render"
	"github.com/Shimizu-Technology/study-viewer/internal/services/selection"
	"github.com/Shimizu-Technology/study-viewer/internal/services/textlayer"
	"github.com/Shimizu-Technology/study-viewer/internal/services/tutor"
	"github.com/Shimizu-Technology/study-viewer/internal/services/viewer"
	"github.com/Shimizu-Technology/study-viewer/internal/services/webhook"
)

// Handler holds shared dependencies for all HTTP handlers.
// Go Pattern: Dependency injection via struct fields. Instead of global
// variables or service locators, we pass dependencies explicitly.
// This makes testing easy - just create a Handler with fake dependencies.
type Handler struct {
	Viewers  *viewer.Registry
	Renderer *render.Renderer
	Tutor    selection.Dispatcher // nil when no AI key is configured
	Events   *webhook.Service     // host event delivery; nil or unconfigured drops events

	ViewerConfig   viewer.Config
	MaxUploadBytes int64
	RenderWait     time.Duration
	Version        string // build version reported by health and docs
}

// NewHandler creates a new handler with all dependencies.
func NewHandler(reg *viewer.Registry, renderer *render.Renderer, ts *tutor.Service, events *webhook.Service, cfg *config.Config) *Handler {
	h := &Handler{
		Viewers:        reg,
		Renderer:       renderer,
		Events:         events,
		ViewerConfig:   ViewerConfig(cfg.Viewer),
		MaxUploadBytes: cfg.MaxUploadBytes(),
		RenderWait:     cfg.RenderWait,
	}
	// A nil *tutor.Service stored in the interface would not compare
	// equal to nil, so only assign a configured one.
	if ts != nil && ts.IsConfigured() {
		h.Tutor = ts
	}
	return h
}

// ViewerConfig maps the configured tunables onto the viewer packages.
func ViewerConfig(v config.Viewer) viewer.Config {
	return viewer.Config{
		Scheduler: viewer.Options{
			MinScale:     v.MinScale,
			MaxScale:     v.MaxScale,
			ScaleStep:    v.ScaleStep,
			DefaultScale: v.DefaultScale,
			Text: textlayer.Options{
				AscentRatio:   v.AscentRatio,
				LineThreshold: v.LineThreshold,
			},
		},
		Selection: selection.Config{
			Debounce:   v.Debounce,
			AnchorLift: v.AnchorLift,
		},
	}
}

// HealthCheck returns the API health status.
// GET /api/v1/health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:       "ok",
		Version:      h.version(),
		Viewers:      h.Viewers.Len(),
		AIConfigured: h.Tutor != nil,
	})
}

func (h *Handler) version() string {
	if h.Version == "" {
		return "dev"
	}
	return h.Version
}
