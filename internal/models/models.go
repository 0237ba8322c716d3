// Package models defines the request and response bodies of the HTTP API.
//
// Go Pattern: Models are plain structs with JSON tags for serialization.
// The `binding` tags are read by gin's validator when a handler calls
// ShouldBindJSON, so malformed requests are rejected before any viewer
// state is touched.
package models

import (
	"time"

	"github.com/Shimizu-Technology/study-viewer/internal/services/selection"
	"github.com/Shimizu-Technology/study-viewer/internal/services/textlayer"
	"github.com/Shimizu-Technology/study-viewer/internal/services/viewer"
)

// ViewerResponse describes one open viewer.
type ViewerResponse struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	CreatedAt time.Time    `json:"created_at"`
	State     viewer.State `json:"state"`
	Info      string       `json:"info,omitempty"`      // extraction info line for the shown page
	ChatSeed  string       `json:"chat_seed,omitempty"` // text last handed to the chat panel
}

// PageRequest moves a viewer to a page (1-based). Pointers let 0 through
// the required check; it is then a no-op like any out-of-range page.
type PageRequest struct {
	Page *int `json:"page" binding:"required"`
}

// ScaleRequest sets a zoom factor; out-of-range values are clamped.
type ScaleRequest struct {
	Scale *float64 `json:"scale" binding:"required"`
}

// ZoomRequest steps the zoom factor.
type ZoomRequest struct {
	Direction string `json:"direction" binding:"required,oneof=in out"`
}

// KeyRequest forwards a key press (ArrowLeft / ArrowRight).
type KeyRequest struct {
	Key string `json:"key" binding:"required"`
}

// NavigationResponse reports whether a navigation request changed anything.
type NavigationResponse struct {
	Changed bool         `json:"changed"`
	State   viewer.State `json:"state"`
}

// SelectionRequest is a pointer-up carrying the selection captured by the
// presentation layer. Bounds and Surface are in client pixels.
type SelectionRequest struct {
	Text    string          `json:"text"`
	Bounds  *selection.Rect `json:"bounds,omitempty"`
	Surface selection.Rect  `json:"surface"`
}

// SelectionResponse describes the open selection menu, if any.
type SelectionResponse struct {
	Open    bool             `json:"open"`
	Text    string           `json:"text,omitempty"`
	Anchor  *selection.Point `json:"anchor,omitempty"`
	Bounds  *selection.Rect  `json:"bounds,omitempty"`
	Actions []string         `json:"actions,omitempty"`
}

// ActionRequest picks an action from the selection menu, or for the whole
// document when sent to /ask.
type ActionRequest struct {
	Action string `json:"action" binding:"required"`
}

// ActionResponse is what running an action produced.
type ActionResponse struct {
	Action     string `json:"action"`
	Prompt     string `json:"prompt"`
	Reply      string `json:"reply,omitempty"`
	Dispatched bool   `json:"dispatched"`
	Copied     bool   `json:"copied"`
	ChatSeed   string `json:"chat_seed,omitempty"`
}

// TextLayerResponse is the selectable overlay for the committed frame.
type TextLayerResponse struct {
	Page    int             `json:"page"`
	Scale   float64         `json:"scale"`
	Width   int             `json:"width"`
	Height  int             `json:"height"`
	Token   uint64          `json:"token"`
	Summary string          `json:"summary"`
	Layer   textlayer.Layer `json:"layer"`
}

// ErrorResponse is a standard error format for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Viewers      int    `json:"viewers"`
	AIConfigured bool   `json:"ai_configured"`
}
