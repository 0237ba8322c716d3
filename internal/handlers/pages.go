// pages.go handles navigation and the rendered output of a viewer.
//
// PUT  /api/v1/viewers/:id/page        - Go to a page
// PUT  /api/v1/viewers/:id/scale       - Set the zoom factor
// POST /api/v1/viewers/:id/zoom        - Step the zoom in or out
// POST /api/v1/viewers/:id/keys        - Forward a key press
// GET  /api/v1/viewers/:id/surface.png - The committed page raster
// GET  /api/v1/viewers/:id/text-layer  - The selectable overlay for it
package handlers

import (
	"bytes"
	"image/png"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/study-viewer/internal/models"
	"github.com/Shimizu-Technology/study-viewer/internal/services/viewer"
)

// Out-of-range pages, unknown keys and boundary presses are no-ops, so
// navigation endpoints answer 200 with Changed=false instead of an error.

// SetPage moves to a page.
// PUT /api/v1/viewers/:id/page
func (h *Handler) SetPage(c *gin.Context) {
	var req models.PageRequest
	if !bindJSON(c, &req) {
		return
	}
	h.navigate(c, func(v *viewer.Viewer) bool { return v.GoToPage(*req.Page) })
}

// SetScale sets the zoom factor, clamped to the supported range.
// PUT /api/v1/viewers/:id/scale
func (h *Handler) SetScale(c *gin.Context) {
	var req models.ScaleRequest
	if !bindJSON(c, &req) {
		return
	}
	h.navigate(c, func(v *viewer.Viewer) bool {
		before := v.State().Scale
		return v.SetScale(*req.Scale) != before
	})
}

// Zoom steps the zoom factor.
// POST /api/v1/viewers/:id/zoom
func (h *Handler) Zoom(c *gin.Context) {
	var req models.ZoomRequest
	if !bindJSON(c, &req) {
		return
	}
	h.navigate(c, func(v *viewer.Viewer) bool {
		before := v.State().Scale
		if req.Direction == "in" {
			return v.ZoomIn() != before
		}
		return v.ZoomOut() != before
	})
}

// PressKey forwards a key press.
// POST /api/v1/viewers/:id/keys
func (h *Handler) PressKey(c *gin.Context) {
	var req models.KeyRequest
	if !bindJSON(c, &req) {
		return
	}
	h.navigate(c, func(v *viewer.Viewer) bool { return v.HandleKey(req.Key) })
}

// Surface returns the committed page raster as a PNG.
// GET /api/v1/viewers/:id/surface.png
func (h *Handler) Surface(c *gin.Context) {
	v, ok := h.lookup(c)
	if !ok {
		return
	}
	frame, ok := committedFrame(c, v)
	if !ok {
		return
	}

	// Go Pattern: Encode into a buffer first so an encoder error can still
	// produce a JSON error instead of a half-written image.
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, frame.Image); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "encode_error",
			Message: "Failed to encode page image",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.Header("X-Page", strconv.Itoa(frame.Page))
	c.Header("X-Scale", strconv.FormatFloat(frame.Scale, 'f', -1, 64))
	c.Header("X-Frame-Token", strconv.FormatUint(frame.Token, 10))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// TextLayer returns the selectable regions aligned to the committed raster.
// GET /api/v1/viewers/:id/text-layer
func (h *Handler) TextLayer(c *gin.Context) {
	v, ok := h.lookup(c)
	if !ok {
		return
	}
	frame, ok := committedFrame(c, v)
	if !ok {
		return
	}

	w, ht := frame.Viewport.PixelSize()
	c.JSON(http.StatusOK, models.TextLayerResponse{
		Page:    frame.Page,
		Scale:   frame.Scale,
		Width:   w,
		Height:  ht,
		Token:   frame.Token,
		Summary: frame.Layer.Summary(frame.Page),
		Layer:   frame.Layer,
	})
}

// navigate applies fn, waits briefly for the render it started, and
// reports the resulting state.
func (h *Handler) navigate(c *gin.Context, fn func(v *viewer.Viewer) bool) {
	v, ok := h.lookup(c)
	if !ok {
		return
	}

	changed := fn(v)
	if changed {
		h.settle(c.Request.Context(), v)
	}

	c.JSON(http.StatusOK, models.NavigationResponse{
		Changed: changed,
		State:   v.State(),
	})
}

// committedFrame returns the frame to serve, or writes the reason there is
// none: a fatal load error, or a page that has not rendered yet.
func committedFrame(c *gin.Context, v *viewer.Viewer) (*viewer.Frame, bool) {
	if frame := v.Frame(); frame != nil {
		return frame, true
	}

	state := v.State()
	if state.Status == viewer.StatusFailed {
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Error:   "load_failed",
			Message: state.Error,
			Code:    http.StatusUnprocessableEntity,
		})
		return nil, false
	}

	msg := "The page has not been rendered yet"
	if state.PageError != "" {
		msg = "The page failed to render: " + state.PageError
	}
	c.JSON(http.StatusConflict, models.ErrorResponse{
		Error:   "not_rendered",
		Message: msg,
		Code:    http.StatusConflict,
	})
	return nil, false
}

// bindJSON binds the request body, writing a 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return false
	}
	return true
}
