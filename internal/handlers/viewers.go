// viewers.go handles the lifecycle of open PDF viewers.
//
// POST   /api/v1/viewers     - Upload a PDF and open a viewer on page 1
// GET    /api/v1/viewers/:id - Current viewer state
// DELETE /api/v1/viewers/:id - Close the viewer and release the document
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/study-viewer/internal/models"
	pdfservice "github.com/Shimizu-Technology/study-viewer/internal/services/pdf"
	"github.com/Shimizu-Technology/study-viewer/internal/services/selection"
	"github.com/Shimizu-Technology/study-viewer/internal/services/viewer"
	"github.com/Shimizu-Technology/study-viewer/internal/services/webhook"
)

// CreateViewer handles PDF upload and opens a viewer on it.
// POST /api/v1/viewers
//
// Accepts multipart file upload with field name "file".
// Only .pdf files are accepted. The first page is rendered before responding
// (bounded by RENDER_WAIT).
func (h *Handler) CreateViewer(c *gin.Context) {
	// Limit request body size
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)

	// Get the uploaded file
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: fmt.Sprintf("No PDF file provided. Upload a file with the field name 'file'. Max size: %dMB.", h.MaxUploadBytes>>20),
			Code:    http.StatusBadRequest,
		})
		return
	}
	defer file.Close()

	// Validate file extension
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".pdf" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_file_type",
			Message: fmt.Sprintf("Unsupported file format '%s'. Only .pdf files are accepted.", ext),
			Code:    http.StatusBadRequest,
		})
		return
	}

	// Go Pattern: io.ReadAll reads the entire reader into a byte slice.
	// The pdf library needs random access, so the document lives in memory
	// for as long as the viewer is open.
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "read_error",
			Message: "Failed to read uploaded file",
			Code:    http.StatusBadRequest,
		})
		return
	}

	// Validate PDF magic bytes
	if !pdfservice.ValidatePDF(data) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_pdf",
			Message: "The uploaded file does not appear to be a valid PDF",
			Code:    http.StatusBadRequest,
		})
		return
	}

	v := h.newViewer(header.Filename)
	if err := h.Viewers.Add(v); err != nil {
		v.Close()
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Error:   "too_many_viewers",
			Message: "Too many documents are open. Close one and try again.",
			Code:    http.StatusServiceUnavailable,
		})
		return
	}

	if err := v.Load(c.Request.Context(), data); err != nil {
		_ = h.Viewers.Remove(v.ID)
		log.Printf("❌ PDF load failed for %s: %v", header.Filename, err)
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Error:   "load_failed",
			Message: fmt.Sprintf("Failed to open PDF: %v", err),
			Code:    http.StatusUnprocessableEntity,
		})
		return
	}

	h.settle(c.Request.Context(), v)
	log.Printf("📄 Viewer %s opened %s (%d pages)", v.ID, header.Filename, v.State().TotalPages)

	c.JSON(http.StatusCreated, viewerResponse(v))
}

// GetViewer returns a viewer's state.
// GET /api/v1/viewers/:id
func (h *Handler) GetViewer(c *gin.Context) {
	v, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewerResponse(v))
}

// CloseViewer dismisses a viewer.
// DELETE /api/v1/viewers/:id
func (h *Handler) CloseViewer(c *gin.Context) {
	if err := h.Viewers.Remove(c.Param("id")); err != nil {
		notFound(c)
		return
	}
	c.Status(http.StatusNoContent)
}

// newViewer wires a viewer to the tutor, and its host events to the log
// and the host webhook.
func (h *Handler) newViewer(name string) *viewer.Viewer {
	var opts []selection.Option
	if h.Tutor != nil {
		opts = append(opts, selection.WithDispatcher(h.Tutor))
	}

	var id string
	host := viewer.Host{
		OnTextSelect: func(text string) {
			log.Printf("💬 Viewer %s sent %d characters to chat", id, len(text))
			h.Events.Notify(webhook.EventTextSelected, webhook.TextSelected{ViewerID: id, Text: text})
		},
		OnClose: func() {
			log.Printf("👋 Viewer %s closed", id)
			h.Events.Notify(webhook.EventClosed, webhook.Closed{ViewerID: id, Name: name})
		},
	}

	v := viewer.New(name, h.ViewerConfig, h.Renderer, host, opts...)
	id = v.ID
	return v
}

// lookup resolves :id, writing a 404 when it is unknown.
func (h *Handler) lookup(c *gin.Context) (*viewer.Viewer, bool) {
	v, err := h.Viewers.Get(c.Param("id"))
	if err != nil {
		notFound(c)
		return nil, false
	}
	return v, true
}

// settle waits for the in-flight render so the response reflects it.
// A slow render is not an error; the client just sees Rendering=true.
func (h *Handler) settle(ctx context.Context, v *viewer.Viewer) {
	ctx, cancel := context.WithTimeout(ctx, h.RenderWait)
	defer cancel()
	if err := v.WaitIdle(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Printf("⚠️  Waiting for render of viewer %s: %v", v.ID, err)
	}
}

func viewerResponse(v *viewer.Viewer) models.ViewerResponse {
	state := v.State()
	resp := models.ViewerResponse{
		ID:        v.ID,
		Name:      v.Name,
		CreatedAt: v.CreatedAt,
		State:     state,
		ChatSeed:  v.ChatSeed(),
	}
	if frame := v.Frame(); frame != nil && frame.Page == state.Page {
		resp.Info = frame.Layer.Summary(frame.Page)
	}
	return resp
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   "not_found",
		Message: "Viewer not found",
		Code:    http.StatusNotFound,
	})
}
