// selection.go handles text selection and the floating action menu.
//
// POST   /api/v1/viewers/:id/selection - Pointer-up with the captured selection
// GET    /api/v1/viewers/:id/selection - The open selection, if any
// DELETE /api/v1/viewers/:id/selection - Click outside the menu
// POST   /api/v1/viewers/:id/actions   - Run a menu action on the selection
// POST   /api/v1/viewers/:id/ask       - Run an action on the whole document
package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/study-viewer/internal/models"
	"github.com/Shimizu-Technology/study-viewer/internal/services/selection"
	"github.com/Shimizu-Technology/study-viewer/internal/services/viewer"
)

// Select records a pointer-up. An empty selection leaves any open menu
// as it was.
// POST /api/v1/viewers/:id/selection
func (h *Handler) Select(c *gin.Context) {
	v, ok := h.lookup(c)
	if !ok {
		return
	}

	var req models.SelectionRequest
	if !bindJSON(c, &req) {
		return
	}

	native := &selection.Snapshot{Text: req.Text, Rect: req.Bounds}
	if _, err := v.Select(c.Request.Context(), native, req.Surface); err != nil {
		if errors.Is(err, viewer.ErrNotReady) {
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "not_rendered",
				Message: "Select text after the page has rendered",
				Code:    http.StatusConflict,
			})
			return
		}
		// Only context cancellation gets here: the client went away.
		c.Status(http.StatusRequestTimeout)
		return
	}

	c.JSON(http.StatusOK, selectionResponse(v))
}

// GetSelection returns the open selection.
// GET /api/v1/viewers/:id/selection
func (h *Handler) GetSelection(c *gin.Context) {
	v, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, selectionResponse(v))
}

// ClearSelection dismisses the menu without running an action.
// DELETE /api/v1/viewers/:id/selection
func (h *Handler) ClearSelection(c *gin.Context) {
	v, ok := h.lookup(c)
	if !ok {
		return
	}
	v.PointerDown(false)
	c.JSON(http.StatusOK, selectionResponse(v))
}

// RunAction runs a menu action on the open selection. The selection is
// consumed whether or not the AI request succeeds.
// POST /api/v1/viewers/:id/actions
func (h *Handler) RunAction(c *gin.Context) {
	h.runAction(c, false)
}

// Ask runs an action with nothing selected, using the whole-document
// prompts.
// POST /api/v1/viewers/:id/ask
func (h *Handler) Ask(c *gin.Context) {
	h.runAction(c, true)
}

func (h *Handler) runAction(c *gin.Context, wholeDocument bool) {
	v, ok := h.lookup(c)
	if !ok {
		return
	}

	var req models.ActionRequest
	if !bindJSON(c, &req) {
		return
	}

	id := selection.ActionID(req.Action)
	if !id.Valid() || (wholeDocument && id == selection.ActionCopy) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_action",
			Message: "Supported actions: chat, explain, quiz, flashcards, copy (copy needs a selection)",
			Code:    http.StatusBadRequest,
		})
		return
	}

	var (
		out *selection.Outcome
		err error
	)
	if wholeDocument {
		out, err = v.Ask(c.Request.Context(), id)
	} else {
		out, err = v.Act(c.Request.Context(), id)
	}

	if errors.Is(err, selection.ErrNoSelection) {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "no_selection",
			Message: "Select some text before choosing an action",
			Code:    http.StatusConflict,
		})
		return
	}
	if err != nil {
		log.Printf("⚠️  Viewer %s action %s failed: %v", v.ID, id, err)
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "ai_request_failed",
			Message: err.Error(),
			Code:    http.StatusBadGateway,
		})
		return
	}

	resp := models.ActionResponse{
		Action:     string(out.Request.Action),
		Prompt:     out.Request.Text,
		Reply:      out.Reply,
		Dispatched: out.Dispatched,
		Copied:     out.Copied,
	}
	if id == selection.ActionChat {
		resp.ChatSeed = v.ChatSeed()
	}
	c.JSON(http.StatusOK, resp)
}

func selectionResponse(v *viewer.Viewer) models.SelectionResponse {
	sel, open := v.Selection()
	if !open {
		return models.SelectionResponse{}
	}

	actions := make([]string, 0, len(selection.MenuActions))
	for _, id := range selection.MenuActions {
		actions = append(actions, string(id))
	}
	return models.SelectionResponse{
		Open:    true,
		Text:    sel.Text,
		Anchor:  &sel.Anchor,
		Bounds:  &sel.Bounds,
		Actions: actions,
	}
}
