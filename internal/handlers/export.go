// export.go handles document text export in multiple formats.
//
// Supported formats:
//   - txt  - Plain text, pages separated by a blank line
//   - md   - Markdown with a metadata table and a section per page
//   - json - Full JSON with per-page text and counts
//
// Go Pattern: Each export format is its own function. This makes it easy
// to add new formats later - just add a case to the switch and a new
// formatter function. This is the "Strategy pattern" without the ceremony.
package handlers

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/study-viewer/internal/models"
	"github.com/Shimizu-Technology/study-viewer/internal/services/viewer"
)

// documentExport is what every format is rendered from.
type documentExport struct {
	ID       string
	Name     string
	Pages    []string
	Words    int
	Exported time.Time
}

// ExportText exports the document's extracted text in the requested format.
// GET /api/v1/viewers/:id/export?format=txt|md|json
//
// Response headers are set for file download:
//   - Content-Type: appropriate MIME type
//   - Content-Disposition: attachment with filename
func (h *Handler) ExportText(c *gin.Context) {
	format := c.DefaultQuery("format", "txt")

	// Validate format before doing any extraction work
	validFormats := map[string]bool{"txt": true, "md": true, "json": true}
	if !validFormats[format] {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_format",
			Message: "Supported formats: txt, md, json",
			Code:    http.StatusBadRequest,
		})
		return
	}

	v, ok := h.lookup(c)
	if !ok {
		return
	}

	if state := v.State(); state.Status != viewer.StatusReady {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "not_ready",
			Message: "Document is not open (status: " + string(state.Status) + ")",
			Code:    http.StatusConflict,
		})
		return
	}

	doc := documentExport{
		ID:       v.ID,
		Name:     v.Name,
		Pages:    v.PageTexts(),
		Exported: time.Now(),
	}
	for _, text := range doc.Pages {
		doc.Words += len(strings.Fields(text))
	}

	// Go Pattern: We sanitize the name for use in filenames. This prevents
	// issues with special characters in Content-Disposition headers.
	filename := sanitizeFilename(strings.TrimSuffix(v.Name, filepath.Ext(v.Name)))
	if filename == "" {
		filename = v.ID
	}

	switch format {
	case "txt":
		exportTXT(c, doc, filename)
	case "md":
		exportMarkdown(c, doc, filename)
	case "json":
		exportJSON(c, doc, filename)
	}
}

// exportTXT returns the text of every non-empty page.
func exportTXT(c *gin.Context, doc documentExport, filename string) {
	var pages []string
	for _, text := range doc.Pages {
		if text != "" {
			pages = append(pages, text)
		}
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.txt"`, filename))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(strings.Join(pages, "\n\n")))
}

// exportMarkdown returns a metadata table followed by one section per page.
// Pages without text are listed so page numbers stay meaningful.
func exportMarkdown(c *gin.Context, doc documentExport, filename string) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# %s\n\n", doc.Name))
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Pages | %d |\n", len(doc.Pages)))
	sb.WriteString(fmt.Sprintf("| Words | %d |\n", doc.Words))
	sb.WriteString(fmt.Sprintf("| Reading time | %s |\n", readingTime(doc.Words)))
	sb.WriteString(fmt.Sprintf("| Exported | %s |\n", doc.Exported.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString("\n---\n")

	for i, text := range doc.Pages {
		sb.WriteString(fmt.Sprintf("\n## Page %d\n\n", i+1))
		if text == "" {
			sb.WriteString("_(no text)_\n")
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.md"`, filename))
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(sb.String()))
}

// exportJSON returns the full export as JSON.
func exportJSON(c *gin.Context, doc documentExport, filename string) {
	type page struct {
		Number int    `json:"number"`
		Text   string `json:"text"`
		Words  int    `json:"words"`
	}
	pages := make([]page, len(doc.Pages))
	for i, text := range doc.Pages {
		pages[i] = page{Number: i + 1, Text: text, Words: len(strings.Fields(text))}
	}

	exportData := map[string]interface{}{
		"id":           doc.ID,
		"name":         doc.Name,
		"page_count":   len(doc.Pages),
		"pages":        pages,
		"word_count":   doc.Words,
		"reading_time": readingTime(doc.Words),
		"exported_at":  doc.Exported,
	}

	jsonBytes, err := json.MarshalIndent(exportData, "", "  ")
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "export_error",
			Message: "Failed to generate JSON export",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.json"`, filename))
	c.Data(http.StatusOK, "application/json; charset=utf-8", jsonBytes)
}

// --- Helper Functions ---

// readingTime estimates reading time at 200 words per minute.
func readingTime(words int) string {
	return fmt.Sprintf("%d min", int(math.Ceil(float64(words)/200.0)))
}

// sanitizeFilename removes characters that aren't safe for filenames.
// Go Pattern: Keep it simple - replace unsafe characters with hyphens
// and trim the result. We don't need a full filesystem-safe sanitizer
// since this is just for the Content-Disposition header.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-",
		"?", "-", "\"", "-", "<", "-", ">", "-",
		"|", "-", "\n", " ", "\r", "",
	)
	name = replacer.Replace(name)

	for strings.Contains(name, "  ") {
		name = strings.ReplaceAll(name, "  ", " ")
	}
	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}

	name = strings.TrimSpace(name)

	if len(name) > 100 {
		name = name[:100]
	}

	return name
}
