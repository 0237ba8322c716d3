// docs.go serves the API's OpenAPI document and a Swagger UI page over it.
package handlers

import (
	_ "embed"
	"fmt"
	"html/template"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.yaml.in/yaml/v2"

	"github.com/Shimizu-Technology/study-viewer/internal/models"
)

//go:embed openapi.yaml
var openAPISpec []byte

const docsTitle = "Study Viewer API"

// ServeOpenAPISpec returns the OpenAPI document stamped with the running
// build's version and the address the client used to reach this server.
// GET /api/docs/openapi.yaml
func (h *Handler) ServeOpenAPISpec(c *gin.Context) {
	doc, err := stampOpenAPI(openAPISpec, h.version(), baseURL(c.Request))
	if err != nil {
		log.Printf("❌ Failed to render OpenAPI document: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "docs_unavailable",
			Message: "The API document could not be rendered",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.Data(http.StatusOK, "application/yaml", doc)
}

// ServeSwaggerUI returns a Swagger UI page (assets from a CDN) pointed at
// ServeOpenAPISpec.
// GET /api/docs
func (h *Handler) ServeSwaggerUI(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	err := swaggerPage.Execute(c.Writer, struct {
		Title, Version, SpecURL string
	}{docsTitle, h.version(), "/api/docs/openapi.yaml"})
	if err != nil {
		log.Printf("⚠️  Failed to write docs page: %v", err)
	}
}

// stampOpenAPI rewrites info.version and the servers list of an OpenAPI
// document, keeping every other key in its original order.
func stampOpenAPI(src []byte, version, server string) ([]byte, error) {
	var doc yaml.MapSlice
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse openapi.yaml: %w", err)
	}

	for i, item := range doc {
		switch item.Key {
		case "info":
			info, _ := item.Value.(yaml.MapSlice)
			doc[i].Value = setKey(info, "version", version)
		case "servers":
			doc[i].Value = []yaml.MapSlice{{{Key: "url", Value: server}}}
		}
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode openapi document: %w", err)
	}
	return out, nil
}

func setKey(m yaml.MapSlice, key string, value interface{}) yaml.MapSlice {
	for i := range m {
		if m[i].Key == key {
			m[i].Value = value
			return m
		}
	}
	return append(m, yaml.MapItem{Key: key, Value: value})
}

// baseURL is the scheme and host the request came in on, honouring a
// TLS-terminating proxy.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

var swaggerPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Title}} {{.Version}}</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
  <style>body { margin: 0; } .swagger-ui .topbar { display: none; }</style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({ url: {{.SpecURL}}, dom_id: '#swagger-ui', deepLinking: true });
  </script>
</body>
</html>`))
