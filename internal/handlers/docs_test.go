package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v2"

	"github.com/Shimizu-Technology/study-viewer/internal/handlers"
)

var ginParam = regexp.MustCompile(`:(\w+)`)

// TestOpenAPISpec_CoversRoutes keeps the served document in step with the
// router: every registered API route has a matching path and method.
func TestOpenAPISpec_CoversRoutes(t *testing.T) {
	var doc struct {
		Paths map[string]map[string]interface{} `yaml:"paths"`
	}
	require.NoError(t, yaml.Unmarshal(handlers.OpenAPISpec, &doc))

	s := newTestServer(t, 0)
	routes := s.engine.Routes()
	require.NotEmpty(t, routes)

	for _, route := range routes {
		if !strings.HasPrefix(route.Path, "/api/v1/") {
			continue
		}
		path := ginParam.ReplaceAllString(route.Path, "{$1}")
		ops, ok := doc.Paths[path]
		if assert.True(t, ok, "path %s missing from openapi.yaml", path) {
			assert.Contains(t, ops, strings.ToLower(route.Method), "%s %s", route.Method, path)
		}
	}
}

func TestServeDocs(t *testing.T) {
	s := newTestServer(t, 0)

	w := s.do(http.MethodGet, "/api/docs/openapi.yaml", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "Study Viewer API")

	w = s.do(http.MethodGet, "/api/docs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi.yaml")
	assert.Contains(t, w.Body.String(), "<title>Study Viewer API dev</title>")
}

func TestServeOpenAPISpec_StampsVersionAndServer(t *testing.T) {
	s := newTestServer(t, 0)
	s.h.Version = "v2.3.1"

	req := httptest.NewRequest(http.MethodGet, "/api/docs/openapi.yaml", nil)
	req.Host = "viewer.example.com"
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		Info struct {
			Title   string `yaml:"title"`
			Version string `yaml:"version"`
		} `yaml:"info"`
		Servers []struct {
			URL string `yaml:"url"`
		} `yaml:"servers"`
		Paths map[string]interface{} `yaml:"paths"`
	}
	require.NoError(t, yaml.Unmarshal(w.Body.Bytes(), &doc))

	assert.Equal(t, "Study Viewer API", doc.Info.Title)
	assert.Equal(t, "v2.3.1", doc.Info.Version)
	require.Len(t, doc.Servers, 1)
	assert.Equal(t, "https://viewer.example.com", doc.Servers[0].URL)
	assert.Contains(t, doc.Paths, "/api/v1/health")
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		name  string
		proto string
		want  string
	}{
		{name: "plain", want: "http://localhost:8080"},
		{name: "behind https proxy", proto: "https", want: "https://localhost:8080"},
		{name: "bogus header ignored", proto: "gopher", want: "http://localhost:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = "localhost:8080"
			if tt.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tt.proto)
			}
			assert.Equal(t, tt.want, handlers.BaseURL(req))
		})
	}
}
