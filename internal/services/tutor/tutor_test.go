package tutor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shimizu-Technology/study-viewer/internal/services/selection"
)

func TestDispatch_SendsChatCompletion(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"m","choices":[{"message":{"content":"  A greeting.  "}}]}`))
	}))
	defer srv.Close()

	s := New("sk-test", "test/model", srv.URL+"/")
	reply, err := s.Dispatch(context.Background(), selection.Request{
		Action:  selection.ActionExplain,
		Text:    `Please explain this text from the document: "Hello world"`,
		Context: "Hello world\nSecond line",
	})
	require.NoError(t, err)

	assert.Equal(t, "A greeting.", reply)
	assert.Equal(t, "test/model", got.Model)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "Second line")
	assert.Equal(t, "user", got.Messages[2].Role)
	assert.Contains(t, got.Messages[2].Content, `"Hello world"`)
}

func TestDispatch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"upstream status", http.StatusBadGateway, `oops`, "returned 502"},
		{"error object", http.StatusOK, `{"error":{"message":"quota","code":429}}`, "quota"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no response"},
		{"bad json", http.StatusOK, `{`, "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New("sk-test", "m", srv.URL).Dispatch(context.Background(), selection.Request{Action: selection.ActionChat, Text: "hi"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDispatch_NotConfigured(t *testing.T) {
	s := New("", "m", "")
	assert.False(t, s.IsConfigured())

	_, err := s.Dispatch(context.Background(), selection.Request{Action: selection.ActionChat, Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENROUTER_API_KEY")
}

func TestBuildMessages_TruncatesContext(t *testing.T) {
	msgs := buildMessages(selection.Request{Text: "q", Context: strings.Repeat("a", maxContextLen+500)})
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[1].Content, "[Document truncated due to length...]")
	assert.Less(t, len(msgs[1].Content), maxContextLen+200)

	msgs = buildMessages(selection.Request{Text: "q"})
	assert.Len(t, msgs, 2, "no context message without document text")
}

func TestBuildMessages_TruncatesOnCharacterBoundary(t *testing.T) {
	// "é" is two bytes, so maxContextLen falls inside a character.
	doc := "x" + strings.Repeat("é", maxContextLen)
	msgs := buildMessages(selection.Request{Text: "q", Context: doc})
	require.Len(t, msgs, 3)
	assert.True(t, utf8.ValidString(msgs[1].Content))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short enough", "abc", 5, "abc"},
		{"ascii cut", "abcdef", 3, "abc"},
		{"backs off a split rune", "aé", 2, "a"},
		{"keeps a whole rune", "aéb", 3, "aé"},
		{"four-byte rune", "😀x", 2, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.in, tt.n))
		})
	}
}
