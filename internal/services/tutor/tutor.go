// Package tutor is the AI collaborator behind the viewer's action menu.
//
// Requests go to OpenRouter, which provides a unified API for multiple LLM
// providers (OpenAI, Anthropic, Google, etc.) using a single API key. The
// request format follows the OpenAI chat completions standard. Replies are
// returned as plain text; the viewer never interprets them.
package tutor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Shimizu-Technology/study-viewer/internal/services/selection"
)

// DefaultBaseURL is the OpenRouter API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// maxContextLen caps the document text attached to a request.
const maxContextLen = 15000

const systemPrompt = "You are a patient study tutor. You help students understand the document they are reading: " +
	"explain passages in plain language, write quizzes with answers, and produce flashcards as term/definition pairs."

// Service sends tutor requests.
type Service struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New creates a new tutor service. An empty baseURL uses OpenRouter.
func New(apiKey, model, baseURL string) *Service {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Service{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		// Go Pattern: Always configure timeouts on HTTP clients.
		// The default http.Client has NO timeout - requests can hang forever!
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // LLMs can be slow
		},
	}
}

// IsConfigured reports whether an API key is set.
func (s *Service) IsConfigured() bool {
	return s != nil && s.apiKey != ""
}

// Model returns the model requests are sent to.
func (s *Service) Model() string {
	return s.model
}

// --- OpenRouter API types ---
// These match the OpenAI chat completions format used by OpenRouter.

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Model string `json:"model"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Dispatch implements selection.Dispatcher.
func (s *Service) Dispatch(ctx context.Context, req selection.Request) (string, error) {
	if !s.IsConfigured() {
		return "", fmt.Errorf("OpenRouter API key not configured; set OPENROUTER_API_KEY")
	}
	if strings.TrimSpace(req.Text) == "" {
		return "", fmt.Errorf("request text is empty")
	}

	log.Printf("🤖 Sending %s request using %s", req.Action, s.model)

	reqBody := chatRequest{
		Model:    s.model,
		Messages: buildMessages(req),
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/chat/completions",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("HTTP-Referer", "https://github.com/Shimizu-Technology/study-viewer")
	httpReq.Header.Set("X-Title", "Study Viewer")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("OpenRouter request failed: %w", err)
	}
	defer resp.Body.Close() // Go Pattern: ALWAYS close response bodies!

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OpenRouter returned %d: %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("OpenRouter error: %s", chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// buildMessages lays out the conversation: the tutor persona, the document
// as background when there is any, then the request itself.
func buildMessages(req selection.Request) []chatMessage {
	messages := []chatMessage{{Role: "system", Content: systemPrompt}}

	if doc := strings.TrimSpace(req.Context); doc != "" {
		// Truncate very long documents to avoid token limits
		if len(doc) > maxContextLen {
			doc = truncate(doc, maxContextLen) + "\n\n[Document truncated due to length...]"
		}
		messages = append(messages, chatMessage{
			Role:    "system",
			Content: "The student is reading this document:\n\n" + doc,
		})
	}

	return append(messages, chatMessage{Role: "user", Content: req.Text})
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
