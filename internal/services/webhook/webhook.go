// Package webhook forwards viewer host events to the embedding application.
//
// The viewer raises two host events: text handed to the chat panel and the
// viewer being dismissed. When the server runs behind another app, that app
// learns about them through a signed POST to HOST_WEBHOOK_URL.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// Host event names.
const (
	EventTextSelected = "viewer.text_selected"
	EventClosed       = "viewer.closed"
)

// Payload is the body of every delivery.
type Payload struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// TextSelected is the data of EventTextSelected.
type TextSelected struct {
	ViewerID string `json:"viewer_id"`
	Text     string `json:"text"`
}

// Closed is the data of EventClosed.
type Closed struct {
	ViewerID string `json:"viewer_id"`
	Name     string `json:"name"`
}

// defaultRetryDelays waits 1s, 5s, then 30s between attempts.
var defaultRetryDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

// Service handles webhook notification delivery.
type Service struct {
	url         string
	secret      string
	client      *http.Client
	retryDelays []time.Duration

	shutdownCh   chan struct{} // Signals pending deliveries to stop
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// New creates a webhook service. An empty url disables delivery.
func New(url, secret string) *Service {
	return &Service{
		url:    url,
		secret: secret,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryDelays: defaultRetryDelays,
		shutdownCh:  make(chan struct{}),
	}
}

// IsConfigured returns true if a target URL is set.
func (s *Service) IsConfigured() bool {
	return s != nil && s.url != ""
}

// Shutdown signals pending deliveries to stop and waits for them.
// Call this during graceful server shutdown.
func (s *Service) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
	s.wg.Wait()
}

// SignPayload creates an HMAC-SHA256 signature for a payload.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Notify delivers an event asynchronously with retry logic. It never
// blocks the viewer that raised the event.
func (s *Service) Notify(event string, data interface{}) {
	if !s.IsConfigured() {
		return
	}

	select {
	case <-s.shutdownCh:
		return
	default:
	}

	payloadJSON, err := json.Marshal(Payload{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("⚠️  Failed to marshal webhook payload: %v", err)
		return
	}

	// Fire and forget - each delivery runs in its own goroutine
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliverWithRetry(event, payloadJSON)
	}()
}

// deliverWithRetry attempts a delivery until it succeeds, the retries run
// out, or the service shuts down.
func (s *Service) deliverWithRetry(event string, payloadJSON []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var lastErr string
	for attempt := 0; attempt < len(s.retryDelays); attempt++ {
		if attempt > 0 {
			// Wait for the retry delay, but respect shutdown signals
			select {
			case <-s.shutdownCh:
				log.Printf("⚠️  Webhook delivery aborted due to shutdown: %s → %s", event, s.url)
				return false
			case <-ctx.Done():
				log.Printf("⚠️  Webhook delivery timed out: %s → %s", event, s.url)
				return false
			case <-time.After(s.retryDelays[attempt]):
			}
		}

		statusCode, err := s.deliver(ctx, payloadJSON)
		if err == nil && statusCode >= 200 && statusCode < 300 {
			log.Printf("✅ Webhook delivered: %s → %s (attempt %d)", event, s.url, attempt+1)
			return true
		}

		if err != nil {
			lastErr = err.Error()
		} else {
			lastErr = fmt.Sprintf("HTTP %d", statusCode)
		}
		log.Printf("⚠️  Webhook delivery failed (attempt %d/%d): %s → %s: %s",
			attempt+1, len(s.retryDelays), event, s.url, lastErr)
	}

	log.Printf("❌ Webhook delivery failed permanently: %s → %s", event, s.url)
	return false
}

// deliver sends a single webhook HTTP request with context support.
func (s *Service) deliver(ctx context.Context, payloadJSON []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payloadJSON))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "StudyViewer-Webhook/1.0")

	// Sign with HMAC-SHA256 if secret is set
	if s.secret != "" {
		req.Header.Set("X-Webhook-Signature", SignPayload(payloadJSON, s.secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
