package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receiver struct {
	mu       sync.Mutex
	bodies   [][]byte
	headers  []http.Header
	failures int // respond 500 this many times first
}

func (r *receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies = append(r.bodies, body)
	r.headers = append(r.headers, req.Header.Clone())
	if r.failures > 0 {
		r.failures--
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *receiver) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

func newService(url string) *Service {
	s := New(url, "shh")
	s.retryDelays = []time.Duration{0, time.Millisecond, time.Millisecond}
	return s
}

func TestNotify_SignedPayload(t *testing.T) {
	rcv := &receiver{}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	s := newService(srv.URL)
	s.Notify(EventTextSelected, TextSelected{ViewerID: "v1", Text: "mitosis"})
	s.Shutdown()

	require.Equal(t, 1, rcv.calls())
	body, header := rcv.bodies[0], rcv.headers[0]

	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, SignPayload(body, "shh"), header.Get("X-Webhook-Signature"))

	var got struct {
		Event string       `json:"event"`
		Data  TextSelected `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, EventTextSelected, got.Event)
	assert.Equal(t, TextSelected{ViewerID: "v1", Text: "mitosis"}, got.Data)
}

func TestDeliverWithRetry(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		want     bool
		calls    int
	}{
		{"first attempt", 0, true, 1},
		{"after two failures", 2, true, 3},
		{"gives up", 5, false, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rcv := &receiver{failures: tt.failures}
			srv := httptest.NewServer(rcv)
			defer srv.Close()

			s := newService(srv.URL)
			assert.Equal(t, tt.want, s.deliverWithRetry(EventClosed, []byte(`{}`)))
			assert.Equal(t, tt.calls, rcv.calls())
		})
	}
}

func TestNotify_Unconfigured(t *testing.T) {
	s := New("", "")
	assert.False(t, s.IsConfigured())
	s.Notify(EventClosed, Closed{ViewerID: "v1"})
	s.Shutdown()

	var nilService *Service
	assert.False(t, nilService.IsConfigured())
}

func TestNotify_AfterShutdownIsDropped(t *testing.T) {
	rcv := &receiver{}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	s := newService(srv.URL)
	s.Shutdown()
	s.Notify(EventClosed, Closed{ViewerID: "v1"})
	s.Shutdown()

	assert.Equal(t, 0, rcv.calls())
}
