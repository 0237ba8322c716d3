package viewer

import (
	"errors"
	"log"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned for an unknown viewer id.
	ErrNotFound = errors.New("viewer not found")
	// ErrCapacity is returned when the registry is full.
	ErrCapacity = errors.New("too many open viewers")
)

// Registry tracks open viewers by id and closes idle ones.
//
// Go Pattern: Same shape as a rate limiter's client map. A mutex-guarded
// map plus a background ticker that sweeps stale entries until Shutdown.
type Registry struct {
	mu      sync.RWMutex
	viewers map[string]*Viewer
	max     int
	ttl     time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates a registry holding at most max viewers (0 means no
// limit). Viewers untouched for ttl are closed; ttl 0 disables sweeping.
func NewRegistry(max int, ttl time.Duration) *Registry {
	r := &Registry{
		viewers: make(map[string]*Viewer),
		max:     max,
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	if ttl > 0 {
		go r.sweepLoop()
	}
	return r
}

// Add registers v.
func (r *Registry) Add(v *Viewer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.max > 0 && len(r.viewers) >= r.max {
		return ErrCapacity
	}
	r.viewers[v.ID] = v
	return nil
}

// Get returns the viewer with id and marks it used.
func (r *Registry) Get(id string) (*Viewer, error) {
	r.mu.RLock()
	v, ok := r.viewers[id]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	v.Touch()
	return v, nil
}

// Remove closes and forgets the viewer with id.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	v, ok := r.viewers[id]
	delete(r.viewers, id)
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	v.Close()
	return nil
}

// Len returns the number of open viewers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.viewers)
}

// Sweep closes viewers idle since before now-ttl and returns how many.
func (r *Registry) Sweep(now time.Time) int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-r.ttl)

	r.mu.Lock()
	var stale []*Viewer
	for id, v := range r.viewers {
		if v.LastUsed().Before(cutoff) {
			stale = append(stale, v)
			delete(r.viewers, id)
		}
	}
	r.mu.Unlock()

	for _, v := range stale {
		v.Close()
	}
	if len(stale) > 0 {
		log.Printf("🧹 Closed %d idle viewer(s)", len(stale))
	}
	return len(stale)
}

// Shutdown stops the sweeper and closes every viewer.
func (r *Registry) Shutdown() {
	r.stopOnce.Do(func() { close(r.stop) })

	r.mu.Lock()
	all := make([]*Viewer, 0, len(r.viewers))
	for id, v := range r.viewers {
		all = append(all, v)
		delete(r.viewers, id)
	}
	r.mu.Unlock()

	for _, v := range all {
		v.Close()
	}
}

func (r *Registry) sweepLoop() {
	interval := r.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			r.Sweep(now)
		case <-r.stop:
			return
		}
	}
}
