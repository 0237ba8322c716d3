// Package selection turns text selections on the viewer surface into
// actions for the AI tutor.
//
// The bridge never listens to platform events itself. The host calls
// OnPointerUp when a pointer-up lands inside the surface; the bridge waits
// a fixed debounce so the platform's selection can settle, then queries it
// once, synchronously.
package selection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Defaults for Config.
const (
	DefaultDebounce   = 10 * time.Millisecond
	DefaultAnchorLift = 10.0
)

// ErrNoSelection is returned when an action is chosen with no open menu.
var ErrNoSelection = errors.New("no active selection")

// Point is a position in surface pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a screen-space rectangle.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Selection is the highlighted text plus where its menu is anchored.
type Selection struct {
	Text   string `json:"text"`
	Anchor Point  `json:"anchor"`
	Bounds Rect   `json:"bounds"`
}

// NativeSelection is the platform's current text selection.
type NativeSelection interface {
	String() string
	Bounds() (Rect, bool)
	Clear()
}

// Dispatcher sends a request to the AI collaborator and returns its reply
// untouched.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (string, error)
}

// Clipboard writes text to the system clipboard.
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
}

// Outcome reports what choosing an action did.
type Outcome struct {
	Request    Request `json:"request"`
	Reply      string  `json:"reply,omitempty"`
	Dispatched bool    `json:"dispatched"`
	Copied     bool    `json:"copied"`
}

// Config tunes the bridge.
type Config struct {
	Debounce   time.Duration // wait after pointer-up before reading the selection
	AnchorLift float64       // pixels between the selection's top edge and the menu
}

// Option configures optional collaborators.
type Option func(*Bridge)

// WithDispatcher sets the AI collaborator. Without one, actions only fire
// host events and build requests.
func WithDispatcher(d Dispatcher) Option {
	return func(b *Bridge) { b.dispatcher = d }
}

// WithClipboard enables the copy action.
func WithClipboard(c Clipboard) Option {
	return func(b *Bridge) { b.clipboard = c }
}

// WithTextSelect sets the host callback fired when chat is chosen.
func WithTextSelect(fn func(text string)) Option {
	return func(b *Bridge) { b.onTextSelect = fn }
}

// WithContext supplies background text (page or document) attached to
// outbound requests.
func WithContext(fn func() string) Option {
	return func(b *Bridge) { b.context = fn }
}

// Bridge holds at most one Selection. The last write wins.
type Bridge struct {
	cfg          Config
	dispatcher   Dispatcher
	clipboard    Clipboard
	onTextSelect func(string)
	context      func() string

	mu      sync.Mutex
	current *Selection
	native  NativeSelection
	epoch   uint64 // bumped by every Dismiss
}

// NewBridge creates a bridge. Zero config fields take the defaults.
func NewBridge(cfg Config, opts ...Option) *Bridge {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.AnchorLift == 0 {
		cfg.AnchorLift = DefaultAnchorLift
	}

	b := &Bridge{cfg: cfg}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnPointerUp reads the platform selection after the debounce. A non-empty
// selection opens the menu anchored at the horizontal centre of the
// selection, just above its top edge, relative to surface. An empty
// selection leaves the current state alone and returns (nil, nil), as does
// a read overtaken by a Dismiss during the debounce.
func (b *Bridge) OnPointerUp(ctx context.Context, native NativeSelection, surface Rect) (*Selection, error) {
	b.mu.Lock()
	epoch := b.epoch
	b.mu.Unlock()

	timer := time.NewTimer(b.cfg.Debounce)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	text := strings.TrimSpace(native.String())
	if text == "" {
		return nil, nil
	}

	sel := &Selection{Text: text}
	if bounds, ok := native.Bounds(); ok {
		sel.Bounds = bounds
		sel.Anchor = Point{
			X: bounds.Left - surface.Left + bounds.Width/2,
			Y: bounds.Top - surface.Top - b.cfg.AnchorLift,
		}
	}

	b.mu.Lock()
	if b.epoch != epoch {
		b.mu.Unlock()
		native.Clear()
		return nil, nil
	}
	b.current = sel
	b.native = native
	b.mu.Unlock()

	out := *sel
	return &out, nil
}

// Current returns the open selection, if any.
func (b *Bridge) Current() (Selection, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return Selection{}, false
	}
	return *b.current, true
}

// OnPointerDown handles a press anywhere in the document. A press outside
// the menu dismisses it.
func (b *Bridge) OnPointerDown(insideMenu bool) {
	if !insideMenu {
		b.Dismiss()
	}
}

// Dismiss clears the selection and closes the menu without dispatching.
func (b *Bridge) Dismiss() {
	b.mu.Lock()
	b.epoch++
	native := b.take()
	b.mu.Unlock()

	if native != nil {
		native.Clear()
	}
}

// take clears state and hands back the native selection to clear.
// Callers hold b.mu.
func (b *Bridge) take() NativeSelection {
	native := b.native
	b.current = nil
	b.native = nil
	return native
}

// OnActionChosen applies an action to the open selection. Selection state
// and the native selection are cleared whatever the outcome.
func (b *Bridge) OnActionChosen(ctx context.Context, id ActionID) (*Outcome, error) {
	b.mu.Lock()
	sel := b.current
	native := b.take()
	b.mu.Unlock()

	if native != nil {
		native.Clear()
	}
	if sel == nil {
		return nil, ErrNoSelection
	}

	return b.Invoke(ctx, id, sel.Text)
}

// Invoke runs an action on text without a selection. Empty text means the
// whole document; chat with nothing to seed only opens the panel, so it
// neither notifies the host nor dispatches.
func (b *Bridge) Invoke(ctx context.Context, id ActionID, text string) (*Outcome, error) {
	req, err := BuildRequest(id, text)
	if err != nil {
		return nil, err
	}
	if id == ActionChat && strings.TrimSpace(text) == "" {
		return &Outcome{Request: req}, nil
	}
	if b.context != nil && id != ActionCopy {
		req.Context = b.context()
	}

	out := &Outcome{Request: req}

	switch id {
	case ActionCopy:
		if b.clipboard == nil {
			return out, nil
		}
		// Clipboard failures never block the viewer.
		if err := b.clipboard.WriteText(ctx, text); err != nil {
			log.Printf("⚠️  Clipboard write failed: %v", err)
			return out, nil
		}
		out.Copied = true
		return out, nil
	case ActionChat:
		if b.onTextSelect != nil {
			b.onTextSelect(text)
		}
	}

	if b.dispatcher == nil {
		return out, nil
	}

	reply, err := b.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return out, fmt.Errorf("%s request failed: %w", id, err)
	}
	out.Reply = reply
	out.Dispatched = true
	return out, nil
}

// Snapshot is a NativeSelection captured by a remote presentation layer
// and sent along with its pointer-up.
type Snapshot struct {
	Text string
	Rect *Rect

	mu      sync.Mutex
	cleared bool
}

// String returns the captured text, or "" once cleared.
func (s *Snapshot) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleared {
		return ""
	}
	return s.Text
}

// Bounds returns the captured bounding box.
func (s *Snapshot) Bounds() (Rect, bool) {
	if s.Rect == nil {
		return Rect{}, false
	}
	return *s.Rect, true
}

// Clear drops the captured text.
func (s *Snapshot) Clear() {
	s.mu.Lock()
	s.cleared = true
	s.mu.Unlock()
}

// Cleared reports whether Clear has been called.
func (s *Snapshot) Cleared() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleared
}
