package viewer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Shimizu-Technology/study-viewer/internal/services/render"
	"github.com/Shimizu-Technology/study-viewer/internal/services/selection"
)

// ErrNotReady is returned for selection work before a page is on screen.
var ErrNotReady = errors.New("viewer has no rendered page")

// Host is the embedding application's side of the viewer.
type Host struct {
	OnTextSelect func(text string) // chat was chosen for a selection
	OnClose      func()            // the viewer was dismissed
}

// Config bundles the viewer's tunables.
type Config struct {
	Scheduler Options
	Selection selection.Config
}

// Viewer is one open document: a scheduler driving the render surface
// plus the selection bridge layered over it.
type Viewer struct {
	*Scheduler

	ID        string
	Name      string
	CreatedAt time.Time

	bridge    *selection.Bridge
	clipboard *MemoryClipboard
	host      Host
	closeOnce sync.Once
	lastUsed  atomic.Int64

	mu       sync.Mutex
	chatSeed string
}

// New creates a viewer with a fresh id. opts are passed on to the bridge
// (typically WithDispatcher).
func New(name string, cfg Config, renderer *render.Renderer, host Host, opts ...selection.Option) *Viewer {
	v := &Viewer{
		Scheduler: NewScheduler(cfg.Scheduler, renderer),
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now(),
		clipboard: &MemoryClipboard{},
		host:      host,
	}
	v.Touch()

	base := []selection.Option{
		selection.WithClipboard(v.clipboard),
		selection.WithTextSelect(v.textSelected),
		selection.WithContext(v.DocumentText),
	}
	v.bridge = selection.NewBridge(cfg.Selection, append(base, opts...)...)

	// Any page or zoom change invalidates the menu anchor.
	v.Scheduler.SetNavigateHook(v.bridge.Dismiss)
	return v
}

// Select handles a pointer-up on the page surface.
func (v *Viewer) Select(ctx context.Context, native selection.NativeSelection, surface selection.Rect) (*selection.Selection, error) {
	if v.Frame() == nil {
		return nil, ErrNotReady
	}
	return v.bridge.OnPointerUp(ctx, native, surface)
}

// Selection returns the open selection, if any.
func (v *Viewer) Selection() (selection.Selection, bool) {
	return v.bridge.Current()
}

// PointerDown forwards a pointer-down; outside the menu it dismisses.
func (v *Viewer) PointerDown(insideMenu bool) {
	v.bridge.OnPointerDown(insideMenu)
}

// Dismiss closes the menu and clears the selection.
func (v *Viewer) Dismiss() {
	v.bridge.Dismiss()
}

// Act runs an action on the open selection.
func (v *Viewer) Act(ctx context.Context, id selection.ActionID) (*selection.Outcome, error) {
	return v.bridge.OnActionChosen(ctx, id)
}

// Ask runs an action on the whole document.
func (v *Viewer) Ask(ctx context.Context, id selection.ActionID) (*selection.Outcome, error) {
	return v.bridge.Invoke(ctx, id, "")
}

// Clipboard returns the last text copied from this viewer.
func (v *Viewer) Clipboard() string {
	return v.clipboard.Text()
}

// ChatSeed returns the text last handed to the chat panel.
func (v *Viewer) ChatSeed() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.chatSeed
}

// Close releases the document and notifies the host once.
func (v *Viewer) Close() {
	v.closeOnce.Do(func() {
		v.Scheduler.Close()
		v.bridge.Dismiss()
		if v.host.OnClose != nil {
			v.host.OnClose()
		}
	})
}

// Touch marks the viewer as used now.
func (v *Viewer) Touch() {
	v.lastUsed.Store(time.Now().UnixNano())
}

// LastUsed returns when the viewer was last touched.
func (v *Viewer) LastUsed() time.Time {
	return time.Unix(0, v.lastUsed.Load())
}

func (v *Viewer) textSelected(text string) {
	v.mu.Lock()
	v.chatSeed = text
	v.mu.Unlock()

	if v.host.OnTextSelect != nil {
		v.host.OnTextSelect(text)
	}
}

// MemoryClipboard keeps the last written text in memory.
type MemoryClipboard struct {
	mu   sync.Mutex
	text string
}

// WriteText stores text.
func (c *MemoryClipboard) WriteText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
	return nil
}

// Text returns the stored text.
func (c *MemoryClipboard) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}
