package viewer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shimizu-Technology/study-viewer/internal/pdftest"
	"github.com/Shimizu-Technology/study-viewer/internal/services/render"
	"github.com/Shimizu-Technology/study-viewer/internal/services/selection"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	requests []selection.Request
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req selection.Request) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	return "ok", nil
}

func (d *recordingDispatcher) last() selection.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[len(d.requests)-1]
}

var testConfig = Config{
	Scheduler: DefaultOptions(),
	Selection: selection.Config{Debounce: time.Millisecond},
}

func newViewer(t *testing.T, host Host, opts ...selection.Option) *Viewer {
	t.Helper()
	r, err := render.NewRenderer()
	require.NoError(t, err)

	v := New("notes.pdf", testConfig, r, host, opts...)
	t.Cleanup(v.Close)

	require.NoError(t, v.Load(context.Background(), pdftest.Simple(3)))
	waitIdle(t, v.Scheduler)
	return v
}

func pointerUp(t *testing.T, v *Viewer, text string) *selection.Selection {
	t.Helper()
	native := &selection.Snapshot{Text: text, Rect: &selection.Rect{Left: 100, Top: 120, Width: 60, Height: 14}}
	sel, err := v.Select(context.Background(), native, selection.Rect{})
	require.NoError(t, err)
	return sel
}

func TestNew_AssignsID(t *testing.T) {
	a := newViewer(t, Host{})
	b := newViewer(t, Host{})

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "notes.pdf", a.Name)
}

func TestSelect_RequiresRenderedPage(t *testing.T) {
	r, err := render.NewRenderer()
	require.NoError(t, err)
	v := New("empty.pdf", testConfig, r, Host{})
	defer v.Close()

	_, err = v.Select(context.Background(), &selection.Snapshot{Text: "x"}, selection.Rect{})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestNavigationClearsSelection(t *testing.T) {
	v := newViewer(t, Host{})

	require.NotNil(t, pointerUp(t, v, "Page 1"))
	_, open := v.Selection()
	require.True(t, open)

	v.GoToPage(2)
	_, open = v.Selection()
	assert.False(t, open, "page change dismisses the menu")

	require.NotNil(t, pointerUp(t, v, "Page 2"))
	v.ZoomIn()
	_, open = v.Selection()
	assert.False(t, open, "zoom dismisses the menu")
}

func TestSelect_NavigationDuringDebounceDropsSelection(t *testing.T) {
	r, err := render.NewRenderer()
	require.NoError(t, err)

	cfg := Config{
		Scheduler: DefaultOptions(),
		Selection: selection.Config{Debounce: 300 * time.Millisecond},
	}
	v := New("notes.pdf", cfg, r, Host{})
	t.Cleanup(v.Close)
	require.NoError(t, v.Load(context.Background(), pdftest.Simple(3)))
	waitIdle(t, v.Scheduler)

	native := &selection.Snapshot{Text: "page one text", Rect: &selection.Rect{Left: 100, Top: 120, Width: 60, Height: 14}}
	type result struct {
		sel *selection.Selection
		err error
	}
	done := make(chan result, 1)
	go func() {
		sel, err := v.Select(context.Background(), native, selection.Rect{})
		done <- result{sel, err}
	}()

	time.Sleep(50 * time.Millisecond)
	require.True(t, v.GoToPage(2))

	res := <-done
	require.NoError(t, res.err)
	assert.Nil(t, res.sel)

	_, open := v.Selection()
	assert.False(t, open, "a selection from page 1 must not open on page 2")
	assert.True(t, native.Cleared())
	assert.Equal(t, 2, v.State().Page)
}

func TestAct_ExplainCarriesDocumentContext(t *testing.T) {
	d := &recordingDispatcher{}
	v := newViewer(t, Host{}, selection.WithDispatcher(d))

	pointerUp(t, v, "Page 1")
	out, err := v.Act(context.Background(), selection.ActionExplain)
	require.NoError(t, err)

	assert.True(t, out.Dispatched)
	assert.Equal(t, "ok", out.Reply)
	req := d.last()
	assert.Contains(t, req.Text, `"Page 1"`)
	assert.Equal(t, "Page 1\n\nPage 2\n\nPage 3", req.Context)

	_, open := v.Selection()
	assert.False(t, open)
}

func TestAct_ChatSeedsHost(t *testing.T) {
	var seeded string
	v := newViewer(t, Host{OnTextSelect: func(text string) { seeded = text }})

	pointerUp(t, v, "Page 1")
	_, err := v.Act(context.Background(), selection.ActionChat)
	require.NoError(t, err)

	assert.Equal(t, "Page 1", seeded)
	assert.Equal(t, "Page 1", v.ChatSeed())
}

func TestAct_CopyWritesClipboard(t *testing.T) {
	v := newViewer(t, Host{})

	pointerUp(t, v, "Page 1")
	out, err := v.Act(context.Background(), selection.ActionCopy)
	require.NoError(t, err)

	assert.True(t, out.Copied)
	assert.Equal(t, "Page 1", v.Clipboard())
}

func TestAsk_WholeDocument(t *testing.T) {
	d := &recordingDispatcher{}
	v := newViewer(t, Host{}, selection.WithDispatcher(d))

	_, err := v.Ask(context.Background(), selection.ActionQuiz)
	require.NoError(t, err)
	assert.Equal(t, "Create a quiz with 5 questions based on this document", d.last().Text)
}

func TestClose_NotifiesHostOnce(t *testing.T) {
	closes := 0
	v := newViewer(t, Host{OnClose: func() { closes++ }})

	v.Close()
	v.Close()

	assert.Equal(t, 1, closes)
	assert.Equal(t, StatusClosed, v.State().Status)
}

func TestMemoryClipboard_RespectsContext(t *testing.T) {
	c := &MemoryClipboard{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, c.WriteText(ctx, "x"))
	assert.Equal(t, "", c.Text())
	require.NoError(t, c.WriteText(context.Background(), "y"))
	assert.Equal(t, "y", c.Text())
}
