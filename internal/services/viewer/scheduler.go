// Package viewer coordinates the PDF pipeline for one open document:
// loading, page and zoom state, render scheduling, and the selection bridge.
//
// Go Pattern: All state transitions happen under one mutex, so navigation
// requests are serialized. Rendering runs on its own goroutine and talks
// back through complete(), which checks the task's generation token against
// the latest one before committing anything. A render that lost the race
// is dropped, never painted.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"math"
	"strings"
	"sync"

	"github.com/Shimizu-Technology/study-viewer/internal/services/pdf"
	"github.com/Shimizu-Technology/study-viewer/internal/services/render"
	"github.com/Shimizu-Technology/study-viewer/internal/services/textlayer"
	"github.com/Shimizu-Technology/study-viewer/internal/services/viewport"
)

// Status is the lifecycle state of a scheduler.
type Status string

const (
	StatusEmpty   Status = "empty"   // no document yet
	StatusLoading Status = "loading" // parsing a document
	StatusReady   Status = "ready"   // document open, pages navigable
	StatusFailed  Status = "failed"  // the document could not be opened; terminal
	StatusClosed  Status = "closed"  // the viewer was dismissed
)

// ErrSuperseded is returned by Load when a newer Load or Close won the race.
var ErrSuperseded = errors.New("load superseded")

// Keys understood by HandleKey.
const (
	KeyArrowLeft  = "ArrowLeft"
	KeyArrowRight = "ArrowRight"
)

// Options is the zoom policy plus text layer tuning.
type Options struct {
	MinScale     float64
	MaxScale     float64
	ScaleStep    float64
	DefaultScale float64
	Text         textlayer.Options
}

// DefaultOptions returns the standard policy: 0.5x to 3x in 0.1 steps,
// opening at 1.2x.
func DefaultOptions() Options {
	return Options{
		MinScale:     0.5,
		MaxScale:     3.0,
		ScaleStep:    0.1,
		DefaultScale: 1.2,
		Text:         textlayer.DefaultOptions(),
	}
}

// Clamp limits scale to [MinScale, MaxScale].
func (o Options) Clamp(scale float64) float64 {
	return math.Max(o.MinScale, math.Min(o.MaxScale, scale))
}

// Frame is one committed render: pixels plus the overlay aligned to them.
// Frames are immutable once committed.
type Frame struct {
	Token    uint64
	Page     int
	Scale    float64
	Viewport viewport.Viewport
	Image    *image.RGBA
	Layer    textlayer.Layer
}

// State is a point-in-time view of the scheduler.
type State struct {
	Status      Status  `json:"status"`
	Page        int     `json:"page"`
	TotalPages  int     `json:"total_pages"`
	Scale       float64 `json:"scale"`
	Generation  uint64  `json:"generation"`
	Rendering   bool    `json:"rendering"`
	FrameToken  uint64  `json:"frame_token"`
	HasPrevious bool    `json:"has_previous"`
	HasNext     bool    `json:"has_next"`
	CanZoomIn   bool    `json:"can_zoom_in"`
	CanZoomOut  bool    `json:"can_zoom_out"`
	PageError   string  `json:"page_error,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// Scheduler owns the document handle, the current (page, scale) and the
// single render surface.
type Scheduler struct {
	opts     Options
	renderer *render.Renderer

	mu         sync.Mutex
	onNavigate func()
	status     Status
	doc        *pdf.Document
	loadSeq    uint64
	fatal      error
	page       int
	scale      float64
	generation uint64
	task       *render.Task
	frame      *Frame
	pageErr    error
	pageTexts  []string
}

// NewScheduler creates an empty scheduler.
func NewScheduler(opts Options, renderer *render.Renderer) *Scheduler {
	def := DefaultOptions()
	if opts.MinScale <= 0 || opts.MaxScale < opts.MinScale {
		opts.MinScale, opts.MaxScale = def.MinScale, def.MaxScale
	}
	if opts.ScaleStep <= 0 {
		opts.ScaleStep = def.ScaleStep
	}
	if opts.DefaultScale <= 0 {
		opts.DefaultScale = def.DefaultScale
	}
	opts.DefaultScale = opts.Clamp(opts.DefaultScale)

	return &Scheduler{
		opts:     opts,
		renderer: renderer,
		status:   StatusEmpty,
		scale:    opts.DefaultScale,
	}
}

// SetNavigateHook registers fn to run after every page or scale change.
// It is called without the scheduler's lock held.
func (s *Scheduler) SetNavigateHook(fn func()) {
	s.mu.Lock()
	s.onNavigate = fn
	s.mu.Unlock()
}

// Options returns the scheduler's policy.
func (s *Scheduler) Options() Options {
	return s.opts
}

// Load opens a new document, replacing (and releasing) any current one, and
// renders its first page. A parse failure is fatal: the scheduler moves to
// StatusFailed and only Close or another Load leaves it.
func (s *Scheduler) Load(ctx context.Context, data []byte) error {
	s.mu.Lock()
	s.releaseLocked()
	s.loadSeq++
	seq := s.loadSeq
	s.status = StatusLoading
	s.fatal = nil
	s.page = 0
	s.mu.Unlock()

	s.navigated()

	doc, err := pdf.Open(data)
	if err == nil && ctx.Err() != nil {
		doc.Close()
		doc, err = nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.loadSeq || s.status != StatusLoading {
		if doc != nil {
			doc.Close()
		}
		return ErrSuperseded
	}

	if err != nil {
		s.status = StatusFailed
		s.fatal = err
		log.Printf("❌ Failed to load PDF: %v", err)
		return fmt.Errorf("failed to load PDF: %w", err)
	}

	s.doc = doc
	s.status = StatusReady
	s.page = 1
	log.Printf("📄 PDF loaded: %d pages", doc.NumPages())
	s.startRenderLocked()
	return nil
}

// GoToPage moves to page n. It is a no-op (returns false) with no document
// or when n is outside [1, NumPages]. Going to the current page renders it
// again, which is how a failed page is retried.
func (s *Scheduler) GoToPage(n int) bool {
	s.mu.Lock()
	ok := s.goToPageLocked(n)
	s.mu.Unlock()

	if ok {
		s.navigated()
	}
	return ok
}

// HandleKey maps ArrowLeft/ArrowRight to previous/next page. Keys at the
// first or last page, and any other key, are ignored.
func (s *Scheduler) HandleKey(key string) bool {
	s.mu.Lock()
	var ok bool
	if s.doc != nil {
		switch key {
		case KeyArrowLeft:
			if s.page > 1 {
				ok = s.goToPageLocked(s.page - 1)
			}
		case KeyArrowRight:
			if s.page < s.doc.NumPages() {
				ok = s.goToPageLocked(s.page + 1)
			}
		}
	}
	s.mu.Unlock()

	if ok {
		s.navigated()
	}
	return ok
}

// SetScale clamps scale to the supported range and re-renders the current
// page at it. It returns the scale actually applied.
func (s *Scheduler) SetScale(scale float64) float64 {
	s.mu.Lock()
	if math.IsNaN(scale) {
		applied := s.scale
		s.mu.Unlock()
		return applied
	}

	applied := s.opts.Clamp(scale)
	changed := applied != s.scale
	s.scale = applied
	if changed && s.ready() {
		s.startRenderLocked()
	}
	s.mu.Unlock()

	if changed {
		s.navigated()
	}
	return applied
}

// ZoomIn steps the scale up by ScaleStep.
func (s *Scheduler) ZoomIn() float64 {
	return s.SetScale(roundScale(s.currentScale() + s.opts.ScaleStep))
}

// ZoomOut steps the scale down by ScaleStep.
func (s *Scheduler) ZoomOut() float64 {
	return s.SetScale(roundScale(s.currentScale() - s.opts.ScaleStep))
}

// Close cancels any render and releases the document exactly once.
// It returns false if the scheduler was already closed.
func (s *Scheduler) Close() bool {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return false
	}
	s.releaseLocked()
	s.loadSeq++
	s.status = StatusClosed
	s.mu.Unlock()

	s.navigated()
	return true
}

// State returns a snapshot of the scheduler.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Status:      s.status,
		Page:        s.page,
		Scale:       s.scale,
		Generation:  s.generation,
		Rendering:   s.task != nil,
		CanZoomIn:   s.scale < s.opts.MaxScale,
		CanZoomOut:  s.scale > s.opts.MinScale,
		HasPrevious: s.page > 1,
	}
	if s.doc != nil {
		st.TotalPages = s.doc.NumPages()
		st.HasNext = s.page < st.TotalPages
	}
	if s.frame != nil {
		st.FrameToken = s.frame.Token
	}
	if s.pageErr != nil {
		st.PageError = s.pageErr.Error()
	}
	if s.fatal != nil {
		st.Error = s.fatal.Error()
	}
	return st
}

// Frame returns the last committed frame, or nil.
func (s *Scheduler) Frame() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// PageText returns the plain text of the committed frame when it shows the
// current page.
func (s *Scheduler) PageText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil || s.frame.Page != s.page {
		return ""
	}
	return s.frame.Layer.PlainText
}

// PageTexts reduces every page to plain text, indexed by page number - 1.
// Pages that fail to extract come back empty. The result is computed once
// per document and must not be modified.
func (s *Scheduler) PageTexts() []string {
	s.mu.Lock()
	doc, cached := s.doc, s.pageTexts
	threshold := s.opts.Text.LineThreshold
	s.mu.Unlock()

	if cached != nil {
		return cached
	}
	if doc == nil {
		return nil
	}

	texts := make([]string, doc.NumPages())
	for n := 1; n <= doc.NumPages(); n++ {
		page, err := doc.Page(n)
		if err != nil {
			if errors.Is(err, pdf.ErrClosed) {
				return nil
			}
			continue
		}
		content, err := page.Content()
		if err != nil {
			// Log but don't fail - some pages may have images only
			log.Printf("⚠️  Text extraction failed for page %d: %v", n, err)
			continue
		}
		texts[n-1] = textlayer.PlainText(content.Runs, threshold)
	}

	s.mu.Lock()
	if s.doc == doc {
		s.pageTexts = texts
	}
	s.mu.Unlock()
	return texts
}

// DocumentText joins the non-empty page texts with a blank line.
func (s *Scheduler) DocumentText() string {
	var pages []string
	for _, text := range s.PageTexts() {
		if text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n")
}

// WaitIdle blocks until no render is in flight or ctx is done.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	for {
		s.mu.Lock()
		task := s.task
		s.mu.Unlock()

		if task == nil {
			return nil
		}
		select {
		case <-task.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) currentScale() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scale
}

func (s *Scheduler) ready() bool {
	return s.status == StatusReady && s.doc != nil
}

func (s *Scheduler) goToPageLocked(n int) bool {
	if !s.ready() || n < 1 || n > s.doc.NumPages() {
		return false
	}
	s.page = n
	s.startRenderLocked()
	return true
}

func (s *Scheduler) navigated() {
	s.mu.Lock()
	fn := s.onNavigate
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// releaseLocked cancels the in-flight render, bumps the generation so its
// result is ignored, and releases the document.
func (s *Scheduler) releaseLocked() {
	if s.task != nil {
		s.task.Cancel()
		s.task = nil
	}
	s.generation++
	if s.doc != nil {
		s.doc.Close()
		s.doc = nil
	}
	s.frame = nil
	s.pageErr = nil
	s.pageTexts = nil
}

// startRenderLocked supersedes the current render with one for the current
// (page, scale). The new task waits for its predecessor to wind down, so
// at most one rasterization runs per surface.
func (s *Scheduler) startRenderLocked() {
	s.generation++
	prev := s.task
	if prev != nil {
		prev.Cancel()
	}

	task := render.NewTask(s.generation, s.page, s.scale)
	s.task = task
	s.pageErr = nil

	go s.run(task, prev, s.doc)
}

func (s *Scheduler) run(task, prev *render.Task, doc *pdf.Document) {
	defer task.Finish()

	if prev != nil {
		<-prev.Done()
	}

	frame, err := s.produce(task, doc)
	s.complete(task, frame, err)
}

func (s *Scheduler) produce(task *render.Task, doc *pdf.Document) (*Frame, error) {
	ctx := task.Context()
	if ctx.Err() != nil {
		return nil, render.ErrCancelled
	}

	page, err := doc.Page(task.Page)
	if err != nil {
		return nil, err
	}

	// Content extraction cannot be interrupted; a stale result is caught
	// by the token check in complete.
	content, err := page.Content()
	if err != nil {
		return nil, err
	}

	vp := viewport.New(page.Box(), task.Scale, page.Rotation())
	img, err := s.renderer.Rasterize(ctx, content, vp)
	if err != nil {
		return nil, err
	}

	return &Frame{
		Token:    task.Token,
		Page:     task.Page,
		Scale:    task.Scale,
		Viewport: vp,
		Image:    img,
		Layer:    textlayer.Build(content.Runs, vp, s.opts.Text),
	}, nil
}

// complete commits a render if, and only if, its token is still the latest.
func (s *Scheduler) complete(task *render.Task, frame *Frame, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.Token != s.generation {
		if err == nil || !render.IsCancelled(err) {
			log.Printf("🗑️  Discarded stale render of page %d (token %d, latest %d)", task.Page, task.Token, s.generation)
		}
		return
	}
	s.task = nil

	if err != nil {
		if render.IsCancelled(err) {
			return
		}
		s.pageErr = err
		log.Printf("⚠️  Page %d failed to render: %v", task.Page, err)
		return
	}

	s.frame = frame
	s.pageErr = nil
}

func roundScale(v float64) float64 {
	return math.Round(v*100) / 100
}
