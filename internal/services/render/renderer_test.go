package render

import (
	"context"
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shimizu-Technology/study-viewer/internal/services/pdf"
	"github.com/Shimizu-Technology/study-viewer/internal/services/viewport"
)

var letter = pdf.Box{X0: 0, Y0: 0, X1: 612, Y1: 792}

func sampleContent() *pdf.Content {
	return &pdf.Content{
		Runs: []pdf.TextRun{
			{Text: "Hello world", FontName: "Helvetica", Transform: [6]float64{12, 0, 0, 12, 72, 720}, Width: 66},
		},
		Rects: []pdf.Rect{{X0: 72, Y0: 600, X1: 272, Y1: 610}},
	}
}

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)
	return r
}

// TestRasterize_SurfaceMatchesViewport checks the surface is exactly the
// viewport's pixel size across the supported scale range.
func TestRasterize_SurfaceMatchesViewport(t *testing.T) {
	r := newRenderer(t)

	for _, scale := range []float64{0.5, 0.8, 1.0, 1.2, 1.7, 2.5, 3.0} {
		for _, rotation := range []int{0, 90} {
			t.Run(fmt.Sprintf("scale %.1f rotate %d", scale, rotation), func(t *testing.T) {
				vp := viewport.New(letter, scale, rotation)
				img, err := r.Rasterize(context.Background(), sampleContent(), vp)
				require.NoError(t, err)

				w, h := vp.PixelSize()
				assert.Equal(t, image.Rect(0, 0, w, h), img.Bounds())
			})
		}
	}
}

func TestRasterize_DrawsInk(t *testing.T) {
	r := newRenderer(t)
	vp := viewport.New(letter, 1, 0)

	img, err := r.Rasterize(context.Background(), sampleContent(), vp)
	require.NoError(t, err)

	// The glyphs of "Hello world" sit just above the baseline at y = 792-720.
	assert.True(t, hasInk(img, image.Rect(72, 60, 140, 73)), "expected glyph pixels near the baseline")
	// The rule rectangle spans y = 182..192 in device space.
	assert.True(t, hasInk(img, image.Rect(100, 184, 200, 190)), "expected rule pixels")
	// The far corner stays paper white.
	assert.False(t, hasInk(img, image.Rect(500, 700, 600, 780)))
}

func TestRasterize_NilContentIsBlankPage(t *testing.T) {
	r := newRenderer(t)
	img, err := r.Rasterize(context.Background(), nil, viewport.New(letter, 0.5, 0))
	require.NoError(t, err)
	assert.False(t, hasInk(img, img.Bounds()))
}

func TestRasterize_Cancelled(t *testing.T) {
	r := newRenderer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	img, err := r.Rasterize(ctx, sampleContent(), viewport.New(letter, 1, 0))
	assert.Nil(t, img)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.True(t, IsCancelled(err))
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, IsCancelled(ErrCancelled))
	assert.True(t, IsCancelled(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.False(t, IsCancelled(fmt.Errorf("boom")))
	assert.False(t, IsCancelled(nil))
}

func TestTask_CancelIsIdempotent(t *testing.T) {
	task := NewTask(7, 3, 1.5)
	assert.Equal(t, uint64(7), task.Token)
	assert.False(t, task.Cancelled())

	task.Cancel()
	task.Cancel()
	assert.True(t, task.Cancelled())

	select {
	case <-task.Done():
		t.Fatal("cancel must not mark the task finished")
	default:
	}

	task.Finish()
	task.Finish()
	<-task.Done()
}

func TestRasterize_WaitsForSlot(t *testing.T) {
	r := newRenderer(t).LimitConcurrency(1)
	vp := viewport.New(letter, 1, 0)

	// Hold the only slot so the next render has to queue.
	require.NoError(t, r.slots.Acquire(context.Background(), 1))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := r.Rasterize(ctx, sampleContent(), vp)
		errc <- err
	}()

	cancel()
	assert.ErrorIs(t, <-errc, ErrCancelled)

	r.slots.Release(1)
	img, err := r.Rasterize(context.Background(), sampleContent(), vp)
	require.NoError(t, err)
	assert.Equal(t, 612, img.Bounds().Dx())
}

func hasInk(img *image.RGBA, r image.Rectangle) bool {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := img.RGBAAt(x, y)
			if c.R < 0xf0 || c.G < 0xf0 || c.B < 0xf0 {
				return true
			}
		}
	}
	return false
}
