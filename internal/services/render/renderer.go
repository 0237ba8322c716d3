// Package render rasterizes a page into a bitmap surface.
//
// The rasterizer draws what the viewer needs to line the text layer up
// with: a white page, the rule rectangles from the content stream, and
// every text run set in Go Regular at its device baseline. It is not a
// full PDF painter; images, vector paths and embedded fonts are skipped.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
	"golang.org/x/sync/semaphore"

	"github.com/Shimizu-Technology/study-viewer/internal/services/pdf"
	"github.com/Shimizu-Technology/study-viewer/internal/services/viewport"
)

// ErrCancelled is returned when a render was superseded. It is a normal
// outcome, not a failure, and must never reach the user.
var ErrCancelled = errors.New("render cancelled")

// IsCancelled reports whether err means the render was superseded.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// Font sizes outside this range are skipped or clamped when drawing.
const (
	minGlyphSize = 1.0
	maxGlyphSize = 512.0
)

var (
	paperColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	inkColor   = color.RGBA{R: 0x1f, G: 0x29, B: 0x37, A: 0xff}
	ruleColor  = color.RGBA{R: 0x9c, G: 0xa3, B: 0xaf, A: 0xff}
)

// Renderer turns page content into pixels. It holds only the parsed font
// and an optional concurrency limit, and can be shared between viewers.
type Renderer struct {
	font  *opentype.Font
	slots *semaphore.Weighted // nil means unlimited
}

// NewRenderer parses the embedded Go Regular face.
func NewRenderer() (*Renderer, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	return &Renderer{font: f}, nil
}

// LimitConcurrency caps how many Rasterize calls run at once across every
// viewer sharing r. Call it before the renderer is used; n <= 0 removes
// the cap.
func (r *Renderer) LimitConcurrency(n int) *Renderer {
	if n <= 0 {
		r.slots = nil
		return r
	}
	r.slots = semaphore.NewWeighted(int64(n))
	return r
}

// Rasterize draws content into a new surface sized to vp.PixelSize().
// The context is checked between runs; a cancelled context yields ErrCancelled.
func (r *Renderer) Rasterize(ctx context.Context, content *pdf.Content, vp viewport.Viewport) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrCancelled
	}

	// Waiting for a slot honours cancellation, so a superseded render
	// gives up its place in line.
	if r.slots != nil {
		if err := r.slots.Acquire(ctx, 1); err != nil {
			return nil, ErrCancelled
		}
		defer r.slots.Release(1)
	}

	w, h := vp.PixelSize()
	surface := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(surface, surface.Bounds(), image.NewUniform(paperColor), image.Point{}, draw.Src)

	if content == nil {
		return surface, nil
	}

	if len(content.Rects) > 0 {
		r.fillRects(surface, content.Rects, vp)
	}

	faces := newFaceCache(r.font)
	defer faces.close()

	ink := image.NewUniform(inkColor)
	for _, run := range content.Runs {
		if err := ctx.Err(); err != nil {
			return nil, ErrCancelled
		}

		tx := viewport.Compose(vp.Transform(), viewport.Matrix(run.Transform))
		size := math.Hypot(tx[2], tx[3])
		if size < minGlyphSize {
			continue
		}

		face, err := faces.get(math.Min(size, maxGlyphSize))
		if err != nil {
			return nil, fmt.Errorf("failed to create %.1fpx face: %w", size, err)
		}

		d := font.Drawer{
			Dst:  surface,
			Src:  ink,
			Face: face,
			Dot:  fixed.Point26_6{X: toFixed(tx[4]), Y: toFixed(tx[5])},
		}
		d.DrawString(run.Text)
	}

	return surface, nil
}

// fillRects paints the rule rectangles. Rectangles are mapped corner by
// corner so rotated pages come out right.
func (r *Renderer) fillRects(surface *image.RGBA, rects []pdf.Rect, vp viewport.Viewport) {
	b := surface.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	src := image.NewUniform(ruleColor)

	for _, rect := range rects {
		x0, y0 := vp.ToDevice(rect.X0, rect.Y0)
		x1, y1 := vp.ToDevice(rect.X1, rect.Y0)
		x2, y2 := vp.ToDevice(rect.X1, rect.Y1)
		x3, y3 := vp.ToDevice(rect.X0, rect.Y1)

		// Hairlines still get one device pixel.
		if math.Abs(x2-x0) < 1 {
			x1, x2 = x1+1, x2+1
		}
		if math.Abs(y2-y0) < 1 {
			y2, y3 = y2+1, y3+1
		}

		z.Reset(b.Dx(), b.Dy())
		z.MoveTo(float32(x0), float32(y0))
		z.LineTo(float32(x1), float32(y1))
		z.LineTo(float32(x2), float32(y2))
		z.LineTo(float32(x3), float32(y3))
		z.ClosePath()
		z.Draw(surface, b, src, image.Point{})
	}
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}

// faceCache keeps one face per quarter-pixel size for the duration of a
// single render. Faces are not safe for concurrent use, so the cache is
// never shared between renders.
type faceCache struct {
	font  *opentype.Font
	faces map[int]font.Face
}

func newFaceCache(f *opentype.Font) *faceCache {
	return &faceCache{font: f, faces: make(map[int]font.Face)}
}

func (c *faceCache) get(size float64) (font.Face, error) {
	key := int(math.Round(size * 4))
	if face, ok := c.faces[key]; ok {
		return face, nil
	}
	face, err := opentype.NewFace(c.font, &opentype.FaceOptions{
		Size:    float64(key) / 4,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, err
	}
	c.faces[key] = face
	return face, nil
}

func (c *faceCache) close() {
	for _, face := range c.faces {
		face.Close()
	}
}
