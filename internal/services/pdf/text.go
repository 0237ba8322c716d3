package pdf

import (
	"math"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Box is a rectangle in PDF user space (origin bottom-left).
type Box struct {
	X0, Y0, X1, Y1 float64
}

// Width returns the horizontal extent.
func (b Box) Width() float64 { return b.X1 - b.X0 }

// Height returns the vertical extent.
func (b Box) Height() float64 { return b.Y1 - b.Y0 }

// Rect is a rectangle painted by the page's content stream, in user space.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// TextRun is one positioned string fragment of a page.
//
// Transform follows the [a b c d e f] convention: (e, f) is the baseline
// origin in user space and the scale components carry the font size.
type TextRun struct {
	Text      string     `json:"text"`
	FontName  string     `json:"font_name"`
	Transform [6]float64 `json:"transform"`
	Width     float64    `json:"width"` // advance in user space
}

// X returns the baseline origin's horizontal coordinate.
func (r TextRun) X() float64 { return r.Transform[4] }

// Y returns the baseline origin's vertical coordinate.
func (r TextRun) Y() float64 { return r.Transform[5] }

// Content is everything the viewer needs from one page.
type Content struct {
	Runs  []TextRun
	Rects []Rect
}

// Glyph merge thresholds, as fractions of the font size.
const (
	baselineTolerance = 0.1  // same line if baselines differ less than this
	spaceGap          = 0.2  // a wider gap gets one space inserted
	columnGap         = 3.0  // a wider gap starts a new run
	backtrackGap      = -0.5 // moving left further than this starts a new run
)

// groupGlyphs merges the per-glyph output of the parser into runs.
// Glyphs join the current run when they share font and size, sit on the
// same baseline and follow it horizontally.
func groupGlyphs(glyphs []pdf.Text) []TextRun {
	var (
		runs []TextRun
		b    strings.Builder
		cur  TextRun
		size float64
		end  float64
		open bool
	)

	flush := func() {
		if !open {
			return
		}
		cur.Text = b.String()
		if strings.TrimSpace(cur.Text) != "" {
			runs = append(runs, cur)
		}
		b.Reset()
		open = false
	}

	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		fs := math.Abs(g.FontSize)
		if fs == 0 {
			fs = 1
		}

		if open && g.Font == cur.FontName && math.Abs(fs-size) < size*0.01+1e-9 &&
			math.Abs(g.Y-cur.Y()) <= size*baselineTolerance {
			gap := g.X - end
			switch {
			case gap < size*backtrackGap || gap > size*columnGap:
				flush()
			case gap > size*spaceGap:
				if !strings.HasSuffix(b.String(), " ") && g.S != " " {
					b.WriteByte(' ')
				}
			}
		} else {
			flush()
		}

		if !open {
			cur = TextRun{
				FontName:  g.Font,
				Transform: [6]float64{fs, 0, 0, fs, g.X, g.Y},
			}
			size = fs
			end = g.X
			open = true
		}

		b.WriteString(g.S)
		end = math.Max(end, g.X+g.W)
		cur.Width = end - cur.X()
	}
	flush()

	return runs
}
