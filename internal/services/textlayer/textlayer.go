// Package textlayer builds the invisible, selectable text overlay that sits
// on top of a rendered page, and reduces the same runs to plain text.
//
// The package knows nothing about DOM nodes or widgets. It returns an
// immutable list of positioned regions; the presentation layer renders each
// one as a transparent element that accepts selection.
package textlayer

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/Shimizu-Technology/study-viewer/internal/services/pdf"
	"github.com/Shimizu-Technology/study-viewer/internal/services/viewport"
)

// Defaults for Options. Both are heuristics observed to line up with common
// fonts; neither is guaranteed for every font's metrics.
const (
	DefaultAscentRatio   = 0.8
	DefaultLineThreshold = 5.0
	defaultFontFamily    = "sans-serif"
)

// Options tunes the reconciler.
type Options struct {
	AscentRatio   float64 // fraction of the font size between baseline and top of box
	LineThreshold float64 // baseline delta, in user-space units, that starts a new line
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{AscentRatio: DefaultAscentRatio, LineThreshold: DefaultLineThreshold}
}

func (o Options) withDefaults() Options {
	if o.AscentRatio <= 0 {
		o.AscentRatio = DefaultAscentRatio
	}
	if o.LineThreshold <= 0 {
		o.LineThreshold = DefaultLineThreshold
	}
	return o
}

// Region is one selectable text box in device pixels.
type Region struct {
	Text       string  `json:"text"`
	Left       float64 `json:"left"`
	Top        float64 `json:"top"`
	BaselineX  float64 `json:"baseline_x"`
	BaselineY  float64 `json:"baseline_y"`
	FontSize   float64 `json:"font_size"`
	FontFamily string  `json:"font_family"`
	Width      float64 `json:"width"`
}

// Stats counts what the plain-text reduction produced.
type Stats struct {
	Lines      int `json:"lines"`
	Words      int `json:"words"`
	Characters int `json:"characters"`
}

// Layer is the overlay and derived text for one (page, scale) pair.
type Layer struct {
	Regions   []Region `json:"regions"`
	PlainText string   `json:"plain_text"`
	Stats     Stats    `json:"stats"`
}

// Summary renders the extraction info line shown beside a page.
func (l Layer) Summary(page int) string {
	return fmt.Sprintf("Extracted %d lines, %d words, %d characters from page %d",
		l.Stats.Lines, l.Stats.Words, l.Stats.Characters, page)
}

// Build places one region per run and reduces the runs to plain text.
// It is rebuilt from scratch for every page and scale; nothing is reused.
func Build(runs []pdf.TextRun, vp viewport.Viewport, opts Options) Layer {
	opts = opts.withDefaults()

	regions := make([]Region, 0, len(runs))
	for _, run := range runs {
		regions = append(regions, place(run, vp, opts))
	}

	text, lines := reduce(runs, opts.LineThreshold)
	return Layer{
		Regions:   regions,
		PlainText: text,
		Stats: Stats{
			Lines:      lines,
			Words:      len(strings.Fields(text)),
			Characters: utf8.RuneCountInString(text),
		},
	}
}

// place composes the run's transform with the viewport's and positions the
// box so its top sits one ascent above the baseline.
func place(run pdf.TextRun, vp viewport.Viewport, opts Options) Region {
	tx := viewport.Compose(vp.Transform(), viewport.Matrix(run.Transform))
	fontSize := math.Sqrt(tx[2]*tx[2] + tx[3]*tx[3])

	family := run.FontName
	if family == "" {
		family = defaultFontFamily
	}

	return Region{
		Text:       run.Text,
		Left:       tx[4],
		Top:        tx[5] - fontSize*opts.AscentRatio,
		BaselineX:  tx[4],
		BaselineY:  tx[5],
		FontSize:   fontSize,
		FontFamily: family,
		Width:      run.Width * vp.Scale(),
	}
}

// PlainText reduces runs to lines of text. Best effort: lines are found by
// comparing consecutive baselines, not by real layout analysis.
func PlainText(runs []pdf.TextRun, threshold float64) string {
	if threshold <= 0 {
		threshold = DefaultLineThreshold
	}
	text, _ := reduce(runs, threshold)
	return text
}

func reduce(runs []pdf.TextRun, threshold float64) (string, int) {
	var (
		lines   []string
		current strings.Builder
		lastY   float64
		started bool
	)

	push := func() {
		if line := strings.TrimSpace(current.String()); line != "" {
			lines = append(lines, line)
		}
		current.Reset()
	}

	for _, run := range runs {
		y := run.Y()
		if !started || math.Abs(y-lastY) > threshold {
			push()
		}
		current.WriteString(run.Text)
		lastY = y
		started = true
	}
	push()

	return strings.TrimSpace(strings.Join(lines, "\n")), len(lines)
}
