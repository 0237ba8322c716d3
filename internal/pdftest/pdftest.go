// Package pdftest builds small, well-formed PDF files for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

// Line is one text show operation.
type Line struct {
	Text string
	X, Y float64
	Size float64
}

// Rule is a filled rectangle in user space.
type Rule struct {
	X, Y, W, H float64
}

// Page describes one page of a fixture document.
type Page struct {
	Lines    []Line
	Rules    []Rule
	MediaBox *[4]float64 // nil inherits US Letter from the page tree
	Rotate   int
}

// GlyphWidth is the advance of every glyph, in 1/1000 text space units.
const GlyphWidth = 500

// Build returns the bytes of a PDF with the given pages. Every glyph uses
// Helvetica with WinAnsi encoding and a fixed advance of GlyphWidth.
func Build(pages ...Page) []byte {
	var objects []string

	// 1: catalog, 2: page tree, 3: font, then (page, contents) pairs.
	objects = append(objects, "<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objects = append(objects, fmt.Sprintf(
		"<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] >>",
		strings.Join(kids, " "), len(pages)))

	widths := make([]string, 0, 95)
	for c := 32; c <= 126; c++ {
		widths = append(widths, fmt.Sprint(GlyphWidth))
	}
	objects = append(objects, fmt.Sprintf(
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>",
		strings.Join(widths, " ")))

	for i, p := range pages {
		var extra strings.Builder
		if p.MediaBox != nil {
			fmt.Fprintf(&extra, " /MediaBox [%g %g %g %g]", p.MediaBox[0], p.MediaBox[1], p.MediaBox[2], p.MediaBox[3])
		}
		if p.Rotate != 0 {
			fmt.Fprintf(&extra, " /Rotate %d", p.Rotate)
		}
		objects = append(objects, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R%s >>",
			5+2*i, extra.String()))

		stream := contentStream(p)
		objects = append(objects, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	return buf.Bytes()
}

// Simple returns a document of n pages, each with a single line
// reading "Page <i>" at 12pt.
func Simple(n int) []byte {
	pages := make([]Page, n)
	for i := range pages {
		pages[i] = Page{Lines: []Line{{Text: fmt.Sprintf("Page %d", i+1), X: 72, Y: 720, Size: 12}}}
	}
	return Build(pages...)
}

// Corrupt returns bytes that carry a PDF header but no document structure.
func Corrupt() []byte {
	return []byte("%PDF-1.4\nthis is not a pdf body\n%%EOF\n")
}

func contentStream(p Page) string {
	var b strings.Builder
	for _, r := range p.Rules {
		fmt.Fprintf(&b, "%g %g %g %g re f\n", r.X, r.Y, r.W, r.H)
	}
	for _, l := range p.Lines {
		fmt.Fprintf(&b, "BT /F1 %g Tf %g %g Td (%s) Tj ET\n", l.Size, l.X, l.Y, escape(l.Text))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
