// Package pdf provides the document handle the viewer renders from.
//
// We use the ledongthuc/pdf library for parsing and positioned text.
// It's a pure Go implementation - no CGO or external dependencies required.
// The library panics on some malformed streams, so every call into it goes
// through a recover and comes back out as a plain error.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrInvalidDocument marks a document-level failure. The viewer treats it as fatal.
	ErrInvalidDocument = errors.New("invalid PDF document")
	// ErrPageOutOfRange is returned for page numbers outside [1, NumPages].
	ErrPageOutOfRange = errors.New("page out of range")
	// ErrClosed is returned once the document handle has been released.
	ErrClosed = errors.New("document closed")
)

// letterBox is used when a page carries no usable MediaBox.
var letterBox = Box{X0: 0, Y0: 0, X1: 612, Y1: 792}

// maxInheritDepth bounds the walk up the page tree for inherited attributes.
const maxInheritDepth = 32

// Document is an opened PDF. It is safe for concurrent use; calls into the
// underlying reader are serialized.
type Document struct {
	mu     sync.Mutex
	reader *pdf.Reader
	pages  int
	size   int
	closed bool
}

// Open parses a PDF held in memory.
//
// Go Pattern: We accept the bytes instead of a filename because the data
// comes from an upload, not a file on disk. The pdf library requires
// io.ReaderAt for random access, and bytes.Reader gives us that for free.
func Open(data []byte) (doc *Document, err error) {
	if !ValidatePDF(data) {
		return nil, fmt.Errorf("%w: missing %%PDF- header", ErrInvalidDocument)
	}

	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("%w: %v", ErrInvalidDocument, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	pages := reader.NumPage()
	if pages == 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrInvalidDocument)
	}

	return &Document{reader: reader, pages: pages, size: len(data)}, nil
}

// NumPages returns the page count.
func (d *Document) NumPages() int {
	return d.pages
}

// Size returns the size of the source file in bytes.
func (d *Document) Size() int {
	return d.size
}

// Page fetches the handle for page n (1-indexed).
func (d *Document) Page(n int) (page *Page, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	if n < 1 || n > d.pages {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrPageOutOfRange, n, d.pages)
	}

	defer func() {
		if r := recover(); r != nil {
			page = nil
			err = fmt.Errorf("failed to load page %d: %v", n, r)
		}
	}()

	p := d.reader.Page(n)
	if p.V.IsNull() {
		return nil, fmt.Errorf("failed to load page %d: missing page object", n)
	}

	return &Page{
		doc:      d,
		number:   n,
		value:    p,
		box:      pageBox(p.V),
		rotation: pageRotation(p.V),
	}, nil
}

// Close releases the handle. Calling it more than once is a no-op.
func (d *Document) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.reader = nil
}

// Closed reports whether Close has been called.
func (d *Document) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Page is a lazily fetched page handle. Its geometry depends on nothing but
// the page dictionary; scale is applied later by a viewport.
type Page struct {
	doc      *Document
	number   int
	value    pdf.Page
	box      Box
	rotation int
}

// Number returns the 1-indexed page number.
func (p *Page) Number() int { return p.number }

// Box returns the visible page area in user space.
func (p *Page) Box() Box { return p.box }

// Rotation returns the page rotation in degrees (0, 90, 180 or 270).
func (p *Page) Rotation() int { return p.rotation }

// Content extracts the page's text runs and rule rectangles.
// A failure here is page-level: other pages stay readable.
func (p *Page) Content() (content *Content, err error) {
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()

	if p.doc.closed {
		return nil, ErrClosed
	}

	defer func() {
		if r := recover(); r != nil {
			content = nil
			err = fmt.Errorf("failed to read content of page %d: %v", p.number, r)
		}
	}()

	raw := p.value.Content()

	rects := make([]Rect, 0, len(raw.Rect))
	for _, r := range raw.Rect {
		rects = append(rects, Rect{
			X0: math.Min(r.Min.X, r.Max.X),
			Y0: math.Min(r.Min.Y, r.Max.Y),
			X1: math.Max(r.Min.X, r.Max.X),
			Y1: math.Max(r.Min.Y, r.Max.Y),
		})
	}

	return &Content{
		Runs:  groupGlyphs(raw.Text),
		Rects: rects,
	}, nil
}

// pageBox resolves CropBox, then MediaBox, walking up through inherited
// attributes. Falls back to US Letter.
func pageBox(v pdf.Value) Box {
	for _, key := range []string{"CropBox", "MediaBox"} {
		if b, ok := boxFromValue(inherited(v, key)); ok {
			return b
		}
	}
	return letterBox
}

func boxFromValue(v pdf.Value) (Box, bool) {
	if v.Kind() != pdf.Array || v.Len() != 4 {
		return Box{}, false
	}
	x0, y0 := v.Index(0).Float64(), v.Index(1).Float64()
	x1, y1 := v.Index(2).Float64(), v.Index(3).Float64()
	b := Box{
		X0: math.Min(x0, x1),
		Y0: math.Min(y0, y1),
		X1: math.Max(x0, x1),
		Y1: math.Max(y0, y1),
	}
	if b.Width() <= 0 || b.Height() <= 0 {
		return Box{}, false
	}
	return b, true
}

func pageRotation(v pdf.Value) int {
	r := inherited(v, "Rotate")
	if r.IsNull() {
		return 0
	}
	return NormalizeRotation(int(r.Int64()))
}

// NormalizeRotation maps any rotation to one of 0, 90, 180, 270.
// Values that are not a multiple of 90 are treated as 0, as viewers do.
func NormalizeRotation(deg int) int {
	if deg%90 != 0 {
		return 0
	}
	return ((deg % 360) + 360) % 360
}

func inherited(v pdf.Value, key string) pdf.Value {
	for i := 0; i < maxInheritDepth && !v.IsNull(); i++ {
		if val := v.Key(key); !val.IsNull() {
			return val
		}
		v = v.Key("Parent")
	}
	return pdf.Value{}
}

// ValidatePDF checks if the data looks like a valid PDF by checking the magic bytes.
func ValidatePDF(data []byte) bool {
	// PDF files start with "%PDF-"
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}
