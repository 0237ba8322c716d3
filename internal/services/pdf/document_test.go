package pdf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shimizu-Technology/study-viewer/internal/pdftest"
)

func TestOpen_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not a pdf", []byte("hello world")},
		{"header only", pdftest.Corrupt()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Open(tt.data)
			require.Error(t, err)
			assert.Nil(t, doc)
			assert.True(t, errors.Is(err, ErrInvalidDocument), "got %v", err)
		})
	}
}

func TestOpen_PageCountAndGeometry(t *testing.T) {
	data := pdftest.Build(
		pdftest.Page{Lines: []pdftest.Line{{Text: "first", X: 72, Y: 720, Size: 12}}},
		pdftest.Page{MediaBox: &[4]float64{0, 0, 300, 400}, Rotate: 90},
	)

	doc, err := Open(data)
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, 2, doc.NumPages())

	p1, err := doc.Page(1)
	require.NoError(t, err)
	assert.Equal(t, Box{X0: 0, Y0: 0, X1: 612, Y1: 792}, p1.Box(), "inherited from the page tree")
	assert.Equal(t, 0, p1.Rotation())

	p2, err := doc.Page(2)
	require.NoError(t, err)
	assert.Equal(t, Box{X0: 0, Y0: 0, X1: 300, Y1: 400}, p2.Box())
	assert.Equal(t, 90, p2.Rotation())
}

func TestDocument_PageOutOfRange(t *testing.T) {
	doc, err := Open(pdftest.Simple(3))
	require.NoError(t, err)
	defer doc.Close()

	for _, n := range []int{0, -1, 4} {
		_, err := doc.Page(n)
		assert.ErrorIs(t, err, ErrPageOutOfRange, "page %d", n)
	}
}

func TestDocument_CloseIsIdempotent(t *testing.T) {
	doc, err := Open(pdftest.Simple(1))
	require.NoError(t, err)

	page, err := doc.Page(1)
	require.NoError(t, err)

	doc.Close()
	doc.Close()

	assert.True(t, doc.Closed())
	_, err = doc.Page(1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = page.Content()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPage_ContentRuns(t *testing.T) {
	data := pdftest.Build(pdftest.Page{
		Lines: []pdftest.Line{
			{Text: "Hello world", X: 72, Y: 720, Size: 12},
			{Text: "Second line", X: 72, Y: 700, Size: 12},
		},
		Rules: []pdftest.Rule{{X: 72, Y: 690, W: 200, H: 1}},
	})

	doc, err := Open(data)
	require.NoError(t, err)
	defer doc.Close()

	page, err := doc.Page(1)
	require.NoError(t, err)

	content, err := page.Content()
	require.NoError(t, err)

	require.Len(t, content.Runs, 2)
	assert.Equal(t, "Hello world", content.Runs[0].Text)
	assert.Equal(t, "Helvetica", content.Runs[0].FontName)
	assert.Equal(t, [6]float64{12, 0, 0, 12, 72, 720}, content.Runs[0].Transform)
	assert.InDelta(t, 11*6.0, content.Runs[0].Width, 1e-6)
	assert.Equal(t, "Second line", content.Runs[1].Text)

	require.Len(t, content.Rects, 1)
	assert.Equal(t, Rect{X0: 72, Y0: 690, X1: 272, Y1: 691}, content.Rects[0])
}

func TestValidatePDF(t *testing.T) {
	assert.True(t, ValidatePDF([]byte("%PDF-1.7")))
	assert.False(t, ValidatePDF([]byte("%PDF")))
	assert.False(t, ValidatePDF([]byte("<html>")))
}

func TestNormalizeRotation(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 0}, {90, 90}, {180, 180}, {270, 270},
		{360, 0}, {450, 90}, {-90, 270}, {45, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeRotation(tt.in), "rotation %d", tt.in)
	}
}
