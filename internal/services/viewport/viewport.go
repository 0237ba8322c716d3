// Package viewport maps PDF user space to device pixels for one (page, scale) pair.
//
// Go Pattern: Viewport is a value type. Every method has a value receiver
// and returns new values, so a Viewport handed to a render task can never
// change underneath it when the user zooms.
package viewport

import (
	"math"

	"github.com/Shimizu-Technology/study-viewer/internal/services/pdf"
)

// Matrix is an affine transform [a b c d e f]:
//
//	x' = a*x + c*y + e
//	y' = b*x + d*y + f
type Matrix [6]float64

// Identity returns the identity transform.
func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Multiply returns the transform that applies m first, then o.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

// Apply transforms a point.
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// Compose returns outer∘inner: inner is applied first. This is the order
// used to place a text item (inner) on a viewport (outer).
func Compose(outer, inner Matrix) Matrix {
	return inner.Multiply(outer)
}

// Viewport is the transform for one page at one scale.
type Viewport struct {
	box       pdf.Box
	scale     float64
	rotation  int
	width     float64
	height    float64
	transform Matrix
}

// New computes the viewport for a page box at the given scale and rotation.
// Device space has its origin at the top-left corner with y growing down.
func New(box pdf.Box, scale float64, rotation int) Viewport {
	rotation = pdf.NormalizeRotation(rotation)
	cx := (box.X0 + box.X1) / 2
	cy := (box.Y0 + box.Y1) / 2

	var ra, rb, rc, rd float64
	switch rotation {
	case 90:
		ra, rb, rc, rd = 0, 1, 1, 0
	case 180:
		ra, rb, rc, rd = -1, 0, 0, 1
	case 270:
		ra, rb, rc, rd = 0, -1, -1, 0
	default:
		ra, rb, rc, rd = 1, 0, 0, -1
	}

	var offX, offY, width, height float64
	if ra == 0 {
		offX = math.Abs(cy-box.Y0) * scale
		offY = math.Abs(cx-box.X0) * scale
		width = box.Height() * scale
		height = box.Width() * scale
	} else {
		offX = math.Abs(cx-box.X0) * scale
		offY = math.Abs(cy-box.Y0) * scale
		width = box.Width() * scale
		height = box.Height() * scale
	}

	return Viewport{
		box:      box,
		scale:    scale,
		rotation: rotation,
		width:    width,
		height:   height,
		transform: Matrix{
			ra * scale,
			rb * scale,
			rc * scale,
			rd * scale,
			offX - ra*scale*cx - rc*scale*cy,
			offY - rb*scale*cx - rd*scale*cy,
		},
	}
}

// Transform returns the user-space to device-space matrix.
func (v Viewport) Transform() Matrix { return v.transform }

// Scale returns the zoom factor.
func (v Viewport) Scale() float64 { return v.scale }

// Rotation returns the page rotation in degrees.
func (v Viewport) Rotation() int { return v.rotation }

// Box returns the page box the viewport was built from.
func (v Viewport) Box() pdf.Box { return v.box }

// Width returns the device width, unrounded.
func (v Viewport) Width() float64 { return v.width }

// Height returns the device height, unrounded.
func (v Viewport) Height() float64 { return v.height }

// PixelSize returns the integer surface dimensions. Fractions are dropped
// like a canvas does when assigned a float size; each side is at least 1.
func (v Viewport) PixelSize() (int, int) {
	w, h := int(v.width), int(v.height)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// ToDevice maps a user-space point to device pixels.
func (v Viewport) ToDevice(x, y float64) (float64, float64) {
	return v.transform.Apply(x, y)
}
