// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package frame holds decoded picture representations: planar YUV frames as
// produced by decoders and interleaved RGB frames consumed by the tiler.
package frame

import (
	"errors"
	"fmt"
	"strconv"
)

var ErrInvalidChroma = errors.New("invalid chroma format")

// ChromaFormat is a chroma subsampling format in its "J:a:b" three digit
// notation, e.g. 420.
type ChromaFormat int

const (
	Chroma411 ChromaFormat = 411
	Chroma420 ChromaFormat = 420
	Chroma410 ChromaFormat = 410
	Chroma422 ChromaFormat = 422
	Chroma444 ChromaFormat = 444
	Chroma440 ChromaFormat = 440
)

// Luma to chroma plane size divisors, {vertical, horizontal}.
var chromaDivisors = map[ChromaFormat][2]int{
	Chroma411: {1, 4},
	Chroma420: {2, 2},
	Chroma410: {2, 4},
	Chroma422: {1, 2},
	Chroma444: {1, 1},
	Chroma440: {2, 1},
}

// Divisors returns vertical and horizontal divisors of luma plane dimensions
// giving chroma plane dimensions.
func (c ChromaFormat) Divisors() (vertical, horizontal int, ok bool) {
	d, ok := chromaDivisors[c]
	return d[0], d[1], ok
}

// Valid reports whether chroma format is known.
func (c ChromaFormat) Valid() bool {
	_, ok := chromaDivisors[c]
	return ok
}

func (c ChromaFormat) String() string {
	return strconv.Itoa(int(c))
}

// ParseChromaFormat parses "420" style chroma format.
func ParseChromaFormat(s string) (ChromaFormat, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChroma, s)
	}
	c := ChromaFormat(v)
	if !c.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChroma, s)
	}
	return c, nil
}

// Plane is a single row-major plane of integer samples. Samples are wide
// enough for any bit depth up to 16.
type Plane struct {
	Width  int
	Height int
	Pix    []uint16
}

// NewPlane allocates zeroed plane.
func NewPlane(width, height int) Plane {
	return Plane{Width: width, Height: height, Pix: make([]uint16, width*height)}
}

// At returns sample at column x, row y.
func (p Plane) At(x, y int) uint16 {
	return p.Pix[y*p.Width+x]
}

func (p Plane) valid() bool {
	return p.Width > 0 && p.Height > 0 && len(p.Pix) == p.Width*p.Height
}

// rows returns every second row starting with row offset.
func (p Plane) rows(offset int) Plane {
	h := (p.Height - offset + 1) / 2
	out := NewPlane(p.Width, h)
	for y := 0; y < h; y++ {
		src := (offset + 2*y) * p.Width
		copy(out.Pix[y*p.Width:(y+1)*p.Width], p.Pix[src:src+p.Width])
	}
	return out
}

// Planar is a decoded YUV frame. Chroma planes are subsampled according to
// the ChromaFormat the frame was decoded with.
type Planar struct {
	Y, U, V Plane
}

// Fields splits frame into top (even rows) and bottom (odd rows) fields. Each
// plane is strided independently.
func (p *Planar) Fields() (top, bottom *Planar) {
	top = &Planar{Y: p.Y.rows(0), U: p.U.rows(0), V: p.V.rows(0)}
	bottom = &Planar{Y: p.Y.rows(1), U: p.U.rows(1), V: p.V.rows(1)}
	return top, bottom
}

// RGB is 8-bit interleaved, channel-last RGB picture.
type RGB struct {
	Width  int
	Height int
	// R, G, B samples of pixel (x, y) start at 3*(y*Width+x).
	Pix []uint8
}

// NewRGB allocates black RGB picture.
func NewRGB(width, height int) *RGB {
	return &RGB{Width: width, Height: height, Pix: make([]uint8, 3*width*height)}
}

// At returns colour of pixel at column x, row y.
func (r *RGB) At(x, y int) (red, green, blue uint8) {
	i := 3 * (y*r.Width + x)
	return r.Pix[i], r.Pix[i+1], r.Pix[i+2]
}
