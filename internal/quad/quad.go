// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package quad cuts RGB frames into a multi-scale pyramid of tiles.
//
// Level 0 is the whole frame. Level k splits the frame into 2^k column slabs
// and every slab into 2^k row pieces, giving 4^k tiles. Every tile, whatever
// its source size, is resized to the same canonical size.
package quad

import (
	"errors"
	"fmt"
	"image"

	"github.com/evolution-gaming/nrmos/internal/frame"
)

var (
	ErrUnsupportedColorSpace = errors.New("unsupported colour space")
	ErrInvalidTiler          = errors.New("invalid tiler")
	ErrFrameTooSmall         = errors.New("frame too small for tiling depth")
)

// ColorSpaceRGB is the only colour space tiles can be produced from.
const ColorSpaceRGB = "rgb"

// Tile is a float32 channel-last RGB picture. Sample values keep the range
// of the source frame.
type Tile struct {
	Width  int
	Height int
	Pix    []float32
}

// Tiler produces Count(Depth) tiles of Height x Width from every frame.
type Tiler struct {
	Depth  int
	Height int
	Width  int
}

// DefaultTiler is the tiling the quality models are trained on.
var DefaultTiler = Tiler{Depth: 3, Height: 270, Width: 480}

// Count returns number of tiles per frame at given depth, sum of 4^k for
// k = 0..depth.
func Count(depth int) int {
	n, level := 0, 1
	for k := 0; k <= depth; k++ {
		n += level
		level *= 4
	}
	return n
}

// PerFrame is number of tiles produced from a frame.
func (t Tiler) PerFrame() int {
	return Count(t.Depth)
}

// TileSize is number of float32 samples in a tile.
func (t Tiler) TileSize() int {
	return t.Height * t.Width * 3
}

// Validate checks tiler parameters.
func (t Tiler) Validate() error {
	if t.Depth < 0 || t.Height <= 0 || t.Width <= 0 {
		return fmt.Errorf("%w: depth %d, tile %dx%d", ErrInvalidTiler, t.Depth, t.Width, t.Height)
	}
	return nil
}

// Rects returns source regions of all tiles of a width x height frame in
// output order: by level, then slab-major, then row-piece.
func (t Tiler) Rects(width, height int) ([]image.Rectangle, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	parts := 1 << t.Depth
	if width < parts || height < parts {
		return nil, fmt.Errorf("%w: %dx%d at depth %d", ErrFrameTooSmall, width, height, t.Depth)
	}

	rects := make([]image.Rectangle, 0, t.PerFrame())
	for k := 0; k <= t.Depth; k++ {
		n := 1 << k
		cols := Partition(width, n)
		rows := Partition(height, n)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				rects = append(rects, image.Rect(cols[i], rows[j], cols[i+1], rows[j+1]))
			}
		}
	}
	return rects, nil
}

// Partition splits [0,n) into parts contiguous near-equal pieces and returns
// parts+1 boundaries. The first n%parts pieces are one larger than the rest.
func Partition(n, parts int) []int {
	bounds := make([]int, parts+1)
	size, extra := n/parts, n%parts
	for i := 0; i < parts; i++ {
		step := size
		if i < extra {
			step++
		}
		bounds[i+1] = bounds[i] + step
	}
	return bounds
}

// Tile cuts img into tile pyramid.
func (t Tiler) Tile(img *frame.RGB, colorSpace string) ([]Tile, error) {
	if colorSpace != ColorSpaceRGB {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedColorSpace, colorSpace)
	}
	if img == nil {
		return nil, frame.ErrNoData
	}
	rects, err := t.Rects(img.Width, img.Height)
	if err != nil {
		return nil, err
	}

	tiles := make([]Tile, len(rects))
	for i, r := range rects {
		tiles[i] = Tile{Width: t.Width, Height: t.Height, Pix: make([]float32, t.TileSize())}
		resize(img, r, t.Width, t.Height, tiles[i].Pix)
	}
	return tiles, nil
}
