// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sampler

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas32"
)

// Shape is tensor shape: tiles, height, width, channels.
type Shape [4]int

// Len is number of elements in tensor of shape s.
func (s Shape) Len() int {
	return s[0] * s[1] * s[2] * s[3]
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", s[0], s[1], s[2], s[3])
}

// Batch is a channel-last float32 tensor of tiles with samples in [0,1].
type Batch struct {
	Shape Shape
	Data  []float32
	// Decoded stream position of frame every group of tiles came from.
	Positions []int
}

// NewBatch builds normalized batch from tiles of a single frame.
func NewBatch(ft FrameTiles) *Batch {
	b := &Batch{}
	b.appendFrame(ft)
	b.normalize()
	return b
}

// Tiles is number of tiles in batch.
func (b *Batch) Tiles() int {
	return b.Shape[0]
}

// TileSize is number of samples in a tile.
func (b *Batch) TileSize() int {
	return b.Shape[1] * b.Shape[2] * b.Shape[3]
}

// Slice returns batch of tiles [i, j) sharing data with b.
func (b *Batch) Slice(i, j int) *Batch {
	n := b.TileSize()
	s := &Batch{Shape: b.Shape, Data: b.Data[i*n : j*n]}
	s.Shape[0] = j - i
	return s
}

func (b *Batch) appendFrame(ft FrameTiles) {
	if len(ft.Tiles) == 0 {
		return
	}
	if b.Shape[0] == 0 {
		b.Shape = Shape{0, ft.Tiles[0].Height, ft.Tiles[0].Width, 3}
	}
	for _, t := range ft.Tiles {
		b.Data = append(b.Data, t.Pix...)
	}
	b.Shape[0] += len(ft.Tiles)
	b.Positions = append(b.Positions, ft.Position)
}

// normalize maps 8-bit sample range to [0,1].
func (b *Batch) normalize() {
	if len(b.Data) == 0 {
		return
	}
	blas32.Scal(1.0/255, blas32.Vector{N: len(b.Data), Inc: 1, Data: b.Data})
}
