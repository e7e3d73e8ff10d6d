// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sampler picks an evenly spaced, fixed number of frames from a
// decoder and turns each into a set of quad tiles.
package sampler

import (
	"errors"
	"fmt"
	"math"

	"github.com/evolution-gaming/nrmos/internal/frame"
	"github.com/evolution-gaming/nrmos/internal/logging"
	"github.com/evolution-gaming/nrmos/internal/quad"
	"github.com/evolution-gaming/nrmos/internal/source"
)

// DefaultTargetFrames is number of frames the video model expects.
const DefaultTargetFrames = 96

var (
	ErrInsufficientFrames = errors.New("insufficient source length")
	ErrShapeMismatch      = errors.New("sample batch shape mismatch")
)

// Options describe the source being sampled and how to sample it.
type Options struct {
	// Frame rate and duration in seconds, give the expected frame count.
	FPS      float64
	Duration float64
	BitDepth int
	Chroma   frame.ChromaFormat
	// Number of frames to select, DefaultTargetFrames if zero.
	TargetFrames int
	// Tiling applied to selected frames, quad.DefaultTiler if zero.
	Tiler quad.Tiler
}

func (o Options) withDefaults() Options {
	if o.TargetFrames == 0 {
		o.TargetFrames = DefaultTargetFrames
	}
	if o.Tiler == (quad.Tiler{}) {
		o.Tiler = quad.DefaultTiler
	}
	return o
}

// Selection is the frame selection pattern: every Divisor-th frame starting
// from the first, Target of them.
type Selection struct {
	Total   int
	Target  int
	Divisor int
}

// Plan computes selection of target frames out of total.
func Plan(total, target int) (Selection, error) {
	if target <= 0 {
		return Selection{}, fmt.Errorf("target frame count %d must be positive", target)
	}
	s := Selection{Total: total, Target: target, Divisor: total / target}
	if total < 0 || s.Divisor < 1 {
		return s, fmt.Errorf("%w: %d frames, need at least %d", ErrInsufficientFrames, total, target)
	}
	return s, nil
}

// Selected reports whether frame at 0-based position i is selected.
func (s Selection) Selected(i int) bool {
	return i%s.Divisor == 0
}

// TotalFrames is expected number of frames in a source of given frame rate
// and duration.
func TotalFrames(fps, duration float64) int {
	return int(math.Floor(fps * duration))
}

// FrameTiles is the tile set of one selected frame.
type FrameTiles struct {
	// Ordinal among selected frames
	Index int
	// 0-based position in decoded stream
	Position int
	Tiles    []quad.Tile
}

// Walk decodes d sequentially and calls fn with tiles of every selected
// frame, in order. It stops after the target number of frames has been
// selected, so only as many frames as needed are decoded.
//
// Walk does not close d.
func Walk(d source.Decoder, opts Options, fn func(FrameTiles) error) error {
	opts = opts.withDefaults()
	if err := opts.Tiler.Validate(); err != nil {
		return err
	}
	total := TotalFrames(opts.FPS, opts.Duration)
	sel, err := Plan(total, opts.TargetFrames)
	if err != nil {
		return err
	}
	logging.Debugf("Sampling %d of %d frames, every %d", sel.Target, sel.Total, sel.Divisor)

	picked := 0
	for pos := 0; picked < sel.Target; pos++ {
		p, err := d.LoadFrame()
		if source.IsEOS(err) {
			return fmt.Errorf("%w: stream ended after %d frames with %d of %d selected",
				ErrInsufficientFrames, pos, picked, sel.Target)
		}
		if err != nil {
			return fmt.Errorf("decoding frame %d: %w", pos, err)
		}
		if !sel.Selected(pos) {
			continue
		}

		rgb, err := frame.ToRGB(p, opts.BitDepth, opts.Chroma)
		if err != nil {
			return fmt.Errorf("converting frame %d: %w", pos, err)
		}
		tiles, err := opts.Tiler.Tile(rgb, quad.ColorSpaceRGB)
		if err != nil {
			return fmt.Errorf("tiling frame %d: %w", pos, err)
		}
		if err := fn(FrameTiles{Index: picked, Position: pos, Tiles: tiles}); err != nil {
			return err
		}
		picked++
	}
	return nil
}

// Extract collects tiles of all selected frames into a single normalized
// batch of shape (target*tilesPerFrame, H, W, 3).
//
// The batch of full size tiling of 96 frames takes about 12 GB, use Walk to
// process one frame at a time instead.
func Extract(d source.Decoder, opts Options) (*Batch, error) {
	opts = opts.withDefaults()
	t := opts.Tiler
	b := &Batch{}
	err := Walk(d, opts, func(ft FrameTiles) error {
		if b.Data == nil {
			n := opts.TargetFrames * t.PerFrame() * t.TileSize()
			b.Data = make([]float32, 0, n)
		}
		b.appendFrame(ft)
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.normalize()

	want := [4]int{opts.TargetFrames * t.PerFrame(), t.Height, t.Width, 3}
	if b.Shape != want || len(b.Data) != b.Shape.Len() {
		return nil, fmt.Errorf("%w: got %v with %d samples, want %v", ErrShapeMismatch, b.Shape, len(b.Data), want)
	}
	return b, nil
}
