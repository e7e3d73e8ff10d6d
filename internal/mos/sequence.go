// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mos

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var ErrScoreCount = errors.New("tile score count mismatch")

// ScoreSequence holds tile scores of sampled frames, one row per frame. It is
// the (frames, tiles, 1) input of the aggregation stage.
type ScoreSequence struct {
	m *mat.Dense
}

// Reshape arranges flat tile scores into frames x tilesPerFrame sequence.
func Reshape(scores []float64, frames, tilesPerFrame int) (*ScoreSequence, error) {
	if frames <= 0 || tilesPerFrame <= 0 {
		return nil, fmt.Errorf("%w: invalid shape (%d, %d)", ErrScoreCount, frames, tilesPerFrame)
	}
	if len(scores) != frames*tilesPerFrame {
		return nil, fmt.Errorf("%w: %d scores for %d frames of %d tiles",
			ErrScoreCount, len(scores), frames, tilesPerFrame)
	}
	data := make([]float64, len(scores))
	copy(data, scores)
	return &ScoreSequence{m: mat.NewDense(frames, tilesPerFrame, data)}, nil
}

// Dims returns number of frames and tiles per frame.
func (s *ScoreSequence) Dims() (frames, tilesPerFrame int) {
	return s.m.Dims()
}

// Tensor returns scores flattened in (frames, tiles, 1) order.
func (s *ScoreSequence) Tensor() []float64 {
	r, c := s.m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, s.m.RawRowView(i)...)
	}
	return out
}

// Frame returns tile scores of i-th frame.
func (s *ScoreSequence) Frame(i int) []float64 {
	return mat.Row(nil, i, s.m)
}

// FrameMeans returns mean tile score of every frame.
func (s *ScoreSequence) FrameMeans() []float64 {
	r, _ := s.m.Dims()
	means := make([]float64, r)
	for i := range means {
		means[i] = stat.Mean(s.m.RawRowView(i), nil)
	}
	return means
}
