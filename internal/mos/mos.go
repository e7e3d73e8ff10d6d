// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mos predicts Mean Opinion Score of a video from its sampled tiles
// with two chained models: a tile scorer and a sequence aggregator.
package mos

import (
	"errors"
	"fmt"

	"github.com/evolution-gaming/nrmos/internal/logging"
	"github.com/evolution-gaming/nrmos/internal/sampler"
	"github.com/evolution-gaming/nrmos/internal/source"
)

// TileScorer scores every tile of a batch, one score per tile in batch
// order.
type TileScorer interface {
	ScoreTiles(b *sampler.Batch) ([]float64, error)
}

// Aggregator reduces per-frame tile scores of a whole video into its MOS.
type Aggregator interface {
	Aggregate(s *ScoreSequence) (float64, error)
}

// Result of a prediction.
type Result struct {
	MOS           float64
	Frames        int
	TilesPerFrame int
	FrameScores   FrameScores
}

// Pipeline chains tile scoring and aggregation.
type Pipeline struct {
	Scorer     TileScorer
	Aggregator Aggregator
}

func (p *Pipeline) check() error {
	if p.Scorer == nil || p.Aggregator == nil {
		return errors.New("pipeline requires both scorer and aggregator")
	}
	return nil
}

// Predict scores already extracted batch holding tilesPerFrame tiles of
// every sampled frame.
func (p *Pipeline) Predict(b *sampler.Batch, tilesPerFrame int) (Result, error) {
	if err := p.check(); err != nil {
		return Result{}, err
	}
	if tilesPerFrame <= 0 || b.Tiles()%tilesPerFrame != 0 {
		return Result{}, fmt.Errorf("%w: %d tiles not a multiple of %d", ErrScoreCount, b.Tiles(), tilesPerFrame)
	}
	scores, err := p.Scorer.ScoreTiles(b)
	if err != nil {
		return Result{}, fmt.Errorf("scoring tiles: %w", err)
	}
	return p.aggregate(scores, b.Tiles()/tilesPerFrame, tilesPerFrame, b.Positions)
}

// PredictStream samples d and scores tiles frame by frame, so at most one
// frame's tiles are held in memory.
func (p *Pipeline) PredictStream(d source.Decoder, opts sampler.Options) (Result, error) {
	if err := p.check(); err != nil {
		return Result{}, err
	}
	var (
		scores    []float64
		positions []int
		perFrame  int
	)
	err := sampler.Walk(d, opts, func(ft sampler.FrameTiles) error {
		perFrame = len(ft.Tiles)
		s, err := p.Scorer.ScoreTiles(sampler.NewBatch(ft))
		if err != nil {
			return fmt.Errorf("scoring tiles of frame %d: %w", ft.Position, err)
		}
		if len(s) != perFrame {
			return fmt.Errorf("%w: %d scores for %d tiles of frame %d", ErrScoreCount, len(s), perFrame, ft.Position)
		}
		scores = append(scores, s...)
		positions = append(positions, ft.Position)
		logging.Debugf("Frame %d (sample %d) scored", ft.Position, ft.Index)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return p.aggregate(scores, len(positions), perFrame, positions)
}

func (p *Pipeline) aggregate(scores []float64, frames, tilesPerFrame int, positions []int) (Result, error) {
	seq, err := Reshape(scores, frames, tilesPerFrame)
	if err != nil {
		return Result{}, err
	}
	mos, err := p.Aggregator.Aggregate(seq)
	if err != nil {
		return Result{}, fmt.Errorf("aggregating scores: %w", err)
	}

	res := Result{MOS: mos, Frames: frames, TilesPerFrame: tilesPerFrame}
	for i, m := range seq.FrameMeans() {
		fs := FrameScore{Sample: i, Score: m}
		if i < len(positions) {
			fs.Position = positions[i]
		}
		res.FrameScores = append(res.FrameScores, fs)
	}
	return res, nil
}
