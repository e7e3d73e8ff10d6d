// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mos

import (
	"encoding/json"
	"fmt"
	"io"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FrameScore is the mean tile score of a single sampled frame.
type FrameScore struct {
	// Ordinal among sampled frames
	Sample int
	// 0-based position of the frame in decoded stream
	Position int
	Score    float64
}

type FrameScores []FrameScore

func (fs *FrameScores) FromJSON(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("FromJSON() Read from io.Reader: %w", err)
	}

	if err := json.Unmarshal(data, fs); err != nil {
		return fmt.Errorf("FromJSON() JSON unmarshal: %w", err)
	}

	return nil
}

func (fs *FrameScores) ToJSON(w io.Writer) error {
	jDoc, err := json.MarshalIndent(fs, "", "  ")
	if err != nil {
		return fmt.Errorf("ToJSON() marshal: %w", err)
	}

	if _, err := w.Write(jDoc); err != nil {
		return fmt.Errorf("ToJSON() write to Writer: %w", err)
	}

	return nil
}

// Values returns scores as a vector.
func (fs FrameScores) Values() []float64 {
	v := make([]float64, len(fs))
	for i := range fs {
		v[i] = fs[i].Score
	}
	return v
}

// Positions returns decoded stream positions of frames.
func (fs FrameScores) Positions() []int {
	p := make([]int, len(fs))
	for i := range fs {
		p[i] = fs[i].Position
	}
	return p
}

// Summary is descriptive statistics of frame scores.
type Summary struct {
	Mean         float64
	HarmonicMean float64
	Min          float64
	Max          float64
	StDev        float64
	Variance     float64
}

// Summary aggregates frame scores, zero Summary for no scores.
func (fs FrameScores) Summary() Summary {
	var s Summary
	v := fs.Values()
	if len(v) == 0 {
		return s
	}
	s.Min = floats.Min(v)
	s.Max = floats.Max(v)
	s.HarmonicMean = stat.HarmonicMean(v, nil)
	s.Variance = stat.Variance(v, nil)
	s.Mean, s.StDev = stat.MeanStdDev(v, nil)
	return s
}
