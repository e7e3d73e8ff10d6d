// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package plan

import (
	"errors"
	"fmt"
	"os"

	"github.com/evolution-gaming/nrmos/internal/frame"
	"github.com/evolution-gaming/nrmos/internal/source"
	"github.com/evolution-gaming/nrmos/internal/video"
)

// Decode defaults for encoded inputs: the models expect 4K frames at a
// fixed frame rate.
const (
	DefaultDecodeWidth  = 3840
	DefaultDecodeHeight = 2160
	DefaultDecodeFPS    = 30
)

var ErrUnresolved = errors.New("unable to resolve input parameters")

// Job is a fully specified input ready for assessment.
type Job struct {
	Input
	Chroma   frame.ChromaFormat
	BitDepth int
}

// SourceConfig returns decoder configuration of job.
func (j Job) SourceConfig() (source.Config, error) {
	return source.NewConfig(j.File, j.Width, j.Height, j.FPS, j.BitDepth, j.Chroma)
}

// Resolver fills in unspecified input parameters.
type Resolver struct {
	Extractor video.MetadataExtractor
	// Decode geometry and frame rate of encoded inputs, package defaults if
	// zero.
	Width  int
	Height int
	FPS    float64
}

// Resolve turns input into job. Raw inputs must carry geometry, frame rate
// and pixel format, their duration is derived from file size when missing.
// Encoded inputs are probed for pixel format and duration.
func (r Resolver) Resolve(in Input) (Job, error) {
	j := Job{Input: in}
	if in.Raw {
		return r.resolveRaw(j)
	}
	return r.resolveEncoded(j)
}

func (r Resolver) resolveRaw(j Job) (Job, error) {
	if j.Width <= 0 || j.Height <= 0 || j.FPS <= 0 || j.PixFmt == "" {
		return j, fmt.Errorf("%w: %s: raw input requires width, height, fps and pixel format", ErrUnresolved, j.File)
	}
	if video.IsBigEndian(j.PixFmt) {
		return j, fmt.Errorf("%w: %s: raw samples must be little-endian, got %s", ErrUnresolved, j.File, j.PixFmt)
	}
	if err := j.parsePixFmt(); err != nil {
		return j, err
	}
	if !decodableDepth(j.BitDepth) {
		return j, fmt.Errorf("%w: %s: %w: %d", ErrUnresolved, j.File, frame.ErrUnsupportedDepth, j.BitDepth)
	}
	if j.Duration > 0 {
		return j, nil
	}
	cfg, err := j.SourceConfig()
	if err != nil {
		return j, err
	}
	fi, err := os.Stat(j.File)
	if err != nil {
		return j, fmt.Errorf("%w: %w", ErrUnresolved, err)
	}
	frames := fi.Size() / int64(cfg.FrameBytes())
	j.Duration = float64(frames) / j.FPS
	return j, nil
}

func (r Resolver) resolveEncoded(j Job) (Job, error) {
	if j.Width == 0 {
		j.Width = or(r.Width, DefaultDecodeWidth)
	}
	if j.Height == 0 {
		j.Height = or(r.Height, DefaultDecodeHeight)
	}
	if j.FPS == 0 {
		j.FPS = or(r.FPS, DefaultDecodeFPS)
	}
	if j.PixFmt == "" || j.Duration == 0 {
		if r.Extractor == nil {
			return j, fmt.Errorf("%w: %s: no metadata extractor", ErrUnresolved, j.File)
		}
		meta, err := r.Extractor.ExtractMetadata(j.File)
		if err != nil {
			return j, fmt.Errorf("%w: %s: %w", ErrUnresolved, j.File, err)
		}
		if j.PixFmt == "" {
			j.PixFmt = meta.PixFmt
		}
		if j.Duration == 0 {
			j.Duration = meta.Duration
		}
	}
	if j.Duration <= 0 {
		return j, fmt.Errorf("%w: %s: unknown duration", ErrUnresolved, j.File)
	}
	if err := j.parsePixFmt(); err != nil {
		return j, err
	}
	// ffmpeg converts deeper sources down to 8 bits.
	if !decodableDepth(j.BitDepth) {
		j.BitDepth = 8
	}
	return j, nil
}

// decodableDepth reports whether samples of given bit depth can be
// converted to RGB.
func decodableDepth(depth int) bool {
	return depth == 8 || depth == 10
}

func (j *Job) parsePixFmt() error {
	cf, depth, err := video.ParsePixFmt(j.PixFmt)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnresolved, j.File, err)
	}
	j.Chroma, j.BitDepth = cf, depth
	return nil
}

func or[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}
