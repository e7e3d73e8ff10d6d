// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Assessment of a single video with the model worker.

package main

import (
	"fmt"
	"time"

	"github.com/evolution-gaming/nrmos/internal/logging"
	"github.com/evolution-gaming/nrmos/internal/model"
	"github.com/evolution-gaming/nrmos/internal/mos"
	"github.com/evolution-gaming/nrmos/internal/plan"
	"github.com/evolution-gaming/nrmos/internal/sampler"
	"github.com/evolution-gaming/nrmos/internal/source"
)

// assessor scores jobs one at a time. Model worker is started once and
// shared by all jobs, decoder is opened per job.
type assessor struct {
	cfg      *Config
	worker   *model.Worker
	pipeline mos.Pipeline
	// Extract complete sample batch before scoring instead of scoring frame
	// by frame.
	inMemory bool
}

// assessment is outcome of a single job.
type assessment struct {
	Job     plan.Job
	Decoder string
	Result  mos.Result
	Elapsed time.Duration
	// Decoder process usage, zero for raw files.
	Usage source.UsageStat
}

func newAssessor(cfg *Config) (*assessor, error) {
	logging.Infof("Loading models %s and %s", cfg.ImageModelPath.Value(), cfg.VideoModelPath.Value())
	w, err := model.Start(cfg.workerConfig())
	if err != nil {
		return nil, fmt.Errorf("starting model worker: %w", err)
	}
	return &assessor{
		cfg:      cfg,
		worker:   w,
		pipeline: mos.Pipeline{Scorer: w, Aggregator: w},
	}, nil
}

// Close stops model worker.
func (a *assessor) Close() error {
	return a.worker.Close()
}

func (a *assessor) samplerOptions(j plan.Job) sampler.Options {
	return sampler.Options{
		FPS:          j.FPS,
		Duration:     j.Duration,
		BitDepth:     j.BitDepth,
		Chroma:       j.Chroma,
		TargetFrames: a.cfg.TargetFrames.Value(),
		Tiler:        a.cfg.tiler(),
	}
}

// openDecoder picks decoder variant of job.
func (a *assessor) openDecoder(j plan.Job) (source.Decoder, string, error) {
	cfg, err := j.SourceConfig()
	if err != nil {
		return nil, "", err
	}
	if j.Raw {
		d, err := source.OpenRaw(cfg)
		if err != nil {
			return nil, "", err
		}
		return d, "raw", nil
	}
	d, err := source.StartFFmpeg(cfg, a.cfg.ffmpegOptions())
	if err != nil {
		return nil, "", err
	}
	return d, "ffmpeg", nil
}

// assess predicts MOS of job. Decoder is always closed before return.
func (a *assessor) assess(j plan.Job) (as assessment, err error) {
	as.Job = j
	start := time.Now()

	d, kind, err := a.openDecoder(j)
	if err != nil {
		return as, fmt.Errorf("opening %s: %w", j.File, err)
	}
	as.Decoder = kind
	defer func() {
		if cerr := d.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing decoder: %w", cerr)
		}
		if ff, ok := d.(*source.FFmpeg); ok {
			as.Usage = ff.Usage()
			if err != nil && ff.Stderr() != "" {
				logging.Infof("ffmpeg output for %s:\n%s", j.File, ff.Stderr())
			}
		}
		as.Elapsed = time.Since(start)
	}()

	opts := a.samplerOptions(j)
	logging.Debugf("Sampling options for %s: %+v", j.File, opts)
	if a.inMemory {
		b, err := sampler.Extract(d, opts)
		if err != nil {
			return as, fmt.Errorf("extracting %s: %w", j.File, err)
		}
		logging.Debugf("Sample batch of %s: %s", j.File, b.Shape)
		as.Result, err = a.pipeline.Predict(b, opts.Tiler.PerFrame())
		if err != nil {
			return as, fmt.Errorf("predicting %s: %w", j.File, err)
		}
		return as, nil
	}

	as.Result, err = a.pipeline.PredictStream(d, opts)
	if err != nil {
		return as, fmt.Errorf("predicting %s: %w", j.File, err)
	}
	return as, nil
}
