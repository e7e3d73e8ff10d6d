// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// nrmos tool's assess subcommand implementation.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/evolution-gaming/nrmos/internal/analysis"
	"github.com/evolution-gaming/nrmos/internal/logging"
	"github.com/evolution-gaming/nrmos/internal/mos"
	"github.com/evolution-gaming/nrmos/internal/plan"
	flag "github.com/spf13/pflag"
)

// Make sure AssessApp implements Commander interface.
var _ Commander = (*AssessApp)(nil)

// AssessApp is assess subcommand context that implements Commander interface.
type AssessApp struct {
	// Configuration object
	cfg *Config
	// FlagSet instance
	fs *flag.FlagSet
	// Final prediction is written here
	out io.Writer
	// Input description assembled from flags
	input plan.Input
	// Optional frame scores JSON output
	flScoresFile string
	// Optional frame scores plot output
	flPlotFile string
	// Score complete sample batch at once
	flInMemory bool
	// Global flags
	gf globalFlags
}

// CreateAssessCommand will create Commander instance from AssessApp.
func CreateAssessCommand() *AssessApp {
	longHelp := `Subcommand "assess" estimates Mean Opinion Score of a single video file.

Encoded videos are decoded with ffmpeg, their pixel format and duration are
detected with ffprobe. Raw planar YUV files carry no metadata, so geometry,
frame rate and pixel format are mandatory for them.

Examples:

  nrmos assess video.mp4
  nrmos assess --raw --width 3840 --height 2160 --fps 30 --pix-fmt yuv420p10le video.yuv
  nrmos assess --scores scores.json --plot scores.png video.mp4`

	app := &AssessApp{
		fs:  flag.NewFlagSet("assess", flag.ContinueOnError),
		gf:  globalFlags{},
		out: os.Stdout,
	}
	app.gf.Register(app.fs)
	app.fs.BoolVar(&app.input.Raw, "raw", false, "Input is raw planar YUV")
	app.fs.IntVar(&app.input.Width, "width", 0, "Frame width (mandatory for raw input, decode width otherwise)")
	app.fs.IntVar(&app.input.Height, "height", 0, "Frame height (mandatory for raw input, decode height otherwise)")
	app.fs.Float64Var(&app.input.FPS, "fps", 0, "Frame rate (mandatory for raw input, decode frame rate otherwise)")
	app.fs.Float64Var(&app.input.Duration, "duration", 0, "Duration in seconds (detected if omitted)")
	app.fs.StringVar(&app.input.PixFmt, "pix-fmt", "", "Pixel format, e.g. yuv420p10le (detected if omitted for encoded input)")
	app.fs.StringVar(&app.flScoresFile, "scores", "", "Write per-frame scores JSON to file")
	app.fs.StringVar(&app.flPlotFile, "plot", "", "Write per-frame scores plot to PNG file")
	app.fs.BoolVar(&app.flInMemory, "in-memory", false, "Extract all sampled tiles before scoring, needs memory for the whole batch")

	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}
	return app
}

// Run is main entry point into AssessApp execution.
func (a *AssessApp) Run(args []string) error {
	if err := a.fs.Parse(args); err != nil {
		return usageError(a.fs, err)
	}

	if a.gf.Debug {
		logging.EnableDebugLogger()
	}

	if a.fs.NArg() != 1 {
		a.fs.Usage()
		return &AppError{exitCode: 2, msg: "exactly one input video file expected"}
	}
	a.input.File = a.fs.Arg(0)

	// Load application configuration.
	c, err := LoadConfig(a.gf.ConfFile)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	a.cfg = &c

	// Check if configuration is valid.
	if err := a.cfg.Verify(); err != nil {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("configuration validation: %s", err)}
	}

	pc := plan.PlanConfig{Inputs: []plan.Input{a.input}}
	if ok, err := pc.IsValid(); !ok {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("invalid input: %s", err)}
	}

	job, err := a.cfg.resolver().Resolve(a.input)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	logging.Debugf("Resolved job: %+v", job)

	as, err := newAssessor(a.cfg)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	as.inMemory = a.flInMemory

	res, err := as.assess(job)
	if cerr := as.Close(); cerr != nil {
		logging.Infof("Closing model worker: %s", cerr)
	}
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	logging.Infof("Assessed %s in %s (%s decoder)", job.File, res.Elapsed, res.Decoder)

	if err := a.writeOutputs(job, res.Result); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	fmt.Fprintf(a.out, "Final prediction of %s is MOS: %v\n", job.File, res.Result.MOS)
	return nil
}

func (a *AssessApp) writeOutputs(job plan.Job, res mos.Result) error {
	if a.flScoresFile != "" {
		if err := writeScores(a.flScoresFile, res.FrameScores); err != nil {
			return err
		}
		logging.Infof("Frame scores written to %s", a.flScoresFile)
	}
	if a.flPlotFile != "" {
		if err := analysis.MultiPlotScores(res.FrameScores, job.FPS, job.Name(), a.flPlotFile); err != nil {
			return fmt.Errorf("creating scores plot: %w", err)
		}
		logging.Infof("Frame scores plot written to %s", a.flPlotFile)
	}
	return nil
}

// writeScores saves frame scores as JSON.
func writeScores(file string, scores mos.FrameScores) error {
	fd, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("creating scores file: %w", err)
	}
	defer fd.Close()
	if err := scores.ToJSON(fd); err != nil {
		return fmt.Errorf("writing scores: %w", err)
	}
	return nil
}
