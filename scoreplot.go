// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// nrmos tool's scoreplot subcommand implementation.

package main

import (
	"github.com/evolution-gaming/nrmos/internal/analysis"
	"github.com/evolution-gaming/nrmos/internal/logging"
	flag "github.com/spf13/pflag"
)

// Make sure ScorePlotApp implements Commander interface.
var _ Commander = (*ScorePlotApp)(nil)

// ScorePlotApp is scoreplot subcommand context that implements Commander interface.
type ScorePlotApp struct {
	// FlagSet instance
	fs *flag.FlagSet
	// Frame scores JSON file
	flInFile string
	// Plot output file
	flOutFile string
	// Frame rate of assessed video, frame positions are plotted if zero
	flFPS float64
	// Global flags
	gf globalFlags
}

// CreateScorePlotCommand will create Commander instance from ScorePlotApp.
func CreateScorePlotCommand() *ScorePlotApp {
	longHelp := `Subcommand "scoreplot" will create per-frame score plot from frame scores
JSON file written by "run" or "assess --scores".

Examples:

  nrmos scoreplot -i video_scores.json -o video_scores.png --fps 30`
	app := &ScorePlotApp{
		fs: flag.NewFlagSet("scoreplot", flag.ContinueOnError),
		gf: globalFlags{},
	}
	app.gf.Register(app.fs)
	app.fs.StringVarP(&app.flInFile, "input", "i", "", "Frame scores JSON file (mandatory)")
	app.fs.StringVarP(&app.flOutFile, "output", "o", "", "File to save plot to")
	app.fs.Float64Var(&app.flFPS, "fps", 0, "Frame rate of assessed video, enables time axis")

	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}
	return app
}

// Run is main entry point into ScorePlotApp execution.
func (a *ScorePlotApp) Run(args []string) error {
	if err := a.fs.Parse(args); err != nil {
		return usageError(a.fs, err)
	}

	if a.gf.Debug {
		logging.EnableDebugLogger()
	}

	if a.flInFile == "" {
		a.fs.Usage()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option -i is missing",
		}
	}

	if a.flOutFile == "" {
		a.flOutFile = baseName(a.flInFile) + ".png"
	}

	logging.Infof("Output will be written to:\n\t%s\n", a.flOutFile)

	if err := analysis.PlotScoresFile(a.flInFile, a.flFPS, a.flOutFile); err != nil {
		return &AppError{
			exitCode: 1,
			msg:      err.Error(),
		}
	}

	return nil
}
