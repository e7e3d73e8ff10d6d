// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// nrmos tool's new-plan subcommand implementation.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/evolution-gaming/nrmos/internal/plan"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

func CreateNewPlanCommand() *NewPlanApp {
	longHelp := `Subcommand "new-plan" helps create a new assessment plan file template.

Without inputs the template lists one encoded and one raw YUV placeholder
input showing all supported input options.

Examples:

  nrmos new-plan -i path/to/input/video.mp4 -o plan.json
  nrmos new-plan -i video1.mp4 -i video2.mp4 --format yaml -o plan.yaml`

	app := &NewPlanApp{
		fs:  flag.NewFlagSet("new-plan", flag.ContinueOnError),
		out: os.Stdout,
	}
	app.fs.StringVarP(&app.flOutFile, "output", "o", "", "Output file (stdout by default).")
	app.fs.StringArrayVarP(&app.flInputFiles, "input", "i", nil, "Source video files. Use multiple times for multiple files.")
	app.fs.StringVar(&app.flFormat, "format", "", "Plan format: json or yaml (by output file extension, json by default)")

	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

type NewPlanApp struct {
	// FlagSet instance
	fs *flag.FlagSet
	// Plan is written here unless output file given
	out io.Writer
	// Output file to save plan to
	flOutFile string
	// Video input files
	flInputFiles []string
	// Output format
	flFormat string
}

func (a *NewPlanApp) Run(args []string) error {
	if err := a.fs.Parse(args); err != nil {
		return usageError(a.fs, err)
	}

	pc := plan.PlanConfig{}
	for _, f := range a.flInputFiles {
		pc.Inputs = append(pc.Inputs, plan.Input{File: f})
	}
	// In case no input video provided we will use some placeholders.
	if len(pc.Inputs) == 0 {
		pc.Inputs = []plan.Input{
			{File: "path/to/source/video.mp4"},
			{
				File:   "path/to/source/video.yuv",
				Raw:    true,
				Width:  plan.DefaultDecodeWidth,
				Height: plan.DefaultDecodeHeight,
				FPS:    plan.DefaultDecodeFPS,
				PixFmt: "yuv420p10le",
			},
		}
	}

	format := strings.ToLower(a.flFormat)
	if format == "" {
		format = "json"
		if strings.HasSuffix(a.flOutFile, ".yaml") || strings.HasSuffix(a.flOutFile, ".yml") {
			format = "yaml"
		}
	}

	out := a.out
	if a.flOutFile != "" {
		fd, err := os.Create(a.flOutFile)
		if err != nil {
			return &AppError{
				msg:      fmt.Sprintf("output file error: %s", err),
				exitCode: 1,
			}
		}
		defer fd.Close()
		out = fd
	}

	var err error
	switch format {
	case "json":
		e := json.NewEncoder(out)
		e.SetIndent("", "  ")
		err = e.Encode(pc)
	case "yaml", "yml":
		e := yaml.NewEncoder(out)
		e.SetIndent(2)
		err = e.Encode(pc)
		if err == nil {
			err = e.Close()
		}
	default:
		return &AppError{msg: fmt.Sprintf("unknown plan format: %s", a.flFormat), exitCode: 2}
	}
	if err != nil {
		return &AppError{
			msg:      fmt.Sprintf("%s marshal error: %s", format, err),
			exitCode: 1,
		}
	}

	return nil
}
