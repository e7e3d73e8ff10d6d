// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Tests for nrmos tool subcommands.
package main

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/evolution-gaming/nrmos/internal/mos"
	"github.com/evolution-gaming/nrmos/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Score of a white tile as produced by fake worker.
const whiteScore = 254.0 / 255

// Happy path functional test for run sub-command.
func Test_RunApp_Run(t *testing.T) {
	fixTools(t, fixFrames)
	conf := fixConfig(t)
	ePlan := fixPlanConfig(t)
	outDir := path.Join(t.TempDir(), "out")

	t.Run("Should succeed execution with --plan flag", func(t *testing.T) {
		app := CreateRunCommand()
		err := app.Run([]string{"--conf", conf, "--plan", ePlan, "--out-dir", outDir})
		require.NoError(t, err, "Unexpected error running plan")

		records := app.mStore.Records()
		require.Len(t, records, 2)
		for _, r := range records {
			assert.Empty(t, r.Error)
			assert.Equal(t, app.mStore.RunID(), r.RunID)
			assert.Equal(t, 4, r.FramesSampled)
			assert.Equal(t, 5, r.TilesPerFrame)
			assert.InDelta(t, whiteScore, r.MOS, 1e-3)
			assert.InDelta(t, whiteScore, r.FrameScoreMean, 1e-3)
		}
		assert.Equal(t, "ffmpeg", records[0].Decoder)
		assert.Equal(t, "raw", records[1].Decoder)
	})

	t.Run("Should have a CSV report file", func(t *testing.T) {
		fd, err := os.Open(path.Join(outDir, "report.csv"))
		require.NoError(t, err, "Unexpected error opening report.csv")
		defer fd.Close()
		records, err := csv.NewReader(fd).ReadAll()
		assert.NoError(t, err, "Unexpected error reading CSV records")
		// Expect 3 records: CSV header + record per input.
		assert.Len(t, records, 3, "Unexpected number of records in report file")
	})

	t.Run("Should create frame scores and plots", func(t *testing.T) {
		for _, name := range []string{"clip", "source"} {
			scoresFile := path.Join(outDir, name+"_scores.json")
			fd, err := os.Open(scoresFile)
			require.NoError(t, err)
			var scores mos.FrameScores
			require.NoError(t, scores.FromJSON(fd))
			fd.Close()
			assert.Equal(t, []int{0, 2, 4, 6}, scores.Positions())

			assert.FileExists(t, path.Join(outDir, name+"_scores.png"))
		}
	})
}

func Test_RunApp_Run_InMemory(t *testing.T) {
	fixTools(t, fixFrames)
	app := CreateRunCommand()
	outDir := path.Join(t.TempDir(), "out")
	err := app.Run([]string{"--conf", fixConfig(t), "--plan", fixPlanConfig(t), "--out-dir", outDir, "--in-memory"})
	require.NoError(t, err)

	for _, r := range app.mStore.Records() {
		assert.InDelta(t, whiteScore, r.MOS, 1e-3)
	}
}

func Test_RunApp_Run_DryRun(t *testing.T) {
	fixTools(t, fixFrames)
	outDir := path.Join(t.TempDir(), "out")
	err := CreateRunCommand().Run([]string{"--conf", fixConfig(t), "--plan", fixPlanConfig(t), "--out-dir", outDir, "--dry-run"})
	require.NoError(t, err)
	assert.NoDirExists(t, outDir)
}

/*************************************
* Negative tests for run sub-command.
 *************************************/

// Error cases for run sub-command flags.
func Test_RunApp_Run_FlagErrors(t *testing.T) {
	fixTools(t, fixFrames)
	// For some cases we need existing plan config file.
	planConfig := fixPlanConfig(t)

	tempDir := t.TempDir()

	tests := map[string]struct {
		// substring in Error()
		want      string
		givenArgs []string
	}{
		"Wrong flags": {
			givenArgs: []string{"--zzz", "aaaa", "--plan", planConfig, "--out-dir", path.Join(tempDir, "out1")},
			want:      "run usage error",
		},
		"Mandatory plan flag missing": {
			givenArgs: []string{"--out-dir", path.Join(tempDir, "out2")},
			want:      "mandatory option --plan is missing",
		},
		"Mandatory out-dir flag missing": {
			givenArgs: []string{"--plan", planConfig},
			want:      "mandatory option --out-dir is missing",
		},
		"Non-existent plan": {
			givenArgs: []string{"--plan", "a/yyy", "--out-dir", path.Join(tempDir, "out3")},
			want:      "assessment plan file does not exist?",
		},
		"Non-existent config file": {
			givenArgs: []string{"--conf", "missing-conf.json", "--plan", planConfig, "--out-dir", path.Join(tempDir, "out4v")},
			want:      "no such file or directory",
		},
		"Empty flags": {
			givenArgs: []string{},
			want:      "mandatory option",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cmd := CreateRunCommand()
			// Discard usage output so that during test execution test output is
			// not flooded with command Usage/Help stuff.
			cmd.fs.SetOutput(io.Discard)
			gotErr := cmd.Run(tc.givenArgs)
			assert.ErrorContains(t, gotErr, tc.want)
		})
	}
}

func Test_RunApp_Run_WithShortVideo(t *testing.T) {
	// Fake ffmpeg yields less frames than needed for sampling.
	fixTools(t, 2)

	app := CreateRunCommand()
	outDir := path.Join(t.TempDir(), "out")

	gotErr := app.Run([]string{"--conf", fixConfig(t), "--plan", fixPlanConfig(t), "--out-dir", outDir})
	assert.ErrorContains(t, gotErr, "assessment had errors, see log for reasons")
	assert.Equal(t, 1, gotErr.(*AppError).ExitCode(), "Exit code mismatch")

	// Failed input is still reported, raw input is not affected.
	records := app.mStore.Records()
	require.Len(t, records, 2)
	assert.Contains(t, records[0].Error, "insufficient source length")
	assert.Empty(t, records[1].Error)
	assert.FileExists(t, path.Join(outDir, "report.csv"))
	assert.NoFileExists(t, path.Join(outDir, "clip_scores.json"))
	assert.FileExists(t, path.Join(outDir, "source_scores.json"))
}

func Test_RunApp_Run_WithInvalidPlanConfigParseError(t *testing.T) {
	fixTools(t, fixFrames)
	app := CreateRunCommand()
	wantErrMsg := "PlanConfig not valid: validation error with reasons"
	wantExitCode := 1

	gotErr := app.Run([]string{"--conf", fixConfig(t), "--plan", fixPlanConfigInvalid(t), "--out-dir", t.TempDir()})
	assert.ErrorContains(t, gotErr, wantErrMsg)

	gotExitCode := gotErr.(*AppError).ExitCode()
	assert.Equal(t, wantExitCode, gotExitCode, "Exit code mismatch")
}

func Test_RunApp_Run_WithNonEmptyOutDirShouldTerminate(t *testing.T) {
	fixTools(t, fixFrames)
	app := CreateRunCommand()
	plan := fixPlanConfig(t)
	// Dir containing plan file by definition is non-empty.
	outDir := path.Dir(plan)

	t.Logf("Given existing out dir: %s", outDir)
	require.NoError(t, os.MkdirAll(outDir, 0o755))

	t.Log("When plan is executed")
	gotErr := app.Run([]string{"--plan", plan, "--out-dir", outDir})

	t.Log("Then there is an error and program terminates")
	wantErrMsg := "non-empty out dir"
	assert.ErrorContains(t, gotErr, wantErrMsg)

	wantExitCode := 1
	gotExitCode := gotErr.(*AppError).ExitCode()
	assert.Equal(t, wantExitCode, gotExitCode, "Exit code mismatch")
}

func Test_RunApp_Run_WithInvalidApplicationConfig(t *testing.T) {
	fixTools(t, fixFrames)
	// Without configuration file model files are not known.
	app := CreateRunCommand()
	gotErr := app.Run([]string{"--plan", fixPlanConfig(t), "--out-dir", t.TempDir()})

	var expErr *AppError
	require.ErrorAs(t, gotErr, &expErr, "Expecting error of type AppError")
	assert.ErrorContains(t, gotErr, "invalid image model path")
}

func Test_AssessApp_Run(t *testing.T) {
	fixTools(t, fixFrames)
	conf := fixConfig(t)
	rawFile := fixRawVideo(t)

	tests := map[string]struct {
		args []string
		file string
	}{
		"Raw input": {
			args: []string{"--raw", "--width", "32", "--height", "32", "--fps", "8", "--pix-fmt", "yuv420p"},
			file: rawFile,
		},
		"Raw input scored in memory": {
			args: []string{"--raw", "--width", "32", "--height", "32", "--fps", "8", "--pix-fmt", "yuv420p", "--in-memory"},
			file: rawFile,
		},
		"Encoded input": {
			args: []string{"--pix-fmt", "yuv420p", "--duration", "1"},
			file: fixEncodedVideo(t),
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			out := &bytes.Buffer{}
			outDir := t.TempDir()
			scoresFile := path.Join(outDir, "scores.json")
			plotFile := path.Join(outDir, "scores.png")

			app := CreateAssessCommand()
			app.out = out
			args := append([]string{"--conf", conf, "--scores", scoresFile, "--plot", plotFile}, tc.args...)
			err := app.Run(append(args, tc.file))
			require.NoError(t, err)

			assert.Contains(t, out.String(), fmt.Sprintf("Final prediction of %s is MOS: ", tc.file))
			assert.FileExists(t, scoresFile)
			assert.FileExists(t, plotFile)
		})
	}
}

func Test_AssessApp_Run_Negative(t *testing.T) {
	fixTools(t, fixFrames)
	conf := fixConfig(t)

	tests := map[string]struct {
		args []string
		want string
	}{
		"No input": {
			args: []string{"--conf", conf},
			want: "exactly one input video file expected",
		},
		"Missing input": {
			args: []string{"--conf", conf, "missing.mp4"},
			want: "invalid input",
		},
		"Raw input without geometry": {
			args: []string{"--conf", conf, "--raw", fixRawVideo(t)},
			want: "raw input requires",
		},
		"Unsupported pixel format": {
			args: []string{"--conf", conf, "--pix-fmt", "rgb24", "--duration", "1", fixEncodedVideo(t)},
			want: "invalid input",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			app := CreateAssessCommand()
			app.fs.SetOutput(io.Discard)
			app.out = io.Discard
			err := app.Run(tc.args)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

// Functional tests for other sub-commands..
func TestIntegration_AllSubcommands(t *testing.T) {
	fixTools(t, fixFrames)
	tempDir := t.TempDir()
	outDir := path.Join(tempDir, "out")

	// Run command will generate frame scores for later use as inputs.
	err := CreateRunCommand().Run([]string{"--conf", fixConfig(t), "--plan", fixPlanConfig(t), "--out-dir", outDir})
	require.NoError(t, err)

	t.Run("scoreplot should create plots", func(t *testing.T) {
		m, _ := filepath.Glob(fmt.Sprintf("%s/*_scores.json", outDir))
		require.Len(t, m, 2)

		outFile := path.Join(tempDir, "scoreplot.png")
		err := CreateScorePlotCommand().Run([]string{"-i", m[0], "-o", outFile, "--fps", "8"})
		assert.NoError(t, err, "Unexpected error running scoreplot")
		assert.FileExists(t, outFile, "score plot file missing")
	})

	t.Run("scoreplot requires input", func(t *testing.T) {
		cmd := CreateScorePlotCommand()
		cmd.fs.SetOutput(io.Discard)
		err := cmd.Run([]string{})
		assert.ErrorContains(t, err, "mandatory option -i is missing")
	})

	t.Run("new-plan should create plan template", func(t *testing.T) {
		planFile := path.Join(t.TempDir(), "plan.json")
		err := CreateNewPlanCommand().Run([]string{"-i", "video1.mp4", "-o", planFile})
		assert.NoError(t, err)

		pc, err := plan.LoadPlanConfig(planFile)
		assert.NoError(t, err)

		require.Len(t, pc.Inputs, 1)
		assert.Equal(t, "video1.mp4", pc.Inputs[0].File)
	})

	t.Run("new-plan should create YAML plan template", func(t *testing.T) {
		planFile := path.Join(t.TempDir(), "plan.yaml")
		err := CreateNewPlanCommand().Run([]string{"-o", planFile})
		assert.NoError(t, err)

		pc, err := plan.LoadPlanConfig(planFile)
		assert.NoError(t, err)

		require.Len(t, pc.Inputs, 2)
		assert.True(t, pc.Inputs[1].Raw)
		assert.Equal(t, "yuv420p10le", pc.Inputs[1].PixFmt)
	})

	t.Run("version should print version", func(t *testing.T) {
		out := &bytes.Buffer{}
		printVersion(out)
		assert.Contains(t, out.String(), "nrmos ")
	})
}

func Test_root(t *testing.T) {
	tests := map[string]struct {
		args     []string
		wantCode int
	}{
		"No command":      {args: nil, wantCode: 2},
		"Unknown command": {args: []string{"encode"}, wantCode: 2},
		"Help":            {args: []string{"--help"}, wantCode: 2},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := root(tc.args)
			var appErr *AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.wantCode, appErr.ExitCode())
		})
	}
}
