// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// nrmos tool's run subcommand implementation.

package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/evolution-gaming/nrmos/internal/analysis"
	"github.com/evolution-gaming/nrmos/internal/logging"
	"github.com/evolution-gaming/nrmos/internal/metric"
	"github.com/evolution-gaming/nrmos/internal/mos"
	"github.com/evolution-gaming/nrmos/internal/plan"
	"github.com/jszwec/csvutil"
	flag "github.com/spf13/pflag"
)

// CreateRunCommand will create instance of App.
func CreateRunCommand() *App {
	longHelp := `Subcommand "run" will assess all videos of assessment plan provided as
parameter to --plan flag and will report MOS and per-frame score statistics.
This flag is mandatory.

Examples:

  nrmos run --plan plan.json --out-dir path/to/output/dir
  nrmos run --plan plan.yaml --out-dir results --dry-run`

	app := &App{
		fs:     flag.NewFlagSet("run", flag.ContinueOnError),
		gf:     globalFlags{},
		mStore: metric.NewStore(),
		scores: make(map[string]mos.FrameScores),
	}
	app.gf.Register(app.fs)
	app.fs.StringVar(&app.flPlan, "plan", "", "Assessment plan file, JSON or YAML")
	app.fs.StringVar(&app.flOutDir, "out-dir", "", "Output directory to store results")
	app.fs.BoolVar(&app.flDryRun, "dry-run", false, "Do not actually run, just do checks and validation")
	app.fs.BoolVar(&app.flInMemory, "in-memory", false, "Extract all sampled tiles before scoring, needs memory for the whole batch")
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

// App is subcommand application context that implements Commander interface.
type App struct {
	// Configuration object
	cfg *Config
	// FlagSet instance
	fs *flag.FlagSet
	// Assessment plan file
	flPlan string
	// Output directory for results
	flOutDir string
	// Global flags
	gf globalFlags
	// Dry run mode flag
	flDryRun bool
	// Score complete sample batch at once
	flInMemory bool
	// Assessment result store
	mStore *metric.Store
	// Frame scores by source file
	scores map[string]mos.FrameScores
}

// init will do App state initialization.
func (a *App) init(args []string) error {
	if err := a.fs.Parse(args); err != nil {
		return usageError(a.fs, err)
	}

	if a.gf.Debug {
		logging.EnableDebugLogger()
	}

	// Assessment plan file is mandatory.
	if a.flPlan == "" {
		a.fs.Usage()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option --plan is missing",
		}
	}

	// Output dir is mandatory.
	if a.flOutDir == "" {
		a.fs.Usage()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option --out-dir is missing",
		}
	}

	// Assessment plan file should exist.
	if _, err := os.Stat(a.flPlan); err != nil {
		a.fs.Usage()
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("assessment plan file does not exist? %s", err),
		}
	}

	// Do not write over existing output directory.
	if isNonEmptyDir(a.flOutDir) {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("non-empty out dir: %s", a.flOutDir)}
	}

	// Load application configuration.
	c, err := LoadConfig(a.gf.ConfFile)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	a.cfg = &c

	return nil
}

// resolve turns plan inputs into jobs, all inputs are checked before
// failing.
func (a *App) resolve(pc plan.PlanConfig) ([]plan.Job, error) {
	r := a.cfg.resolver()
	jobs := make([]plan.Job, 0, len(pc.Inputs))
	var errs []error
	for _, in := range pc.Inputs {
		j, err := r.Resolve(in)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		logging.Debugf("Job: %+v", j)
		jobs = append(jobs, j)
	}
	return jobs, errors.Join(errs...)
}

// assess will run assessment stage of plan execution.
func (a *App) assess(jobs []plan.Job) error {
	as, err := newAssessor(a.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := as.Close(); err != nil {
			logging.Infof("Closing model worker: %s", err)
		}
	}()
	as.inMemory = a.flInMemory

	var failed bool
	for _, j := range jobs {
		logging.Infof("Start assessing %s", j.File)
		res, err := as.assess(j)
		record := newRecord(res)
		if err != nil {
			failed = true
			record.Error = err.Error()
			logging.Infof("Failed assessing %s due to error: %s", j.File, err)
		} else {
			logging.Infof("Final prediction of %s is MOS: %v", j.File, res.Result.MOS)
			a.scores[j.File] = res.Result.FrameScores
		}
		id := a.mStore.Insert(record)
		logging.Debugf("Storing record (id=%v) for %s", id, j.File)
	}

	if failed {
		return errors.New("assessment had errors, see log for reasons")
	}
	return nil
}

// newRecord flattens assessment into report record.
func newRecord(as assessment) metric.Record {
	s := as.Result.FrameScores.Summary()
	return metric.Record{
		Name:                   as.Job.Name(),
		SourceFile:             as.Job.File,
		Decoder:                as.Decoder,
		Width:                  as.Job.Width,
		Height:                 as.Job.Height,
		FPS:                    as.Job.FPS,
		Duration:               as.Job.Duration,
		PixFmt:                 as.Job.PixFmt,
		FramesSampled:          as.Result.Frames,
		TilesPerFrame:          as.Result.TilesPerFrame,
		MOS:                    as.Result.MOS,
		FrameScoreMin:          s.Min,
		FrameScoreMax:          s.Max,
		FrameScoreMean:         s.Mean,
		FrameScoreHarmonicMean: s.HarmonicMean,
		FrameScoreStDev:        s.StDev,
		FrameScoreVariance:     s.Variance,
		HElapsed:               as.Elapsed.String(),
		Elapsed:                as.Elapsed,
		DecoderHStime:          as.Usage.HStime,
		DecoderHUtime:          as.Usage.HUtime,
		DecoderStime:           as.Usage.Stime,
		DecoderUtime:           as.Usage.Utime,
		DecoderMaxRss:          as.Usage.MaxRss,
		DecoderCPUPerc:         as.Usage.CPUPercent(),
	}
}

// analyse will write per-frame scores and plots of every assessed video.
func (a *App) analyse() error {
	for _, id := range a.mStore.GetIDs() {
		v, err := a.mStore.Get(id)
		if err != nil {
			return fmt.Errorf("fetching record by id (%v): %w", id, err)
		}
		if v.Error != "" {
			logging.Infof("Skip analysis of %s, assessment failed", v.SourceFile)
			continue
		}
		scores, ok := a.scores[v.SourceFile]
		if !ok || len(scores) == 0 {
			logging.Infof("Skip analysis of %s, no frame scores", v.SourceFile)
			continue
		}

		logging.Infof("Analysing %s", v.SourceFile)
		v.ScoresFile = filepath.Join(a.flOutDir, v.Name+"_scores.json")
		if err := writeScores(v.ScoresFile, scores); err != nil {
			return err
		}

		// Constant zero scores mean worker produced nothing meaningful.
		if all(scores.Values(), 0) {
			logging.Info("Skip scores plot, scores missing")
		} else {
			v.PlotFile = filepath.Join(a.flOutDir, v.Name+"_scores.png")
			if err := analysis.MultiPlotScores(scores, v.FPS, v.Name, v.PlotFile); err != nil {
				return fmt.Errorf("creating scores plot: %w", err)
			}
			logging.Infof("Scores plot done: %s", v.PlotFile)
		}

		if err := a.mStore.Update(id, v); err != nil {
			return fmt.Errorf("updating record (id=%v): %w", id, err)
		}
	}

	return nil
}

// saveReport writes recorded metrics to report file.
func (a *App) saveReport() error {
	report := a.mStore.Records()

	reportPath := filepath.Join(a.flOutDir, a.cfg.ReportFileName.Value())
	reportOut, err := os.Create(reportPath)
	if err != nil {
		return fmt.Errorf("creating CSV report file: %w", err)
	}
	defer reportOut.Close()

	w := csv.NewWriter(reportOut)
	if err := csvutil.NewEncoder(w).Encode(report); err != nil {
		return fmt.Errorf("writing CSV report: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing CSV report: %w", err)
	}
	logging.Infof("Report saved: %s", reportPath)

	return nil
}

// Run is main entry point into App execution.
func (a *App) Run(args []string) error {
	logging.Infof("nrmos version: %s", vInfo)
	if err := a.init(args); err != nil {
		return err
	}

	logging.Debugf("Application configuration: %#v", a.cfg)
	// Check if configuration is valid.
	if err := a.cfg.Verify(); err != nil {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("configuration validation: %s", err)}
	}

	logging.Debugf("Assessment plan file: %v", a.flPlan)

	pc, err := loadPlan(a.flPlan)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	jobs, err := a.resolve(pc)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	// Early return in "dry run" mode.
	if a.flDryRun {
		logging.Info("Dry run mode finished!")
		return nil
	}

	if err := os.MkdirAll(a.flOutDir, os.FileMode(0o755)); err != nil {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("creating output directory: %s", err)}
	}

	// Failed assessments are still reported.
	assessErr := a.assess(jobs)

	// Run analysis stage.
	if err = a.analyse(); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	// Save report.
	if err = a.saveReport(); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	if assessErr != nil {
		return &AppError{exitCode: 1, msg: assessErr.Error()}
	}

	logging.Info("Done")
	return nil
}
