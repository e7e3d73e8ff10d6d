// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Application configuration structures.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/evolution-gaming/nrmos/internal/logging"
	"github.com/evolution-gaming/nrmos/internal/model"
	"github.com/evolution-gaming/nrmos/internal/plan"
	"github.com/evolution-gaming/nrmos/internal/quad"
	"github.com/evolution-gaming/nrmos/internal/sampler"
	"github.com/evolution-gaming/nrmos/internal/source"
	"github.com/evolution-gaming/nrmos/internal/tools"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	defaultReportFile = "report.csv"
)

// Config represent application configuration.
type Config struct {
	FfmpegPath           ConfigVal[string]  `json:"ffmpeg_path,omitempty" yaml:"ffmpeg_path"`
	FfprobePath          ConfigVal[string]  `json:"ffprobe_path,omitempty" yaml:"ffprobe_path"`
	WorkerPath           ConfigVal[string]  `json:"worker_path,omitempty" yaml:"worker_path"`
	ImageModelPath       ConfigVal[string]  `json:"image_model_path,omitempty" yaml:"image_model_path"`
	VideoModelPath       ConfigVal[string]  `json:"video_model_path,omitempty" yaml:"video_model_path"`
	FfmpegDecodeTemplate ConfigVal[string]  `json:"ffmpeg_decode_template,omitempty" yaml:"ffmpeg_decode_template"`
	WorkerTemplate       ConfigVal[string]  `json:"worker_template,omitempty" yaml:"worker_template"`
	TargetFrames         ConfigVal[int]     `json:"target_frames,omitempty" yaml:"target_frames"`
	TileDepth            ConfigVal[int]     `json:"tile_depth,omitempty" yaml:"tile_depth"`
	TileHeight           ConfigVal[int]     `json:"tile_height,omitempty" yaml:"tile_height"`
	TileWidth            ConfigVal[int]     `json:"tile_width,omitempty" yaml:"tile_width"`
	BatchSize            ConfigVal[int]     `json:"batch_size,omitempty" yaml:"batch_size"`
	DecodeWidth          ConfigVal[int]     `json:"decode_width,omitempty" yaml:"decode_width"`
	DecodeHeight         ConfigVal[int]     `json:"decode_height,omitempty" yaml:"decode_height"`
	DecodeFPS            ConfigVal[float64] `json:"decode_fps,omitempty" yaml:"decode_fps"`
	ReportFileName       ConfigVal[string]  `json:"report_file_name,omitempty" yaml:"report_file_name"`
}

// Verify will check that configuration is valid.
//
// Will check that configuration option values are sensible.
func (c *Config) Verify() error {
	msgs := []string{}
	if !fileExists(c.FfmpegPath.Value()) {
		msgs = append(msgs, "invalid ffmpeg path")
	}
	if !fileExists(c.FfprobePath.Value()) {
		msgs = append(msgs, "invalid ffprobe path")
	}
	if !fileExists(c.WorkerPath.Value()) {
		msgs = append(msgs, "invalid model worker path")
	}
	if !fileExists(c.ImageModelPath.Value()) {
		msgs = append(msgs, "invalid image model path")
	}
	if !fileExists(c.VideoModelPath.Value()) {
		msgs = append(msgs, "invalid video model path")
	}
	if c.FfmpegDecodeTemplate.IsNil() {
		msgs = append(msgs, "empty ffmpeg decode template")
	}
	if c.WorkerTemplate.IsNil() {
		msgs = append(msgs, "empty model worker template")
	}
	if c.TargetFrames.Value() <= 0 {
		msgs = append(msgs, "target frames should be positive")
	}
	if err := c.tiler().Validate(); err != nil {
		msgs = append(msgs, err.Error())
	}
	if c.BatchSize.Value() <= 0 {
		msgs = append(msgs, "batch size should be positive")
	}
	if c.DecodeWidth.Value() <= 0 || c.DecodeHeight.Value() <= 0 || c.DecodeFPS.Value() <= 0 {
		msgs = append(msgs, "decode geometry and frame rate should be positive")
	}
	// Report file should not be nil.
	if c.ReportFileName.IsNil() {
		msgs = append(msgs, "empty report file name")
	}

	if len(msgs) != 0 {
		return fmt.Errorf("%s: %w", strings.Join(msgs, ", "), ErrInvalidConfig)
	}
	return nil
}

// OverrideFrom will overwrite fields from given Config object.
//
// Only fields that are "not-nil" (as per IsNil() method) in src Config object will be
// overwritten.
func (c *Config) OverrideFrom(src Config) {
	override(&c.FfmpegPath, src.FfmpegPath)
	override(&c.FfprobePath, src.FfprobePath)
	override(&c.WorkerPath, src.WorkerPath)
	override(&c.ImageModelPath, src.ImageModelPath)
	override(&c.VideoModelPath, src.VideoModelPath)
	override(&c.FfmpegDecodeTemplate, src.FfmpegDecodeTemplate)
	override(&c.WorkerTemplate, src.WorkerTemplate)
	override(&c.TargetFrames, src.TargetFrames)
	override(&c.TileDepth, src.TileDepth)
	override(&c.TileHeight, src.TileHeight)
	override(&c.TileWidth, src.TileWidth)
	override(&c.BatchSize, src.BatchSize)
	override(&c.DecodeWidth, src.DecodeWidth)
	override(&c.DecodeHeight, src.DecodeHeight)
	override(&c.DecodeFPS, src.DecodeFPS)
	override(&c.ReportFileName, src.ReportFileName)
}

func override[T any](dst *ConfigVal[T], src ConfigVal[T]) {
	if !src.IsNil() {
		*dst = src
	}
}

func (c *Config) tiler() quad.Tiler {
	return quad.Tiler{
		Depth:  c.TileDepth.Value(),
		Height: c.TileHeight.Value(),
		Width:  c.TileWidth.Value(),
	}
}

func (c *Config) workerConfig() model.WorkerConfig {
	return model.WorkerConfig{
		ExePath:        c.WorkerPath.Value(),
		Template:       c.WorkerTemplate.Value(),
		ImageModelPath: c.ImageModelPath.Value(),
		VideoModelPath: c.VideoModelPath.Value(),
		BatchSize:      c.BatchSize.Value(),
	}
}

func (c *Config) ffmpegOptions() source.FFmpegOptions {
	return source.FFmpegOptions{
		ExePath:  c.FfmpegPath.Value(),
		Template: c.FfmpegDecodeTemplate.Value(),
	}
}

func (c *Config) resolver() plan.Resolver {
	return plan.Resolver{
		Extractor: tools.Ffprobe{ExePath: c.FfprobePath.Value()},
		Width:     c.DecodeWidth.Value(),
		Height:    c.DecodeHeight.Value(),
		FPS:       c.DecodeFPS.Value(),
	}
}

// loadDefaultConfig will create a default configuration.
//
// For some configuration options a default value will be specified, for others an
// auto-detection mechanism will populate option values. Model worker and model files
// are usually installed apart from ffmpeg, so missing worker is left for Verify to
// report.
func loadDefaultConfig() (Config, error) {
	var cfg Config

	// For default configuration attempt to locate ffmpeg binary.
	ffmpeg, err := tools.FfmpegPath()
	if err != nil {
		return cfg, fmt.Errorf("DefaultConfig: %w", err)
	}

	// For default configuration attempt to locate ffprobe binary.
	ffprobe, err := tools.FfprobePath()
	if err != nil {
		return cfg, fmt.Errorf("DefaultConfig: %w", err)
	}

	worker, err := tools.WorkerPath()
	if err != nil {
		logging.Debugf("DefaultConfig: %s", err)
	}

	cfg = Config{
		FfmpegPath:           NewConfigVal(ffmpeg),
		FfprobePath:          NewConfigVal(ffprobe),
		WorkerPath:           NewConfigVal(worker),
		ImageModelPath:       NewConfigVal(""),
		VideoModelPath:       NewConfigVal(""),
		FfmpegDecodeTemplate: NewConfigVal(source.DefaultFFmpegDecodeTemplate),
		WorkerTemplate:       NewConfigVal(model.DefaultWorkerTemplate),
		TargetFrames:         NewConfigVal(sampler.DefaultTargetFrames),
		TileDepth:            NewConfigVal(quad.DefaultTiler.Depth),
		TileHeight:           NewConfigVal(quad.DefaultTiler.Height),
		TileWidth:            NewConfigVal(quad.DefaultTiler.Width),
		BatchSize:            NewConfigVal(model.DefaultBatchSize),
		DecodeWidth:          NewConfigVal(plan.DefaultDecodeWidth),
		DecodeHeight:         NewConfigVal(plan.DefaultDecodeHeight),
		DecodeFPS:            NewConfigVal[float64](plan.DefaultDecodeFPS),
		ReportFileName:       NewConfigVal(defaultReportFile),
	}

	return cfg, nil
}

// loadConfigFromFile will load configuration from JSON or YAML file.
func loadConfigFromFile(f string) (cfg Config, err error) {
	fileExt := strings.ToLower(filepath.Ext(f))
	switch fileExt {
	case ".json":
		return loadJSON(f)
	case ".yaml", ".yml":
		return loadYAML(f)
	default:
		return cfg, fmt.Errorf("unknown config format: %s", fileExt)
	}
}

// LoadConfig will return merged default config and config from file. This is main
// function to use for config loading. Configuration file is optional e.g. can be "".
func LoadConfig(configFile string) (cfg Config, err error) {
	// Initialize default configuration.
	cfg, err = loadDefaultConfig()
	if err != nil {
		return cfg, err
	}

	// Load configuration from file and override default configuration options.
	if configFile != "" {
		c, err := loadConfigFromFile(configFile)
		if err != nil {
			return cfg, err
		}
		// Configuration file can specify full set or partial set of configuration
		// options. So we only want to override those options that have been specified in
		// config file, rest will remain as per default config.
		cfg.OverrideFrom(c)
	}

	return cfg, nil
}

func readConfigFile(f string) ([]byte, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, fmt.Errorf("config from file: %w", err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("config file is empty: %w", ErrInvalidConfig)
	}
	return b, nil
}

func loadJSON(f string) (cfg Config, err error) {
	b, err := readConfigFile(f)
	if err != nil {
		return cfg, err
	}

	if err = json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config from JSON document: %w", err)
	}

	return cfg, nil
}

func loadYAML(f string) (cfg Config, err error) {
	b, err := readConfigFile(f)
	if err != nil {
		return cfg, err
	}

	if err = yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config from YAML document: %w", err)
	}

	return cfg, nil
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

// In order to support Config overriding we have to implement wrapper type for Config
// fields. Otherwise it is hard to distinguish skipped fields, for instance when loading
// partial configuration from file: in that case it would be impossible to  distinguish
// between say string fields zero value and empty string values as explicitly specified in
// configuration file.

// NewConfigVal is constructor for ConfigVal. It will wrap its argument into ConfigVal.
func NewConfigVal[T any](v T) ConfigVal[T] {
	return ConfigVal[T]{v: &v}
}

// ConfigVal is a wrapper for Config field value.
type ConfigVal[T any] struct {
	// Store wrapped value as pointer in order to have ability to distinguish between
	// unspecified ConfigVal and a value that is the same as zero value for wrapped type.
	// In this case a zero value for pointer is nil.
	//
	// For example a zero value for string is "" which is impossible to distinguish from
	// explicit empty string "".
	v *T
}

// Value will return wrapped value.
//
// In case field has not been defined e.g. is zero value, then appropriate zero value of
// wrapped type will be returned.
func (o *ConfigVal[T]) Value() T {
	if o.IsNil() {
		var v T
		return v
	}
	return *o.v
}

// IsNil check if wrapped value is nil.
func (o *ConfigVal[T]) IsNil() bool {
	// Zero value for pointer type is nil.
	return o.v == nil
}

// UnmarshalJSON implements json.Unmarshaler interface for ConfigVal.
func (o *ConfigVal[T]) UnmarshalJSON(b []byte) error {
	var val T
	err := json.Unmarshal(b, &val)
	if err != nil {
		return err
	}
	o.v = &val
	return nil
}

// MarshalJSON implements json.Marshaler interface for ConfigVal.
func (o ConfigVal[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Value())
}

// UnmarshalYAML implements yaml.Unmarshaler interface for ConfigVal.
func (o *ConfigVal[T]) UnmarshalYAML(value *yaml.Node) error {
	var val T
	if err := value.Decode(&val); err != nil {
		return err
	}
	o.v = &val
	return nil
}

// MarshalYAML implements yaml.Marshaler interface for ConfigVal.
func (o ConfigVal[T]) MarshalYAML() (interface{}, error) {
	return o.Value(), nil
}

func CreateDumpConfCommand() *DumpConfApp {
	longHelp := `Command "dump-conf" will print actual application configuration taking into account
configuration file provided and default configuration values.

Examples:

	nrmos dump-conf
	nrmos dump-conf --conf path/to/config.yaml --format yaml`

	app := &DumpConfApp{
		fs:  flag.NewFlagSet("dump-conf", flag.ContinueOnError),
		gf:  globalFlags{},
		out: os.Stdout,
	}
	app.gf.Register(app.fs)
	app.fs.StringVar(&app.flFormat, "format", "json", "Output format: json or yaml")
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

// Also define command "dump-conf" here.

// Make sure App implements Commander interface.
var _ Commander = (*DumpConfApp)(nil)

// DumpConfApp is subcommand application context that implements Commander interface.
// Although this is very simple application, but for consistency sake is is implemented in
// similar style as other subcommands.
type DumpConfApp struct {
	out      io.Writer
	fs       *flag.FlagSet
	gf       globalFlags
	flFormat string
}

// Run is main entry point into DumpConfApp execution.
func (d *DumpConfApp) Run(args []string) error {
	if err := d.fs.Parse(args); err != nil {
		return usageError(d.fs, err)
	}

	if d.gf.Debug {
		logging.EnableDebugLogger()
	}

	// Load application configuration.
	cfg, err := LoadConfig(d.gf.ConfFile)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	switch strings.ToLower(d.flFormat) {
	case "json":
		enc := json.NewEncoder(d.out)
		enc.SetIndent("", "  ")
		err = enc.Encode(cfg)
	case "yaml", "yml":
		enc := yaml.NewEncoder(d.out)
		enc.SetIndent(2)
		err = enc.Encode(cfg)
		enc.Close()
	default:
		return &AppError{exitCode: 2, msg: fmt.Sprintf("unknown output format: %s", d.flFormat)}
	}
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	// Also, report if configuration is valid.
	if err := cfg.Verify(); err != nil {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("configuration validation: %s", err)}
	}

	return nil
}
