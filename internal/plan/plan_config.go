// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Assessment plan configuration related abstractions.
package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evolution-gaming/nrmos/internal/video"
	"gopkg.in/yaml.v3"
)

// PlanConfigError error type defines PlanConfig validation failures.
type PlanConfigError struct {
	msg     string
	reasons []string
}

func (e *PlanConfigError) Error() string {
	if len(e.reasons) > 0 {
		return fmt.Sprintf("%s with reasons:\n%s", e.msg, strings.Join(e.reasons, "\n"))
	}
	return e.msg
}

func (e *PlanConfigError) Reasons() []string {
	return e.reasons
}

func (e *PlanConfigError) addReason(reason string) {
	e.reasons = append(e.reasons, reason)
}

// Input is a video to assess. Only File is required for encoded videos,
// everything else is detected or defaulted. Raw YUV files carry no metadata
// so their geometry, frame rate and pixel format must be given.
type Input struct {
	File     string  `json:"File" yaml:"file"`
	Raw      bool    `json:"Raw,omitempty" yaml:"raw,omitempty"`
	Width    int     `json:"Width,omitempty" yaml:"width,omitempty"`
	Height   int     `json:"Height,omitempty" yaml:"height,omitempty"`
	FPS      float64 `json:"FPS,omitempty" yaml:"fps,omitempty"`
	Duration float64 `json:"Duration,omitempty" yaml:"duration,omitempty"`
	PixFmt   string  `json:"PixFmt,omitempty" yaml:"pix_fmt,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler, an input can be given as a bare
// file name string.
func (i *Input) UnmarshalJSON(data []byte) error {
	var file string
	if err := json.Unmarshal(data, &file); err == nil {
		*i = Input{File: file}
		return nil
	}
	// Alias type has no UnmarshalJSON, avoids recursion.
	type input Input
	var in input
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*i = Input(in)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler, same as UnmarshalJSON.
func (i *Input) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*i = Input{File: value.Value}
		return nil
	}
	type input Input
	var in input
	if err := value.Decode(&in); err != nil {
		return err
	}
	*i = Input(in)
	return nil
}

// Name is a file system friendly name of input used for output files.
func (i Input) Name() string {
	baseName := filepath.Base(i.File)
	baseName = strings.TrimSuffix(baseName, filepath.Ext(baseName))
	return strings.ReplaceAll(baseName, " ", "_")
}

// PlanConfig holds configuration for new assessment plan.
type PlanConfig struct {
	Inputs []Input `json:"Inputs" yaml:"inputs"`
}

// NewPlanConfigFromJSON will unmarshal JSON into PlanConfig instance.
func NewPlanConfigFromJSON(jdoc []byte) (PlanConfig, error) {
	var pc PlanConfig
	err := json.Unmarshal(jdoc, &pc)
	if err != nil {
		return pc, err
	}
	return pc, nil
}

// NewPlanConfigFromYAML will unmarshal YAML into PlanConfig instance.
func NewPlanConfigFromYAML(doc []byte) (PlanConfig, error) {
	var pc PlanConfig
	err := yaml.Unmarshal(doc, &pc)
	if err != nil {
		return pc, err
	}
	return pc, nil
}

// LoadPlanConfig reads plan file, format is chosen by file extension:
// .yaml/.yml or JSON otherwise.
func LoadPlanConfig(file string) (PlanConfig, error) {
	doc, err := os.ReadFile(file)
	if err != nil {
		return PlanConfig{}, fmt.Errorf("reading plan: %w", err)
	}
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		return NewPlanConfigFromYAML(doc)
	default:
		return NewPlanConfigFromJSON(doc)
	}
}

func (p *PlanConfig) IsValid() (bool, error) {
	errPlanConfig := &PlanConfigError{msg: "validation error"}

	if len(p.Inputs) == 0 {
		errPlanConfig.addReason("Inputs missing")
	}
	files := make([]string, 0, len(p.Inputs))
	names := make([]string, 0, len(p.Inputs))
	for _, i := range p.Inputs {
		files = append(files, i.File)
		names = append(names, i.Name())
	}
	if hasDuplicates(files) {
		errPlanConfig.addReason("Duplicate inputs detected")
	} else if hasDuplicates(names) {
		errPlanConfig.addReason("Inputs with same file name would overwrite each other's results")
	}

	for _, i := range p.Inputs {
		if i.File == "" {
			errPlanConfig.addReason("Input without file")
			continue
		}
		if _, err := os.Stat(i.File); err != nil {
			errPlanConfig.addReason(err.Error())
		}
		if i.Raw && (i.Width <= 0 || i.Height <= 0 || i.FPS <= 0 || i.PixFmt == "") {
			errPlanConfig.addReason(fmt.Sprintf("%s: raw input requires Width, Height, FPS and PixFmt", i.File))
		}
		if i.PixFmt != "" {
			_, depth, err := video.ParsePixFmt(i.PixFmt)
			switch {
			case err != nil:
				errPlanConfig.addReason(fmt.Sprintf("%s: %s", i.File, err))
			case i.Raw && video.IsBigEndian(i.PixFmt):
				errPlanConfig.addReason(fmt.Sprintf("%s: raw samples must be little-endian", i.File))
			case i.Raw && depth != 8 && depth != 10:
				errPlanConfig.addReason(fmt.Sprintf("%s: raw input of %d-bit depth not supported", i.File, depth))
			}
		}
		if i.Width < 0 || i.Height < 0 || i.FPS < 0 || i.Duration < 0 {
			errPlanConfig.addReason(fmt.Sprintf("%s: negative dimensions, frame rate or duration", i.File))
		}
	}

	// Check if there were any validation errors?
	if len(errPlanConfig.reasons) != 0 {
		return false, errPlanConfig
	}
	return true, nil
}

// hasDuplicates checks if slice has duplicate elements.
func hasDuplicates(items []string) bool {
	// Create a poor man's seen
	seen := make(map[string]struct{}, len(items))
	for _, v := range items {
		if _, ok := seen[v]; ok {
			return true
		}
		seen[v] = struct{}{}
	}
	return false
}
