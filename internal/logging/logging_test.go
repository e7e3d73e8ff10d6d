// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logging_test

import (
	"io"
	"log"
	"regexp"
	"strings"
	"testing"

	"github.com/evolution-gaming/nrmos/internal/logging"
)

func TestUnformattedLogging(t *testing.T) {
	tests := map[string]struct {
		given   string
		want    *regexp.Regexp
		logFunc func(...interface{})
		logger  *log.Logger
	}{
		"Simple Info": {
			given:   "decoder started",
			want:    regexp.MustCompile("INFO: .*decoder started"),
			logFunc: logging.Info,
			logger:  logging.InfoLogger,
		},
		"Simple Debug": {
			given:   "frame 12 selected",
			want:    regexp.MustCompile("DEBUG: .*frame 12 selected"),
			logFunc: logging.Debug,
			logger:  logging.DebugLogger,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var out strings.Builder
			tc.logger.SetOutput(&out)
			tc.logFunc(tc.given)
			got := out.String()
			if !tc.want.MatchString(got) {
				t.Errorf("Log message not found (-want/+got)\n\t-%s\n\t+%s", tc.want.String(), got)
			}
		})
	}
}

func TestFormattedLogging(t *testing.T) {
	tests := map[string]struct {
		given1  string
		given2  string
		want    *regexp.Regexp
		format  string
		logFunc func(string, ...interface{})
		logger  *log.Logger
	}{
		"Complex Info": {
			given1:  "video.mp4",
			given2:  "MOS 3.72",
			want:    regexp.MustCompile("INFO: .*video.mp4 -- MOS 3.72"),
			format:  "%s -- %s",
			logFunc: logging.Infof,
			logger:  logging.InfoLogger,
		},
		"Complex Debug": {
			given1:  "yuv420p",
			given2:  "3840x2160",
			format:  "%s -- %s",
			want:    regexp.MustCompile("DEBUG: .*yuv420p -- 3840x2160"),
			logFunc: logging.Debugf,
			logger:  logging.DebugLogger,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var out strings.Builder
			tc.logger.SetOutput(&out)
			tc.logFunc(tc.format, tc.given1, tc.given2)
			got := out.String()
			if !tc.want.MatchString(got) {
				t.Errorf("Log message not found (-want/+got)\n\t-%s\n\t+%s", tc.want.String(), got)
			}
		})
	}
}

func TestEnableDebugLogger(t *testing.T) {
	var out strings.Builder
	logging.SetOutput(&out)
	t.Cleanup(func() {
		logging.DebugLogger.SetOutput(io.Discard)
		logging.SetOutput(log.Default().Writer())
	})

	logging.EnableDebugLogger()
	if !logging.DebugEnabled() {
		t.Fatal("Expected debug logging to be enabled")
	}
	logging.Debugf("tile %d of %d", 3, 85)
	if !strings.Contains(out.String(), "tile 3 of 85") {
		t.Errorf("Debug message not written to output, got: %q", out.String())
	}
}
