// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Reusable parts of nrmos application and subcommand infrastructure.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evolution-gaming/nrmos/internal/logging"
	"github.com/evolution-gaming/nrmos/internal/plan"
	flag "github.com/spf13/pflag"
)

// Commander interface should be implemented by commands and sub-commands.
type Commander interface {
	Run([]string) error
}

// AppError a custom error returned from CLI application.
//
// AppError is handy error type envisioned to be used in CLI's main.
// ExitCode() should be used as argument for os.Exit().
type AppError struct {
	msg      string
	exitCode int
}

// Error implements error interface for AppError.
func (e *AppError) Error() string {
	return e.msg
}

// ExitCode returns CLI application's exit code.
func (e *AppError) ExitCode() int {
	return e.exitCode
}

// usageError converts flag parsing error into AppError, help request is
// not treated as failure message.
func usageError(fs *flag.FlagSet, err error) *AppError {
	if errors.Is(err, flag.ErrHelp) {
		return &AppError{exitCode: 2}
	}
	return &AppError{exitCode: 2, msg: fmt.Sprintf("%s usage error: %s", fs.Name(), err)}
}

// printSubCommandUsage helper to format ad print subcommand's usage.
func printSubCommandUsage(longHelp string, fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage of sub-command %s:\n\n", fs.Name())
	fmt.Fprintf(fs.Output(), "%s\n\n", longHelp)
	fs.PrintDefaults()
}

// loadPlan reads and validates assessment plan file.
func loadPlan(planFile string) (plan.PlanConfig, error) {
	pc, err := plan.LoadPlanConfig(planFile)
	if err != nil {
		return pc, fmt.Errorf("cannot create PlanConfig: %w", err)
	}

	if ok, err := pc.IsValid(); !ok {
		ev := &plan.PlanConfigError{}
		if errors.As(err, &ev) {
			logging.Debugf(
				"PlanConfig validation failures:\n%s",
				strings.Join(ev.Reasons(), "\n"))
		}
		return pc, fmt.Errorf("PlanConfig not valid: %w", err)
	}

	return pc, nil
}

// all checks that every element of non-empty slice equals v.
func all[T comparable](s []T, v T) bool {
	if len(s) == 0 {
		return false
	}
	for _, e := range s {
		if e != v {
			return false
		}
	}
	return true
}

// baseName returns file name without directory and extension.
func baseName(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// isNonEmptyDir will check if given directory is non-empty.
func isNonEmptyDir(path string) bool {
	fs, err := os.Open(path)
	if err != nil {
		return false
	}
	defer fs.Close()

	n, _ := fs.Readdirnames(1)
	return len(n) == 1
}
