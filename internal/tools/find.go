// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tools

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/evolution-gaming/nrmos/internal/logging"
)

// FindTool will find tool executable in $PATH with possibility to override it
// via environment variable. An override pointing to a non-existent file is
// ignored.
func FindTool(exeName, overrideEnvVar string) (string, error) {
	if overrideEnvVar != "" {
		if p := os.Getenv(overrideEnvVar); p != "" {
			if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
				return p, nil
			}
			logging.Debugf("Ignoring %s=%s: no such executable", overrideEnvVar, p)
		}
	}

	if p, err := exec.LookPath(exeName); err == nil {
		return p, nil
	}

	return "", fmt.Errorf("binary (%s) %w", exeName, exec.ErrNotFound)
}
