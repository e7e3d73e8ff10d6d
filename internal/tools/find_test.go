// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tools

import (
	"errors"
	"os"
	"os/exec"
	"path"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_FindTool(t *testing.T) {
	// Create a fake worker binary.
	fakeBinDir := t.TempDir()
	exePath := path.Join(fakeBinDir, "nrmos-worker")
	f, err := os.OpenFile(exePath, os.O_CREATE, 0o755)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	t.Run("Should fail if executable not found in $PATH nor overridden", func(t *testing.T) {
		got, err := FindTool("nonexistent", "")
		if diff := cmp.Diff("", got); diff != "" {
			t.Errorf("FindTool() mismatch (-want +got):\n%s", diff)
		}
		if !errors.Is(err, exec.ErrNotFound) {
			t.Errorf("Expecting exec.ErrNotFound, got: %v", err)
		}
	})

	t.Run("Should return path if overridden via env var", func(t *testing.T) {
		t.Setenv("CUSTOM_EXE_PATH", exePath)

		got, err := FindTool("nrmos-worker", "CUSTOM_EXE_PATH")
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(exePath, got); diff != "" {
			t.Errorf("FindTool() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Should fall back to $PATH if override does not exist", func(t *testing.T) {
		t.Setenv("CUSTOM_EXE_PATH", "/non/existent/nrmos-worker")
		t.Setenv("PATH", fakeBinDir)

		got, err := FindTool("nrmos-worker", "CUSTOM_EXE_PATH")
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(exePath, got); diff != "" {
			t.Errorf("FindTool() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Should return path from $PATH", func(t *testing.T) {
		sysPath := os.Getenv("PATH")
		t.Setenv("PATH", fakeBinDir+":"+sysPath)

		got, err := FindTool("nrmos-worker", "")
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(exePath, got); diff != "" {
			t.Errorf("FindTool() mismatch (-want +got):\n%s", diff)
		}
	})
}
