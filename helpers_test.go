// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Reusable helpers and fixtures for tests.
package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"testing"

	"github.com/evolution-gaming/nrmos/internal/model"
	"github.com/evolution-gaming/nrmos/internal/source"
)

// Geometry of all test videos: 8 frames of 32x32 yuv420p at 8 fps.
const (
	fixWidth  = 32
	fixHeight = 32
	fixFPS    = 8
	fixFrames = 8
)

// TestHelperProcess is not a real test, it stands in for external tools.
// First argument after "--" selects the tool:
//
//	ffmpeg - writes HELPER_FRAMES white frames to stdout
//	worker - model worker scoring tiles by their mean sample value
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "no tool given")
		os.Exit(2)
	}

	switch args[1] {
	case "ffmpeg":
		n, _ := strconv.Atoi(os.Getenv("HELPER_FRAMES"))
		frame := whiteFrame()
		for i := 0; i < n; i++ {
			if _, err := os.Stdout.Write(frame); err != nil {
				os.Exit(1)
			}
		}
	case "worker":
		helperWorker()
	default:
		fmt.Fprintf(os.Stderr, "unknown tool %q\n", args[1])
		os.Exit(2)
	}
	os.Exit(0)
}

func helperWorker() {
	for {
		var req model.Request
		if err := model.ReadMessage(os.Stdin, &req); err != nil {
			return
		}
		var resp model.Response
		values := model.DecodeFloat32(req.Data)
		switch req.Op {
		case model.OpScoreTiles:
			n := len(values) / req.Shape[0]
			for i := 0; i < req.Shape[0]; i++ {
				resp.Scores = append(resp.Scores, mean(values[i*n:(i+1)*n]))
			}
		case model.OpAggregate:
			resp.Scores = []float64{mean(values)}
		default:
			resp.Error = "unknown op " + req.Op
		}
		if err := model.WriteMessage(os.Stdout, &resp); err != nil {
			os.Exit(1)
		}
	}
}

func mean(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x)
	}
	return sum / float64(len(v))
}

// whiteFrame is a yuv420p frame of nominal white.
func whiteFrame() []byte {
	luma := bytes.Repeat([]byte{235}, fixWidth*fixHeight)
	chroma := bytes.Repeat([]byte{128}, fixWidth*fixHeight/2)
	return append(luma, chroma...)
}

// fixTools points tool discovery to the test binary and makes it act as the
// tools. Fake ffmpeg produces given number of frames.
func fixTools(t *testing.T, frames int) {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("HELPER_FRAMES", strconv.Itoa(frames))
	t.Setenv("NRMOS_FFMPEG", os.Args[0])
	t.Setenv("NRMOS_FFPROBE", os.Args[0])
	t.Setenv("NRMOS_WORKER", os.Args[0])
}

// fixConfig fixture writes a valid application configuration with small
// tiling and sampling so that assessment is fast.
func fixConfig(t *testing.T) (fPath string) {
	t.Helper()
	dir := t.TempDir()
	imgModel := path.Join(dir, "image.h5")
	vidModel := path.Join(dir, "video.h5")
	for _, f := range []string{imgModel, vidModel} {
		if err := os.WriteFile(f, []byte("weights"), 0o644); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	payload := fmt.Sprintf(`{
		"ffmpeg_path": %q,
		"ffprobe_path": %q,
		"worker_path": %q,
		"image_model_path": %q,
		"video_model_path": %q,
		"ffmpeg_decode_template": %q,
		"worker_template": %q,
		"target_frames": 4,
		"tile_depth": 1,
		"tile_height": 8,
		"tile_width": 8,
		"batch_size": 2,
		"decode_width": %d,
		"decode_height": %d,
		"decode_fps": %d
	}`,
		os.Args[0], os.Args[0], os.Args[0], imgModel, vidModel,
		"-test.run=TestHelperProcess -- ffmpeg "+source.DefaultFFmpegDecodeTemplate,
		"-test.run=TestHelperProcess -- worker "+model.DefaultWorkerTemplate,
		fixWidth, fixHeight, fixFPS,
	)
	fPath = path.Join(dir, "config.json")
	if err := os.WriteFile(fPath, []byte(payload), fs.FileMode(0o644)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return fPath
}

// fixRawVideo fixture writes raw yuv420p file of white frames.
func fixRawVideo(t *testing.T) (fPath string) {
	t.Helper()
	fPath = path.Join(t.TempDir(), "source.yuv")
	data := bytes.Repeat(whiteFrame(), fixFrames)
	if err := os.WriteFile(fPath, data, fs.FileMode(0o644)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return fPath
}

// fixEncodedVideo fixture provides a placeholder for encoded video, its
// content is never read since fake ffmpeg does the decoding.
func fixEncodedVideo(t *testing.T) (fPath string) {
	t.Helper()
	fPath = path.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(fPath, []byte("not really mp4"), fs.FileMode(0o644)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return fPath
}

// fixPlanConfig fixture provides assessment plan with encoded and raw input.
func fixPlanConfig(t *testing.T) (fPath string) {
	t.Helper()
	payload := fmt.Sprintf(`{
		"Inputs": [
			{"File": %q, "PixFmt": "yuv420p", "Duration": 1},
			{"File": %q, "Raw": true, "Width": %d, "Height": %d, "FPS": %d, "PixFmt": "yuv420p"}
		]
	}`, fixEncodedVideo(t), fixRawVideo(t), fixWidth, fixHeight, fixFPS)
	fPath = path.Join(t.TempDir(), "plan.json")
	if err := os.WriteFile(fPath, []byte(payload), fs.FileMode(0o644)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return fPath
}

// fixPlanConfigInvalid fixture provides invalid assessment plan.
func fixPlanConfigInvalid(t *testing.T) (fPath string) {
	t.Helper()
	payload := []byte(`{
		"Inputs": [
			"non-existent"
		]
	}`)
	fPath = path.Join(t.TempDir(), "minimal.json")
	if err := os.WriteFile(fPath, payload, fs.FileMode(0o644)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	return fPath
}
