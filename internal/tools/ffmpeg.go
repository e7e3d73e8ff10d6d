// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Ffmpeg family related tools.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/evolution-gaming/nrmos/internal/logging"
	"github.com/evolution-gaming/nrmos/internal/video"
)

var (
	ffprobeCmd = "ffprobe"
	ffmpegCmd  = "ffmpeg"
	workerCmd  = "nrmos-worker"
	// Environment variables overriding executable lookup in $PATH.
	ffprobeEnv = "NRMOS_FFPROBE"
	ffmpegEnv  = "NRMOS_FFMPEG"
	workerEnv  = "NRMOS_WORKER"
)

// FfmpegPath will return path to ffmpeg binary and error if path is not found.
func FfmpegPath() (string, error) {
	p, err := FindTool(ffmpegCmd, ffmpegEnv)
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found: %w", err)
	}
	return p, nil
}

// FfprobePath will return path to ffprobe binary and error if path is not found.
func FfprobePath() (string, error) {
	p, err := FindTool(ffprobeCmd, ffprobeEnv)
	if err != nil {
		return "", fmt.Errorf("ffprobe not found: %w", err)
	}
	return p, nil
}

// WorkerPath will return path to model worker executable.
func WorkerPath() (string, error) {
	p, err := FindTool(workerCmd, workerEnv)
	if err != nil {
		return "", fmt.Errorf("model worker not found: %w", err)
	}
	return p, nil
}

// Ffprobe extracts video metadata with ffprobe, implements
// video.MetadataExtractor.
type Ffprobe struct {
	// Path to ffprobe executable, looked up with FfprobePath when empty.
	ExePath string
}

// ExtractMetadata implements video.MetadataExtractor.
func (f Ffprobe) ExtractMetadata(videoFile string) (video.Metadata, error) {
	exe := f.ExePath
	if exe == "" {
		p, err := FfprobePath()
		if err != nil {
			return video.Metadata{}, err
		}
		exe = p
	}
	return FfprobeExtractMetadata(exe, videoFile)
}

// FfprobeExtractMetadata will query video file metadata via ffprobe.
func FfprobeExtractMetadata(ffprobePath, videoFile string) (video.Metadata, error) {
	var vmeta video.Metadata

	if _, err := os.Stat(videoFile); errors.Is(err, os.ErrNotExist) {
		return vmeta, fmt.Errorf("FfprobeExtractMetadata() os.Stat: %w", err)
	}

	ffprobeArgs := []string{
		"-v", "quiet",
		"-threads", "0",
		"-select_streams", "v:0",
		"-of", "json",
		"-show_format",
		"-show_streams",
		videoFile,
	}
	cmd := exec.Command(ffprobePath, ffprobeArgs...) //#nosec G204
	logging.Debugf("Running: %s\n", cmd)
	out, err := cmd.Output()
	if err != nil {
		return vmeta, fmt.Errorf("FfprobeExtractMetadata() exec error: %w", err)
	}

	return parseFfprobeOutput(videoFile, out)
}

func parseFfprobeOutput(videoFile string, out []byte) (video.Metadata, error) {
	// Unmarshal metadata from both "streams" and "format" JSON objects.
	meta := &struct {
		Streams []video.Metadata
		Format  video.Metadata
	}{}
	if err := json.Unmarshal(out, &meta); err != nil {
		return video.Metadata{}, fmt.Errorf("FfprobeExtractMetadata() json.Unmarshal: %w", err)
	}
	if len(meta.Streams) == 0 {
		return video.Metadata{}, fmt.Errorf("FfprobeExtractMetadata() no video stream in %s", videoFile)
	}

	vmeta := meta.Streams[0]
	// For mkv container Streams does not contain duration, so we have to look into Format.
	// Format duration covers all streams and may be longer than video.
	if vmeta.Duration == 0 {
		vmeta.Duration = meta.Format.Duration
	}
	logging.Debugf("%s %+v", videoFile, vmeta)

	return vmeta, nil
}
