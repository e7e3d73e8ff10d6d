// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Video metadata related constructs.

package video

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/evolution-gaming/nrmos/internal/frame"
)

var (
	ErrUnsupportedPixFmt = errors.New("unsupported pixel format")
	ErrInvalidFrameRate  = errors.New("invalid frame rate")
)

// Metadata type contains useful video stream metadata.
type Metadata struct {
	CodecName  string  `json:"codec_name,omitempty"`
	FrameRate  string  `json:"r_frame_rate,omitempty"`
	Duration   float64 `json:"duration,omitempty,string"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	BitRate    int     `json:"bit_rate,omitempty,string"`
	PixFmt     string  `json:"pix_fmt,omitempty"`
	FrameCount int     `json:"nb_frames,omitempty,string"`
}

// FPS parses FrameRate.
func (m Metadata) FPS() (float64, error) {
	return ParseFrameRate(m.FrameRate)
}

// MetadataExtractor is the interface that wraps ExtractMetadata method.
type MetadataExtractor interface {
	ExtractMetadata(videoFile string) (Metadata, error)
}

// yuv420p, yuvj422p, yuv444p10le, yuv420p16be ...
var pixFmtRe = regexp.MustCompile(`^yuvj?(4[0-4][0-4])p(\d+)?(le|be)?$`)

// ParsePixFmt extracts chroma format and bit depth from ffmpeg pixel format
// name of a planar YUV format.
func ParsePixFmt(pixFmt string) (frame.ChromaFormat, int, error) {
	m := pixFmtRe.FindStringSubmatch(pixFmt)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnsupportedPixFmt, pixFmt)
	}
	cf, err := frame.ParseChromaFormat(m[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnsupportedPixFmt, pixFmt)
	}
	depth := 8
	if m[2] != "" {
		depth, _ = strconv.Atoi(m[2])
	}
	switch depth {
	case 8, 10, 12, 16:
	default:
		return 0, 0, fmt.Errorf("%w: %q bit depth %d", ErrUnsupportedPixFmt, pixFmt, depth)
	}
	return cf, depth, nil
}

// IsBigEndian reports whether pixel format stores samples big-endian.
func IsBigEndian(pixFmt string) bool {
	return strings.HasSuffix(pixFmt, "be")
}

// ParseFrameRate parses frame rate given either as a fraction like
// "30000/1001" or as a decimal number.
func ParseFrameRate(s string) (float64, error) {
	num, den, isFraction := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFrameRate, s)
	}
	d := 1.0
	if isFraction {
		if d, err = strconv.ParseFloat(den, 64); err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidFrameRate, s)
		}
	}
	if d == 0 || n <= 0 || d < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFrameRate, s)
	}
	return n / d, nil
}
