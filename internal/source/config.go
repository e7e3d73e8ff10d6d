// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package source implements video sources that decode into planar YUV
// frames: a seekable raw YUV file reader and a streaming ffmpeg decoder.
package source

import (
	"errors"
	"fmt"
	"os"

	"github.com/evolution-gaming/nrmos/internal/frame"
)

var (
	ErrInvalidConfig     = errors.New("invalid video source config")
	ErrSourceNotFound    = errors.New("video source not found")
	ErrSourceNotReadable = errors.New("video source not readable")
	ErrFrameOutOfRange   = errors.New("frame index out of range")
	ErrToolNotFound      = errors.New("decoder executable not found")
	ErrClosed            = errors.New("video source closed")
)

// Config describes geometry and sample format of frames produced by a video
// source. Use NewConfig to construct, zero value is not usable.
type Config struct {
	Path     string
	Width    int
	Height   int
	FPS      float64
	BitDepth int
	Chroma   frame.ChromaFormat

	chromaWidth  int
	chromaHeight int
	bytesPerSamp int
}

// NewConfig validates parameters and derives plane geometry.
func NewConfig(path string, width, height int, fps float64, bitDepth int, chroma frame.ChromaFormat) (Config, error) {
	var reasons []error
	if width <= 0 || height <= 0 {
		reasons = append(reasons, fmt.Errorf("dimensions %dx%d must be positive", width, height))
	}
	if fps <= 0 {
		reasons = append(reasons, fmt.Errorf("frame rate %v must be positive", fps))
	}
	switch bitDepth {
	case 8, 10, 12, 16:
	default:
		reasons = append(reasons, fmt.Errorf("bit depth %d not one of 8, 10, 12, 16", bitDepth))
	}
	dv, dh, ok := chroma.Divisors()
	if !ok {
		reasons = append(reasons, fmt.Errorf("chroma format %d not recognized", chroma))
	}
	if len(reasons) > 0 {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(reasons...))
	}

	c := Config{
		Path:         path,
		Width:        width,
		Height:       height,
		FPS:          fps,
		BitDepth:     bitDepth,
		Chroma:       chroma,
		chromaWidth:  width / dh,
		chromaHeight: height / dv,
		bytesPerSamp: 1,
	}
	if bitDepth > 8 {
		c.bytesPerSamp = 2
	}
	if c.chromaWidth == 0 || c.chromaHeight == 0 {
		return Config{}, fmt.Errorf("%w: %dx%d too small for chroma format %d", ErrInvalidConfig, width, height, chroma)
	}
	return c, nil
}

func (c Config) valid() bool {
	return c.bytesPerSamp > 0
}

// ChromaWidth is width of U and V planes.
func (c Config) ChromaWidth() int { return c.chromaWidth }

// ChromaHeight is height of U and V planes.
func (c Config) ChromaHeight() int { return c.chromaHeight }

// LumaSize is number of samples in Y plane.
func (c Config) LumaSize() int { return c.Width * c.Height }

// ChromaSize is number of samples in each of U and V planes.
func (c Config) ChromaSize() int { return c.chromaWidth * c.chromaHeight }

// FrameSamples is number of samples in a whole frame.
func (c Config) FrameSamples() int { return c.LumaSize() + 2*c.ChromaSize() }

// FrameBytes is size of a single frame in raw planar layout.
func (c Config) FrameBytes() int { return c.FrameSamples() * c.bytesPerSamp }

// unpack splits raw planar frame bytes into planes. Samples wider than 8 bits
// are little-endian 16-bit words.
func (c Config) unpack(raw []byte) *frame.Planar {
	p := &frame.Planar{
		Y: frame.NewPlane(c.Width, c.Height),
		U: frame.NewPlane(c.chromaWidth, c.chromaHeight),
		V: frame.NewPlane(c.chromaWidth, c.chromaHeight),
	}
	off := 0
	for _, pl := range []frame.Plane{p.Y, p.U, p.V} {
		if c.bytesPerSamp == 1 {
			for i := range pl.Pix {
				pl.Pix[i] = uint16(raw[off+i])
			}
		} else {
			for i := range pl.Pix {
				j := off + 2*i
				pl.Pix[i] = uint16(raw[j]) | uint16(raw[j+1])<<8
			}
		}
		off += len(pl.Pix) * c.bytesPerSamp
	}
	return p
}

// checkReadable verifies path exists and can be opened for reading.
func checkReadable(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return fmt.Errorf("%w: %w", ErrSourceNotReadable, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrSourceNotReadable, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceNotReadable, err)
	}
	return f.Close()
}
