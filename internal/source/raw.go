// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package source

import (
	"fmt"
	"io"
	"os"

	"github.com/evolution-gaming/nrmos/internal/frame"
	"github.com/evolution-gaming/nrmos/internal/logging"
)

// RawFile reads headerless planar YUV files, frame after frame with no
// padding. It implements Seeker.
type RawFile struct {
	cfg       Config
	f         *os.File
	buf       []byte
	numFrames int
	// 0-based index of frame the next LoadFrame returns.
	next int
}

// OpenRaw opens raw YUV file described by cfg. Number of frames is derived
// from file size, a trailing partial frame is ignored.
func OpenRaw(cfg Config) (*RawFile, error) {
	if !cfg.valid() {
		return nil, fmt.Errorf("%w: use NewConfig", ErrInvalidConfig)
	}
	if err := checkReadable(cfg.Path); err != nil {
		return nil, err
	}
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceNotReadable, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %w", ErrSourceNotReadable, err)
	}

	r := &RawFile{
		cfg:       cfg,
		f:         f,
		buf:       make([]byte, cfg.FrameBytes()),
		numFrames: int(fi.Size() / int64(cfg.FrameBytes())),
	}
	logging.Debugf("Opened raw source %s: %d frames of %d bytes", cfg.Path, r.numFrames, cfg.FrameBytes())
	return r, nil
}

// NumFrames returns number of complete frames in file.
func (r *RawFile) NumFrames() int {
	return r.numFrames
}

// LoadFrame reads frame following the last one read.
func (r *RawFile) LoadFrame() (*frame.Planar, error) {
	if r.f == nil {
		return nil, ErrClosed
	}
	if r.next >= r.numFrames {
		return nil, io.EOF
	}
	if _, err := io.ReadFull(r.f, r.buf); err != nil {
		return nil, fmt.Errorf("reading frame %d: %w", r.next+1, err)
	}
	r.next++
	return r.cfg.unpack(r.buf), nil
}

// LoadFrameAt reads frame n, frames are numbered from 1. Subsequent
// LoadFrame continues with frame n+1.
func (r *RawFile) LoadFrameAt(n int) (*frame.Planar, error) {
	if r.f == nil {
		return nil, ErrClosed
	}
	if n < 1 || n > r.numFrames {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrFrameOutOfRange, n, r.numFrames)
	}
	off := int64(n-1) * int64(r.cfg.FrameBytes())
	if _, err := r.f.Seek(off, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking to frame %d: %w", n, err)
	}
	r.next = n - 1
	return r.LoadFrame()
}

// Close releases file handle, it is safe to call Close multiple times.
func (r *RawFile) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
