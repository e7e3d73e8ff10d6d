// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package source

import (
	"errors"
	"io"

	"github.com/evolution-gaming/nrmos/internal/frame"
)

// Decoder produces frames in presentation order. LoadFrame returns io.EOF
// once there are no more frames.
type Decoder interface {
	LoadFrame() (*frame.Planar, error)
	Close() error
}

// Seeker is a Decoder with random access to frames by 1-based index.
type Seeker interface {
	Decoder
	LoadFrameAt(n int) (*frame.Planar, error)
	NumFrames() int
}

// LoadFields loads next frame and splits it into top and bottom fields.
func LoadFields(d Decoder) (top, bottom *frame.Planar, err error) {
	return fields(d.LoadFrame())
}

// LoadFieldsAt loads frame n and splits it into top and bottom fields.
func LoadFieldsAt(s Seeker, n int) (top, bottom *frame.Planar, err error) {
	return fields(s.LoadFrameAt(n))
}

func fields(p *frame.Planar, err error) (top, bottom *frame.Planar, _ error) {
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, io.EOF
	}
	top, bottom = p.Fields()
	return top, bottom, nil
}

// IsEOS reports whether err signals end of stream.
func IsEOS(err error) bool {
	return errors.Is(err, io.EOF)
}
