// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData is returned when there is no frame to convert, typically
	// because the decoder reached end of stream.
	ErrNoData           = errors.New("no frame data")
	ErrUnsupportedDepth = errors.New("unsupported bit depth")
	ErrPlaneGeometry    = errors.New("plane geometry mismatch")
)

// BT.601 limited range coefficients.
const (
	lumaOffset   = 16
	chromaOffset = 128
	lumaScale    = 1.164
	crToR        = 1.596
	crToG        = 0.813
	cbToG        = 0.391
	cbToB        = 2.018
)

// ToRGB converts planar frame of given bit depth and chroma format into 8-bit
// RGB.
//
// 10-bit samples are brought down to 8 bits with (x+2)/4 first. Chroma is
// upsampled by sample replication. Resulting channels are clipped to [0,255]
// and truncated.
func ToRGB(p *Planar, bitDepth int, cf ChromaFormat) (*RGB, error) {
	if p == nil {
		return nil, ErrNoData
	}
	dv, dh, ok := cf.Divisors()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChroma, cf)
	}

	var shift bool
	switch bitDepth {
	case 8:
	case 10:
		shift = true
	case 12, 16:
		return nil, fmt.Errorf("%w: %d-bit rescaling not implemented", ErrUnsupportedDepth, bitDepth)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDepth, bitDepth)
	}

	if err := checkGeometry(p, dv, dh); err != nil {
		return nil, err
	}

	w, h := p.Y.Width, p.Y.Height
	cw, ch := p.U.Width, p.U.Height
	out := NewRGB(w, h)

	sample := func(v uint16) float64 {
		if shift {
			return float64((int(v) + 2) / 4)
		}
		return float64(v)
	}

	// Chroma column for every luma column.
	cx := make([]int, w)
	for x := range cx {
		cx[x] = min(x/dh, cw-1)
	}

	for y := 0; y < h; y++ {
		cy := min(y/dv, ch-1)
		yRow := p.Y.Pix[y*w : (y+1)*w]
		uRow := p.U.Pix[cy*cw : (cy+1)*cw]
		vRow := p.V.Pix[cy*cw : (cy+1)*cw]
		o := out.Pix[3*y*w : 3*(y+1)*w]
		for x := 0; x < w; x++ {
			yy := lumaScale * (sample(yRow[x]) - lumaOffset)
			u := sample(uRow[cx[x]]) - chromaOffset
			v := sample(vRow[cx[x]]) - chromaOffset

			o[3*x] = clip(yy + crToR*v)
			o[3*x+1] = clip(yy - crToG*v - cbToG*u)
			o[3*x+2] = clip(yy + cbToB*u)
		}
	}
	return out, nil
}

func checkGeometry(p *Planar, dv, dh int) error {
	if !p.Y.valid() || !p.U.valid() || !p.V.valid() {
		return fmt.Errorf("%w: empty or inconsistent plane", ErrPlaneGeometry)
	}
	if p.U.Width != p.V.Width || p.U.Height != p.V.Height {
		return fmt.Errorf("%w: U %dx%d, V %dx%d", ErrPlaneGeometry, p.U.Width, p.U.Height, p.V.Width, p.V.Height)
	}
	if p.U.Width != p.Y.Width/dh || p.U.Height != p.Y.Height/dv {
		return fmt.Errorf("%w: luma %dx%d, chroma %dx%d",
			ErrPlaneGeometry, p.Y.Width, p.Y.Height, p.U.Width, p.U.Height)
	}
	return nil
}

func clip(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}
