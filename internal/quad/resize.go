// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package quad

import (
	"image"
	"math"

	"github.com/evolution-gaming/nrmos/internal/frame"
)

// axis holds, for every destination coordinate, the two neighbouring source
// coordinates and weight of the second one.
type axis struct {
	lo, hi []int
	w      []float32
}

// newAxis maps dst pixel centres onto src pixel centres. Coordinates falling
// outside the source are clamped to the edge.
func newAxis(src, dst int) axis {
	a := axis{lo: make([]int, dst), hi: make([]int, dst), w: make([]float32, dst)}
	scale := float64(src) / float64(dst)
	for d := 0; d < dst; d++ {
		s := (float64(d)+0.5)*scale - 0.5
		s = math.Max(0, math.Min(s, float64(src-1)))
		lo := int(s)
		a.lo[d] = lo
		a.hi[d] = min(lo+1, src-1)
		a.w[d] = float32(s - float64(lo))
	}
	return a
}

// resize scales region r of img to w x h with bilinear interpolation into
// dst, which must hold w*h*3 samples.
func resize(img *frame.RGB, r image.Rectangle, w, h int, dst []float32) {
	xs := newAxis(r.Dx(), w)
	ys := newAxis(r.Dy(), h)
	stride := 3 * img.Width
	base := r.Min.Y*stride + 3*r.Min.X

	for y := 0; y < h; y++ {
		row0 := img.Pix[base+ys.lo[y]*stride:]
		row1 := img.Pix[base+ys.hi[y]*stride:]
		wy := ys.w[y]
		out := dst[3*y*w : 3*(y+1)*w]
		for x := 0; x < w; x++ {
			x0, x1, wx := 3*xs.lo[x], 3*xs.hi[x], xs.w[x]
			for c := 0; c < 3; c++ {
				top := float32(row0[x0+c]) + wx*(float32(row0[x1+c])-float32(row0[x0+c]))
				bot := float32(row1[x0+c]) + wx*(float32(row1[x1+c])-float32(row1[x0+c]))
				out[3*x+c] = top + wy*(bot-top)
			}
		}
	}
}
