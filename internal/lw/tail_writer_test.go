// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lw_test

import (
	"bytes"
	"io"
	"testing"
	"testing/quick"

	"github.com/evolution-gaming/nrmos/internal/lw"
)

func TestTailWriterImplementsWriter(t *testing.T) {
	var _ io.Writer = &lw.TailWriter{}
}

func TestTailWriterProp(t *testing.T) {
	// How many iterations quick.Check should run.
	iterations := 1 * 1000
	qCfg := &quick.Config{MaxCount: iterations}

	t.Run(
		"Written data to large enough buffer should be equal source data",
		func(t *testing.T) {
			fn := func(b []byte) bool {
				w := lw.TailWriterSize(len(b) + 1)
				n, err := w.Write(b)
				if err != nil {
					return false
				}
				return n == len(b) && bytes.Equal(b, w.Bytes()) && !w.Truncated()
			}
			if err := quick.Check(fn, qCfg); err != nil {
				t.Error(err)
			}
		})
	t.Run(
		"Multiple writes should keep tail of concatenated data",
		func(t *testing.T) {
			fn := func(chunks [][]byte, size uint8) bool {
				w := lw.TailWriterSize(int(size))
				var all []byte
				for _, c := range chunks {
					n, err := w.Write(c)
					if err != nil || n != len(c) {
						return false
					}
					all = append(all, c...)
				}
				want := all
				if len(all) > int(size) {
					want = all[len(all)-int(size):]
				}
				if size == 0 {
					want = nil
				}
				return bytes.Equal(want, w.Bytes()) && len(w.Bytes()) <= int(size)
			}
			if err := quick.Check(fn, qCfg); err != nil {
				t.Error(err)
			}
		})
}

func TestTailWriterTruncated(t *testing.T) {
	w := lw.TailWriterSize(4)
	_, _ = w.Write([]byte("abc"))
	if w.Truncated() {
		t.Error("Expected no truncation")
	}
	_, _ = w.Write([]byte("defg"))
	if !w.Truncated() {
		t.Error("Expected truncation")
	}
	if got := w.String(); got != "defg" {
		t.Errorf("Unexpected tail, want: defg got: %s", got)
	}
}
