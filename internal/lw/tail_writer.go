// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// A naìve bounded writer that remembers only the tail of the data written.
//
// Meant for capturing subprocess stderr: the process may write an unbounded
// amount of diagnostics but only the last lines are interesting when it
// fails.
package lw

import (
	"sync"
)

// TailWriter keeps the last N bytes written to it. It never returns an error,
// so it is safe to use as exec.Cmd Stderr.
type TailWriter struct {
	mu  sync.Mutex
	buf []byte
	// Limit value, zero limit discards everything
	N int
	// Total number of bytes ever written
	total int64
}

// Write implements io.Writer for *TailWriter.
func (t *TailWriter) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(b)
	t.total += int64(n)
	if t.N <= 0 {
		return n, nil
	}
	if n >= t.N {
		t.buf = append(t.buf[:0], b[n-t.N:]...)
		return n, nil
	}
	if overflow := len(t.buf) + n - t.N; overflow > 0 {
		t.buf = append(t.buf[:0], t.buf[overflow:]...)
	}
	t.buf = append(t.buf, b...)
	return n, nil
}

// Bytes returns a copy of the retained tail.
func (t *TailWriter) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.buf...)
}

// String returns retained tail as string.
func (t *TailWriter) String() string {
	return string(t.Bytes())
}

// Truncated reports whether some of the written data has been dropped.
func (t *TailWriter) Truncated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total > int64(len(t.buf))
}

// TailWriterSize creates a TailWriter retaining at most n bytes.
func TailWriterSize(n int) *TailWriter {
	return &TailWriter{N: n}
}
