// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package model

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// Operations understood by the worker.
const (
	OpScoreTiles = "score_tiles"
	OpAggregate  = "aggregate"
)

// Upper bound of a single message, a batch of 8 full size tiles is ~12 MB.
const maxMessageSize = 256 << 20

// Request is sent to worker. Data holds little-endian float32 tensor of
// given shape.
type Request struct {
	Op    string `msgpack:"op"`
	Shape []int  `msgpack:"shape"`
	Data  []byte `msgpack:"data"`
}

// Response carries one score per input item or an error message.
type Response struct {
	Scores []float64 `msgpack:"scores"`
	Error  string    `msgpack:"error"`
}

// WriteMessage writes v as length-prefixed msgpack message: 4-byte
// big-endian length followed by payload.
func WriteMessage(w io.Writer, v interface{}) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write message length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// ReadMessage reads length-prefixed msgpack message into v.
func ReadMessage(r io.Reader, v interface{}) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return fmt.Errorf("read message length: %w", err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("read message: %w", err)
	}
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}
	return nil
}

// EncodeFloat32 packs values as little-endian float32.
func EncodeFloat32[T float32 | float64](values []T) []byte {
	b := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(float32(v)))
	}
	return b
}

// DecodeFloat32 unpacks little-endian float32 values.
func DecodeFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}
