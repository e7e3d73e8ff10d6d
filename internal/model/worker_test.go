// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evolution-gaming/nrmos/internal/mos"
	"github.com/evolution-gaming/nrmos/internal/quad"
	"github.com/evolution-gaming/nrmos/internal/sampler"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test, it acts as a model worker for tests
// below. Behaviour is selected with HELPER_WORKER_MODE:
//
//	ok     - score is mean of tile samples, aggregate is mean of all scores
//	error  - reply with error message
//	crash  - exit without reading anything
//	linger - serve requests but do not exit on closed stdin
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	mode := os.Getenv("HELPER_WORKER_MODE")
	if mode == "crash" {
		fmt.Fprintln(os.Stderr, "model file is corrupt")
		os.Exit(3)
	}
	logFile := os.Getenv("HELPER_LOG")
	for {
		var req Request
		if err := ReadMessage(os.Stdin, &req); err != nil {
			if mode == "linger" {
				time.Sleep(time.Minute)
			}
			os.Exit(0)
		}
		if logFile != "" {
			f, _ := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			fmt.Fprintf(f, "%s %v\n", req.Op, req.Shape)
			f.Close()
		}

		var resp Response
		values := DecodeFloat32(req.Data)
		switch {
		case mode == "error":
			resp.Error = "out of memory"
		case req.Op == OpScoreTiles:
			n := len(values) / req.Shape[0]
			for i := 0; i < req.Shape[0]; i++ {
				var sum float64
				for _, v := range values[i*n : (i+1)*n] {
					sum += float64(v)
				}
				resp.Scores = append(resp.Scores, sum/float64(n))
			}
		case req.Op == OpAggregate:
			var sum float64
			for _, v := range values {
				sum += float64(v)
			}
			resp.Scores = []float64{sum / float64(len(values))}
		default:
			resp.Error = "unknown op " + req.Op
		}
		if err := WriteMessage(os.Stdout, &resp); err != nil {
			os.Exit(1)
		}
	}
}

func startHelper(t *testing.T, mode string, batchSize int) *Worker {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("HELPER_WORKER_MODE", mode)
	w, err := Start(WorkerConfig{
		ExePath:        os.Args[0],
		Template:       "-test.run=TestHelperProcess -- " + DefaultWorkerTemplate,
		ImageModelPath: "img.h5",
		VideoModelPath: "vid.h5",
		BatchSize:      batchSize,
		GracePeriod:    2 * time.Second,
	})
	require.NoError(t, err)
	return w
}

// tileBatch builds a batch of n 1x1 tiles, tile i has all samples i/100.
func tileBatch(n int) *sampler.Batch {
	ft := sampler.FrameTiles{}
	for i := 0; i < n; i++ {
		v := float32(i) * 255 / 100
		ft.Tiles = append(ft.Tiles, quad.Tile{Width: 1, Height: 1, Pix: []float32{v, v, v}})
	}
	return sampler.NewBatch(ft)
}

func TestWorker_ScoreTiles(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "requests.log")
	t.Setenv("HELPER_LOG", logFile)
	w := startHelper(t, "ok", 8)

	scores, err := w.ScoreTiles(tileBatch(21))
	require.NoError(t, err)
	require.Len(t, scores, 21)
	for i, s := range scores {
		assert.InDelta(t, float64(i)/100, s, 1e-5)
	}
	require.NoError(t, w.Close())

	got, err := os.ReadFile(logFile)
	require.NoError(t, err)
	want := "score_tiles [8 1 1 3]\nscore_tiles [8 1 1 3]\nscore_tiles [5 1 1 3]\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("requests mismatch (-want +got):\n%s", diff)
	}
}

func TestWorker_Aggregate(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "requests.log")
	t.Setenv("HELPER_LOG", logFile)
	w := startHelper(t, "ok", 0)
	defer w.Close()

	seq, err := mos.Reshape([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	got, err := w.Aggregate(seq)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, got, 1e-6)

	require.NoError(t, w.Close())
	log, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, "aggregate [1 2 3 1]\n", string(log))
}

func TestWorker_Pipeline(t *testing.T) {
	w := startHelper(t, "ok", 0)
	defer w.Close()

	p := &mos.Pipeline{Scorer: w, Aggregator: w}
	b := tileBatch(10)
	res, err := p.Predict(b, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Frames)
	// Mean of 0.00 .. 0.09.
	assert.InDelta(t, 0.045, res.MOS, 1e-5)
	assert.InDelta(t, 0.02, res.FrameScores[0].Score, 1e-5)
	assert.InDelta(t, 0.07, res.FrameScores[1].Score, 1e-5)
}

func TestWorker_Errors(t *testing.T) {
	t.Run("Worker reports error", func(t *testing.T) {
		w := startHelper(t, "error", 0)
		defer w.Close()
		_, err := w.ScoreTiles(tileBatch(3))
		assert.ErrorIs(t, err, ErrWorker)
		assert.ErrorContains(t, err, "out of memory")
	})
	t.Run("Worker crashed", func(t *testing.T) {
		w := startHelper(t, "crash", 0)
		_, err := w.ScoreTiles(tileBatch(3))
		assert.ErrorIs(t, err, ErrWorker)
		err = w.Close()
		assert.ErrorIs(t, err, ErrWorker)
		assert.Contains(t, w.stderr.String(), "model file is corrupt")
	})
	t.Run("Closed worker", func(t *testing.T) {
		w := startHelper(t, "ok", 0)
		require.NoError(t, w.Close())
		require.NoError(t, w.Close())
		_, err := w.ScoreTiles(tileBatch(1))
		assert.ErrorIs(t, err, ErrWorkerClosed)
	})
	t.Run("Executable not found", func(t *testing.T) {
		_, err := Start(WorkerConfig{ExePath: "/non/existent/worker"})
		assert.ErrorIs(t, err, ErrWorkerNotFound)
	})
}

func TestWorker_CloseTerminatesLingeringWorker(t *testing.T) {
	w := startHelper(t, "linger", 0)
	w.grace = 100 * time.Millisecond

	start := time.Now()
	err := w.Close()
	assert.Error(t, err, "Terminated worker exit should be reported")
	assert.Less(t, time.Since(start), 30*time.Second)
	require.NotNil(t, w.ProcessState())
}

func TestWorkerArgs(t *testing.T) {
	tests := map[string]struct {
		cfg  WorkerConfig
		want []string
	}{
		"Default template": {
			cfg:  WorkerConfig{ImageModelPath: "/models/img.h5", VideoModelPath: "/models/vid.h5"},
			want: []string{"--image-model", "/models/img.h5", "--video-model", "/models/vid.h5"},
		},
		"Custom template": {
			cfg: WorkerConfig{
				Template:       `worker.py --batch {{.BatchSize}} --models "{{.ImageModel}}"`,
				ImageModelPath: "/my models/img.h5",
				BatchSize:      4,
			},
			want: []string{"worker.py", "--batch", "4", "--models", "/my models/img.h5"},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := WorkerArgs(tc.cfg)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("WorkerArgs() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	_, err := WorkerArgs(WorkerConfig{Template: "{{.Nope"})
	assert.Error(t, err)
}

func TestProtocol_Float32(t *testing.T) {
	in := []float64{0, 1.5, -2.25, 1e6}
	got := DecodeFloat32(EncodeFloat32(in))
	assert.Equal(t, []float32{0, 1.5, -2.25, 1e6}, got)
}

func TestProtocol_MessageRoundTrip(t *testing.T) {
	var buf strings.Builder
	req := &Request{Op: OpScoreTiles, Shape: []int{1, 2, 2, 3}, Data: []byte{1, 2, 3}}
	require.NoError(t, WriteMessage(&buf, req))

	var got Request
	require.NoError(t, ReadMessage(strings.NewReader(buf.String()), &got))
	assert.Equal(t, *req, got)

	// Truncated message.
	err := ReadMessage(strings.NewReader(buf.String()[:buf.Len()-1]), &got)
	assert.Error(t, err)
}
