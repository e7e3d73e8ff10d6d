// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package model runs the quality models in an external worker process.
//
// The worker owns the model weights and their runtime. It reads requests on
// stdin and answers on stdout, one length-prefixed msgpack message per
// request, strictly in order.
package model

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"text/template"
	"time"

	"github.com/evolution-gaming/nrmos/internal/logging"
	"github.com/evolution-gaming/nrmos/internal/lw"
	"github.com/evolution-gaming/nrmos/internal/mos"
	"github.com/evolution-gaming/nrmos/internal/sampler"
	"github.com/google/shlex"
)

// DefaultWorkerTemplate renders worker arguments.
var DefaultWorkerTemplate = "--image-model {{.ImageModel}} --video-model {{.VideoModel}}"

// DefaultBatchSize is number of tiles scored per request.
const DefaultBatchSize = 8

// How long Close waits for worker to exit after closing its stdin.
const defaultGracePeriod = 10 * time.Second

var (
	ErrWorker         = errors.New("model worker error")
	ErrWorkerNotFound = errors.New("model worker executable not found")
	ErrWorkerClosed   = errors.New("model worker closed")
)

// WorkerConfig exposes parameters for Worker creation.
type WorkerConfig struct {
	// Path to worker executable
	ExePath string
	// Argument template, DefaultWorkerTemplate if empty
	Template       string
	ImageModelPath string
	VideoModelPath string
	// Tiles per score request, DefaultBatchSize if zero
	BatchSize int
	// How long to wait for worker exit on Close before terminating it
	GracePeriod time.Duration
}

// Worker is a running model worker process. It implements mos.TileScorer
// and mos.Aggregator. Worker is not safe for concurrent use.
type Worker struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    io.ReadCloser
	stderr    *lw.TailWriter
	batchSize int
	grace     time.Duration
	closed    bool
}

var (
	_ mos.TileScorer = (*Worker)(nil)
	_ mos.Aggregator = (*Worker)(nil)
)

// WorkerArgs renders worker command line arguments.
func WorkerArgs(cfg WorkerConfig) ([]string, error) {
	tpl := cfg.Template
	if tpl == "" {
		tpl = DefaultWorkerTemplate
	}
	// Template requires a struct with exported fields.
	tplContext := struct {
		ImageModel string
		VideoModel string
		BatchSize  int
	}{
		ImageModel: cfg.ImageModelPath,
		VideoModel: cfg.VideoModelPath,
		BatchSize:  cfg.BatchSize,
	}

	var cmd strings.Builder
	t, err := template.New("worker").Parse(tpl)
	if err != nil {
		return nil, fmt.Errorf("WorkerArgs() parse template: %w", err)
	}
	if err := t.Execute(&cmd, tplContext); err != nil {
		return nil, fmt.Errorf("WorkerArgs() execute template: %w", err)
	}
	args, err := shlex.Split(cmd.String())
	if err != nil {
		return nil, fmt.Errorf("WorkerArgs() prepare command: %w", err)
	}
	return args, nil
}

// Start spawns model worker.
func Start(cfg WorkerConfig) (*Worker, error) {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize < 0 {
		return nil, fmt.Errorf("invalid batch size %d", cfg.BatchSize)
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = defaultGracePeriod
	}
	args, err := WorkerArgs(cfg)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(cfg.ExePath, args...) //#nosec G204
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	stderr := lw.TailWriterSize(64 << 10)
	cmd.Stderr = stderr

	logging.Debugf("Model worker command: %v", cmd.Args)
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrWorkerNotFound, cfg.ExePath)
		}
		return nil, fmt.Errorf("starting model worker: %w", err)
	}

	return &Worker{
		cmd:       cmd,
		stdin:     stdin,
		stdout:    stdout,
		stderr:    stderr,
		batchSize: cfg.BatchSize,
		grace:     cfg.GracePeriod,
	}, nil
}

func (w *Worker) roundTrip(req *Request) (*Response, error) {
	if w.closed {
		return nil, ErrWorkerClosed
	}
	if err := WriteMessage(w.stdin, req); err != nil {
		return nil, w.failure(err)
	}
	resp := &Response{}
	if err := ReadMessage(w.stdout, resp); err != nil {
		return nil, w.failure(err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s: %s", ErrWorker, req.Op, resp.Error)
	}
	return resp, nil
}

// failure decorates transport error with worker diagnostics.
func (w *Worker) failure(err error) error {
	if tail := strings.TrimSpace(w.stderr.String()); tail != "" {
		logging.Infof("Model worker stderr:\n%s", tail)
	}
	return fmt.Errorf("%w: %w", ErrWorker, err)
}

// ScoreTiles implements mos.TileScorer. Tiles are sent in chunks of
// configured batch size.
func (w *Worker) ScoreTiles(b *sampler.Batch) ([]float64, error) {
	scores := make([]float64, 0, b.Tiles())
	for i := 0; i < b.Tiles(); i += w.batchSize {
		chunk := b.Slice(i, min(i+w.batchSize, b.Tiles()))
		req := &Request{
			Op:    OpScoreTiles,
			Shape: chunk.Shape[:],
			Data:  EncodeFloat32(chunk.Data),
		}
		resp, err := w.roundTrip(req)
		if err != nil {
			return nil, err
		}
		if len(resp.Scores) != chunk.Tiles() {
			return nil, fmt.Errorf("%w: %d scores for %d tiles", mos.ErrScoreCount, len(resp.Scores), chunk.Tiles())
		}
		scores = append(scores, resp.Scores...)
	}
	return scores, nil
}

// Aggregate implements mos.Aggregator.
func (w *Worker) Aggregate(s *mos.ScoreSequence) (float64, error) {
	frames, tiles := s.Dims()
	req := &Request{
		Op:    OpAggregate,
		Shape: []int{1, frames, tiles, 1},
		Data:  EncodeFloat32(s.Tensor()),
	}
	resp, err := w.roundTrip(req)
	if err != nil {
		return 0, err
	}
	if len(resp.Scores) != 1 {
		return 0, fmt.Errorf("%w: aggregate returned %d values", ErrWorker, len(resp.Scores))
	}
	return resp.Scores[0], nil
}

// Close closes worker stdin and waits for it to exit. Worker that does not
// exit within grace period is terminated.
func (w *Worker) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- w.cmd.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-time.After(w.grace):
		logging.Infof("Model worker did not exit in %s, terminating", w.grace)
		if sErr := w.cmd.Process.Signal(syscall.SIGTERM); sErr != nil && !errors.Is(sErr, os.ErrProcessDone) {
			logging.Debugf("Signaling model worker: %v", sErr)
		}
		err = <-done
		if err != nil {
			return fmt.Errorf("model worker terminated: %w", err)
		}
	}
	if err != nil {
		return w.failure(fmt.Errorf("model worker exit: %w", err))
	}
	return nil
}

// ProcessState is available once Close returned.
func (w *Worker) ProcessState() *os.ProcessState {
	return w.cmd.ProcessState
}
