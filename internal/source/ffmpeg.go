// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package source

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"text/template"
	"time"

	"github.com/evolution-gaming/nrmos/internal/frame"
	"github.com/evolution-gaming/nrmos/internal/logging"
	"github.com/evolution-gaming/nrmos/internal/lw"
	"github.com/google/shlex"
)

// DefaultFFmpegDecodeTemplate renders ffmpeg arguments that decode input into
// a stream of raw planar frames on stdout.
var DefaultFFmpegDecodeTemplate = "-hide_banner -nostdin -loglevel error -i {{quote .InputFile}} " +
	"-filter:v {{.Filter}} -f image2pipe -c:v rawvideo -pix_fmt {{.PixFmt}} -"

// How much of ffmpeg stderr to keep for error reporting.
const stderrTailSize = 64 << 10

// FFmpegOptions control how decoder process is spawned.
type FFmpegOptions struct {
	// Path to ffmpeg executable
	ExePath string
	// Argument template, DefaultFFmpegDecodeTemplate if empty
	Template string
}

// FFmpeg decodes arbitrary container/codec into raw frames by running ffmpeg
// as a subprocess. Frames are read sequentially from its stdout.
//
// The process is started by StartFFmpeg and must be released with Close.
type FFmpeg struct {
	cfg     Config
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stderr  *lw.TailWriter
	buf     []byte
	decoded int
	started time.Time
	closed  bool
	usage   UsageStat
}

// PixFmt returns ffmpeg pixel format name for bit depth and chroma format,
// e.g. yuv420p or yuv422p10le.
func PixFmt(bitDepth int, chroma frame.ChromaFormat) string {
	s := "yuv" + chroma.String() + "p"
	if bitDepth > 8 {
		s += strconv.Itoa(bitDepth) + "le"
	}
	return s
}

// FFmpegArgs renders decoder arguments for cfg.
func FFmpegArgs(tpl string, cfg Config) ([]string, error) {
	if tpl == "" {
		tpl = DefaultFFmpegDecodeTemplate
	}
	// Template requires a struct with exported fields.
	tplContext := struct {
		InputFile string
		Width     int
		Height    int
		FPS       string
		PixFmt    string
		Filter    string
	}{
		InputFile: cfg.Path,
		Width:     cfg.Width,
		Height:    cfg.Height,
		FPS:       strconv.FormatFloat(cfg.FPS, 'f', -1, 64),
		PixFmt:    PixFmt(cfg.BitDepth, cfg.Chroma),
	}
	tplContext.Filter = fmt.Sprintf("scale=w=%d:h=%d,fps=%s", cfg.Width, cfg.Height, tplContext.FPS)

	var cmd strings.Builder
	t, err := template.New("ffmpeg").Funcs(template.FuncMap{"quote": shellQuote}).Parse(tpl)
	if err != nil {
		return nil, fmt.Errorf("%w: parse template: %w", ErrInvalidConfig, err)
	}
	if err := t.Execute(&cmd, tplContext); err != nil {
		return nil, fmt.Errorf("%w: execute template: %w", ErrInvalidConfig, err)
	}
	args, err := shlex.Split(cmd.String())
	if err != nil {
		return nil, fmt.Errorf("%w: prepare command: %w", ErrInvalidConfig, err)
	}
	return args, nil
}

// StartFFmpeg spawns ffmpeg decoding cfg.Path scaled to cfg dimensions and
// resampled to cfg.FPS.
func StartFFmpeg(cfg Config, opts FFmpegOptions) (*FFmpeg, error) {
	if !cfg.valid() {
		return nil, fmt.Errorf("%w: use NewConfig", ErrInvalidConfig)
	}
	if err := checkReadable(cfg.Path); err != nil {
		return nil, err
	}
	args, err := FFmpegArgs(opts.Template, cfg)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(opts.ExePath, args...) //#nosec G204
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	stderr := lw.TailWriterSize(stderrTailSize)
	cmd.Stderr = stderr

	logging.Debugf("Decoder command: %v", cmd.Args)
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrToolNotFound, opts.ExePath)
		}
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}

	return &FFmpeg{
		cfg:     cfg,
		cmd:     cmd,
		stdout:  stdout,
		stderr:  stderr,
		buf:     make([]byte, cfg.FrameBytes()),
		started: time.Now(),
	}, nil
}

// LoadFrame reads next frame. A short or empty read means the stream has
// ended and yields io.EOF.
func (f *FFmpeg) LoadFrame() (*frame.Planar, error) {
	if f.closed {
		return nil, ErrClosed
	}
	n, err := io.ReadFull(f.stdout, f.buf)
	switch {
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		logging.Debugf("Decoder stream ended after %d frames (trailing %d bytes)", f.decoded, n)
		return nil, io.EOF
	case err != nil:
		return nil, fmt.Errorf("reading frame %d: %w", f.decoded+1, err)
	}
	f.decoded++
	return f.cfg.unpack(f.buf), nil
}

// Decoded returns number of frames read so far.
func (f *FFmpeg) Decoded() int {
	return f.decoded
}

// Close stops decoder: closes its stdout, sends SIGTERM and waits for the
// process to exit. Only the first call has effect.
func (f *FFmpeg) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	f.stdout.Close()
	var sigErr error
	if err := f.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		sigErr = fmt.Errorf("terminating ffmpeg: %w", err)
	}
	// Wait error is expected: process was either terminated or got a broken
	// pipe.
	if err := f.cmd.Wait(); err != nil {
		logging.Debugf("Decoder exited: %v", err)
	}
	f.usage = usageOf(f.cmd.ProcessState, time.Since(f.started))
	return sigErr
}

// ProcessState is available once Close returned.
func (f *FFmpeg) ProcessState() *os.ProcessState {
	return f.cmd.ProcessState
}

// Usage returns decoder process resource usage, valid after Close.
func (f *FFmpeg) Usage() UsageStat {
	return f.usage
}

// Stderr returns tail of ffmpeg diagnostics output.
func (f *FFmpeg) Stderr() string {
	return f.stderr.String()
}

// shellQuote quotes s so that shlex.Split yields it as a single argument.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
