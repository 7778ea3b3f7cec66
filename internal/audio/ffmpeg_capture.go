package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"intervox/internal/ports"
)

const (
	startupGrace = 250 * time.Millisecond
	stopTimeout  = 1200 * time.Millisecond
	stderrLimit  = 4096
)

// FFMPEGCapture streams microphone PCM audio using an ffmpeg child process.
type FFMPEGCapture struct {
	command string
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command}
}

// Available reports whether the recorder binary can be found.
func (c *FFMPEGCapture) Available() bool {
	_, err := exec.LookPath(c.command)
	return err == nil
}

func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cfg = withCaptureDefaults(cfg)

	proc, err := startRecorder(ctx, c.command, ffmpegArgs(cfg))
	if err != nil {
		return nil, err
	}

	// A recorder that cannot open its input device exits within the grace period.
	select {
	case <-proc.exited:
		detail := proc.stderr.String()
		if proc.exitErr != nil {
			return nil, fmt.Errorf("%w: ffmpeg exited before capture started: %v: %s", ports.ErrNoInputDevice, proc.exitErr, detail)
		}
		return nil, fmt.Errorf("%w: ffmpeg exited before capture started", ports.ErrNoInputDevice)
	case <-ctx.Done():
		proc.terminate()
		return nil, ctx.Err()
	case <-time.After(startupGrace):
	}
	return proc, nil
}

func withCaptureDefaults(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return cfg
}

// recorderProcess is a running recorder whose stdout carries raw PCM.
type recorderProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer

	exited  chan struct{}
	exitErr error

	stopOnce sync.Once
	stopErr  error
}

func startRecorder(ctx context.Context, command string, args []string) (*recorderProcess, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	proc := &recorderProcess{
		cmd:    cmd,
		stderr: &tailBuffer{limit: stderrLimit},
		exited: make(chan struct{}),
	}
	cmd.Stderr = proc.stderr
	cmd.WaitDelay = stopTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	proc.stdout = stdout
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	go func() {
		proc.exitErr = cmd.Wait()
		close(proc.exited)
	}()
	return proc, nil
}

func (p *recorderProcess) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

func (p *recorderProcess) Close() error {
	return p.Stop()
}

// Stop interrupts the recorder so it flushes, then kills it after stopTimeout.
func (p *recorderProcess) Stop() error {
	p.stopOnce.Do(func() {
		p.stopErr = p.terminate()
		if p.stopErr != nil {
			if detail := p.stderr.String(); detail != "" {
				p.stopErr = fmt.Errorf("%w: %s", p.stopErr, detail)
			}
		}
	})
	return p.stopErr
}

func (p *recorderProcess) terminate() error {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(os.Interrupt)
	}
	select {
	case <-p.exited:
	case <-time.After(stopTimeout):
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		<-p.exited
	}

	err := normalizeStopErr(p.exitErr)
	if closeErr := p.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && err == nil {
		err = closeErr
	}
	return err
}

// normalizeStopErr drops exit statuses: an interrupted recorder never exits 0.
// ErrWaitDelay means a grandchild kept stderr open after the recorder died.
func normalizeStopErr(err error) error {
	var exitErr *exec.ExitError
	if err == nil || errors.As(err, &exitErr) || errors.Is(err, exec.ErrWaitDelay) {
		return nil
	}
	return err
}

func ffmpegArgs(cfg ports.AudioConfig) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return trimOutput(string(t.buf))
}

func trimOutput(input string) string {
	return strings.TrimSpace(input)
}
