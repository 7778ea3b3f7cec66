package speech

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"intervox/internal/domain"
	"intervox/internal/ports"
)

var (
	// ErrAlreadyActive is returned by Listen while a previous attempt has
	// not finished tearing down.
	ErrAlreadyActive = ports.ErrCaptureActive
	// ErrCaptureUnsupported is returned when no speech-to-text path exists.
	ErrCaptureUnsupported = errors.New("speech capture: not supported on this system")
)

// CaptureConfig tunes single-shot listening.
type CaptureConfig struct {
	Audio           ports.AudioConfig
	ChunkSize       int
	FlushGrace      time.Duration
	NoSpeechTimeout time.Duration
	MaxDuration     time.Duration
	EndpointingMS   int
	UtteranceEndMS  int
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.ChunkSize < 256 {
		c.ChunkSize = defaultChunkSize
	}
	if c.FlushGrace <= 0 {
		c.FlushGrace = 2 * time.Second
	}
	if c.NoSpeechTimeout <= 0 {
		c.NoSpeechTimeout = 8 * time.Second
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = time.Minute
	}
	if c.EndpointingMS <= 0 {
		c.EndpointingMS = 300
	}
	if c.UtteranceEndMS <= 0 {
		c.UtteranceEndMS = 1000
	}
	return c
}

type configuredProvider interface {
	Configured() bool
}

type availableDevice interface {
	Available() bool
}

// Capture exposes speech-to-text as single-shot listen attempts. At most one
// attempt is outstanding at a time.
type Capture struct {
	mic       ports.AudioCapture
	provider  ports.TranscriptionProvider
	cfg       CaptureConfig
	logger    zerolog.Logger
	supported bool

	mu     sync.Mutex
	active *attempt
}

func NewCapture(mic ports.AudioCapture, provider ports.TranscriptionProvider, cfg CaptureConfig, logger zerolog.Logger) *Capture {
	supported := mic != nil && provider != nil
	if p, ok := provider.(configuredProvider); ok && supported {
		supported = p.Configured()
	}
	if d, ok := mic.(availableDevice); ok && supported {
		supported = d.Available()
	}

	c := &Capture{
		mic:       mic,
		provider:  provider,
		cfg:       cfg.withDefaults(),
		logger:    logger.With().Str("component", "capture").Logger(),
		supported: supported,
	}
	if !supported {
		c.logger.Warn().Msg("speech capture unavailable")
	}
	return c
}

func (c *Capture) Supported() bool {
	return c.supported
}

// Listen starts one attempt. The attempt's events end with exactly one
// Error or Ended, after which the channel is closed.
func (c *Capture) Listen(ctx context.Context) (ports.CaptureAttempt, error) {
	if !c.supported {
		return nil, ErrCaptureUnsupported
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return nil, ErrAlreadyActive
	}

	runCtx, cancel := context.WithCancel(ctx)
	a := &attempt{
		events: make(chan domain.CaptureEvent, 64),
		cancel: cancel,
	}
	c.active = a
	go c.run(runCtx, a)
	return a, nil
}

// Stop ends the outstanding attempt, if any. Only the terminal Ended event
// is delivered afterwards.
func (c *Capture) Stop() {
	c.mu.Lock()
	a := c.active
	c.mu.Unlock()

	if a != nil && a.stopped.CompareAndSwap(false, true) {
		c.logger.Debug().Msg("listen attempt stopped")
		a.cancel()
	}
}

func (c *Capture) release(a *attempt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == a {
		c.active = nil
	}
}

func (c *Capture) run(ctx context.Context, a *attempt) {
	terminal := c.listen(ctx, a)
	if terminal.Kind == domain.CaptureError {
		c.logger.Info().
			Str("kind", string(terminal.ErrorKind)).
			Str("detail", terminal.Message).
			Msg("listen attempt failed")
	}

	c.release(a)
	a.emit(terminal)
	close(a.events)
	a.cancel()
}

func (c *Capture) listen(ctx context.Context, a *attempt) domain.CaptureEvent {
	mic, err := c.mic.Start(ctx, c.cfg.Audio)
	if err != nil {
		if a.stopped.Load() {
			return domain.CaptureEvent{Kind: domain.CaptureEnded}
		}
		return classifyStartError(err)
	}
	endMic := sync.OnceFunc(func() { _ = mic.Stop() })
	defer endMic()

	stream, err := c.provider.StartStreaming(ctx, ports.StreamingConfig{
		SampleRate:     c.cfg.Audio.SampleRate,
		Channels:       c.cfg.Audio.Channels,
		Encoding:       "linear16",
		InterimResults: true,
		EndpointingMS:  c.cfg.EndpointingMS,
		UtteranceEndMS: c.cfg.UtteranceEndMS,
	})
	if err != nil {
		if a.stopped.Load() {
			return domain.CaptureEvent{Kind: domain.CaptureEnded}
		}
		return captureError(domain.CaptureErrorOther, err.Error())
	}
	a.emit(domain.CaptureEvent{Kind: domain.CaptureStarted})

	pumpErr := make(chan error, 1)
	go func() {
		pumpErr <- pumpAudio(mic, stream, c.cfg.ChunkSize)
	}()

	var transcript transcriptAggregator
	noSpeech := time.NewTimer(c.cfg.NoSpeechTimeout)
	defer noSpeech.Stop()
	maxDuration := time.NewTimer(c.cfg.MaxDuration)
	defer maxDuration.Stop()

	var flush <-chan time.Time
	finishing := func() {
		endMic()
		if flush == nil {
			flush = time.After(c.cfg.FlushGrace)
		}
	}

	done := ctx.Done()
	events := stream.Events()
	for events != nil {
		select {
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if strings.TrimSpace(event.Text) != "" {
				transcript.Add(event)
				noSpeech.Stop()
				a.emit(domain.CaptureEvent{Kind: domain.CaptureInterim, Text: transcript.Draft()})
			}
			if event.IsSpeechFinal && transcript.HasFinal() {
				finishing()
			}
		case <-noSpeech.C:
			if !transcript.Heard() {
				finishing()
			}
		case <-maxDuration.C:
			finishing()
		case <-flush:
			_ = stream.Close()
		case <-done:
			done = nil
			endMic()
			_ = stream.Close()
		}
	}

	streamErr := stream.Wait()
	endMic()
	audioErr := <-pumpErr
	if errors.Is(audioErr, errStreamSend) {
		audioErr = nil
	}

	switch {
	case a.stopped.Load() || ctx.Err() != nil:
		return domain.CaptureEvent{Kind: domain.CaptureEnded}
	case transcript.HasFinal():
		a.emit(domain.CaptureEvent{Kind: domain.CaptureFinal, Text: transcript.Final()})
		return domain.CaptureEvent{Kind: domain.CaptureEnded}
	case streamErr != nil:
		return captureError(domain.CaptureErrorOther, streamErr.Error())
	case audioErr != nil:
		return captureError(domain.CaptureErrorOther, audioErr.Error())
	case !transcript.Heard():
		return captureError(domain.CaptureErrorNoSpeech, "")
	default:
		return domain.CaptureEvent{Kind: domain.CaptureEnded}
	}
}

func classifyStartError(err error) domain.CaptureEvent {
	if errors.Is(err, ports.ErrNoInputDevice) {
		return captureError(domain.CaptureErrorNoMicrophone, err.Error())
	}
	return captureError(domain.CaptureErrorOther, err.Error())
}

func captureError(kind domain.CaptureErrorKind, message string) domain.CaptureEvent {
	return domain.CaptureEvent{Kind: domain.CaptureError, ErrorKind: kind, Message: message}
}

type attempt struct {
	events  chan domain.CaptureEvent
	cancel  context.CancelFunc
	stopped atomic.Bool
}

func (a *attempt) Events() <-chan domain.CaptureEvent {
	return a.events
}

// emit never blocks on interim updates; the slack keeps room for the
// Started, Final and terminal events.
func (a *attempt) emit(event domain.CaptureEvent) {
	if a.stopped.Load() && event.Kind != domain.CaptureEnded {
		return
	}
	if event.Kind == domain.CaptureInterim {
		if len(a.events) >= cap(a.events)-4 {
			return
		}
		select {
		case a.events <- event:
		default:
		}
		return
	}
	a.events <- event
}
