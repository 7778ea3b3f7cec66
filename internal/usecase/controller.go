package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"intervox/internal/domain"
	"intervox/internal/ports"
)

var (
	ErrVoiceModeOff        = errors.New("voice mode is off")
	ErrCaptureUnsupported  = errors.New("speech capture is not supported")
	ErrPlaybackUnsupported = errors.New("speech playback is not supported")
	ErrSendInProgress      = errors.New("a message is already being sent")
	ErrEmptyMessage        = errors.New("message is empty")
	// ErrStaleSession is returned when the session was reset while the
	// message was in flight; the reply is discarded.
	ErrStaleSession = errors.New("session was reset before the reply arrived")
)

const (
	defaultQuestionNumber = 1
	defaultTotalQuestions = 10

	backgroundTimeout = 10 * time.Second
)

// Config controls voice automation timing.
type Config struct {
	AutoSubmitDelay   time.Duration
	AutoListenDelay   time.Duration
	CaptureRetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.AutoSubmitDelay <= 0 {
		c.AutoSubmitDelay = 800 * time.Millisecond
	}
	if c.AutoListenDelay <= 0 {
		c.AutoListenDelay = 800 * time.Millisecond
	}
	if c.CaptureRetryDelay <= 0 {
		c.CaptureRetryDelay = 100 * time.Millisecond
	}
	return c
}

type codedError interface {
	Code() domain.ErrorCode
}

// Controller runs the voice interaction state machine for one chat window.
// Inputs from the UI, capture attempts, playback and timers are serialised
// under mu and fed through step; the resulting effects are carried out in
// order before the next input is taken.
type Controller struct {
	capture  ports.SpeechCapture
	playback ports.SpeechPlayback
	chat     ports.ChatTransport
	recorder ports.TurnRecorder
	events   ports.EventSink
	cfg      Config
	logger   zerolog.Logger

	newSessionID func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	snap    snapshot
	timers  *scheduler
	session domain.Session
	sending bool
	closed  bool
}

// NewController wires the controller. recorder may be nil.
func NewController(
	capture ports.SpeechCapture,
	playback ports.SpeechPlayback,
	chat ports.ChatTransport,
	recorder ports.TurnRecorder,
	events ports.EventSink,
	cfg Config,
	logger zerolog.Logger,
) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		capture:      capture,
		playback:     playback,
		chat:         chat,
		recorder:     recorder,
		events:       events,
		cfg:          cfg.withDefaults(),
		logger:       logger.With().Str("component", "controller").Logger(),
		newSessionID: newSessionID,
		ctx:          ctx,
		cancel:       cancel,
		timers:       newScheduler(nil),
	}
	c.snap = initialSnapshot(capture != nil && capture.Supported(), playback != nil && playback.Supported())
	c.session = domain.Session{ID: c.newSessionID()}
	return c
}

func newSessionID() string {
	return "session_" + uuid.NewString()
}

// Start announces the initial state to the UI.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info().
		Str("session_id", c.session.ID).
		Bool("capture_supported", c.snap.canListen).
		Bool("playback_supported", c.snap.canSpeak).
		Msg("voice controller started")
	c.events.CapabilitiesChanged(c.snap.canListen, c.snap.canSpeak)
	c.events.StateChanged(c.snap.state, c.snap.reason)
	c.events.ProgressChanged(c.session)
	c.events.InputEnabled(true)
}

// SetVoiceMode turns voice mode on or off. Turning it on fails when replies
// cannot be spoken.
func (c *Controller) SetVoiceMode(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setVoiceModeLocked(on)
}

// ToggleVoiceMode flips voice mode and returns the new value.
func (c *Controller) ToggleVoiceMode() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.setVoiceModeLocked(!c.snap.voice)
	return c.snap.voice, err
}

func (c *Controller) setVoiceModeLocked(on bool) error {
	// Unsupported capabilities were announced by Start; rejections are silent.
	if on && !c.snap.canSpeak {
		return ErrPlaybackUnsupported
	}
	c.logger.Info().Stringer("voice_mode", domain.VoiceMode(on)).Msg("voice mode changed")
	c.dispatchLocked(voiceModeInput{on: on})
	return nil
}

// ActivateMic is the microphone button: it starts listening, or stops the
// attempt in progress.
func (c *Controller) ActivateMic() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.snap.canListen {
		return ErrCaptureUnsupported
	}
	if !c.snap.canSpeak {
		return ErrPlaybackUnsupported
	}
	if !c.snap.voice {
		c.events.ChatError(domain.ErrorCodeVoiceModeOff, "Please enable Voice Mode first")
		return ErrVoiceModeOff
	}
	c.dispatchLocked(activateInput{})
	return nil
}

// Submit sends typed text and blocks until the reply has been handled.
// It cancels a pending auto-submit and stops listening first.
func (c *Controller) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return ErrSendInProgress
	}
	c.dispatchLocked(manualSubmitInput{})
	sessionID := c.beginSendLocked(text)
	c.mu.Unlock()

	return c.send(ctx, text, sessionID)
}

// Reset stops all voice activity and starts a new session. The backend is
// told to forget the old session in the background.
func (c *Controller) Reset() domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.session.ID
	next := c.newSessionID()
	for next == old {
		next = c.newSessionID()
	}
	c.session = domain.Session{ID: next}

	c.dispatchLocked(resetInput{})
	c.events.ProgressChanged(c.session)
	c.logger.Info().Str("old_session_id", old).Str("session_id", next).Msg("session reset")

	c.background(func(ctx context.Context) {
		if err := c.chat.ResetSession(ctx, old); err != nil {
			c.logger.Warn().Err(err).Str("session_id", old).Msg("backend session reset failed")
		}
	})
	return c.session
}

// Status reports a consistent view of the controller.
func (c *Controller) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.Status{
		State:            c.snap.state,
		VoiceMode:        c.snap.voice,
		CaptureSupported: c.snap.canListen,
		VoiceSupported:   c.snap.canSpeak,
		Sending:          c.sending,
		Draft:            c.snap.draft,
		Session:          c.session,
		Message:          c.snap.status,
	}
}

// Close stops capture, playback and timers and waits for background work.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.timers.cancelAll()
	if c.capture != nil {
		c.capture.Stop()
	}
	if c.playback != nil {
		c.playback.StopAll()
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Controller) beginSendLocked(text string) string {
	c.sending = true
	c.events.InputEnabled(false)
	c.events.UserMessage(text)
	return c.session.ID
}

func (c *Controller) send(ctx context.Context, text string, sessionID string) error {
	reply, err := c.chat.SendUserMessage(ctx, text, sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sending = false
	c.events.InputEnabled(true)

	if sessionID != c.session.ID {
		c.logger.Info().Str("session_id", sessionID).Msg("discarding reply for a reset session")
		return ErrStaleSession
	}
	if err != nil {
		code := domain.ErrorCodeNetwork
		var coded codedError
		if errors.As(err, &coded) {
			code = coded.Code()
		}
		c.logger.Error().Err(err).Str("code", string(code)).Str("session_id", sessionID).Msg("chat request failed")
		c.events.ChatError(code, chatErrorMessage)
		return err
	}

	if reply.Role != "" {
		c.session.Role = reply.Role
		c.session.QuestionNumber = reply.QuestionNumber
		if c.session.QuestionNumber <= 0 {
			c.session.QuestionNumber = defaultQuestionNumber
		}
		c.session.TotalQuestions = reply.TotalQuestions
		if c.session.TotalQuestions <= 0 {
			c.session.TotalQuestions = defaultTotalQuestions
		}
		c.events.ProgressChanged(c.session)
	}
	c.events.AssistantReply(reply)
	c.dispatchLocked(replyInput{text: reply.AssistantText})
	c.record(domain.Turn{
		SessionID:      sessionID,
		UserText:       text,
		AssistantText:  reply.AssistantText,
		Role:           reply.Role,
		QuestionNumber: reply.QuestionNumber,
		TotalQuestions: reply.TotalQuestions,
	})
	return nil
}

func (c *Controller) record(turn domain.Turn) {
	if c.recorder == nil {
		return
	}
	c.background(func(ctx context.Context) {
		if err := c.recorder.Record(ctx, turn); err != nil {
			c.logger.Warn().Err(err).Str("session_id", turn.SessionID).Msg("failed to record turn")
		}
	})
}

// background runs fn with a bounded context that ends at Close. Callers hold
// mu.
func (c *Controller) background(fn func(ctx context.Context)) {
	if c.closed {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.ctx, backgroundTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (c *Controller) dispatch(in input) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatchLocked(in)
}

// dispatchLocked feeds in through step, along with any inputs produced while
// applying its effects.
func (c *Controller) dispatchLocked(in input) {
	if c.closed {
		return
	}
	queue := []input{in}
	for len(queue) > 0 {
		next, effects := step(c.snap, queue[0])
		queue = queue[1:]
		c.snap = next
		for _, e := range effects {
			queue = append(queue, c.apply(e)...)
		}
	}
}

func (c *Controller) apply(e effect) []input {
	switch e := e.(type) {
	case stateEffect:
		c.logger.Debug().Str("state", string(e.state)).Str("reason", string(e.reason)).Msg("voice state changed")
		c.events.StateChanged(e.state, e.reason)
	case statusEffect:
		c.events.StatusText(e.text, e.active)
	case draftEffect:
		c.events.DraftChanged(e.text)
	case startCaptureEffect:
		attempt, err := c.capture.Listen(c.ctx)
		if err != nil {
			c.logger.Warn().Err(err).Uint64("attempt", e.attempt).Msg("listen attempt could not start")
			return []input{
				listenFailedInput{attempt: e.attempt, alreadyActive: errors.Is(err, ports.ErrCaptureActive)},
				captureClosedInput{attempt: e.attempt},
			}
		}
		c.wg.Add(1)
		go c.consumeCapture(e.attempt, attempt)
	case stopCaptureEffect:
		c.capture.Stop()
	case speakEffect:
		done, err := c.playback.Speak(e.text)
		if err != nil {
			c.logger.Warn().Err(err).Uint64("utterance", e.utterance).Msg("reply could not be spoken")
			return []input{playbackEndedInput{utterance: e.utterance}}
		}
		c.wg.Add(1)
		go c.awaitPlayback(e.utterance, done)
	case stopPlaybackEffect:
		c.playback.StopAll()
	case scheduleEffect:
		c.timers.schedule(e.kind, c.delay(e.kind), c.fire)
	case cancelTimerEffect:
		c.timers.cancel(e.kind)
	case cancelAllTimersEffect:
		c.timers.cancelAll()
	case submitEffect:
		c.autoSubmitLocked(e.text)
	}
	return nil
}

func (c *Controller) autoSubmitLocked(text string) {
	if c.sending {
		c.logger.Warn().Msg("auto-submit skipped, a message is already being sent")
		c.snap.draft = text
		c.events.DraftChanged(text)
		return
	}
	sessionID := c.beginSendLocked(text)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = c.send(c.ctx, text, sessionID)
	}()
}

func (c *Controller) delay(kind timerKind) time.Duration {
	switch kind {
	case timerAutoSubmit:
		return c.cfg.AutoSubmitDelay
	case timerAutoListen:
		return c.cfg.AutoListenDelay
	default:
		return c.cfg.CaptureRetryDelay
	}
}

func (c *Controller) fire(kind timerKind, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.timers.claim(kind, gen) {
		return
	}
	c.logger.Debug().Stringer("timer", kind).Msg("timer fired")
	c.dispatchLocked(timerInput{kind: kind})
}

func (c *Controller) consumeCapture(id uint64, attempt ports.CaptureAttempt) {
	defer c.wg.Done()
	for event := range attempt.Events() {
		c.dispatch(captureInput{attempt: id, event: event})
	}
	c.dispatch(captureClosedInput{attempt: id})
}

func (c *Controller) awaitPlayback(id uint64, done <-chan struct{}) {
	defer c.wg.Done()
	select {
	case <-done:
		c.dispatch(playbackEndedInput{utterance: id})
	case <-c.ctx.Done():
	}
}
