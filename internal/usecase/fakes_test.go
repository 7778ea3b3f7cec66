package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"intervox/internal/domain"
	"intervox/internal/ports"
)

type fakeAttempt struct {
	events chan domain.CaptureEvent
	once   sync.Once
}

func (a *fakeAttempt) Events() <-chan domain.CaptureEvent {
	return a.events
}

func (a *fakeAttempt) send(events ...domain.CaptureEvent) {
	for _, event := range events {
		a.events <- event
	}
}

func (a *fakeAttempt) close() {
	a.once.Do(func() { close(a.events) })
}

// end mimics a stopped attempt: only Ended is delivered.
func (a *fakeAttempt) end() {
	a.once.Do(func() {
		select {
		case a.events <- domain.CaptureEvent{Kind: domain.CaptureEnded}:
		default:
		}
		close(a.events)
	})
}

type fakeCapture struct {
	supported bool

	mu         sync.Mutex
	attempts   []*fakeAttempt
	listenErrs []error
	stops      int
}

func (f *fakeCapture) Supported() bool {
	return f.supported
}

func (f *fakeCapture) Listen(context.Context) (ports.CaptureAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.listenErrs) > 0 {
		err := f.listenErrs[0]
		f.listenErrs = f.listenErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	a := &fakeAttempt{events: make(chan domain.CaptureEvent, 16)}
	f.attempts = append(f.attempts, a)
	return a, nil
}

func (f *fakeCapture) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	for _, a := range f.attempts {
		a.end()
	}
}

func (f *fakeCapture) attempt(t *testing.T, index int) *fakeAttempt {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if index >= len(f.attempts) {
		t.Fatalf("expected attempt %d, only %d started", index, len(f.attempts))
	}
	return f.attempts[index]
}

func (f *fakeCapture) listens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attempts)
}

func (f *fakeCapture) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakePlayback struct {
	supported bool
	err       error

	mu      sync.Mutex
	spoken  []string
	dones   []chan struct{}
	closed  []bool
	stopAll int
}

func (f *fakePlayback) Supported() bool {
	return f.supported
}

func (f *fakePlayback) Speak(text string) (<-chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	// Superseded utterances still end, like the real adapter.
	for i := range f.dones {
		f.finishLocked(i)
	}
	done := make(chan struct{})
	f.spoken = append(f.spoken, text)
	f.dones = append(f.dones, done)
	f.closed = append(f.closed, false)
	return done, nil
}

func (f *fakePlayback) StopAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopAll++
	for i := range f.dones {
		f.finishLocked(i)
	}
}

func (f *fakePlayback) finish(index int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishLocked(index)
}

func (f *fakePlayback) finishLocked(index int) {
	if index < len(f.dones) && !f.closed[index] {
		f.closed[index] = true
		close(f.dones[index])
	}
}

func (f *fakePlayback) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

func (f *fakePlayback) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopAll
}

type sentMessage struct {
	text      string
	sessionID string
}

type fakeChat struct {
	reply    domain.Reply
	err      error
	resetErr error
	release  chan struct{}

	mu     sync.Mutex
	sent   []sentMessage
	resets []string
}

func (f *fakeChat) SendUserMessage(ctx context.Context, text string, sessionID string) (domain.Reply, error) {
	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{text: text, sessionID: sessionID})
	release := f.release
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return domain.Reply{}, ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeChat) ResetSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, sessionID)
	return f.resetErr
}

func (f *fakeChat) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeChat) resetIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.resets...)
}

type fakeRecorder struct {
	mu    sync.Mutex
	turns []domain.Turn
}

func (f *fakeRecorder) Record(_ context.Context, turn domain.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, turn)
	return nil
}

func (f *fakeRecorder) recorded() []domain.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Turn(nil), f.turns...)
}

type stateChange struct {
	state  domain.VoiceState
	reason domain.StateReason
}

type fakeEventSink struct {
	mu       sync.Mutex
	log      []string
	states   []stateChange
	drafts   []string
	statuses []string
	users    []string
	replies  []domain.Reply
	progress []domain.Session
	inputs   []bool
	errors   []domain.ErrorCode
	caps     []capabilities
}

type capabilities struct {
	capture  bool
	playback bool
}

func (f *fakeEventSink) StateChanged(state domain.VoiceState, reason domain.StateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateChange{state: state, reason: reason})
	f.log = append(f.log, "state:"+string(state))
}

func (f *fakeEventSink) DraftChanged(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, text)
	f.log = append(f.log, "draft:"+text)
}

func (f *fakeEventSink) StatusText(text string, _ bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, text)
}

func (f *fakeEventSink) UserMessage(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, text)
	f.log = append(f.log, "user:"+text)
}

func (f *fakeEventSink) AssistantReply(reply domain.Reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply)
}

func (f *fakeEventSink) ProgressChanged(session domain.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, session)
}

func (f *fakeEventSink) InputEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, enabled)
}

func (f *fakeEventSink) CapabilitiesChanged(capture bool, playback bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.caps = append(f.caps, capabilities{capture: capture, playback: playback})
}

func (f *fakeEventSink) capabilityReports() []capabilities {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]capabilities(nil), f.caps...)
}

func (f *fakeEventSink) ChatError(code domain.ErrorCode, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, code)
}

func (f *fakeEventSink) snapshotStates() []stateChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateChange(nil), f.states...)
}

func (f *fakeEventSink) snapshotLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

func (f *fakeEventSink) lastStatus() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return ""
	}
	return f.statuses[len(f.statuses)-1]
}

func (f *fakeEventSink) errorCodes() []domain.ErrorCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ErrorCode(nil), f.errors...)
}

func (f *fakeEventSink) lastProgress() domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.progress) == 0 {
		return domain.Session{}
	}
	return f.progress[len(f.progress)-1]
}

func (f *fakeEventSink) inputToggles() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.inputs...)
}

type harness struct {
	controller *Controller
	capture    *fakeCapture
	playback   *fakePlayback
	chat       *fakeChat
	recorder   *fakeRecorder
	events     *fakeEventSink
	clock      *fakeClock
}

func newHarness(t *testing.T, capture *fakeCapture, playback *fakePlayback, chat *fakeChat) *harness {
	t.Helper()

	h := &harness{
		capture:  capture,
		playback: playback,
		chat:     chat,
		recorder: &fakeRecorder{},
		events:   &fakeEventSink{},
		clock:    &fakeClock{},
	}
	h.controller = NewController(capture, playback, chat, h.recorder, h.events, Config{}, zerolog.Nop())
	h.controller.timers = newScheduler(h.clock.after)
	t.Cleanup(h.controller.Close)
	return h
}

func newVoiceHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, &fakeCapture{supported: true}, &fakePlayback{supported: true}, &fakeChat{})
	if err := h.controller.SetVoiceMode(true); err != nil {
		t.Fatalf("voice mode: %v", err)
	}
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitForState(t *testing.T, c *Controller, state domain.VoiceState) {
	t.Helper()
	waitFor(t, string(state), func() bool { return c.Status().State == state })
}
