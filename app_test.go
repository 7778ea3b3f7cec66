package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"intervox/internal/config"
	"intervox/internal/domain"
)

type emitted struct {
	name    string
	payload interface{}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingEmitter) emit(_ context.Context, name string, data ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var payload interface{}
	if len(data) > 0 {
		payload = data[0]
	}
	r.events = append(r.events, emitted{name: name, payload: payload})
}

func (r *recordingEmitter) last(t *testing.T) emitted {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		t.Fatalf("no events emitted")
	}
	return r.events[len(r.events)-1]
}

func newTestApp(t *testing.T) (*App, *recordingEmitter) {
	t.Helper()
	recorder := &recordingEmitter{}
	app := NewApp(config.Default(t.TempDir()), zerolog.Nop(), nil)
	app.emit = recorder.emit
	app.ctx = context.Background()
	return app, recorder
}

func TestStateReasonMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.StateReason]string{
		domain.ReasonVoiceEnabled:     "Voice Mode: On",
		domain.ReasonVoiceDisabled:    "Voice Mode: Off",
		domain.ReasonListeningStarted: "Listening",
		domain.ReasonAutoListen:       "Listening",
		domain.ReasonTranscribed:      "Transcribed",
		domain.ReasonSubmitted:        "Sent",
		domain.ReasonSpeakingQuestion: "Reading question aloud",
		domain.ReasonSpeakingEnded:    "Your turn",
		domain.ReasonSessionReset:     "Conversation reset",
	}

	for reason, want := range cases {
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()
			if got := stateReasonMessage(reason); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := stateReasonMessage("unknown"); got != "" {
		t.Fatalf("expected empty unknown reason message, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:             "Startup failed",
		domain.ErrorCodeNetwork:             "Sorry, I encountered an error. Please try again.",
		domain.ErrorCodeProtocol:            "Sorry, I encountered an error. Please try again.",
		domain.ErrorCodeCaptureUnsupported:  "Speech recognition is not available",
		domain.ErrorCodePlaybackUnsupported: "Text-to-speech is not available",
		domain.ErrorCodeVoiceModeOff:        "Please enable Voice Mode first",
	}
	for code, want := range cases {
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestRoleDisplayName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"engineer": "Software Engineer",
		"sales":    "Sales Representative",
		"retail":   "Retail Associate",
		"pilot":    "pilot",
	}
	for role, want := range cases {
		if got := roleDisplayName(role); got != want {
			t.Fatalf("roleDisplayName(%q) = %q, want %q", role, got, want)
		}
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}

	bootErr := errors.New("boot")
	app = &App{bootErr: bootErr}
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if status := app.GetStatus(); status.Message != "boot" || status.State != domain.VoiceStateOff {
		t.Fatalf("unexpected status: %#v", status)
	}
	if info := app.GetRuntimeInfo(); info["error"] != "boot" {
		t.Fatalf("unexpected runtime info: %#v", info)
	}
}

func TestSelectRoleRejectsUnknownRole(t *testing.T) {
	t.Parallel()

	app, _ := newTestApp(t)
	if err := app.SelectRole("astronaut"); err == nil {
		t.Fatalf("expected unknown role error")
	}
	if err := app.SelectRole("engineer"); err == nil {
		t.Fatalf("expected not initialized error before startup")
	}
}

func TestEventSinkPayloads(t *testing.T) {
	t.Parallel()

	app, recorder := newTestApp(t)

	app.StateChanged(domain.VoiceStateListening, domain.ReasonListeningStarted)
	got := recorder.last(t)
	state := got.payload.(map[string]string)
	if got.name != eventState || state["state"] != "listening" || state["message"] != "Listening" {
		t.Fatalf("unexpected state event: %#v", got)
	}

	app.StatusText("Listening...", true)
	got = recorder.last(t)
	status := got.payload.(map[string]interface{})
	if got.name != eventStatus || status["text"] != "Listening..." || status["active"] != true {
		t.Fatalf("unexpected status event: %#v", got)
	}

	app.ProgressChanged(domain.Session{ID: "session_x", Role: "sales", QuestionNumber: 2, TotalQuestions: 10})
	got = recorder.last(t)
	progress := got.payload.(map[string]interface{})
	if got.name != eventProgress || progress["roleName"] != "Sales Representative" || progress["questionNumber"] != 2 {
		t.Fatalf("unexpected progress event: %#v", got)
	}

	app.ChatError(domain.ErrorCodeNetwork, "Sorry, I encountered an error. Please try again.")
	got = recorder.last(t)
	chatErr := got.payload.(map[string]string)
	if got.name != eventError || chatErr["code"] != "network" {
		t.Fatalf("unexpected error event: %#v", got)
	}

	app.InputEnabled(false)
	got = recorder.last(t)
	if got.name != eventInput || got.payload.(map[string]bool)["enabled"] {
		t.Fatalf("unexpected input event: %#v", got)
	}
}

func TestCapabilitiesPayload(t *testing.T) {
	t.Parallel()

	app, recorder := newTestApp(t)

	app.CapabilitiesChanged(true, true)
	got := recorder.last(t)
	caps := got.payload.(map[string]interface{})
	if got.name != eventCapabilities || caps["capture"] != true || caps["playback"] != true {
		t.Fatalf("unexpected capabilities event: %#v", got)
	}
	if _, ok := caps["captureMessage"]; ok {
		t.Fatalf("supported capture needs no notice: %#v", caps)
	}

	app.CapabilitiesChanged(true, false)
	caps = recorder.last(t).payload.(map[string]interface{})
	if caps["capture"] != false || caps["playbackMessage"] != "Text-to-speech is not available" {
		t.Fatalf("missing playback disables the mic as well: %#v", caps)
	}

	app.CapabilitiesChanged(false, true)
	caps = recorder.last(t).payload.(map[string]interface{})
	if caps["capture"] != false || caps["playback"] != true || caps["captureMessage"] != "Speech recognition is not available" {
		t.Fatalf("unexpected capture notice: %#v", caps)
	}
}

func TestEventSinkBeforeStartupIsSilent(t *testing.T) {
	t.Parallel()

	recorder := &recordingEmitter{}
	app := NewApp(config.Default(t.TempDir()), zerolog.Nop(), nil)
	app.emit = recorder.emit

	app.DraftChanged("hello")
	app.UserMessage("hello")
	if len(recorder.events) != 0 {
		t.Fatalf("expected no events without a runtime context")
	}
}

func TestDomReadyBeforeStartupIsSafe(t *testing.T) {
	t.Parallel()

	app, recorder := newTestApp(t)
	app.domReady(context.Background())
	if len(recorder.events) != 0 {
		t.Fatalf("nothing to announce without a controller")
	}
	if _, err := app.GetTranscript(); err == nil {
		t.Fatalf("expected not initialized error")
	}
}

func TestStartupReportsBootError(t *testing.T) {
	t.Parallel()

	recorder := &recordingEmitter{}
	app := NewApp(config.Default(t.TempDir()), zerolog.Nop(), errors.New("bad config"))
	app.emit = recorder.emit
	app.startup(context.Background())

	got := recorder.last(t)
	if got.name != eventError || got.payload.(map[string]string)["code"] != string(domain.ErrorCodeStartup) {
		t.Fatalf("unexpected startup event: %#v", got)
	}
	if err := app.ActivateMic(); err == nil || err.Error() != "bad config" {
		t.Fatalf("expected boot error, got %v", err)
	}
}

func TestStartupBuildsController(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	cfg := config.Default(home)
	cfg.Storage.DBPath = ""
	recorder := &recordingEmitter{}
	app := NewApp(cfg, zerolog.Nop(), nil)
	app.emit = recorder.emit

	app.startup(context.Background())
	t.Cleanup(func() { app.shutdown(context.Background()) })
	app.domReady(context.Background())

	if app.controller == nil {
		t.Fatalf("expected controller after startup")
	}
	if status := app.GetStatus(); status.State != domain.VoiceStateOff {
		t.Fatalf("unexpected initial state: %s", status.State)
	}

	var capabilityEvents int
	recorder.mu.Lock()
	for _, event := range recorder.events {
		if event.name == eventCapabilities {
			capabilityEvents++
		}
	}
	recorder.mu.Unlock()
	if capabilityEvents != 1 {
		t.Fatalf("expected one capabilities event at startup, got %d", capabilityEvents)
	}
	if err := app.ActivateMic(); err == nil {
		t.Fatalf("mic activation requires voice mode")
	}
	if err := app.SendMessage("   "); err != nil {
		t.Fatalf("empty text is ignored, got %v", err)
	}
	turns, err := app.GetTranscript()
	if err != nil || turns == nil || len(turns) != 0 {
		t.Fatalf("expected an empty transcript without a turn log, got %#v %v", turns, err)
	}
}
