package ports

import (
	"context"
	"errors"
	"io"

	"intervox/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// ErrNoInputDevice marks capture start failures caused by a missing or
// unusable microphone.
var ErrNoInputDevice = errors.New("no audio input device available")

// ErrCaptureActive is returned by SpeechCapture.Listen while the previous
// attempt is still tearing down.
var ErrCaptureActive = errors.New("speech capture: a listen attempt is already active")

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
	EndpointingMS  int
	UtteranceEndMS int
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// CaptureAttempt is one single-shot listen attempt. Events is closed after
// the terminal Error or Ended event.
type CaptureAttempt interface {
	Events() <-chan domain.CaptureEvent
}

// SpeechCapture wraps speech-to-text as single-shot listen attempts.
type SpeechCapture interface {
	Supported() bool
	Listen(ctx context.Context) (CaptureAttempt, error)
	Stop()
}

// SpeechPlayback speaks one utterance at a time. The returned channel is
// closed once when the utterance ends or is cancelled.
type SpeechPlayback interface {
	Supported() bool
	Speak(text string) (<-chan struct{}, error)
	StopAll()
}

// Synthesizer turns one sentence of text into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

// Speaker plays encoded audio and blocks until it finishes or ctx ends.
type Speaker interface {
	Play(ctx context.Context, audio io.ReadCloser) error
	Stop()
}

// TextRewriter transforms text deterministically.
type TextRewriter interface {
	Apply(text string) (string, error)
}

// ChatTransport exchanges user text with the conversation backend.
type ChatTransport interface {
	SendUserMessage(ctx context.Context, text string, sessionID string) (domain.Reply, error)
	ResetSession(ctx context.Context, sessionID string) error
}

// TurnRecorder persists completed exchanges.
type TurnRecorder interface {
	Record(ctx context.Context, turn domain.Turn) error
}

// EventSink emits controller state/events to the UI.
type EventSink interface {
	StateChanged(state domain.VoiceState, reason domain.StateReason)
	DraftChanged(text string)
	StatusText(text string, active bool)
	UserMessage(text string)
	AssistantReply(reply domain.Reply)
	ProgressChanged(session domain.Session)
	InputEnabled(enabled bool)
	// CapabilitiesChanged reports once at startup which voice features the
	// platform supports. Unsupported controls stay disabled for the session.
	CapabilitiesChanged(capture bool, playback bool)
	ChatError(code domain.ErrorCode, detail string)
}
