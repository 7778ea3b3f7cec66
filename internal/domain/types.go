package domain

// VoiceState models the voice interaction lifecycle.
type VoiceState string

const (
	VoiceStateOff               VoiceState = "voice_off"
	VoiceStateIdle              VoiceState = "idle"
	VoiceStateListening         VoiceState = "listening"
	VoiceStateAutoSubmitPending VoiceState = "auto_submit_pending"
	VoiceStateSpeaking          VoiceState = "speaking"
	VoiceStateAutoListenPending VoiceState = "auto_listen_pending"
	VoiceStateErrorCooldown     VoiceState = "error_cooldown"
)

// Pending reports whether the state waits on a scheduled auto-action.
func (s VoiceState) Pending() bool {
	return s == VoiceStateAutoSubmitPending || s == VoiceStateAutoListenPending
}

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	ReasonStartup            StateReason = "startup"
	ReasonVoiceEnabled       StateReason = "voice_enabled"
	ReasonVoiceDisabled      StateReason = "voice_disabled"
	ReasonListeningStarted   StateReason = "listening_started"
	ReasonListeningStopped   StateReason = "listening_stopped"
	ReasonListeningEnded     StateReason = "listening_ended"
	ReasonTranscribed        StateReason = "transcribed"
	ReasonEmptyTranscript    StateReason = "empty_transcript"
	ReasonSubmitted          StateReason = "submitted"
	ReasonSpeakingQuestion   StateReason = "speaking_question"
	ReasonSpeakingEnded      StateReason = "speaking_ended"
	ReasonAutoListen         StateReason = "auto_listen"
	ReasonAutoListenSkipped  StateReason = "auto_listen_skipped"
	ReasonNoSpeech           StateReason = "no_speech"
	ReasonNoMicrophone       StateReason = "no_microphone"
	ReasonCaptureFailed      StateReason = "capture_failed"
	ReasonCaptureStartFailed StateReason = "capture_start_failed"
	ReasonManualInterruption StateReason = "manual_interruption"
	ReasonSessionReset       StateReason = "session_reset"
)

// ErrorCode identifies errors surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup             ErrorCode = "startup"
	ErrorCodeNetwork             ErrorCode = "network"
	ErrorCodeProtocol            ErrorCode = "protocol"
	ErrorCodeCaptureUnsupported  ErrorCode = "capture_unsupported"
	ErrorCodePlaybackUnsupported ErrorCode = "playback_unsupported"
	ErrorCodeVoiceModeOff        ErrorCode = "voice_mode_off"
)

// VoiceMode is the user-toggled feature gate.
type VoiceMode bool

const (
	VoiceModeOff VoiceMode = false
	VoiceModeOn  VoiceMode = true
)

func (m VoiceMode) String() string {
	if m {
		return "On"
	}
	return "Off"
}

// CaptureEventKind identifies events produced by one listen attempt.
type CaptureEventKind string

const (
	CaptureStarted CaptureEventKind = "started"
	CaptureInterim CaptureEventKind = "interim"
	CaptureFinal   CaptureEventKind = "final"
	CaptureError   CaptureEventKind = "error"
	CaptureEnded   CaptureEventKind = "ended"
)

// CaptureErrorKind classifies capture failures.
type CaptureErrorKind string

const (
	CaptureErrorNoSpeech     CaptureErrorKind = "no_speech"
	CaptureErrorNoMicrophone CaptureErrorKind = "no_microphone"
	CaptureErrorOther        CaptureErrorKind = "other"
)

// CaptureEvent is one event of a listen attempt. Text carries interim or
// final text; ErrorKind and Message are set for CaptureError.
type CaptureEvent struct {
	Kind      CaptureEventKind `json:"kind"`
	Text      string           `json:"text,omitempty"`
	ErrorKind CaptureErrorKind `json:"errorKind,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// TranscriptKind identifies whether a provider event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// Transcript is the visible draft of the current listen attempt.
type Transcript struct {
	Interim string `json:"interim"`
	Final   string `json:"final,omitempty"`
}

// Reply is the assistant turn returned by the chat backend.
type Reply struct {
	AssistantText  string `json:"response"`
	Role           string `json:"role,omitempty"`
	QuestionNumber int    `json:"questionNumber,omitempty"`
	TotalQuestions int    `json:"totalQuestions,omitempty"`
}

// Session ties a sequence of chat turns together.
type Session struct {
	ID             string `json:"id"`
	Role           string `json:"role,omitempty"`
	QuestionNumber int    `json:"questionNumber,omitempty"`
	TotalQuestions int    `json:"totalQuestions,omitempty"`
}

// Turn is one completed user/assistant exchange.
type Turn struct {
	SessionID      string `json:"sessionId"`
	UserText       string `json:"userText"`
	AssistantText  string `json:"assistantText"`
	Role           string `json:"role"`
	QuestionNumber int    `json:"questionNumber"`
	TotalQuestions int    `json:"totalQuestions"`
}

// Status summarizes the controller for the UI.
type Status struct {
	State            VoiceState `json:"state"`
	VoiceMode        bool       `json:"voiceMode"`
	CaptureSupported bool       `json:"captureSupported"`
	VoiceSupported   bool       `json:"voiceSupported"`
	Sending          bool       `json:"sending"`
	Draft            string     `json:"draft"`
	Session          Session    `json:"session"`
	Message          string     `json:"message,omitempty"`
}
