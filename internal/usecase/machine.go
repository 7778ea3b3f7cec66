package usecase

import (
	"strings"

	"intervox/internal/domain"
)

// snapshot is everything the transition function reads and writes. Attempt
// and utterance ids identify the live capture attempt and spoken reply; zero
// means none, and events carrying any other id are stale.
type snapshot struct {
	state  domain.VoiceState
	reason domain.StateReason

	voice     bool
	canListen bool
	canSpeak  bool

	attempt   uint64
	retried   bool
	utterance uint64
	lastID    uint64

	pending      string
	draft        string
	status       string
	statusActive bool
}

func initialSnapshot(canListen bool, canSpeak bool) snapshot {
	return snapshot{
		state:     domain.VoiceStateOff,
		reason:    domain.ReasonStartup,
		canListen: canListen,
		canSpeak:  canSpeak,
	}
}

type input interface{ isInput() }

type (
	voiceModeInput     struct{ on bool }
	activateInput      struct{}
	manualSubmitInput  struct{}
	resetInput         struct{}
	replyInput         struct{ text string }
	timerInput         struct{ kind timerKind }
	playbackEndedInput struct{ utterance uint64 }
	captureClosedInput struct{ attempt uint64 }
	captureInput       struct {
		attempt uint64
		event   domain.CaptureEvent
	}
	listenFailedInput struct {
		attempt       uint64
		alreadyActive bool
	}
)

func (voiceModeInput) isInput()     {}
func (activateInput) isInput()      {}
func (manualSubmitInput) isInput()  {}
func (resetInput) isInput()         {}
func (replyInput) isInput()         {}
func (timerInput) isInput()         {}
func (playbackEndedInput) isInput() {}
func (captureClosedInput) isInput() {}
func (captureInput) isInput()       {}
func (listenFailedInput) isInput()  {}

type effect interface{ isEffect() }

type (
	stateEffect struct {
		state  domain.VoiceState
		reason domain.StateReason
	}
	statusEffect struct {
		text   string
		active bool
	}
	draftEffect        struct{ text string }
	startCaptureEffect struct{ attempt uint64 }
	stopCaptureEffect  struct{}
	speakEffect        struct {
		utterance uint64
		text      string
	}
	stopPlaybackEffect    struct{}
	scheduleEffect        struct{ kind timerKind }
	cancelTimerEffect     struct{ kind timerKind }
	cancelAllTimersEffect struct{}
	submitEffect          struct{ text string }
)

func (stateEffect) isEffect()           {}
func (statusEffect) isEffect()          {}
func (draftEffect) isEffect()           {}
func (startCaptureEffect) isEffect()    {}
func (stopCaptureEffect) isEffect()     {}
func (speakEffect) isEffect()           {}
func (stopPlaybackEffect) isEffect()    {}
func (scheduleEffect) isEffect()        {}
func (cancelTimerEffect) isEffect()     {}
func (cancelAllTimersEffect) isEffect() {}
func (submitEffect) isEffect()          {}

// step is the voice state machine. It performs no I/O: side effects are
// returned in the order they must be carried out.
func step(s snapshot, in input) (snapshot, []effect) {
	t := &transition{s: s}
	switch in := in.(type) {
	case voiceModeInput:
		t.setVoiceMode(in.on)
	case activateInput:
		t.activate()
	case captureInput:
		t.capture(in.attempt, in.event)
	case captureClosedInput:
		t.captureClosed(in.attempt)
	case listenFailedInput:
		t.listenFailed(in.attempt, in.alreadyActive)
	case timerInput:
		t.timer(in.kind)
	case playbackEndedInput:
		t.playbackEnded(in.utterance)
	case replyInput:
		t.reply(in.text)
	case manualSubmitInput:
		t.manualSubmit()
	case resetInput:
		t.reset()
	}
	return t.s, t.effects
}

type transition struct {
	s       snapshot
	effects []effect
}

func (t *transition) emit(effects ...effect) {
	t.effects = append(t.effects, effects...)
}

func (t *transition) enter(state domain.VoiceState, reason domain.StateReason) {
	if t.s.state == state && t.s.reason == reason {
		return
	}
	t.s.state = state
	t.s.reason = reason
	t.emit(stateEffect{state: state, reason: reason})
}

func (t *transition) status(text string, active bool) {
	t.s.status = text
	t.s.statusActive = active
	t.emit(statusEffect{text: text, active: active})
}

func (t *transition) idleStatus() {
	if t.s.canListen {
		t.status(statusIdle, false)
		return
	}
	t.status("", false)
}

func (t *transition) draft(text string) {
	t.s.draft = text
	t.emit(draftEffect{text: text})
}

func (t *transition) nextID() uint64 {
	t.s.lastID++
	return t.s.lastID
}

func (t *transition) listen(reason domain.StateReason) {
	t.s.attempt = t.nextID()
	t.s.retried = false
	t.enter(domain.VoiceStateListening, reason)
	t.status(statusListening, true)
	t.emit(startCaptureEffect{attempt: t.s.attempt})
}

func (t *transition) stopCapture() {
	if t.s.attempt != 0 {
		t.emit(stopCaptureEffect{})
	}
	if t.s.retried {
		t.emit(cancelTimerEffect{kind: timerCaptureRetry})
	}
	t.s.attempt = 0
	t.s.retried = false
}

func (t *transition) cancelAutoSubmit() {
	if t.s.state == domain.VoiceStateAutoSubmitPending {
		t.emit(cancelTimerEffect{kind: timerAutoSubmit})
	}
	t.s.pending = ""
}

// cancelPending cancels the auto-action timer of a pending state.
func (t *transition) cancelPending() bool {
	if !t.s.state.Pending() {
		return false
	}
	if t.s.state == domain.VoiceStateAutoSubmitPending {
		t.cancelAutoSubmit()
	} else {
		t.emit(cancelTimerEffect{kind: timerAutoListen})
	}
	return true
}

func (t *transition) setVoiceMode(on bool) {
	if on == t.s.voice {
		return
	}
	if on {
		if !t.s.canSpeak {
			return
		}
		t.s.voice = true
		t.enter(domain.VoiceStateIdle, domain.ReasonVoiceEnabled)
		t.idleStatus()
		return
	}

	// Playback is left running; clearing the utterance id makes its end a
	// stale event.
	t.stopCapture()
	t.emit(cancelAllTimersEffect{})
	t.s.voice = false
	t.s.pending = ""
	t.s.utterance = 0
	t.enter(domain.VoiceStateOff, domain.ReasonVoiceDisabled)
	t.status("", false)
}

func (t *transition) activate() {
	if !t.s.voice || !t.s.canListen {
		return
	}
	switch t.s.state {
	case domain.VoiceStateListening:
		t.stopCapture()
		t.enter(domain.VoiceStateIdle, domain.ReasonListeningStopped)
		t.status(statusStopped, false)
		return
	case domain.VoiceStateSpeaking:
		t.emit(stopPlaybackEffect{})
		t.s.utterance = 0
	default:
		t.cancelPending()
	}
	t.draft("")
	t.listen(domain.ReasonListeningStarted)
}

func (t *transition) capture(attempt uint64, event domain.CaptureEvent) {
	if attempt == 0 || attempt != t.s.attempt || t.s.state != domain.VoiceStateListening {
		return
	}

	switch event.Kind {
	case domain.CaptureInterim:
		t.draft(event.Text)
	case domain.CaptureFinal:
		t.s.attempt = 0
		text := strings.TrimSpace(event.Text)
		if text == "" {
			t.enter(domain.VoiceStateIdle, domain.ReasonEmptyTranscript)
			t.idleStatus()
			return
		}
		t.draft(text)
		t.s.pending = text
		t.enter(domain.VoiceStateAutoSubmitPending, domain.ReasonTranscribed)
		t.status(statusTranscribed, false)
		t.emit(scheduleEffect{kind: timerAutoSubmit})
	case domain.CaptureError:
		// The attempt id is kept so its close ends the cooldown.
		t.enter(domain.VoiceStateErrorCooldown, captureErrorReason(event.ErrorKind))
		t.status(captureErrorStatus(event.ErrorKind, event.Message), false)
	case domain.CaptureEnded:
		t.s.attempt = 0
		t.enter(domain.VoiceStateIdle, domain.ReasonListeningEnded)
		t.idleStatus()
	}
}

func (t *transition) captureClosed(attempt uint64) {
	if attempt == 0 || attempt != t.s.attempt {
		return
	}
	t.s.attempt = 0
	t.s.retried = false
	switch t.s.state {
	case domain.VoiceStateErrorCooldown:
		// The error text stays visible.
		t.enter(domain.VoiceStateIdle, t.s.reason)
	case domain.VoiceStateListening:
		t.enter(domain.VoiceStateIdle, domain.ReasonListeningEnded)
		t.idleStatus()
	}
}

func (t *transition) listenFailed(attempt uint64, alreadyActive bool) {
	if attempt == 0 || attempt != t.s.attempt || t.s.state != domain.VoiceStateListening {
		return
	}
	if alreadyActive && !t.s.retried {
		t.emit(stopCaptureEffect{})
		t.s.attempt = t.nextID()
		t.s.retried = true
		t.emit(scheduleEffect{kind: timerCaptureRetry})
		return
	}
	t.enter(domain.VoiceStateErrorCooldown, domain.ReasonCaptureStartFailed)
	t.status(statusStartFailed, false)
}

func (t *transition) timer(kind timerKind) {
	switch kind {
	case timerAutoSubmit:
		if t.s.state != domain.VoiceStateAutoSubmitPending || !t.s.voice || t.s.pending == "" {
			return
		}
		text := t.s.pending
		t.s.pending = ""
		t.draft("")
		t.enter(domain.VoiceStateIdle, domain.ReasonSubmitted)
		t.idleStatus()
		t.emit(submitEffect{text: text})
	case timerAutoListen:
		if t.s.state != domain.VoiceStateAutoListenPending {
			return
		}
		if t.s.voice && t.s.canListen {
			t.listen(domain.ReasonAutoListen)
			return
		}
		t.enter(domain.VoiceStateIdle, domain.ReasonAutoListenSkipped)
		t.idleStatus()
	case timerCaptureRetry:
		if t.s.state == domain.VoiceStateListening && t.s.attempt != 0 {
			t.emit(startCaptureEffect{attempt: t.s.attempt})
		}
	}
}

func (t *transition) playbackEnded(utterance uint64) {
	if utterance == 0 || utterance != t.s.utterance {
		return
	}
	t.s.utterance = 0
	if t.s.state != domain.VoiceStateSpeaking {
		return
	}
	t.enter(domain.VoiceStateAutoListenPending, domain.ReasonSpeakingEnded)
	t.emit(scheduleEffect{kind: timerAutoListen})
}

func (t *transition) reply(text string) {
	if !t.s.voice || !t.s.canSpeak || !isQuestion(text) {
		return
	}
	switch t.s.state {
	case domain.VoiceStateListening:
		t.stopCapture()
	case domain.VoiceStateErrorCooldown:
		t.s.attempt = 0
	default:
		t.cancelPending()
	}
	t.s.utterance = t.nextID()
	t.enter(domain.VoiceStateSpeaking, domain.ReasonSpeakingQuestion)
	t.status("", false)
	t.emit(speakEffect{utterance: t.s.utterance, text: text})
}

func (t *transition) manualSubmit() {
	interrupted := t.s.state == domain.VoiceStateListening
	if interrupted {
		t.stopCapture()
	} else {
		interrupted = t.cancelPending()
	}
	if interrupted {
		t.enter(domain.VoiceStateIdle, domain.ReasonManualInterruption)
		t.idleStatus()
	}
	t.draft("")
}

func (t *transition) reset() {
	t.emit(stopCaptureEffect{}, stopPlaybackEffect{}, cancelAllTimersEffect{})
	t.s.attempt = 0
	t.s.retried = false
	t.s.utterance = 0
	t.s.pending = ""
	t.draft("")
	if t.s.voice {
		t.enter(domain.VoiceStateIdle, domain.ReasonSessionReset)
		t.idleStatus()
		return
	}
	t.enter(domain.VoiceStateOff, domain.ReasonSessionReset)
	t.status("", false)
}
