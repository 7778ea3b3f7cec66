package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"intervox/internal/bootstrap"
	"intervox/internal/config"
	"intervox/internal/domain"
	"intervox/internal/usecase"
)

const (
	eventState    = "intervox:state"
	eventDraft    = "intervox:draft"
	eventStatus   = "intervox:status"
	eventUser     = "intervox:user"
	eventReply    = "intervox:reply"
	eventProgress = "intervox:progress"
	eventInput    = "intervox:input"
	eventError    = "intervox:error"

	eventCapabilities = "intervox:capabilities"
)

var roleNames = map[string]string{
	"engineer": "Software Engineer",
	"sales":    "Sales Representative",
	"retail":   "Retail Associate",
}

// App is the Wails application root.
type App struct {
	ctx    context.Context
	cfg    config.Config
	logger zerolog.Logger
	emit   func(ctx context.Context, name string, data ...interface{})

	services   *bootstrap.Services
	controller *usecase.Controller
	bootErr    error
}

func NewApp(cfg config.Config, logger zerolog.Logger, bootErr error) *App {
	return &App{
		cfg:     cfg,
		logger:  logger.With().Str("component", "app").Logger(),
		emit:    runtime.EventsEmit,
		bootErr: bootErr,
	}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	if a.bootErr != nil {
		a.ChatError(domain.ErrorCodeStartup, a.bootErr.Error())
		return
	}

	services, err := bootstrap.Build(a.cfg, a, a.logger)
	if err != nil {
		a.bootErr = err
		a.logger.Error().Err(err).Msg("startup failed")
		a.ChatError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.controller = services.Controller
}

// domReady announces the controller state once the page can listen for it.
// A reloaded page gets a fresh announcement.
func (a *App) domReady(context.Context) {
	if a.controller == nil {
		return
	}
	a.controller.Start()
}

func (a *App) shutdown(context.Context) {
	if a.services == nil {
		return
	}
	if err := a.services.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("shutdown incomplete")
	}
}

// SendMessage submits typed text to the interviewer.
func (a *App) SendMessage(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	err := a.controller.Submit(a.ctx, text)
	if errors.Is(err, usecase.ErrEmptyMessage) || errors.Is(err, usecase.ErrStaleSession) {
		return nil
	}
	return err
}

// SelectRole is the role shortcut: it sends the role keyword.
func (a *App) SelectRole(role string) error {
	if _, ok := roleNames[role]; !ok {
		return fmt.Errorf("unknown role %q", role)
	}
	return a.SendMessage(role)
}

// ToggleVoiceMode flips voice mode and returns the new setting.
func (a *App) ToggleVoiceMode() (bool, error) {
	if err := a.requireReady(); err != nil {
		return false, err
	}
	return a.controller.ToggleVoiceMode()
}

// ActivateMic starts listening, or stops the listen in progress.
func (a *App) ActivateMic() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.ActivateMic()
}

// ResetSession starts a new interview. Confirmation happens in the UI.
func (a *App) ResetSession() (domain.Session, error) {
	if err := a.requireReady(); err != nil {
		return domain.Session{}, err
	}
	return a.controller.Reset(), nil
}

// GetTranscript returns the recorded exchanges of the current session so a
// reloaded page can redraw the conversation.
func (a *App) GetTranscript() ([]domain.Turn, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()
	return a.services.Transcript(ctx)
}

// GetStatus returns the current controller status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.VoiceStateOff, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.VoiceStateOff}
	}
	return a.controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"chatURL":          a.cfg.Chat.BaseURL,
		"provider":         "Deepgram",
		"model":            a.cfg.Deepgram.Model,
		"language":         a.cfg.Deepgram.Language,
		"audioBackend":     a.cfg.Audio.Backend,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
		"ttsEnabled":       strconv.FormatBool(a.cfg.TTS.Enabled),
		"ttsLanguage":      a.cfg.TTS.Language,
		"rulesFile":        a.cfg.Speech.RulesPath,
		"turnLog":          a.cfg.Storage.DBPath,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) send(name string, payload interface{}) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, name, payload)
}

// StateChanged emits voice state transitions to the frontend.
func (a *App) StateChanged(state domain.VoiceState, reason domain.StateReason) {
	a.send(eventState, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": stateReasonMessage(reason),
	})
}

// DraftChanged updates the input box with transcript text.
func (a *App) DraftChanged(text string) {
	a.send(eventDraft, map[string]string{"text": text})
}

// StatusText updates the microphone status line.
func (a *App) StatusText(text string, active bool) {
	a.send(eventStatus, map[string]interface{}{"text": text, "active": active})
}

// UserMessage appends the user's turn to the transcript.
func (a *App) UserMessage(text string) {
	a.send(eventUser, map[string]string{"text": text})
}

// AssistantReply appends the interviewer's turn to the transcript.
func (a *App) AssistantReply(reply domain.Reply) {
	a.send(eventReply, map[string]string{
		"text": reply.AssistantText,
		"role": reply.Role,
	})
}

// ProgressChanged updates the progress panel.
func (a *App) ProgressChanged(session domain.Session) {
	a.send(eventProgress, map[string]interface{}{
		"sessionId":      session.ID,
		"role":           session.Role,
		"roleName":       roleDisplayName(session.Role),
		"questionNumber": session.QuestionNumber,
		"totalQuestions": session.TotalQuestions,
	})
}

// InputEnabled toggles the send button and text box.
func (a *App) InputEnabled(enabled bool) {
	a.send(eventInput, map[string]bool{"enabled": enabled})
}

// CapabilitiesChanged tells the UI which voice controls to disable for good.
// Without playback voice mode can never turn on, so the mic goes too.
func (a *App) CapabilitiesChanged(capture bool, playback bool) {
	payload := map[string]interface{}{
		"capture":  capture && playback,
		"playback": playback,
	}
	if !playback {
		payload["playbackMessage"] = errorMessage(domain.ErrorCodePlaybackUnsupported, "")
	}
	if !capture {
		payload["captureMessage"] = errorMessage(domain.ErrorCodeCaptureUnsupported, "")
	}
	a.send(eventCapabilities, payload)
}

// ChatError emits backend errors to the UI.
func (a *App) ChatError(code domain.ErrorCode, detail string) {
	a.send(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func roleDisplayName(role string) string {
	if name, ok := roleNames[role]; ok {
		return name
	}
	return role
}

func stateReasonMessage(reason domain.StateReason) string {
	switch reason {
	case domain.ReasonVoiceEnabled:
		return "Voice Mode: On"
	case domain.ReasonVoiceDisabled:
		return "Voice Mode: Off"
	case domain.ReasonListeningStarted, domain.ReasonAutoListen:
		return "Listening"
	case domain.ReasonTranscribed:
		return "Transcribed"
	case domain.ReasonSubmitted:
		return "Sent"
	case domain.ReasonSpeakingQuestion:
		return "Reading question aloud"
	case domain.ReasonSpeakingEnded:
		return "Your turn"
	case domain.ReasonSessionReset:
		return "Conversation reset"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeNetwork, domain.ErrorCodeProtocol:
		return "Sorry, I encountered an error. Please try again."
	case domain.ErrorCodeCaptureUnsupported:
		return "Speech recognition is not available"
	case domain.ErrorCodePlaybackUnsupported:
		return "Text-to-speech is not available"
	case domain.ErrorCodeVoiceModeOff:
		return "Please enable Voice Mode first"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
