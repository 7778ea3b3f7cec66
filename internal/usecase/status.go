package usecase

import "intervox/internal/domain"

const (
	statusListening    = "Listening..."
	statusIdle         = "Click to speak"
	statusStopped      = "Stopped. Click to speak"
	statusTranscribed  = "Transcribed. Sending..."
	statusNoSpeech     = "No speech detected. Click to try again."
	statusNoMicrophone = "No microphone found. Check your settings."
	statusStartFailed  = "Error. Click to try again"

	chatErrorMessage = "Sorry, I encountered an error. Please try again."
)

func captureErrorStatus(kind domain.CaptureErrorKind, message string) string {
	switch kind {
	case domain.CaptureErrorNoSpeech:
		return statusNoSpeech
	case domain.CaptureErrorNoMicrophone:
		return statusNoMicrophone
	}
	if message == "" {
		return statusStartFailed
	}
	return "Error: " + message + ". Click to try again."
}

func captureErrorReason(kind domain.CaptureErrorKind) domain.StateReason {
	switch kind {
	case domain.CaptureErrorNoSpeech:
		return domain.ReasonNoSpeech
	case domain.CaptureErrorNoMicrophone:
		return domain.ReasonNoMicrophone
	default:
		return domain.ReasonCaptureFailed
	}
}
