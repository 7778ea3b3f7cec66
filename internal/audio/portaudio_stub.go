//go:build !portaudio

package audio

import (
	"context"
	"errors"

	"intervox/internal/ports"
)

// ErrPortAudioUnavailable is returned when the binary was built without
// the portaudio tag.
var ErrPortAudioUnavailable = errors.New("portaudio backend not compiled in (build with -tags portaudio)")

// PortAudioCapture is a placeholder when PortAudio support is not compiled in.
type PortAudioCapture struct{}

func NewPortAudioCapture() *PortAudioCapture {
	return &PortAudioCapture{}
}

func (c *PortAudioCapture) Available() bool {
	return false
}

func (c *PortAudioCapture) Start(context.Context, ports.AudioConfig) (ports.AudioSession, error) {
	return nil, ErrPortAudioUnavailable
}
