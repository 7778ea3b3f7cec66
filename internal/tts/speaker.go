package tts

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
)

// BeepSpeaker decodes MP3 audio and plays it on the default output device.
type BeepSpeaker struct {
	rate   float64
	volume float64

	mu         sync.Mutex
	sampleRate beep.SampleRate
	current    *beep.Ctrl
}

// NewBeepSpeaker plays audio at rate (1 is natural speed) and linear volume
// (1 is unchanged).
func NewBeepSpeaker(rate float32, volume float32) *BeepSpeaker {
	if rate <= 0 {
		rate = 1
	}
	if volume <= 0 {
		volume = 1
	}
	return &BeepSpeaker{rate: float64(rate), volume: float64(volume)}
}

// Play blocks until the audio finishes or ctx is cancelled.
func (s *BeepSpeaker) Play(ctx context.Context, audio io.ReadCloser) error {
	streamer, format, err := mp3.Decode(audio)
	if err != nil {
		_ = audio.Close()
		return fmt.Errorf("mp3 decode failed: %w", err)
	}
	defer streamer.Close()

	outputRate, err := s.ensureSpeaker(format.SampleRate)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	ctrl := &beep.Ctrl{Streamer: beep.Seq(s.shape(streamer, format.SampleRate, outputRate), beep.Callback(func() {
		close(done)
	}))}

	s.mu.Lock()
	s.current = ctrl
	s.mu.Unlock()
	defer s.clear(ctrl)

	speaker.Play(ctrl)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		halt(ctrl)
		return ctx.Err()
	}
}

// Stop silences whatever is playing.
func (s *BeepSpeaker) Stop() {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current != nil {
		halt(current)
	}
}

func (s *BeepSpeaker) shape(streamer beep.Streamer, sourceRate beep.SampleRate, outputRate beep.SampleRate) beep.Streamer {
	shaped := streamer
	if sourceRate != outputRate {
		shaped = beep.Resample(4, sourceRate, outputRate, shaped)
	}
	if s.rate != 1 {
		shaped = beep.ResampleRatio(3, s.rate, shaped)
	}
	if gain := volumeExponent(s.volume); gain != 0 {
		shaped = &effects.Volume{Streamer: shaped, Base: 2, Volume: gain}
	}
	return shaped
}

// ensureSpeaker initializes the output once; later audio is resampled to
// the first format seen.
func (s *BeepSpeaker) ensureSpeaker(rate beep.SampleRate) (beep.SampleRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sampleRate != 0 {
		return s.sampleRate, nil
	}
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return 0, fmt.Errorf("failed to init speaker: %w", err)
	}
	s.sampleRate = rate
	return rate, nil
}

func (s *BeepSpeaker) clear(ctrl *beep.Ctrl) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == ctrl {
		s.current = nil
	}
}

func halt(ctrl *beep.Ctrl) {
	speaker.Lock()
	defer speaker.Unlock()
	ctrl.Streamer = nil
}

// volumeExponent maps a linear gain to the base-2 exponent effects.Volume
// expects.
func volumeExponent(volume float64) float64 {
	if volume <= 0 || volume == 1 {
		return 0
	}
	return math.Log2(volume)
}
