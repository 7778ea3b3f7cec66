package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	google_translate_tts "github.com/GrailFinder/google-translate-tts"
	"github.com/GrailFinder/google-translate-tts/handlers"
)

// GoogleConfig controls the Google Translate synthesizer.
type GoogleConfig struct {
	Language string
	CacheDir string
}

// GoogleSynthesizer fetches MP3 speech from Google Translate.
type GoogleSynthesizer struct {
	mu     sync.Mutex
	speech *google_translate_tts.Speech
}

func NewGoogleSynthesizer(cfg GoogleConfig) *GoogleSynthesizer {
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = os.TempDir() + "/intervox-tts"
	}
	return &GoogleSynthesizer{
		speech: &google_translate_tts.Speech{
			Folder:   cfg.CacheDir,
			Language: cfg.Language,
			Speed:    1.0,
			Handler:  &handlers.Beep{},
		},
	}
}

type synthesis struct {
	audio io.Reader
	err   error
}

// Synthesize returns MP3 audio for text. The underlying client is not
// context aware, so cancellation abandons the request.
func (s *GoogleSynthesizer) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("nothing to synthesize")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make(chan synthesis, 1)
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		audio, err := s.speech.GenerateSpeech(text)
		result <- synthesis{audio: audio, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-result:
		if res.err != nil {
			return nil, fmt.Errorf("generate speech failed: %w", res.err)
		}
		if closer, ok := res.audio.(io.ReadCloser); ok {
			return closer, nil
		}
		return io.NopCloser(res.audio), nil
	}
}
