package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
	"github.com/rs/zerolog"

	"intervox/internal/ports"
)

// Voice parameters are tuned constants, not user settings. Pitch is left at
// the synthesizer's natural voice.
const (
	Rate   float32 = 0.9
	Volume float32 = 1.0
)

// ErrPlaybackUnsupported is returned when no synthesizer or output device
// is available.
var ErrPlaybackUnsupported = errors.New("speech playback: not supported on this system")

type sentenceTokenizer interface {
	Tokenize(text string) []*sentences.Sentence
}

// Playback speaks one utterance at a time. A new Speak cancels the
// utterance in flight and starts only after it has fully stopped.
type Playback struct {
	synth     ports.Synthesizer
	speaker   ports.Speaker
	sanitizer ports.TextRewriter
	tokenizer sentenceTokenizer
	supported bool
	logger    zerolog.Logger

	mu      sync.Mutex
	current *utterance
}

type utterance struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPlayback(synth ports.Synthesizer, speaker ports.Speaker, sanitizer ports.TextRewriter, logger zerolog.Logger) *Playback {
	logger = logger.With().Str("component", "playback").Logger()

	supported := synth != nil && speaker != nil && sanitizer != nil
	if d, ok := speaker.(availableDevice); ok && supported {
		supported = d.Available()
	}

	p := &Playback{
		synth:     synth,
		speaker:   speaker,
		sanitizer: sanitizer,
		supported: supported,
		logger:    logger,
	}

	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		logger.Warn().Err(err).Msg("sentence tokenizer unavailable, speaking whole replies")
	} else {
		p.tokenizer = tokenizer
	}
	if !supported {
		logger.Warn().Msg("speech playback unavailable")
	}
	return p
}

func (p *Playback) Supported() bool {
	return p.supported
}

// Speak sanitizes text and plays it. The returned channel is closed exactly
// once, when the utterance finishes, fails or is cancelled.
func (p *Playback) Speak(text string) (<-chan struct{}, error) {
	if !p.supported {
		return nil, ErrPlaybackUnsupported
	}

	clean, err := p.sanitizer.Apply(text)
	if err != nil {
		return nil, fmt.Errorf("failed to sanitize speech: %w", err)
	}
	chunks := p.split(clean)

	ctx, cancel := context.WithCancel(context.Background())
	next := &utterance{cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	prev := p.current
	p.current = next
	p.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
	go p.play(ctx, next, prev, chunks)
	return next.done, nil
}

// StopAll cancels the utterance in flight. Safe to call repeatedly.
func (p *Playback) StopAll() {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()

	if current == nil {
		return
	}
	current.cancel()
	p.speaker.Stop()
}

func (p *Playback) play(ctx context.Context, u *utterance, prev *utterance, chunks []string) {
	defer func() {
		u.cancel()
		if prev != nil {
			<-prev.done
		}
		p.mu.Lock()
		if p.current == u {
			p.current = nil
		}
		p.mu.Unlock()
		close(u.done)
	}()

	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			return
		}
	}

	for index, chunk := range chunks {
		if ctx.Err() != nil {
			return
		}

		audio, err := p.synth.Synthesize(ctx, chunk)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn().Err(err).Int("chunk", index).Msg("speech synthesis failed")
			}
			return
		}
		if err := p.speaker.Play(ctx, audio); err != nil {
			if ctx.Err() == nil {
				p.logger.Warn().Err(err).Int("chunk", index).Msg("speech playback failed")
			}
			return
		}
	}
}

func (p *Playback) split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if p.tokenizer == nil {
		return []string{text}
	}

	var chunks []string
	for _, sentence := range p.tokenizer.Tokenize(text) {
		if trimmed := strings.TrimSpace(sentence.Text); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}
