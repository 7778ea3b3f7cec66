package bootstrap

import (
	"context"

	"github.com/rs/zerolog"

	"intervox/internal/audio"
	"intervox/internal/chat"
	"intervox/internal/config"
	"intervox/internal/domain"
	"intervox/internal/ports"
	"intervox/internal/providers/deepgram"
	"intervox/internal/rules"
	"intervox/internal/speech"
	"intervox/internal/storage"
	"intervox/internal/tts"
	"intervox/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.Controller
	Config     config.Config

	turns *storage.TurnLog
}

// Close stops the controller and releases the turn log.
func (s *Services) Close() error {
	if s.Controller != nil {
		s.Controller.Close()
	}
	if s.turns != nil {
		return s.turns.Close()
	}
	return nil
}

// Transcript lists the exchanges recorded for the current session. It is
// empty when the turn log is disabled.
func (s *Services) Transcript(ctx context.Context) ([]domain.Turn, error) {
	if s.turns == nil || s.Controller == nil {
		return []domain.Turn{}, nil
	}
	return s.turns.ListBySession(ctx, s.Controller.Status().Session.ID)
}

// Build wires all backend dependencies for the current runtime.
func Build(cfg config.Config, events ports.EventSink, logger zerolog.Logger) (*Services, error) {
	sanitizer, err := rules.NewSanitizer(cfg.Speech.RulesPath, cfg.Speech.IterationLimit)
	if err != nil {
		return nil, err
	}

	capture := speech.NewCapture(
		microphone(cfg.Audio),
		deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
		}),
		speech.CaptureConfig{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			ChunkSize:  cfg.Audio.ChunkSize,
			FlushGrace: cfg.Audio.StreamingGrace(),
		},
		logger,
	)

	var synth ports.Synthesizer
	var speaker ports.Speaker
	if cfg.TTS.Enabled {
		synth = tts.NewGoogleSynthesizer(tts.GoogleConfig{
			Language: cfg.TTS.Language,
			CacheDir: cfg.TTS.CacheDir,
		})
		speaker = tts.NewBeepSpeaker(speech.Rate, speech.Volume)
	}
	playback := speech.NewPlayback(synth, speaker, sanitizer, logger)

	services := &Services{Config: cfg}
	var recorder ports.TurnRecorder
	if cfg.Storage.DBPath != "" {
		turns, err := storage.OpenTurnLog(cfg.Storage.DBPath)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.Storage.DBPath).Msg("turn log disabled")
		} else {
			services.turns = turns
			recorder = turns
		}
	}

	services.Controller = usecase.NewController(
		capture,
		playback,
		chat.NewClient(chat.Config{
			BaseURL: cfg.Chat.BaseURL,
			Timeout: cfg.Chat.ChatTimeout(),
		}),
		recorder,
		events,
		usecase.Config{
			AutoSubmitDelay:   cfg.Voice.AutoSubmitDelay(),
			AutoListenDelay:   cfg.Voice.AutoListenDelay(),
			CaptureRetryDelay: cfg.Voice.CaptureRetryDelay(),
		},
		logger,
	)
	return services, nil
}

func microphone(cfg config.AudioConfig) ports.AudioCapture {
	if cfg.Backend == "portaudio" {
		return audio.NewPortAudioCapture()
	}
	return audio.NewFFMPEGCapture(cfg.RecorderCommand)
}
