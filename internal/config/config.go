package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config stores runtime configuration for the interview client.
type Config struct {
	Chat     ChatConfig     `toml:"chat"`
	Deepgram DeepgramConfig `toml:"deepgram"`
	Audio    AudioConfig    `toml:"audio"`
	TTS      TTSConfig      `toml:"tts"`
	Speech   SpeechConfig   `toml:"speech"`
	Voice    VoiceConfig    `toml:"voice"`
	Storage  StorageConfig  `toml:"storage"`
	Log      LogConfig      `toml:"log"`
}

type ChatConfig struct {
	BaseURL   string `toml:"base_url"`
	TimeoutMS int    `toml:"timeout_ms"`
}

type DeepgramConfig struct {
	APIKey      string `toml:"api_key"`
	APIBaseURL  string `toml:"api_base"`
	Model       string `toml:"model"`
	Language    string `toml:"language"`
	SmartFormat bool   `toml:"smart_format"`
}

type AudioConfig struct {
	Backend          string `toml:"backend"`
	RecorderCommand  string `toml:"recorder_command"`
	InputFormat      string `toml:"input_format"`
	InputDevice      string `toml:"input_device"`
	SampleRate       int    `toml:"sample_rate"`
	Channels         int    `toml:"channels"`
	ChunkSize        int    `toml:"chunk_size"`
	StreamingGraceMS int    `toml:"streaming_grace_ms"`
}

type TTSConfig struct {
	Enabled  bool   `toml:"enabled"`
	Language string `toml:"language"`
	CacheDir string `toml:"cache_dir"`
}

type SpeechConfig struct {
	RulesPath      string `toml:"rules_path"`
	IterationLimit int    `toml:"iteration_limit"`
}

type VoiceConfig struct {
	AutoSubmitDelayMS   int `toml:"auto_submit_delay_ms"`
	AutoListenDelayMS   int `toml:"auto_listen_delay_ms"`
	CaptureRetryDelayMS int `toml:"capture_retry_delay_ms"`
}

type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

type LogConfig struct {
	Dir     string `toml:"dir"`
	Level   string `toml:"level"`
	Console bool   `toml:"console"`
}

// ChatTimeout is the per-request chat deadline.
func (c ChatConfig) ChatTimeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// StreamingGrace is how long capture waits for the provider to flush its
// last results once the microphone has stopped.
func (c AudioConfig) StreamingGrace() time.Duration {
	return time.Duration(c.StreamingGraceMS) * time.Millisecond
}

func (c VoiceConfig) AutoSubmitDelay() time.Duration {
	return time.Duration(c.AutoSubmitDelayMS) * time.Millisecond
}

func (c VoiceConfig) AutoListenDelay() time.Duration {
	return time.Duration(c.AutoListenDelayMS) * time.Millisecond
}

func (c VoiceConfig) CaptureRetryDelay() time.Duration {
	return time.Duration(c.CaptureRetryDelayMS) * time.Millisecond
}

// Default returns the configuration used when nothing is overridden.
func Default(home string) Config {
	return Config{
		Chat: ChatConfig{
			BaseURL:   "http://127.0.0.1:5000",
			TimeoutMS: 30000,
		},
		Deepgram: DeepgramConfig{
			APIBaseURL:  "https://api.deepgram.com/v1",
			Model:       "nova-2",
			Language:    "en-US",
			SmartFormat: true,
		},
		Audio: AudioConfig{
			Backend:          "ffmpeg",
			RecorderCommand:  "ffmpeg",
			InputFormat:      "pulse",
			InputDevice:      "default",
			SampleRate:       16000,
			Channels:         1,
			ChunkSize:        4096,
			StreamingGraceMS: 2000,
		},
		TTS: TTSConfig{
			Enabled:  true,
			Language: "en",
			CacheDir: filepath.Join(os.TempDir(), "intervox-tts"),
		},
		Speech: SpeechConfig{
			RulesPath:      filepath.Join(home, ".config", "intervox", "speech.rules"),
			IterationLimit: 30,
		},
		Voice: VoiceConfig{
			AutoSubmitDelayMS:   800,
			AutoListenDelayMS:   800,
			CaptureRetryDelayMS: 100,
		},
		Storage: StorageConfig{
			DBPath: filepath.Join(home, ".local", "share", "intervox", "turns.db"),
		},
		Log: LogConfig{
			Dir:     filepath.Join(home, ".local", "state", "intervox", "logs"),
			Level:   "info",
			Console: true,
		},
	}
}

// Load resolves configuration from an optional TOML file, environment
// variables and defaults, in increasing priority of defaults < file < env.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	cfg := Default(home)

	path := envOrDefault("INTERVOX_CONFIG", filepath.Join(home, ".config", "intervox", "config.toml"))
	if _, statErr := os.Stat(path); statErr == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	} else if os.Getenv("INTERVOX_CONFIG") != "" {
		return Config{}, fmt.Errorf("config file %q: %w", path, statErr)
	}

	cfg.Chat.BaseURL = envOrDefault("INTERVOX_CHAT_URL", cfg.Chat.BaseURL)
	cfg.Chat.TimeoutMS = envOrDefaultInt("INTERVOX_CHAT_TIMEOUT_MS", cfg.Chat.TimeoutMS)

	cfg.Deepgram.APIKey = envOrDefault("DEEPGRAM_API_KEY", cfg.Deepgram.APIKey)
	cfg.Deepgram.APIBaseURL = envOrDefault("DEEPGRAM_API_BASE", cfg.Deepgram.APIBaseURL)
	cfg.Deepgram.Model = envOrDefault("DEEPGRAM_MODEL", cfg.Deepgram.Model)
	cfg.Deepgram.Language = envOrDefault("DEEPGRAM_LANGUAGE", cfg.Deepgram.Language)
	cfg.Deepgram.SmartFormat = envOrDefaultBool("DEEPGRAM_SMART_FORMAT", cfg.Deepgram.SmartFormat)

	cfg.Audio.Backend = strings.ToLower(envOrDefault("INTERVOX_AUDIO_BACKEND", cfg.Audio.Backend))
	cfg.Audio.RecorderCommand = envOrDefault("INTERVOX_FFMPEG_COMMAND", cfg.Audio.RecorderCommand)
	cfg.Audio.InputFormat = envOrDefault("INTERVOX_AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = firstNonEmpty(os.Getenv("INTERVOX_AUDIO_INPUT_DEVICE"), cfg.Audio.InputDevice, "default")
	cfg.Audio.SampleRate = envOrDefaultInt("INTERVOX_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = envOrDefaultInt("INTERVOX_CHANNELS", cfg.Audio.Channels)
	cfg.Audio.ChunkSize = envOrDefaultInt("INTERVOX_AUDIO_CHUNK_SIZE", cfg.Audio.ChunkSize)
	cfg.Audio.StreamingGraceMS = envOrDefaultNonNegativeInt("INTERVOX_STREAMING_GRACE_MS", cfg.Audio.StreamingGraceMS)

	cfg.TTS.Enabled = envOrDefaultBool("INTERVOX_TTS_ENABLED", cfg.TTS.Enabled)
	cfg.TTS.Language = envOrDefault("INTERVOX_TTS_LANGUAGE", cfg.TTS.Language)
	cfg.TTS.CacheDir = envOrDefault("INTERVOX_TTS_CACHE_DIR", cfg.TTS.CacheDir)

	cfg.Speech.RulesPath = envOrDefault("INTERVOX_SPEECH_RULES_FILE", cfg.Speech.RulesPath)
	cfg.Speech.IterationLimit = envOrDefaultInt("INTERVOX_RULE_ITERATION_LIMIT", cfg.Speech.IterationLimit)

	cfg.Voice.AutoSubmitDelayMS = envOrDefaultNonNegativeInt("INTERVOX_AUTO_SUBMIT_DELAY_MS", cfg.Voice.AutoSubmitDelayMS)
	cfg.Voice.AutoListenDelayMS = envOrDefaultNonNegativeInt("INTERVOX_AUTO_LISTEN_DELAY_MS", cfg.Voice.AutoListenDelayMS)
	cfg.Voice.CaptureRetryDelayMS = envOrDefaultNonNegativeInt("INTERVOX_CAPTURE_RETRY_DELAY_MS", cfg.Voice.CaptureRetryDelayMS)

	if value, ok := os.LookupEnv("INTERVOX_DB_PATH"); ok {
		cfg.Storage.DBPath = strings.TrimSpace(value)
	}

	cfg.Log.Dir = envOrDefault("INTERVOX_LOG_DIR", cfg.Log.Dir)
	cfg.Log.Level = strings.ToLower(envOrDefault("INTERVOX_LOG_LEVEL", cfg.Log.Level))
	cfg.Log.Console = envOrDefaultBool("INTERVOX_LOG_CONSOLE", cfg.Log.Console)

	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	defaults := Default("")

	if cfg.Chat.TimeoutMS <= 0 {
		cfg.Chat.TimeoutMS = defaults.Chat.TimeoutMS
	}
	if cfg.Audio.Backend != "ffmpeg" && cfg.Audio.Backend != "portaudio" {
		cfg.Audio.Backend = defaults.Audio.Backend
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = defaults.Audio.SampleRate
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = defaults.Audio.Channels
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = defaults.Audio.ChunkSize
	}
	if cfg.Speech.IterationLimit <= 0 {
		cfg.Speech.IterationLimit = defaults.Speech.IterationLimit
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultNonNegativeInt(key string, fallback int) int {
	parsed := envOrDefaultInt(key, fallback)
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
