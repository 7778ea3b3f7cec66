package main

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"intervox/internal/config"
	"intervox/internal/logging"
)

//go:embed all:frontend/dist
var assets embed.FS

// loadEnvFiles fills the process environment from optional .env files.
// Variables already set win.
func loadEnvFiles(home string) {
	paths := []string{".env"}
	if home != "" {
		paths = append(paths, filepath.Join(home, ".config", "intervox", ".env"))
	}
	for _, path := range paths {
		_ = godotenv.Load(path)
	}
}

func main() {
	home, _ := os.UserHomeDir()
	loadEnvFiles(home)

	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		cfg = config.Default(home)
	}

	var logger zerolog.Logger
	fileLogger, err := logging.New(logging.Config{
		Dir:     cfg.Log.Dir,
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
	})
	if err != nil {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		logger.Warn().Err(err).Msg("file logging disabled")
	} else {
		defer fileLogger.Close()
		logger = fileLogger.Logger
		logger.Info().Str("path", fileLogger.Path()).Msg("logging started")
	}
	if cfgErr != nil {
		logger.Error().Err(cfgErr).Msg("configuration failed to load")
	}

	assetFS, err := fs.Sub(assets, "frontend/dist")
	if err != nil {
		logger.Fatal().Err(err).Msg("embedded assets missing")
	}

	app := NewApp(cfg, logger, cfgErr)
	err = wails.Run(&options.App{
		Title:     "Interview Practice",
		Width:     1024,
		Height:    768,
		MinWidth:  480,
		MinHeight: 560,
		AssetServer: &assetserver.Options{
			Assets: assetFS,
		},
		BackgroundColour: &options.RGBA{R: 248, G: 249, B: 251, A: 255},
		OnStartup:        app.startup,
		OnDomReady:       app.domReady,
		OnShutdown:       app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		logger.Error().Err(err).Msg("wails run failed")
		if fileLogger != nil {
			_ = fileLogger.Close()
		}
		os.Exit(1)
	}
}
