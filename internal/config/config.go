// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime settings.
type Config struct {
	// APIKey authenticates against the live analysis endpoint.
	APIKey string `env:"CALLGUARD_API_KEY"`

	// Model and Endpoint override the live defaults when set.
	Model    string `env:"CALLGUARD_MODEL"`
	Endpoint string `env:"CALLGUARD_ENDPOINT"`

	// VoiceName selects the model's synthesized voice.
	VoiceName string `env:"CALLGUARD_VOICE"`

	// DatabaseURL enables call archiving when set.
	DatabaseURL string `env:"CALLGUARD_DATABASE_URL"`

	// DatabaseWait bounds the startup connection retry.
	DatabaseWait time.Duration `env:"CALLGUARD_DATABASE_WAIT" envDefault:"30s"`

	// RecordingDir is where evidence WAV files are written.
	RecordingDir string `env:"CALLGUARD_RECORDING_DIR" envDefault:"."`

	// LogLevel is a zerolog level name.
	LogLevel string `env:"CALLGUARD_LOG_LEVEL" envDefault:"info"`

	// SpeakerCommand is the executable used for spoken alerts.
	SpeakerCommand string `env:"CALLGUARD_SPEAKER_CMD"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("CALLGUARD_API_KEY is required")
	}
	return nil
}
