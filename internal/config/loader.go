package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidVoices lists the voice names the realtime model accepts.
// Used by [Validate] to warn about unrecognised voices.
var ValidVoices = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

// Load reads the YAML configuration file at path, expands ${ENV} references
// against the process environment, and returns a validated [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg, err := LoadFromReader(strings.NewReader(os.ExpandEnv(string(data))))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Unknown fields are rejected. Useful in tests where
// configs are constructed from string literals; no env expansion happens
// here.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.PublicHost == "" {
		slog.Warn("server.public_host is empty; the carrier cannot reach this service for media streams or uploads")
	}

	// Model
	if cfg.Model.APIKey == "" {
		errs = append(errs, errors.New("model.api_key is required"))
	}
	if u := cfg.Model.RealtimeURL; u != "" && !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
		errs = append(errs, fmt.Errorf("model.realtime_url %q must use a ws:// or wss:// scheme", u))
	}
	validateVoice(cfg.Model.Voice)

	// Carrier
	if cfg.Carrier.AccountSid == "" {
		errs = append(errs, errors.New("carrier.account_sid is required"))
	}
	if cfg.Carrier.AuthToken == "" {
		errs = append(errs, errors.New("carrier.auth_token is required"))
	}
	if cfg.Carrier.PhoneNumber == "" {
		slog.Warn("carrier.phone_number is empty; outbound notifications will have no caller id")
	}

	// Uploads
	if cfg.Uploads.TTLHours < 0 {
		errs = append(errs, fmt.Errorf("uploads.ttl_hours %d must not be negative", cfg.Uploads.TTLHours))
	}
	if cfg.Uploads.MaxImageMB < 0 {
		errs = append(errs, fmt.Errorf("uploads.max_image_mb %d must not be negative", cfg.Uploads.MaxImageMB))
	}

	return errors.Join(errs...)
}

// validateVoice logs a warning if voice is non-empty and not found in
// [ValidVoices].
func validateVoice(voice string) {
	if voice == "" || slices.Contains(ValidVoices, voice) {
		return
	}
	slog.Warn("unknown voice name — may be a typo or a newly released voice",
		"voice", voice,
		"known", ValidVoices,
	)
}
