package app

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	TranscriptDir    string `yaml:"transcript_dir"`
	GatewayURL       string `yaml:"gateway_url"`
	HydrationRetries int    `yaml:"hydration_retries"`
	PlainOutput      bool   `yaml:"plain_output"`
	Debug            bool   `yaml:"debug"`
}

func DefaultConfig() Config {
	return Config{
		TranscriptDir:    defaultTranscriptDir(),
		GatewayURL:       "ws://127.0.0.1:18789/feed",
		HydrationRetries: 3,
	}
}

func defaultTranscriptDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "transcripts"
	}
	return filepath.Join(home, ".convlog", "transcripts")
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.TranscriptDir == "" {
		cfg.TranscriptDir = defaultTranscriptDir()
	}
	if cfg.HydrationRetries < 0 {
		cfg.HydrationRetries = 0
	}
	if cfg.HydrationRetries > 10 {
		cfg.HydrationRetries = 10
	}
	return cfg, nil
}

func SaveConfig(cfg Config, path string) error {
	if path == "" {
		return errors.New("no path provided for config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "convlog", "config.yml")
}
