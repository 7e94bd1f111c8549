package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Labeling LabelingConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type StorageConfig struct {
	DataDir string
	Journal bool
}

type LabelingConfig struct {
	AutosaveEvery int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 5001,
		},
		Storage: StorageConfig{
			DataDir: "data",
			Journal: true,
		},
		Labeling: LabelingConfig{
			AutosaveEvery: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/rsslabel/config.json, then a .env file in the working
// directory, then RSSLABEL_* environment variables. Later sources win.
func Load() (Config, error) {
	// A missing .env is fine; variables already set in the environment are kept.
	_ = godotenv.Load()
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return fmt.Errorf("invalid config: storage.data_dir is empty")
	}
	if c.Labeling.AutosaveEvery < 1 {
		return fmt.Errorf("invalid config: labeling.autosave_every must be at least 1, got %d", c.Labeling.AutosaveEvery)
	}
	return nil
}

// Addr returns the host:port the HTTP server listens on.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
