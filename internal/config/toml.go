// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Parse  ParseConfig  `toml:"parse"`
	Output OutputConfig `toml:"output"`
}

// ParseConfig maps trace parsing settings.
type ParseConfig struct {
	EnterMarker    *string `toml:"enter-marker"`
	ExitMarker     *string `toml:"exit-marker"`
	RejectNegative *bool   `toml:"reject-negative"`
}

// OutputConfig maps output and history settings.
type OutputConfig struct {
	Table *bool   `toml:"table"`
	Color *string `toml:"color"`
	DB    *string `toml:"db"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
