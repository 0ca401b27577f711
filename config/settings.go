package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// DefaultThreadsCount seeds a missing settings file.
const DefaultThreadsCount = 5

// Settings is the on-disk settings file.
type Settings struct {
	Settings struct {
		ThreadsCount int `json:"ThreadsCount"`
	} `json:"Settings"`
}

// DefaultSettings returns the settings written when the file is missing.
func DefaultSettings() Settings {
	var s Settings
	s.Settings.ThreadsCount = DefaultThreadsCount
	return s
}

// ThreadsCount returns the configured worker count.
func (s Settings) ThreadsCount() int {
	return s.Settings.ThreadsCount
}

// LoadSettings reads the settings file at path, writing the defaults first
// when it does not exist. A sibling "<name>.local.<ext>" file, if present,
// overrides non-zero values. logger may be nil.
func LoadSettings(path string, logger *slog.Logger) (Settings, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeSettings(path, DefaultSettings()); err != nil {
			return Settings{}, err
		}
		logger.Info("settings file created with defaults", slog.String("path", path))
	} else if err != nil {
		return Settings{}, fmt.Errorf("stat settings file: %w", err)
	}

	settings, err := readSettings(path)
	if err != nil {
		return Settings{}, err
	}

	localPath := localSettingsPath(path)
	if _, err := os.Stat(localPath); err == nil {
		override, err := readSettings(localPath)
		if err != nil {
			return Settings{}, err
		}
		if err := mergo.Merge(&settings, override, mergo.WithOverride); err != nil {
			return Settings{}, fmt.Errorf("merge local settings: %w", err)
		}
		logger.Info("merging settings with local overrides", slog.String("local", localPath))
	}

	if settings.ThreadsCount() < 1 {
		return Settings{}, fmt.Errorf("settings: ThreadsCount must be at least 1, got %d", settings.ThreadsCount())
	}
	return settings, nil
}

func readSettings(path string) (Settings, error) {
	var out Settings
	data, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("read settings file: %w", err)
	}
	if err := json5.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("parse settings file %s: %w", path, err)
	}
	return out, nil
}

func writeSettings(path string, s Settings) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}

func localSettingsPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}
