package vector

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tailscale/hujson"
)

// Environment variables read by LoadConfig.
const (
	envEnabledDrivers = "VECTOR_ENABLED_DRIVERS"
	envLogLevel       = "VECTOR_LOG_LEVEL"
	envTempDir        = "VECTOR_TEMP_DIR"
	envOptionPrefix   = "VECTOR_OPT_"
)

// Config holds runtime context settings.
type Config struct {
	EnabledDrivers []string          `json:"enabled_drivers,omitempty"` //nolint:tagliatelle // snake_case for config file
	Options        map[string]string `json:"options,omitempty"`
	LogLevel       string            `json:"log_level,omitempty"` //nolint:tagliatelle // snake_case for config file
	TempDir        string            `json:"temp_dir,omitempty"`  //nolint:tagliatelle // snake_case for config file
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Options: map[string]string{},
	}
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. The JSONC file at path, if path is non-empty (it must exist)
// 3. VECTOR_* variables in environ.
//
// Option keys are set with VECTOR_OPT_<KEY>=<value>.
func LoadConfig(path string, environ []string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		fileCfg, err := loadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch {
		case key == envEnabledDrivers:
			cfg.EnabledDrivers = splitList(value)
		case key == envLogLevel:
			cfg.LogLevel = value
		case key == envTempDir:
			cfg.TempDir = value
		case strings.HasPrefix(key, envOptionPrefix):
			cfg.Options[strings.TrimPrefix(key, envOptionPrefix)] = value
		}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: config file not found: %s", ErrInvalidArgument, path)
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w: invalid config %s: %w", ErrInvalidArgument, path, err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: invalid config %s: %w", ErrInvalidArgument, path, err)
	}
	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if len(overlay.EnabledDrivers) > 0 {
		base.EnabledDrivers = overlay.EnabledDrivers
	}
	for k, v := range overlay.Options {
		base.Options[k] = v
	}
	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}
	if overlay.TempDir != "" {
		base.TempDir = overlay.TempDir
	}
	return base
}

func validateConfig(cfg Config) error {
	for _, name := range cfg.EnabledDrivers {
		if _, ok := supportedDrivers[name]; !ok {
			return fmt.Errorf("%w: unsupported driver: %q", ErrDriver, name)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
