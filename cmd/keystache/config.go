package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/nbd-wtf/keystache"
)

// defaultSocketPath is where the signer backend listens by default.
const defaultSocketPath = "/tmp/nip55-kind24133"

type config struct {
	Socket  string `toml:"socket"`
	Timeout string `toml:"timeout"`

	decisionTimeout time.Duration
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "keystache", "keystache.toml")
}

// loadConfig reads the config file at path, or the default location when path
// is empty. A missing file at the default location just means defaults; a
// missing file named explicitly is an error.
func loadConfig(path string) (config, error) {
	cfg := config{
		Socket:          defaultSocketPath,
		decisionTimeout: keystache.DefaultDecisionTimeout,
	}

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}

	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return cfg, fmt.Errorf("bad timeout '%s' in config file: %w", cfg.Timeout, err)
		}
		cfg.decisionTimeout = d
	}

	return cfg, nil
}

// applyFlags lets command line flags override whatever the config file said.
func applyFlags(cfg *config) error {
	if flagSocket != "" {
		cfg.Socket = flagSocket
	}
	if flagTimeout != "" {
		d, err := time.ParseDuration(flagTimeout)
		if err != nil {
			return fmt.Errorf("bad --timeout '%s': %w", flagTimeout, err)
		}
		cfg.decisionTimeout = d
	}
	return nil
}
