// Package config loads and persists user settings for the CLI consumer.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/toolboxpm/toolbox-vault/internal/crypto"
)

// AppDirName is the per-user directory holding the config file, the
// database, and the log file.
const AppDirName = ".toolbox-vault"

// PwnedConfig controls the breach-check phase of the health scan.
type PwnedConfig struct {
	Enabled      bool `mapstructure:"enabled" yaml:"enabled"`
	AllowNetwork bool `mapstructure:"allow_network" yaml:"allow_network"`
}

// Config is the root configuration object.
type Config struct {
	VaultPath             string      `mapstructure:"vault_path" yaml:"vault_path"`
	KDFIterations         int         `mapstructure:"kdf_iterations" yaml:"kdf_iterations"`
	Pwned                 PwnedConfig `mapstructure:"pwned" yaml:"pwned"`
	ClipboardClearSeconds int         `mapstructure:"clipboard_clear_seconds" yaml:"clipboard_clear_seconds"`
	LogFile               string      `mapstructure:"log_file" yaml:"log_file"`
}

// AppDir returns the per-user application directory, creating it if
// missing.
func AppDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	dir := filepath.Join(home, AppDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create app directory: %w", err)
	}
	return dir, nil
}

// Defaults returns the configuration used when no config file exists.
func Defaults() *Config {
	return &Config{
		KDFIterations:         crypto.DefaultIterations,
		Pwned:                 PwnedConfig{Enabled: true, AllowNetwork: true},
		ClipboardClearSeconds: 15,
	}
}

// Path returns the config file location inside the app directory.
func Path() (string, error) {
	dir, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// Load reads config.yml from the app directory, falling back to defaults
// for anything unset. cfgFile overrides the location when non-empty.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := AppDir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(dir)
	}

	defaults := Defaults()
	v.SetDefault("vault_path", defaults.VaultPath)
	v.SetDefault("kdf_iterations", defaults.KDFIterations)
	v.SetDefault("pwned.enabled", defaults.Pwned.Enabled)
	v.SetDefault("pwned.allow_network", defaults.Pwned.AllowNetwork)
	v.SetDefault("clipboard_clear_seconds", defaults.ClipboardClearSeconds)
	v.SetDefault("log_file", defaults.LogFile)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.KDFIterations < crypto.MinIterations {
		cfg.KDFIterations = crypto.MinIterations
	}
	if cfg.ClipboardClearSeconds <= 0 {
		cfg.ClipboardClearSeconds = defaults.ClipboardClearSeconds
	}

	if cfg.VaultPath == "" {
		dir, err := AppDir()
		if err != nil {
			return nil, err
		}
		cfg.VaultPath = filepath.Join(dir, "vault.db")
	}
	return &cfg, nil
}

// Save writes the configuration as YAML to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
