package peerchat

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ConfigLoader interface {
	Load() (*Config, error)
}

// FileConfigLoader loads the configuration from a YAML file and PEERCHAT_* environment
// variables. Env files are loaded into the environment first; missing ones are skipped.
// The PEERCHAT_AUTH_SECRET variable is expected to be a base64-encoded string.
// PEERCHAT_API_ALLOWED_ORIGINS is a comma-separated list of origins.
type FileConfigLoader struct {
	// File is the config file. When empty config.yaml is looked up in the working
	// directory and is optional.
	File     string
	EnvFiles []string
}

func (l *FileConfigLoader) Load() (*Config, error) {
	if err := loadEnvFiles(l.EnvFiles...); err != nil {
		return nil, err
	}

	v, err := newViper()
	if err != nil {
		return nil, err
	}
	v.SetConfigType("yaml")
	if l.File != "" {
		v.SetConfigFile(l.File)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return decode(v), nil
}

// DefaultConfigLoader returns the defaults, overridden by the environment only.
type DefaultConfigLoader struct{}

func (l *DefaultConfigLoader) Load() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	return decode(v), nil
}

func loadEnvFiles(files ...string) error {
	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}
