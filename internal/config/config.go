// Package config loads and saves the global ~/.chatit/config.toml.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the global daemon configuration.
type Config struct {
	DefaultProfile string `toml:"default_profile"`

	Store  StoreConfig  `toml:"store"`
	Blob   BlobConfig   `toml:"blob"`
	Notify NotifyConfig `toml:"notify"`
	Daemon DaemonConfig `toml:"daemon"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is "sqlite" (embedded, default) or "mongo".
	Driver        string `toml:"driver"`
	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`
}

// BlobConfig selects the object storage backend.
type BlobConfig struct {
	// Driver is "fs" (profile media dir, default) or "s3".
	Driver    string `toml:"driver"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

// NotifyConfig selects the push-notification sink.
type NotifyConfig struct {
	// Driver is "log" (default) or "nats".
	Driver  string `toml:"driver"`
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

// DaemonConfig holds the HTTP surface settings.
type DaemonConfig struct {
	Listen string `toml:"listen"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Store:  StoreConfig{Driver: "sqlite"},
		Blob:   BlobConfig{Driver: "fs"},
		Notify: NotifyConfig{Driver: "log", Subject: "chatit.notifications"},
		Daemon: DaemonConfig{Listen: "127.0.0.1:8650"},
	}
}

// Load reads config from the given path. Returns an error if the file
// is missing or malformed.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault reads config from the given path, falling back to the
// defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
