// Package profile manages the per-profile directory layout under ~/.chatit.
package profile

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.chatit.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatit")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// DBPath returns the embedded store path for a profile.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "chatit.db")
}

// MediaDir returns the directory for locally stored media blobs.
func MediaDir(name string) string {
	return filepath.Join(Dir(name), "media")
}

// IdentityPath returns the identity credentials file path.
func IdentityPath(name string) string {
	return filepath.Join(Dir(name), "identity.toml")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "chatitd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		MediaDir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
