// Package identity resolves the viewer's identity and provisions
// anonymous identities on demand.
package identity

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// Provider exposes the current authenticated identity.
type Provider interface {
	// CurrentUID returns the resolved identity, if any.
	CurrentUID() (string, bool)
	// EnsureUID returns the current identity, provisioning an anonymous
	// one if none exists yet.
	EnsureUID(ctx context.Context) (string, error)
}

type record struct {
	UID       string `toml:"uid"`
	CreatedAt string `toml:"created_at"`
}

// FileProvider stores the provisioned identity in the profile directory.
type FileProvider struct {
	mu   sync.Mutex
	path string
	uid  string
}

// NewFileProvider loads any previously provisioned identity from path.
func NewFileProvider(path string) (*FileProvider, error) {
	p := &FileProvider{path: path}
	var rec record
	if _, err := toml.DecodeFile(path, &rec); err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, err
	}
	p.uid = rec.UID
	return p, nil
}

// CurrentUID returns the stored identity, if any.
func (p *FileProvider) CurrentUID() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uid, p.uid != ""
}

// EnsureUID provisions and persists an anonymous identity if none exists.
func (p *FileProvider) EnsureUID(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.uid != "" {
		return p.uid, nil
	}

	uid := uuid.NewString()
	if err := p.save(record{UID: uid, CreatedAt: time.Now().UTC().Format(time.RFC3339)}); err != nil {
		return "", err
	}
	p.uid = uid
	return uid, nil
}

func (p *FileProvider) save(rec record) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(rec)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
