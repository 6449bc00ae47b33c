// Package codestore persists the most recently installed application bundle
// together with a small YAML manifest describing it.
package codestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	codeFile     = "app.js"
	manifestFile = "app.yaml"
)

// Manifest describes the persisted bundle.
type Manifest struct {
	File        string    `yaml:"file"`
	Digest      string    `yaml:"digest"`
	Size        int       `yaml:"size"`
	InstalledAt time.Time `yaml:"installed_at"`
}

// Store writes bundles into a directory, replacing the previous one.
type Store struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// New creates the directory if needed and returns a store over it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create app dir: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the directory the store writes into.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes code and its manifest and returns the code's SHA-256 digest.
// Both files are replaced atomically.
func (s *Store) Save(code []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := sha256.Sum256(code)
	digest := hex.EncodeToString(sum[:])

	if err := s.writeAtomic(codeFile, code); err != nil {
		return "", err
	}

	manifest, err := yaml.Marshal(Manifest{
		File:        codeFile,
		Digest:      digest,
		Size:        len(code),
		InstalledAt: s.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := s.writeAtomic(manifestFile, manifest); err != nil {
		return "", err
	}

	return digest, nil
}

// Manifest reads the persisted manifest back.
func (s *Store) Manifest() (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(s.dir, manifestFile))
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return m, nil
}

func (s *Store) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}
