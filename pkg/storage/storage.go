// Package storage provides the key/value blob persistence used by the
// settings store.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Storage gets, sets and deletes opaque blobs by key. Get reports false
// when nothing is stored under the key.
type Storage interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, blob []byte) error
	Delete(key string) error
}

// Memory is a process-local Storage.
type Memory struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemory creates an empty in-memory storage
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), blob...), true, nil
}

func (m *Memory) Set(key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), blob...)
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// Dir stores each blob in its own file under a directory.
type Dir struct {
	path string
}

// NewDir returns a Storage rooted at path. The directory is created on the
// first Set.
func NewDir(path string) *Dir {
	return &Dir{path: path}
}

func (d *Dir) file(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(d.path, key+".blob"), nil
}

func (d *Dir) Get(key string) ([]byte, bool, error) {
	name, err := d.file(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, true, nil
}

func (d *Dir) Set(key string, blob []byte) error {
	name, err := d.file(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d.path, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	tmp := name + ".tmp"
	if err := os.WriteFile(tmp, blob, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp, name); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	logrus.WithFields(logrus.Fields{"key": key, "bytes": len(blob)}).Debug("blob stored")
	return nil
}

func (d *Dir) Delete(key string) error {
	name, err := d.file(key)
	if err != nil {
		return err
	}
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
