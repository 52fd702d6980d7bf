// Package wakelock keeps the machine awake while a soundtrack plays.
//
// A Lock is an explicit handle: whoever acquires it releases it, usually
// with defer. Several locks may be held at once.
package wakelock

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/sirupsen/logrus"
)

// Backend asks the system to stay awake until the returned func is called.
type Backend interface {
	Inhibit(ctx context.Context, reason string) (release func() error, err error)
}

// Noop holds nothing. It is used where the system offers no inhibitor.
type Noop struct{}

func (Noop) Inhibit(ctx context.Context, reason string) (func() error, error) {
	return func() error { return nil }, nil
}

// Systemd holds an idle inhibitor through systemd-inhibit for as long as
// the lock is held.
type Systemd struct {
	Path string
}

// DetectBackend returns Systemd when systemd-inhibit is on the PATH, Noop
// otherwise.
func DetectBackend() Backend {
	if path, err := exec.LookPath("systemd-inhibit"); err == nil {
		return Systemd{Path: path}
	}
	return Noop{}
}

func (s Systemd) Inhibit(ctx context.Context, reason string) (func() error, error) {
	cmd := exec.Command(s.Path, "--what=idle:sleep", "--who=musicng", "--why="+reason, "sleep", "infinity")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start systemd-inhibit: %w", err)
	}
	return func() error {
		if err := cmd.Process.Kill(); err != nil {
			return fmt.Errorf("stop systemd-inhibit: %w", err)
		}
		_ = cmd.Wait()
		return nil
	}, nil
}

// Manager hands out locks backed by one Backend.
type Manager struct {
	backend Backend
	log     *logrus.Entry

	mu   sync.Mutex
	held int
}

func NewManager(backend Backend) *Manager {
	if backend == nil {
		backend = Noop{}
	}
	return &Manager{backend: backend, log: logrus.WithField("component", "wakelock")}
}

// Lock is a held wake lock.
type Lock struct {
	reason  string
	manager *Manager
	release func() error
	once    sync.Once
	err     error
}

// Acquire takes a new lock. The caller must Release it.
func (m *Manager) Acquire(ctx context.Context, reason string) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	release, err := m.backend.Inhibit(ctx, reason)
	if err != nil {
		return nil, fmt.Errorf("acquire wake lock: %w", err)
	}
	m.mu.Lock()
	m.held++
	held := m.held
	m.mu.Unlock()
	m.log.WithFields(logrus.Fields{"reason": reason, "held": held}).Debug("wake lock acquired")
	return &Lock{reason: reason, manager: m, release: release}, nil
}

// Held is the number of locks not yet released.
func (m *Manager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}

// Release gives the lock back. Only the first call has an effect.
func (l *Lock) Release() error {
	l.once.Do(func() {
		l.err = l.release()
		m := l.manager
		m.mu.Lock()
		m.held--
		held := m.held
		m.mu.Unlock()
		m.log.WithFields(logrus.Fields{"reason": l.reason, "held": held}).Debug("wake lock released")
	})
	return l.err
}

var defaultManager = NewManager(Noop{})

// SetDefault replaces the manager used by Acquire.
func SetDefault(m *Manager) {
	defaultManager = m
}

// Acquire takes a lock from the default manager.
func Acquire(ctx context.Context, reason string) (*Lock, error) {
	return defaultManager.Acquire(ctx, reason)
}
