package runtime

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/antcore/internal/infrastructure/monitoring"
)

// Handle is a loaded, runnable application instance.
type Handle interface {
	// Start runs the application's start entry point and returns the
	// message it reports; "Success" means it started.
	Start(ctx context.Context) (string, error)
	// Info returns application-defined metadata, possibly nil.
	Info(ctx context.Context) (map[string]interface{}, error)
	// Close releases the instance.
	Close() error
}

// Loader turns raw bundle bytes into a Handle. Loading executes untrusted
// code, so implementations are expected to sandbox it and honour ctx.
type Loader interface {
	Load(ctx context.Context, code []byte) (Handle, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, code []byte) (Handle, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, code []byte) (Handle, error) {
	return f(ctx, code)
}

// CodeStore persists installed code and returns its digest.
type CodeStore interface {
	Save(code []byte) (string, error)
}

// Timeouts bound every call into application code.
type Timeouts struct {
	Load  time.Duration
	Start time.Duration
	Info  time.Duration
}

// DefaultTimeouts returns the timeouts used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Load:  5 * time.Second,
		Start: 5 * time.Second,
		Info:  2 * time.Second,
	}
}

// Status is the JSON document served for the current application.
type Status struct {
	State       State                  `json:"state"`
	Digest      string                 `json:"digest"`
	Size        int                    `json:"size"`
	InstalledAt time.Time              `json:"installed_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	App         map[string]interface{} `json:"app,omitempty"`
}

// Manager owns the application slot and performs its state transitions.
// Transitions hold the write lock for their whole duration, so at most one
// is in flight; Status and Code only read.
type Manager struct {
	mu       sync.RWMutex
	slot     *Slot // Protected by mu
	loader   Loader
	store    CodeStore
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	timeouts Timeouts
	now      func() time.Time
}

// NewManager creates a manager over the given slot.
func NewManager(slot *Slot, loader Loader, store CodeStore, logger *zap.Logger) *Manager {
	if slot == nil {
		slot = NewSlot()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		slot:     slot,
		loader:   loader,
		store:    store,
		logger:   logger,
		timeouts: DefaultTimeouts(),
		now:      time.Now,
	}
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// WithTimeouts overrides the application call timeouts
func (m *Manager) WithTimeouts(t Timeouts) *Manager {
	m.timeouts = t
	return m
}

// Install persists code, loads it and makes it the current application,
// replacing whatever was installed before.
func (m *Manager) Install(ctx context.Context, code []byte) Result {
	return m.observe("install", func() Result {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.install(ctx, code)
	})
}

func (m *Manager) install(ctx context.Context, code []byte) Result {
	code = bytes.Clone(code)

	digest, err := m.store.Save(code)
	if err != nil {
		m.logger.Error("Failed to persist app code", zap.Int("size", len(code)), zap.Error(err))
		return OperationFailed
	}

	handle, err := bounded(ctx, m.timeouts.Load, func(ctx context.Context) (Handle, error) {
		h, err := m.loader.Load(ctx, code)
		if err != nil {
			if h != nil {
				_ = h.Close()
			}
			return nil, err
		}
		if h == nil {
			return nil, ErrNoHandle
		}
		return h, nil
	}, closeLate(m.logger))

	prev := m.slot.replace(code, digest, handle, m.now())
	m.release(prev)

	if err != nil {
		m.logger.Warn("Failed to load app",
			zap.String("digest", digest),
			zap.Int("size", len(code)),
			zap.Error(err),
		)
		return OperationFailed
	}

	m.logger.Info("App installed", zap.String("digest", digest), zap.Int("size", len(code)))
	return Success
}

// Remove is declared but defines no transition.
func (m *Manager) Remove(ctx context.Context) Result {
	return m.observe("remove", func() Result {
		m.logger.Info("App removal requested but not supported")
		return Unimplemented
	})
}

// Start runs the current application's start entry point.
func (m *Manager) Start(ctx context.Context) Result {
	return m.observe("start", func() Result {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.start(ctx)
	})
}

func (m *Manager) start(ctx context.Context) Result {
	handle := m.slot.handle
	if handle == nil {
		m.logger.Warn("Start requested with no app installed")
		return OperationFailed
	}

	message, err := bounded(ctx, m.timeouts.Start, handle.Start, nil)
	if err == nil && message != MessageSuccess {
		err = fmt.Errorf("%w: %q", ErrAppRejected, message)
	}
	if err != nil {
		m.logger.Warn("Failed to start app", zap.String("digest", m.slot.digest), zap.Error(err))
		return OperationFailed
	}

	m.slot.markRunning(m.now())
	m.logger.Info("App started", zap.String("digest", m.slot.digest))
	return Success
}

// Stop is declared but defines no transition.
func (m *Manager) Stop(ctx context.Context) Result {
	return m.observe("stop", func() Result {
		m.logger.Info("App stop requested but not supported")
		return Unimplemented
	})
}

// Status serializes the current application's info.
func (m *Manager) Status(ctx context.Context) Result {
	return m.observe("status", func() Result {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.status(ctx)
	})
}

func (m *Manager) status(ctx context.Context) Result {
	handle := m.slot.handle
	if handle == nil {
		return NoAppInstalled
	}

	appInfo, err := bounded(ctx, m.timeouts.Info, handle.Info, nil)
	if err != nil {
		m.logger.Warn("Failed to read app info", zap.Error(err))
		return OperationFailed
	}

	status := Status{
		State:       m.slot.state,
		Digest:      m.slot.digest,
		Size:        len(m.slot.code),
		InstalledAt: m.slot.installedAt,
		App:         appInfo,
	}
	if !m.slot.startedAt.IsZero() {
		startedAt := m.slot.startedAt
		status.StartedAt = &startedAt
	}

	data, err := sonic.Marshal(status)
	if err != nil {
		m.logger.Warn("Failed to encode app info", zap.Error(err))
		return OperationFailed
	}
	return Ok(string(data))
}

// Command dispatches a named command to the matching operation.
func (m *Manager) Command(ctx context.Context, name string) Result {
	switch strings.TrimSpace(name) {
	case "start":
		return m.Start(ctx)
	case "stop":
		return m.Stop(ctx)
	default:
		m.logger.Info("Invalid app command", zap.String("command", name))
		return InvalidCommand
	}
}

// Code returns the most recently installed code verbatim.
func (m *Manager) Code() Result {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Ok(string(m.slot.code))
}

// Snapshot returns a copy of the slot for inspection.
func (m *Manager) Snapshot() SlotInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.slot.info()
}

// Close releases the loaded application, if any. It is meant for process
// shutdown and does not count as a transition.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.slot.handle == nil {
		return nil
	}
	return m.slot.handle.Close()
}

// observe times an operation and refreshes the slot gauge afterwards.
func (m *Manager) observe(operation string, fn func() Result) Result {
	timer := monitoring.NewTimer(m.metrics, operation)
	result := fn()
	timer.Stop(result.Code)

	if m.metrics != nil {
		m.metrics.SetAppState(m.Snapshot().State.Level())
	}
	return result
}

func (m *Manager) release(h Handle) {
	if h == nil {
		return
	}
	if err := h.Close(); err != nil {
		m.logger.Warn("Failed to release previous app", zap.Error(err))
	}
}

// closeLate releases handles produced after their load already timed out.
func closeLate(logger *zap.Logger) func(Handle) {
	return func(h Handle) {
		if h == nil {
			return
		}
		logger.Warn("Releasing app loaded after its deadline")
		_ = h.Close()
	}
}
