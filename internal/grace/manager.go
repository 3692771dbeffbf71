package grace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"licensecore/internal/config"
	"licensecore/internal/infrastructure"
	"licensecore/internal/storage"
	"licensecore/pkg/contracts/domain"
)

// Manager tracks the Online/Offline state and the offline grace period.
// All decisions derive from persisted timestamps, so a restarted process
// resumes exactly where the previous one stopped.
type Manager struct {
	store    storage.Store
	th       Thresholds
	interval time.Duration
	metrics  *GraceMetrics
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	state     domain.OfflineState
	lastLevel WarningLevel
	parent    context.Context
	periodic  *periodic

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int
}

type periodic struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Manager
type Option func(*Manager)

// WithStore persists the offline state
func WithStore(s storage.Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithMetrics records level changes and transitions
func WithMetrics(metrics *GraceMetrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock injects the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager in the Online state
func NewManager(cfg config.GraceConfig, opts ...Option) *Manager {
	m := &Manager{
		th:        ThresholdsFrom(cfg),
		interval:  cfg.CheckInterval,
		now:       time.Now,
		lastLevel: LevelNone,
		listeners: make(map[int]Listener),
	}
	if m.th.Warning <= 0 || m.th.Critical <= 0 {
		m.th = DefaultThresholds()
	}
	if m.interval <= 0 {
		m.interval = config.DefaultGraceCheckInterval
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		m.store = storage.NewMemoryStore()
	}
	m.logger = infrastructure.WithComponent(m.logger, "grace_manager")
	return m
}

// Start restores the persisted state and, when offline, resumes the periodic
// check. ctx bounds the lifetime of the periodic check.
func (m *Manager) Start(ctx context.Context) error {
	var state domain.OfflineState
	err := storage.GetJSON(ctx, m.store, storage.KeyOfflineState, &state)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to restore offline state: %w", err)
	}

	m.mu.Lock()
	m.parent = ctx
	if err == nil {
		m.state = state
	}
	offline := m.state.IsOffline
	m.mu.Unlock()

	if !offline {
		return nil
	}

	status := m.CheckNow(ctx)
	m.logger.InfoContext(ctx, "Resumed offline grace period",
		slog.String("warning_level", string(status.WarningLevel)),
		slog.Int("remaining_hours", status.RemainingHours))
	if status.WarningLevel != LevelExpired {
		m.startPeriodic()
	}
	return nil
}

// Stop ends the periodic check and waits for it to exit
func (m *Manager) Stop() {
	if p := m.stopPeriodic(); p != nil {
		<-p.done
	}
}

// State returns a copy of the persisted state
func (m *Manager) State() domain.OfflineState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	s.LastOnlineValidation = copyTime(s.LastOnlineValidation)
	s.GraceStartedAt = copyTime(s.GraceStartedAt)
	return s
}

// GetStatus computes the status for the current time
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ComputeStatus(m.state, m.now(), m.th)
}

// IsRunning reports whether the periodic check is active
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.periodic != nil
}

// GoOffline enters the Offline state for lic, the license in use; nil keeps
// the last known tier. The grace length is fixed by the tier now and is not
// resized if the tier changes before going online again. Grace only starts
// when the last online validation vouched for the device lic is bound to.
// Calling it while already offline changes nothing.
func (m *Manager) GoOffline(ctx context.Context, lic *domain.License) Status {
	m.mu.Lock()
	if m.state.IsOffline {
		status := ComputeStatus(m.state, m.now(), m.th)
		m.mu.Unlock()
		return status
	}

	now := m.now()
	if lic != nil && lic.Type != "" {
		m.state.LicenseType = lic.Type
	}
	m.state.IsOffline = true
	m.state.GracePeriodDays = domain.LimitsFor(m.state.LicenseType).GracePeriodDays
	m.state.GraceStartedAt = nil
	if m.state.LastOnlineValidation != nil && m.validatedDevice(lic) {
		m.state.GraceStartedAt = &now
	}
	m.lastLevel = LevelNone
	started := ComputeStatus(m.state, now, m.th)
	m.mu.Unlock()

	m.persist(ctx)
	m.recordTransition(ctx, "offline")
	m.logger.WarnContext(ctx, "Went offline, grace period started",
		slog.String("license_type", string(m.State().LicenseType)),
		slog.Int("grace_period_days", started.GracePeriodDays),
		slog.Bool("validated_before", started.LastOnlineValidation != nil))
	m.emit(EventOfflineStarted, started)

	status := m.CheckNow(ctx)
	if status.WarningLevel != LevelExpired {
		m.startPeriodic()
	}
	return status
}

// validatedDevice reports whether lic is bound to the device of the last
// online validation. Unknown fingerprints on either side match.
func (m *Manager) validatedDevice(lic *domain.License) bool {
	if lic == nil || lic.HardwareFingerprint == "" || m.state.Fingerprint == "" {
		return true
	}
	return lic.HardwareFingerprint == m.state.Fingerprint
}

// RecordOnlineValidation notes a successful online validation of lic and the
// device it is bound to. When offline it also returns to the Online state.
func (m *Manager) RecordOnlineValidation(ctx context.Context, lic *domain.License) {
	m.mu.Lock()
	now := m.now()
	m.state.LastOnlineValidation = &now
	if lic != nil {
		if lic.Type != "" {
			m.state.LicenseType = lic.Type
		}
		if lic.HardwareFingerprint != "" {
			m.state.Fingerprint = lic.HardwareFingerprint
		}
	}
	wasOffline := m.state.IsOffline
	m.state.IsOffline = false
	m.state.GraceStartedAt = nil
	m.state.GracePeriodDays = domain.LimitsFor(m.state.LicenseType).GracePeriodDays
	m.lastLevel = LevelNone
	status := ComputeStatus(m.state, now, m.th)
	m.mu.Unlock()

	m.persist(ctx)
	if wasOffline {
		m.restored(ctx, status)
	}
}

// GoOnline returns to the Online state without recording a validation
func (m *Manager) GoOnline(ctx context.Context) {
	m.mu.Lock()
	if !m.state.IsOffline {
		m.mu.Unlock()
		return
	}
	m.state.IsOffline = false
	m.state.GraceStartedAt = nil
	m.lastLevel = LevelNone
	status := ComputeStatus(m.state, m.now(), m.th)
	m.mu.Unlock()

	m.persist(ctx)
	m.restored(ctx, status)
}

func (m *Manager) restored(ctx context.Context, status Status) {
	m.stopPeriodic()
	m.recordTransition(ctx, "online")
	m.logger.InfoContext(ctx, "Back online, grace period cleared")
	m.emit(EventOnlineRestored, status)
}

// CheckNow recomputes the warning level and raises an event when it changed.
// It never changes the Online/Offline state.
func (m *Manager) CheckNow(ctx context.Context) Status {
	m.mu.Lock()
	status := ComputeStatus(m.state, m.now(), m.th)
	changed := status.IsOffline && status.WarningLevel != m.lastLevel
	if changed {
		m.lastLevel = status.WarningLevel
	}
	m.mu.Unlock()

	if !changed {
		return status
	}
	if t, ok := eventForLevel(status.WarningLevel); ok {
		m.recordLevel(ctx, status.WarningLevel)
		m.logger.WarnContext(ctx, "Grace period warning level changed",
			slog.String("warning_level", string(status.WarningLevel)),
			slog.Int("remaining_hours", status.RemainingHours))
		m.emit(t, status)
	}
	return status
}

func (m *Manager) startPeriodic() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.periodic != nil {
		return
	}
	parent := m.parent
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	p := &periodic{cancel: cancel, done: make(chan struct{})}
	m.periodic = p
	go m.run(ctx, p)
}

func (m *Manager) stopPeriodic() *periodic {
	m.mu.Lock()
	p := m.periodic
	m.periodic = nil
	m.mu.Unlock()
	if p != nil {
		p.cancel()
	}
	return p
}

// run ticks until cancelled or until the grace period expires
func (m *Manager) run(ctx context.Context, p *periodic) {
	defer close(p.done)
	defer func() {
		m.mu.Lock()
		if m.periodic == p {
			m.periodic = nil
		}
		m.mu.Unlock()
		p.cancel()
	}()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.CheckNow(ctx).WarningLevel == LevelExpired {
				m.logger.WarnContext(ctx, "Offline grace period expired, periodic check stopped")
				return
			}
		}
	}
}

func (m *Manager) persist(ctx context.Context) {
	state := m.State()
	if err := storage.PutJSON(ctx, m.store, storage.KeyOfflineState, state); err != nil {
		m.logger.WarnContext(ctx, "Failed to persist offline state", slog.String("error", err.Error()))
	}
}
