package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/heriberto777/core-app-sub000/internal/db"
	"github.com/heriberto777/core-app-sub000/internal/repository"
)

const (
	defaultHealthInterval      = 5 * time.Minute
	defaultRecoveryCooldown    = 30 * time.Minute
	defaultMaxRecoveryAttempts = 3
	recoveryPause              = 5 * time.Second

	thresholdDatabase   = 3
	thresholdConnection = 5
)

// HealthSnapshot is the monitor's externally visible state.
type HealthSnapshot struct {
	Healthy          bool      `json:"healthy"`
	Degraded         bool      `json:"degraded"`
	DatabaseErrors   int       `json:"databaseErrors"`
	ConnectionErrors int       `json:"connectionErrors"`
	RecoveryAttempts int       `json:"recoveryAttempts"`
	LastCheckAt      time.Time `json:"lastCheckAt"`
	LastRecoveryAt   time.Time `json:"lastRecoveryAt,omitempty"`
	Servers          []string  `json:"servers"`
}

// Monitor periodically probes the task store and every database server,
// recycling connection pools when error counters cross their thresholds.
type Monitor struct {
	store   repository.Store
	manager *db.Manager
	log     *zap.SugaredLogger

	interval            time.Duration
	cooldown            time.Duration
	pause               time.Duration
	maxRecoveryAttempts int

	mu               sync.Mutex
	dbErrors         int
	connErrors       int
	recoveryAttempts int
	lastCheckAt      time.Time
	lastRecoveryAt   time.Time
	lastHealthy      bool
	degraded         bool

	stop chan struct{}
	done chan struct{}
}

// NewMonitor creates a health monitor.
func NewMonitor(store repository.Store, manager *db.Manager, log *zap.SugaredLogger) *Monitor {
	return &Monitor{
		store:               store,
		manager:             manager,
		log:                 log,
		interval:            defaultHealthInterval,
		cooldown:            defaultRecoveryCooldown,
		pause:               recoveryPause,
		maxRecoveryAttempts: defaultMaxRecoveryAttempts,
		lastHealthy:         true,
	}
}

// SetInterval overrides the probe interval.
func (m *Monitor) SetInterval(d time.Duration) {
	if d > 0 {
		m.interval = d
	}
}

// SetCooldown overrides the pause required between recovery attempts.
func (m *Monitor) SetCooldown(d time.Duration) {
	if d > 0 {
		m.cooldown = d
	}
}

// SetMaxRecoveryAttempts overrides how many recoveries are attempted before
// the monitor settles into persistent degradation.
func (m *Monitor) SetMaxRecoveryAttempts(n int) {
	if n > 0 {
		m.maxRecoveryAttempts = n
	}
}

// Start launches the periodic probe loop.
func (m *Monitor) Start(ctx context.Context) {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.CheckOnce(ctx)
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
	m.stop = nil
}

// Healthy reports whether the task store and every known server respond to
// a probe right now. Used as the gate for batch runs and retry cycles.
func (m *Monitor) Healthy(ctx context.Context) bool {
	if err := m.store.Health(ctx); err != nil {
		return false
	}
	for _, server := range m.manager.Servers() {
		if err := m.manager.Probe(ctx, server); err != nil {
			return false
		}
	}
	return true
}

// CheckOnce runs one probe cycle, updating the error counters and
// triggering a recovery when a threshold is exceeded.
func (m *Monitor) CheckOnce(ctx context.Context) {
	healthy := true

	if err := m.store.Health(ctx); err != nil {
		healthy = false
		m.mu.Lock()
		m.dbErrors++
		m.mu.Unlock()
		m.log.Warnw("task store probe failed", "error", err)
	}

	for _, server := range m.manager.Servers() {
		if err := m.manager.Probe(ctx, server); err != nil {
			healthy = false
			m.mu.Lock()
			m.connErrors++
			m.mu.Unlock()
			m.log.Warnw("server probe failed", "server", server, "error", err)
		}
	}

	m.mu.Lock()
	m.lastCheckAt = time.Now().UTC()
	m.lastHealthy = healthy
	if healthy {
		// A full-success probe resets both counters and re-arms recovery.
		m.dbErrors = 0
		m.connErrors = 0
		m.recoveryAttempts = 0
		m.degraded = false
		m.mu.Unlock()
		return
	}
	needRecovery := m.dbErrors >= thresholdDatabase || m.connErrors >= thresholdConnection
	m.mu.Unlock()

	if needRecovery {
		m.recover(ctx)
	}
}

// recover cycles every pool and re-probes. Attempts are rate-limited by the
// cooldown and capped; past the cap the monitor logs persistent degradation
// until an operator resets the counters.
func (m *Monitor) recover(ctx context.Context) {
	m.mu.Lock()
	if m.degraded {
		m.mu.Unlock()
		return
	}
	if m.recoveryAttempts >= m.maxRecoveryAttempts {
		m.degraded = true
		m.mu.Unlock()
		m.log.Errorw("recovery attempts exhausted, entering persistent degradation",
			"attempts", m.maxRecoveryAttempts)
		return
	}
	if !m.lastRecoveryAt.IsZero() && time.Since(m.lastRecoveryAt) < m.cooldown {
		m.mu.Unlock()
		return
	}
	m.recoveryAttempts++
	m.lastRecoveryAt = time.Now().UTC()
	attempt := m.recoveryAttempts
	m.mu.Unlock()

	m.log.Infow("recovering connection pools", "attempt", attempt)
	m.manager.ClosePools()

	select {
	case <-time.After(m.pause):
	case <-ctx.Done():
		return
	}

	if m.Healthy(ctx) {
		m.mu.Lock()
		m.dbErrors = 0
		m.connErrors = 0
		m.degraded = false
		m.mu.Unlock()
		m.log.Infow("recovery succeeded", "attempt", attempt)
		return
	}
	m.log.Warnw("recovery probe still failing", "attempt", attempt)
}

// ResetCounters clears all error state. Exposed for operator intervention
// after a persistent degradation.
func (m *Monitor) ResetCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dbErrors = 0
	m.connErrors = 0
	m.recoveryAttempts = 0
	m.degraded = false
}

// Snapshot returns the monitor's current state.
func (m *Monitor) Snapshot() HealthSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return HealthSnapshot{
		Healthy:          m.lastHealthy,
		Degraded:         m.degraded,
		DatabaseErrors:   m.dbErrors,
		ConnectionErrors: m.connErrors,
		RecoveryAttempts: m.recoveryAttempts,
		LastCheckAt:      m.lastCheckAt,
		LastRecoveryAt:   m.lastRecoveryAt,
		Servers:          m.manager.Servers(),
	}
}
