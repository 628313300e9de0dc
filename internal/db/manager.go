package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/heriberto777/core-app-sub000/internal/entity"
)

const (
	poolMaxOpen     = 10
	poolMaxIdle     = 10
	poolIdleTimeout = 30 * time.Second

	// ConnectTimeout bounds establishing a session with a server.
	ConnectTimeout = 20 * time.Second
	// QueryTimeout bounds a single query.
	QueryTimeout = 60 * time.Second
	// InsertTimeout bounds a single insert.
	InsertTimeout = 30 * time.Second

	// probeFreshness is how recently a probe must have succeeded for a
	// lease to be handed out without re-probing.
	probeFreshness = 1 * time.Second
	// probeTimeout is the round-trip ceiling beyond which a session is
	// considered dead.
	probeTimeout = 20 * time.Second

	// innerRetryBudget is how many times a lease attempt replaces a dead
	// session before surfacing the failure as transient.
	innerRetryBudget = 2
)

// ConfigResolver resolves the connection document for a server key.
// Satisfied by repository.DBConfigRepository.
type ConfigResolver interface {
	GetByServer(ctx context.Context, server string) (*entity.DBConfig, error)
}

// Lease is an exclusive handle to a live database session. It is owned by
// one task for the duration of a run and returned to the pool on release.
type Lease struct {
	Server string

	mgr       *Manager
	conn      *sql.Conn
	lastProbe time.Time
	released  bool
}

// Conn exposes the underlying session. The gateway is the only caller.
func (l *Lease) Conn() *sql.Conn {
	return l.conn
}

// Verify confirms the session is live. A probe that succeeded within the
// freshness window is trusted; otherwise SELECT 1 is issued.
func (l *Lease) Verify(ctx context.Context) error {
	if time.Since(l.lastProbe) < probeFreshness {
		return nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var one int
	if err := l.conn.QueryRowContext(probeCtx, "SELECT 1").Scan(&one); err != nil {
		return WrapSQL("liveness probe failed", err)
	}
	l.lastProbe = time.Now()
	return nil
}

// Release returns the session to its pool. Safe to call more than once.
func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true
	if l.conn != nil {
		_ = l.conn.Close()
	}
	l.mgr.reportPoolSize(l.Server)
}

// Manager owns one bounded connection pool per server key and issues
// exclusive leases on live sessions.
type Manager struct {
	mu      sync.Mutex
	pools   map[string]*sql.DB
	configs ConfigResolver
	log     *zap.SugaredLogger

	// onPoolSize, when set, receives pool gauge updates.
	onPoolSize func(server string, open int)
}

// NewManager creates a connection manager resolving server keys through
// configs.
func NewManager(configs ConfigResolver, log *zap.SugaredLogger) *Manager {
	return &Manager{
		pools:   make(map[string]*sql.DB),
		configs: configs,
		log:     log,
	}
}

// SetPoolSizeCallback registers a gauge callback for pool statistics.
func (m *Manager) SetPoolSizeCallback(fn func(server string, open int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPoolSize = fn
}

// pool returns the pool for server, creating it on first use.
func (m *Manager) pool(ctx context.Context, server string) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pools[server]; ok {
		return p, nil
	}

	cfg, err := m.configs.GetByServer(ctx, server)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config for server %s: %w", server, err)
	}

	p, err := sql.Open("sqlserver", ConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open pool for server %s: %w", server, err)
	}
	p.SetMaxOpenConns(poolMaxOpen)
	p.SetMaxIdleConns(poolMaxIdle)
	p.SetConnMaxIdleTime(poolIdleTimeout)

	m.pools[server] = p
	m.log.Infow("pool created", "server", server, "host", cfg.Host, "database", cfg.Database)
	return p, nil
}

// Lease obtains a session whose liveness has been confirmed by a SELECT 1
// probe. Dead sessions are evicted and replaced transparently up to the
// inner retry budget; exhaustion surfaces the last error as transient.
func (m *Manager) Lease(ctx context.Context, server string) (*Lease, error) {
	pool, err := m.pool(ctx, server)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= innerRetryBudget; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, entity.NewTransferError(entity.KindCancelled, "lease aborted", err)
		}

		connCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
		conn, err := pool.Conn(connCtx)
		cancel()
		if err != nil {
			lastErr = err
			if IsConnectionErr(err) {
				continue
			}
			// Auth, permission and similar failures do not improve with
			// another attempt.
			return nil, WrapSQL(fmt.Sprintf("failed to connect to %s", server), err)
		}

		lease := &Lease{Server: server, mgr: m, conn: conn}
		if err := lease.Verify(ctx); err != nil {
			lastErr = err
			_ = conn.Close()
			continue
		}

		m.reportPoolSize(server)
		return lease, nil
	}

	return nil, entity.NewTransferError(entity.KindConnectionLost,
		fmt.Sprintf("server %s unavailable", server), lastErr)
}

// Refresh replaces the session behind a lease after a connection loss,
// keeping the lease handle valid for the caller.
func (m *Manager) Refresh(ctx context.Context, lease *Lease) error {
	if lease.conn != nil {
		_ = lease.conn.Close()
		lease.conn = nil
	}

	fresh, err := m.Lease(ctx, lease.Server)
	if err != nil {
		return err
	}
	lease.conn = fresh.conn
	lease.lastProbe = fresh.lastProbe
	lease.released = false
	return nil
}

// Probe checks a server's reachability through its pool.
func (m *Manager) Probe(ctx context.Context, server string) error {
	pool, err := m.pool(ctx, server)
	if err != nil {
		return err
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var one int
	if err := pool.QueryRowContext(probeCtx, "SELECT 1").Scan(&one); err != nil {
		return WrapSQL(fmt.Sprintf("probe of %s failed", server), err)
	}
	return nil
}

// Recycle closes and drops the pool for a server. Existing leases remain
// valid until released; the next lease recreates the pool.
func (m *Manager) Recycle(server string) {
	m.mu.Lock()
	pool, ok := m.pools[server]
	if ok {
		delete(m.pools, server)
	}
	m.mu.Unlock()

	if ok {
		_ = pool.Close()
		m.log.Infow("pool recycled", "server", server)
	}
}

// Servers lists the server keys with an open pool.
func (m *Manager) Servers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	servers := make([]string, 0, len(m.pools))
	for s := range m.pools {
		servers = append(servers, s)
	}
	return servers
}

// ClosePools closes every pool. Used at shutdown and during recovery.
func (m *Manager) ClosePools() {
	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]*sql.DB)
	m.mu.Unlock()

	for server, pool := range pools {
		_ = pool.Close()
		m.log.Infow("pool closed", "server", server)
	}
}

func (m *Manager) reportPoolSize(server string) {
	m.mu.Lock()
	pool, ok := m.pools[server]
	fn := m.onPoolSize
	m.mu.Unlock()
	if ok && fn != nil {
		fn(server, pool.Stats().OpenConnections)
	}
}
