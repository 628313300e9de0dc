package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heriberto777/core-app-sub000/internal/entity"
	"github.com/heriberto777/core-app-sub000/internal/repository"
)

type staticResolver map[string]*entity.DBConfig

func (r staticResolver) GetByServer(ctx context.Context, server string) (*entity.DBConfig, error) {
	cfg, ok := r[server]
	if !ok {
		return nil, &repository.NotFoundError{ResourceType: "DBConfig", ResourceID: server}
	}
	return cfg, nil
}

// seedPool installs a sqlmock-backed pool under the given server key.
func seedPool(t *testing.T, m *Manager, server string) sqlmock.Sqlmock {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	m.mu.Lock()
	m.pools[server] = mockDB
	m.mu.Unlock()
	return mock
}

func newTestManager() *Manager {
	return NewManager(staticResolver{}, zap.NewNop().Sugar())
}

// TestLeaseProbesLiveness validates that a lease is only handed out after a
// successful SELECT 1 probe.
func TestLeaseProbesLiveness(t *testing.T) {
	m := newTestManager()
	mock := seedPool(t, m, "primary")

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	lease, err := m.Lease(context.Background(), "primary")
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.Equal(t, "primary", lease.Server)

	// A fresh probe is trusted within the freshness window.
	assert.NoError(t, lease.Verify(context.Background()))

	lease.Release()
	lease.Release() // double release is safe
}

// TestLeaseSurfacesTransientAfterBudget validates the inner retry budget on
// dead sessions.
func TestLeaseSurfacesTransientAfterBudget(t *testing.T) {
	m := newTestManager()
	mock := seedPool(t, m, "primary")

	// Every probe fails with a connection-class error; the budget allows
	// the initial attempt plus two replacements.
	for i := 0; i < 3; i++ {
		mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("broken pipe"))
	}

	_, err := m.Lease(context.Background(), "primary")
	require.Error(t, err)
	assert.Equal(t, entity.KindConnectionLost, entity.KindOf(err))
}

// TestLeaseUnknownServer validates config resolution failure.
func TestLeaseUnknownServer(t *testing.T) {
	m := newTestManager()
	_, err := m.Lease(context.Background(), "ghost")
	require.Error(t, err)
}

// TestLeaseCancelledContext validates cancellation before connecting.
func TestLeaseCancelledContext(t *testing.T) {
	m := newTestManager()
	seedPool(t, m, "primary")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Lease(ctx, "primary")
	require.Error(t, err)
	assert.True(t, entity.IsCancelled(err))
}

// TestRefreshReplacesSession validates mid-run session replacement.
func TestRefreshReplacesSession(t *testing.T) {
	m := newTestManager()
	mock := seedPool(t, m, "primary")

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	lease, err := m.Lease(context.Background(), "primary")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	require.NoError(t, m.Refresh(context.Background(), lease))
	assert.NotNil(t, lease.Conn())
	lease.Release()
}

// TestRecycleDropsPool validates pool recycling.
func TestRecycleDropsPool(t *testing.T) {
	m := newTestManager()
	seedPool(t, m, "primary")
	seedPool(t, m, "secondary")
	assert.ElementsMatch(t, []string{"primary", "secondary"}, m.Servers())

	m.Recycle("primary")
	assert.Equal(t, []string{"secondary"}, m.Servers())

	m.ClosePools()
	assert.Empty(t, m.Servers())
}

// TestProbe validates the pool-level reachability check.
func TestProbe(t *testing.T) {
	m := newTestManager()
	mock := seedPool(t, m, "primary")

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	assert.NoError(t, m.Probe(context.Background(), "primary"))

	mock.ExpectQuery("SELECT 1").WillReturnError(sql.ErrConnDone)
	assert.Error(t, m.Probe(context.Background(), "primary"))
}
