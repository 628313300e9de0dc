package helpers

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heriberto777/core-app-sub000/internal/db"
	"github.com/heriberto777/core-app-sub000/internal/entity"
	"github.com/heriberto777/core-app-sub000/internal/metrics"
	"github.com/heriberto777/core-app-sub000/internal/progress"
	"github.com/heriberto777/core-app-sub000/internal/service"
	"github.com/heriberto777/core-app-sub000/internal/tracker"
	"github.com/heriberto777/core-app-sub000/tests/mocks"
)

// TestTransferEndToEnd runs a real transfer against a disposable SQL Server:
// happy path, identity-based deduplication and idempotent re-run.
func TestTransferEndToEnd(t *testing.T) {
	SkipUnlessIntegration(t)

	ctx := context.Background()
	server := StartSQLServer(ctx, t)

	store := mocks.NewMockStore()
	require.NoError(t, store.DBConfigs().Upsert(ctx, server.DBConfig("source", "master")))
	require.NoError(t, store.DBConfigs().Upsert(ctx, server.DBConfig("target", "master")))

	// Schema and seed data via a direct connection.
	admin, err := sql.Open("sqlserver", db.ConnString(server.DBConfig("admin", "master")))
	require.NoError(t, err)
	defer admin.Close()

	for _, stmt := range []string{
		`CREATE TABLE src_invoices (id INT PRIMARY KEY, customer NVARCHAR(50), amount DECIMAL(12,2), exported BIT DEFAULT 0)`,
		`CREATE TABLE dst_invoices (id INT PRIMARY KEY, customer NVARCHAR(20), amount DECIMAL(12,2))`,
		`INSERT INTO src_invoices (id, customer, amount) VALUES (1, 'acme', 10.50), (2, 'globex', 20.00), (3, 'initech', 30.25)`,
		`INSERT INTO dst_invoices (id, customer, amount) VALUES (2, 'globex', 20.00)`,
	} {
		_, err := admin.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	log := zap.NewNop().Sugar()
	registry := metrics.NewRegistryWith(prometheus.NewRegistry())
	manager := db.NewManager(store.DBConfigs(), log)
	defer manager.ClosePools()

	transfer := service.NewTransfer(
		store, manager, db.NewGateway(log), tracker.New(),
		progress.NewChannel(), registry, log,
	)

	task := NewTaskBuilder("invoices").
		WithQuery("SELECT id, customer, amount FROM src_invoices").
		WithDestTable("dst_invoices").
		WithIdentity("id").
		WithField("customer", entity.FieldRule{Type: entity.FieldString, MaxLength: 20, Truncate: true}).
		WithField("amount", entity.FieldRule{Type: entity.FieldNumber, Precision: 2}).
		WithPostUpdate(
			"UPDATE src_invoices SET exported = 1",
			&entity.PostUpdateMapping{DestField: "id", SourceField: "id"},
		).
		Build()
	store.SeedTask(task)

	// First run: one of three rows already exists in the destination.
	result, err := transfer.Run(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Rows)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, int64(1), result.InitialCount)
	assert.Equal(t, int64(3), result.FinalCount)
	require.Len(t, result.DuplicatedRecords, 1)

	var exported int
	require.NoError(t, admin.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM src_invoices WHERE exported = 1").Scan(&exported))
	assert.Equal(t, 3, exported, "post-update marks every transferred row")

	// Second run on an unchanged source inserts nothing.
	again, err := transfer.Run(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Inserted)
	assert.Equal(t, 3, again.Duplicates)
	assert.Equal(t, int64(3), again.FinalCount)

	stored := store.TaskByID(task.ID)
	assert.Equal(t, entity.StatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)
}

// TestTransferEmptySource validates the success-no-op path against a real
// server.
func TestTransferEmptySource(t *testing.T) {
	SkipUnlessIntegration(t)

	ctx := context.Background()
	server := StartSQLServer(ctx, t)

	store := mocks.NewMockStore()
	require.NoError(t, store.DBConfigs().Upsert(ctx, server.DBConfig("source", "master")))
	require.NoError(t, store.DBConfigs().Upsert(ctx, server.DBConfig("target", "master")))

	admin, err := sql.Open("sqlserver", db.ConnString(server.DBConfig("admin", "master")))
	require.NoError(t, err)
	defer admin.Close()

	for _, stmt := range []string{
		`CREATE TABLE src_empty (id INT PRIMARY KEY)`,
		`CREATE TABLE dst_empty (id INT PRIMARY KEY)`,
	} {
		_, err := admin.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	log := zap.NewNop().Sugar()
	manager := db.NewManager(store.DBConfigs(), log)
	defer manager.ClosePools()

	transfer := service.NewTransfer(
		store, manager, db.NewGateway(log), tracker.New(),
		progress.NewChannel(), metrics.NewRegistryWith(prometheus.NewRegistry()), log,
	)

	task := NewTaskBuilder(fmt.Sprintf("empty-%d", 1)).
		WithQuery("SELECT id FROM src_empty").
		WithDestTable("dst_empty").
		WithIdentity("id").
		Build()
	store.SeedTask(task)

	result, err := transfer.Run(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.Rows)
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, entity.StatusCompleted, store.TaskByID(task.ID).Status)
}
