package helpers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/heriberto777/core-app-sub000/internal/entity"
)

const (
	mssqlImage    = "mcr.microsoft.com/mssql/server:2022-latest"
	mssqlPassword = "Str0ng!Passw0rd"
)

// SQLServerContainer wraps a disposable SQL Server for integration tests.
type SQLServerContainer struct {
	container testcontainers.Container
	Host      string
	Port      int
}

// SkipUnlessIntegration skips the test unless INTEGRATION_TESTS=1.
func SkipUnlessIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run container-backed tests")
	}
}

// StartSQLServer launches a SQL Server container and waits for readiness.
func StartSQLServer(ctx context.Context, t *testing.T) *SQLServerContainer {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        mssqlImage,
		ExposedPorts: []string{"1433/tcp"},
		Env: map[string]string{
			"ACCEPT_EULA":       "Y",
			"MSSQL_SA_PASSWORD": mssqlPassword,
		},
		WaitingFor: wait.ForLog("Recovery is complete").WithStartupTimeout(3 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start SQL Server container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to resolve container host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, "1433/tcp")
	if err != nil {
		t.Fatalf("failed to resolve container port: %v", err)
	}

	return &SQLServerContainer{
		container: container,
		Host:      host,
		Port:      mapped.Int(),
	}
}

// DBConfig builds the server configuration document pointing at the
// container.
func (c *SQLServerContainer) DBConfig(server, database string) *entity.DBConfig {
	return &entity.DBConfig{
		ID:       fmt.Sprintf("cfg-%s", server),
		Server:   server,
		Host:     c.Host,
		Port:     c.Port,
		User:     "sa",
		Password: mssqlPassword,
		Database: database,
		TrustCert: true,
	}
}
