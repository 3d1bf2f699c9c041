package pgutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"

	"github.com/commercebridge/retail-middleware/pkg/config"
)

// SkipWithoutDocker skips integration tests unless explicitly enabled.
// Set RETAILDB_INTEGRATION=1 to run tests that need a Docker daemon.
func SkipWithoutDocker(t *testing.T) {
	t.Helper()
	if os.Getenv("RETAILDB_INTEGRATION") == "" {
		t.Skip("set RETAILDB_INTEGRATION=1 to run database integration tests")
	}
}

// SetupTestDB creates a PostgreSQL testcontainer and returns a connection
func SetupTestDB(t *testing.T) (*bun.DB, func()) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("retail_test"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_pass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		t.Fatalf("failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		t.Fatalf("failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "test_user",
		Password: "test_pass",
		Database: "retail_test",
		SSLMode:  "disable",
	}

	// ConnectDB already retries the initial ping with backoff.
	db, err := ConnectDB(ctx, cfg)
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		t.Fatalf("failed to connect to test database: %v", err)
	}

	cleanup := func() {
		_ = db.Close()
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}
