package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/openmem/openmem-server/internal/store"
	"github.com/openmem/openmem-server/internal/store/storetest"
)

// testDSN returns a DSN from OPENMEM_POSTGRES_TEST_DSN when set; otherwise it
// starts a disposable postgres container. Returns "" when neither is possible.
func testDSN(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("OPENMEM_POSTGRES_TEST_DSN"); dsn != "" {
		return dsn
	}
	if testing.Short() {
		t.Skip("short mode: skipping postgres container test")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "openmem",
			"POSTGRES_PASSWORD": "openmem",
			"POSTGRES_DB":       "openmem_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("cannot start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	return fmt.Sprintf("postgres://openmem:openmem@%s:%s/openmem_test?sslmode=disable", host, port.Port())
}

// resetSchema drops all tables so every subtest starts empty.
func resetSchema(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()
	for _, tbl := range []string{
		"memory_access_logs", "memory_status_history", "memory_categories",
		"access_controls", "categories", "memories", "apps", "users",
	} {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+tbl+" CASCADE"); err != nil {
			t.Fatalf("drop %s: %v", tbl, err)
		}
	}
	if err := EnsureSchema(ctx, db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
}

func TestPostgresStoreCompliance(t *testing.T) {
	dsn := testDSN(t)
	db, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	storetest.Run(t, func(t *testing.T) store.Store {
		resetSchema(t, db)
		return New(db)
	})
}
