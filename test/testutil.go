//go:build integration
// +build integration

package test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcclickhouse "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"github.com/coregx/chisel"
)

// DatabaseSetup encapsulates the database connection and cleanup.
type DatabaseSetup struct {
	DB        *chisel.DB
	Container testcontainers.Container
}

// Close cleans up database resources.
func (ds *DatabaseSetup) Close() {
	if ds.DB != nil {
		ds.DB.Close() //nolint:errcheck
	}
	if ds.Container != nil {
		ds.Container.Terminate(context.Background()) //nolint:errcheck
	}
}

// SetupClickHouseTestDB connects to a ClickHouse instance for integration
// tests. Uses CLICKHOUSE_TEST_DSN when set (allows testing without Docker),
// otherwise starts a container.
func SetupClickHouseTestDB(t *testing.T) *DatabaseSetup {
	t.Helper()
	ctx := context.Background()

	if dsn := os.Getenv("CLICKHOUSE_TEST_DSN"); dsn != "" {
		db, err := chisel.Open(dsn)
		require.NoError(t, err)
		return &DatabaseSetup{DB: db}
	}

	container, err := tcclickhouse.Run(
		ctx,
		"clickhouse/clickhouse-server:24.3-alpine",
		tcclickhouse.WithDatabase("testdb"),
		tcclickhouse.WithUsername("user"),
		tcclickhouse.WithPassword("password"),
	)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://user:password@%s:%s/testdb", host, port.Port())

	var db *chisel.DB
	require.Eventually(t, func() bool {
		db, err = chisel.Open(dsn)
		if err != nil {
			return false
		}
		sqlDB, ok := db.Conn().(*sql.DB)
		return ok && sqlDB.PingContext(ctx) == nil
	}, 60*time.Second, time.Second)

	return &DatabaseSetup{DB: db, Container: container}
}
