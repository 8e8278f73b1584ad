// Package databasetest starts a disposable PostgreSQL with the release schema applied.
package databasetest

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"

	"github.com/Ramsey-B/fern/pkg/database"
)

const (
	image    = "postgres:16-alpine"
	dbName   = "fern"
	user     = "fern"
	password = "fern"
)

// Postgres is a running test database.
type Postgres struct {
	DB  database.DB
	DSN string
}

// TestLogger returns a development logger for tests.
func TestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// New starts a container, applies migrations and registers cleanup on t.
// Integration tests call it after checking testing.Short().
func New(t *testing.T) *Postgres {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx, image,
		postgres.WithDatabase(dbName),
		postgres.WithUsername(user),
		postgres.WithPassword(password),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sqlx.ConnectContext(ctx, database.DriverName, dsn)
	require.NoError(t, err, "failed to connect to test database")
	t.Cleanup(func() {
		_ = db.Close()
	})

	logger := TestLogger()
	migrations := database.NewMigrationService(logger, nil)
	require.NoError(t, migrations.Migrate(dbName, db.DB))

	return &Postgres{
		DB:  database.NewDatabaseInstance(db, logger),
		DSN: dsn,
	}
}

// Truncate empties every release table.
func (p *Postgres) Truncate(t *testing.T) {
	t.Helper()
	_, err := p.DB.ExecContext(context.Background(),
		`TRUNCATE compiled_releases, parties, buyers, tenders, items, documents, tenderers, planning`)
	require.NoError(t, err)
}

// Count returns the number of rows in table.
func (p *Postgres) Count(t *testing.T, table string) int {
	t.Helper()
	var n int
	query, args := database.CountQuery(table)
	require.NoError(t, p.DB.GetContext(context.Background(), &n, query, args...))
	return n
}
