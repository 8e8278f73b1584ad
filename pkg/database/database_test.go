package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database/migrations"
)

type row struct {
	ID   *string `db:"id"`
	Name *string `db:"name"`
}

func TestInsertBuilderOnConflictDoNothing(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		want    string
	}{
		{
			name: "no target",
			want: "INSERT INTO buyers (id, name) VALUES ($1, $2), ($3, $4) ON CONFLICT DO NOTHING",
		},
		{
			name:    "single column target",
			columns: []string{"id"},
			want:    "INSERT INTO buyers (id, name) VALUES ($1, $2), ($3, $4) ON CONFLICT (id) DO NOTHING",
		},
		{
			name:    "composite target",
			columns: []string{"id", "tender_id"},
			want:    "INSERT INTO buyers (id, name) VALUES ($1, $2), ($3, $4) ON CONFLICT (id, tender_id) DO NOTHING",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := "a", "b"
			ib := NewStruct(new(row)).InsertInto("buyers", row{ID: &a}, row{ID: &b, Name: &b})
			ib.OnConflictDoNothing(tt.columns...)

			query, args := ib.Build()
			assert.Equal(t, tt.want, query)
			require.Len(t, args, 4)
			// pointer fields bind by value, nil pointers bind as NULL
			assert.Equal(t, "a", args[0])
			assert.Nil(t, args[1])
			assert.Equal(t, "b", args[3])
		})
	}
}

func TestCountQuery(t *testing.T) {
	query, args := CountQuery("tenders")
	assert.Equal(t, "SELECT COUNT(*) FROM tenders", query)
	assert.Empty(t, args)
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "bad conn", err: fmt.Errorf("exec: %w", driver.ErrBadConn), want: true},
		{name: "conn done", err: sql.ErrConnDone, want: true},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF, want: true},
		{name: "connection exception", err: &pq.Error{Code: "08006"}, want: true},
		{name: "admin shutdown", err: &pq.Error{Code: "57P01"}, want: true},
		{name: "query canceled", err: &pq.Error{Code: "57014"}, want: false},
		{name: "check violation", err: &pq.Error{Code: "23514"}, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnectionError(tt.err))
		})
	}
}

func TestIsCanceled(t *testing.T) {
	assert.True(t, IsCanceled(fmt.Errorf("x: %w", context.Canceled)))
	assert.True(t, IsCanceled(context.DeadlineExceeded))
	assert.False(t, IsCanceled(errors.New("x")))
}

type fakeTx struct {
	statements  []string
	rollbackErr error
}

func (f *fakeTx) IsOpen() bool                     { return true }
func (f *fakeTx) Commit(ctx context.Context) error { return nil }
func (f *fakeTx) Rollback(context.Context) error   { return nil }
func (f *fakeTx) DriverName() string               { return DriverName }
func (f *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.statements = append(f.statements, query)
	return nil, nil
}
func (f *fakeTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (f *fakeTx) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (f *fakeTx) Rebind(query string) string { return query }
func (f *fakeTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (f *fakeTx) Savepoint(ctx context.Context, name string) error {
	f.statements = append(f.statements, "SAVEPOINT "+name)
	return nil
}
func (f *fakeTx) RollbackToSavepoint(ctx context.Context, name string) error {
	f.statements = append(f.statements, "ROLLBACK TO "+name)
	return f.rollbackErr
}
func (f *fakeTx) ReleaseSavepoint(ctx context.Context, name string) error {
	f.statements = append(f.statements, "RELEASE "+name)
	return nil
}

func TestWithSavepoint(t *testing.T) {
	ctx := context.Background()

	t.Run("success releases", func(t *testing.T) {
		tx := &fakeTx{}
		err := WithSavepoint(ctx, tx, "sp", func(ctx context.Context) error {
			_, err := tx.ExecContext(ctx, "INSERT")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"SAVEPOINT sp", "INSERT", "RELEASE sp"}, tx.statements)
	})

	t.Run("failure rolls back", func(t *testing.T) {
		tx := &fakeTx{}
		boom := errors.New("check violation")
		err := WithSavepoint(ctx, tx, "sp", func(ctx context.Context) error { return boom })

		var spErr *SavepointError
		require.ErrorAs(t, err, &spErr)
		assert.Equal(t, "sp", spErr.Name)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"SAVEPOINT sp", "ROLLBACK TO sp"}, tx.statements)
	})

	t.Run("failed rollback is not a savepoint error", func(t *testing.T) {
		tx := &fakeTx{rollbackErr: driver.ErrBadConn}
		err := WithSavepoint(ctx, tx, "sp", func(ctx context.Context) error { return errors.New("boom") })

		var spErr *SavepointError
		assert.False(t, errors.As(err, &spErr))
		assert.True(t, IsConnectionError(err))
	})
}

func TestGetLatestVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"000001_init.up.sql":       {Data: []byte("SELECT 1")},
		"000001_init.down.sql":     {Data: []byte("SELECT 1")},
		"000003_more.up.sql":       {Data: []byte("SELECT 1")},
		"000002_between.up.sql":    {Data: []byte("SELECT 1")},
		"README.md":                {Data: []byte("docs")},
		"000004_notes.txt":         {Data: []byte("x")},
		"sub/000009_nested.up.sql": {Data: []byte("SELECT 1")},
	}

	latest, err := getLatestVersion(fsys, ".")
	require.NoError(t, err)
	assert.Equal(t, 3, latest)

	_, err = getLatestVersion(fstest.MapFS{"README.md": {}}, ".")
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	latest, err := getLatestVersion(migrations.FS, ".")
	require.NoError(t, err)
	assert.Equal(t, 1, latest)
}

func TestPoolLeavesRoomForPing(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db := sqlx.NewDb(sqlDB, "sqlmock")
	assert.Equal(t, MinOpenConns, configurePool(db, Config{MaxOpenConns: 1}))

	mock.ExpectBegin()
	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, db.PingContext(ctx), "ping must not wait for the open transaction")

	mock.ExpectRollback()
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}
