// Package loader persists flattened release rows with insert-if-absent semantics.
package loader

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/flatten"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// DefaultBatchSize is the maximum number of rows per INSERT statement.
const DefaultBatchSize = 1000

// Tables lists the target tables in load order, parents first.
var Tables = []string{
	models.CompiledRelease{}.TableName(),
	models.Party{}.TableName(),
	models.Buyer{}.TableName(),
	models.Tender{}.TableName(),
	models.Item{}.TableName(),
	models.Document{}.TableName(),
	models.Tenderer{}.TableName(),
	models.Planning{}.TableName(),
}

type Config struct {
	// BatchSize caps rows per statement. It is lowered further when needed to stay under
	// the PostgreSQL bind parameter limit.
	BatchSize int
}

type Loader struct {
	db        database.DB
	logger    ectologger.Logger
	batchSize int
}

func NewLoader(db database.DB, cfg Config, logger ectologger.Logger) *Loader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Loader{
		db:        db,
		logger:    logger,
		batchSize: cfg.BatchSize,
	}
}

type tableLoad struct {
	name string
	run  func(ctx context.Context, tx database.Tx) (TableResult, error)
}

func bind[T models.Row](l *Loader, rows []T) tableLoad {
	var zero T
	return tableLoad{
		name: zero.TableName(),
		run: func(ctx context.Context, tx database.Tx) (TableResult, error) {
			return LoadTable(ctx, tx, rows, l.batchSize, l.logger)
		},
	}
}

func (l *Loader) tables(b *flatten.Batch) []tableLoad {
	return []tableLoad{
		bind(l, b.CompiledReleases),
		bind(l, b.Parties),
		bind(l, b.Buyers),
		bind(l, b.Tenders),
		bind(l, b.Items),
		bind(l, b.Documents),
		bind(l, b.Tenderers),
		bind(l, b.Planning),
	}
}

// LoadWindow writes a window's batch in one transaction, each table inside its own
// savepoint. A failed table is rolled back alone and reported in its TableResult; the
// transaction is still committed. A *StorageError means nothing was committed.
func (l *Loader) LoadWindow(ctx context.Context, b *flatten.Batch) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "Loader.LoadWindow")
	defer span.End()

	var res Result
	if b == nil {
		b = flatten.NewBatch()
	}

	txCtx, tx, err := l.db.GetTx(ctx, nil)
	if err != nil {
		return res, &StorageError{Op: "begin", Err: err}
	}
	defer tx.Rollback(ctx)

	for _, t := range l.tables(b) {
		tr, err := t.run(txCtx, tx)
		res.Tables = append(res.Tables, tr)
		if err != nil {
			l.logger.WithContext(ctx).WithError(err).WithField("table", t.name).Error("Aborting window load, rolling back")
			return res, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return res, &StorageError{Op: "commit", Err: err}
	}
	res.Committed = true

	l.logger.WithContext(ctx).WithField("inserted", res.Inserted()).Info("Window load committed")
	return res, nil
}

// LoadTable inserts rows into their table inside a savepoint, skipping rows whose key
// already exists and rows with a null key column. Statement failures roll back to the
// savepoint and are returned in TableResult.Err; only failures of the connection or
// transaction are returned as error.
func LoadTable[T models.Row](ctx context.Context, tx database.Tx, rows []T, batchSize int, logger ectologger.Logger) (TableResult, error) {
	var zero T
	table := zero.TableName()

	ctx, span := tracing.StartSpan(ctx, "Loader.LoadTable", attribute.String("table", table), attribute.Int("rows", len(rows)))
	defer span.End()

	keyed := make([]any, 0, len(rows))
	res := TableResult{Table: table}
	for _, row := range rows {
		if !row.HasKey() {
			res.MissingKey++
			continue
		}
		keyed = append(keyed, row)
	}
	res.Attempted = len(keyed)

	log := logger.WithContext(ctx).WithFields(map[string]any{
		"table": table,
		"rows":  res.Attempted,
	})

	if res.MissingKey > 0 {
		log.Warnf("Skipped %d rows without a key for %s", res.MissingKey, table)
	}
	if len(keyed) == 0 {
		return res, nil
	}

	chunk := chunkSize(batchSize, columnCount(zero))
	start := time.Now()

	var inserted int64
	err := database.WithSavepoint(ctx, tx, savepointName(table), func(ctx context.Context) error {
		for offset := 0; offset < len(keyed); offset += chunk {
			end := min(offset+chunk, len(keyed))

			ib := database.NewStruct(new(T)).InsertInto(table, keyed[offset:end]...)
			ib.OnConflictDoNothing(zero.ConflictColumns()...)
			query, args := ib.Build()

			result, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			n, err := result.RowsAffected()
			if err != nil {
				return err
			}
			inserted += n
		}
		return nil
	})
	res.Duration = time.Since(start)

	if err != nil {
		var spErr *database.SavepointError
		if !errors.As(err, &spErr) || database.IsConnectionError(err) || database.IsCanceled(err) {
			return res, &StorageError{Op: "insert", Table: table, Err: err}
		}

		res.Err = &TableError{Table: table, Rows: res.Attempted, Err: spErr.Err}
		log.WithError(spErr.Err).Errorf("Error inserting into %s, rolled back %d rows", table, res.Attempted)
		metrics.RecordTableLoad(table, res.Attempted, 0, res.MissingKey, true, res.Duration.Seconds())
		return res, nil
	}

	res.Inserted = inserted
	log.WithField("inserted", inserted).Infof("%d new rows inserted into %s", inserted, table)
	metrics.RecordTableLoad(table, res.Attempted, inserted, res.MissingKey, false, res.Duration.Seconds())
	return res, nil
}

// Counts returns the number of stored rows per table.
func (l *Loader) Counts(ctx context.Context) (map[string]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "Loader.Counts")
	defer span.End()

	counts := make(map[string]int64, len(Tables))
	for _, table := range Tables {
		query, args := database.CountQuery(table)

		var n int64
		if err := l.db.GetContext(ctx, &n, query, args...); err != nil {
			return nil, &StorageError{Op: "count", Table: table, Err: err}
		}
		counts[table] = n
	}
	return counts, nil
}

// Ping checks that storage is reachable.
func (l *Loader) Ping(ctx context.Context) error {
	if err := l.db.PingContext(ctx); err != nil {
		return &StorageError{Op: "ping", Err: err}
	}
	return nil
}

func savepointName(table string) string {
	return "load_" + table
}

// chunkSize keeps rows*columns under the bind parameter limit.
func chunkSize(batchSize, columns int) int {
	if columns <= 0 {
		columns = 1
	}
	limit := database.MaxBindParams / columns
	if batchSize <= 0 || batchSize > limit {
		return limit
	}
	return batchSize
}

// columnCount counts the db tagged fields of a row struct.
func columnCount(row any) int {
	t := reflect.TypeOf(row)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return 0
	}

	n := 0
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("db")
		name, _, _ := strings.Cut(tag, ",")
		if name != "" && name != "-" {
			n++
		}
	}
	return n
}
