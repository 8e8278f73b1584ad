package pipeline

import (
	"context"
	"database/sql/driver"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/flatten"
	"github.com/Ramsey-B/fern/pkg/loader"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/report"
	"github.com/Ramsey-B/fern/pkg/window"
)

const exampleDocument = `{"records": [{"compiledRelease": {"ocid": "ocds-1", "id": "r1", "parties": [],
	"buyer": {"id": "b1", "name": "Acme"},
	"tender": {"id": "t1", "items": [{"id": "i1", "quantity": 2}], "documents": [], "tenderers": []}}}]}`

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// fakeAcquirer writes the configured files for each window into a fresh directory.
type fakeAcquirer struct {
	t        *testing.T
	files    map[window.Window]map[string]string
	fail     map[window.Window]error
	acquired []window.Window
}

func (f *fakeAcquirer) Acquire(ctx context.Context, w window.Window, workDir string) (string, error) {
	f.acquired = append(f.acquired, w)
	if err := f.fail[w]; err != nil {
		return "", err
	}
	dir := filepath.Join(workDir, w.Key())
	require.NoError(f.t, os.MkdirAll(dir, 0o755))
	for name, body := range f.files[w] {
		require.NoError(f.t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir, nil
}

type fakeStorage struct {
	batches []*flatten.Batch
	results []loader.Result
	errs    []error
	pingErr error
	pings   int
}

func (f *fakeStorage) LoadWindow(ctx context.Context, b *flatten.Batch) (loader.Result, error) {
	i := len(f.batches)
	f.batches = append(f.batches, b)

	var res loader.Result
	if i < len(f.results) {
		res = f.results[i]
	} else {
		for table, n := range b.Counts() {
			res.Tables = append(res.Tables, loader.TableResult{Table: table, Attempted: n, Inserted: int64(n)})
		}
		res.Committed = true
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return res, f.errs[i]
	}
	return res, nil
}

func (f *fakeStorage) Ping(ctx context.Context) error {
	f.pings++
	return f.pingErr
}

type fakeNotifier struct {
	summaries []*report.Summary
	err       error
}

func (f *fakeNotifier) Name() string { return "fake" }
func (f *fakeNotifier) Notify(ctx context.Context, s *report.Summary) error {
	f.summaries = append(f.summaries, s)
	return f.err
}

type fakeLocker struct {
	held map[string]bool
	err  error
	keys []string
}

func (f *fakeLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return f.err
	}
	if f.held[key] {
		return redis.ErrLockNotAcquired
	}
	return fn(ctx)
}

var (
	feb = window.New(2024, time.February)
	mar = window.New(2024, time.March)
	// early is inside the late arrival period, so both February and March are selected.
	early = time.Date(2024, time.March, 5, 6, 0, 0, 0, time.UTC)
)

func newDriver(t *testing.T, acq *fakeAcquirer, storage *fakeStorage, opts ...Option) *Driver {
	acq.t = t
	return NewDriver(acq, storage, Config{WorkDir: t.TempDir()}, noopLogger(), opts...)
}

func TestRunLoadsWindowsInOrder(t *testing.T) {
	acq := &fakeAcquirer{files: map[window.Window]map[string]string{
		feb: {"feb.json": exampleDocument},
		mar: {"mar.json": exampleDocument, "readme.txt": "x"},
	}}
	storage := &fakeStorage{}
	notifier := &fakeNotifier{}

	rep, err := newDriver(t, acq, storage, WithNotifier(notifier)).Run(context.Background(), early)
	require.NoError(t, err)

	assert.Equal(t, []window.Window{feb, mar}, acq.acquired)
	assert.Equal(t, []Outcome{OutcomeLoaded, OutcomeLoaded}, rep.Outcomes())
	assert.False(t, rep.Aborted)
	require.Len(t, storage.batches, 2)
	assert.Len(t, storage.batches[0].CompiledReleases, 1)
	assert.Equal(t, 1, rep.Windows[0].Stats.Records)

	require.Len(t, notifier.summaries, 1)
	s := notifier.summaries[0]
	assert.Equal(t, rep.RunID, s.RunID)
	assert.False(t, s.Failed)
	require.Len(t, s.Windows, 2)
	assert.Equal(t, int64(1), s.Windows[1].Inserted["tenders"])
	assert.Contains(t, s.Lines(), "Processing: 2024-02")
	assert.Contains(t, s.Lines(), "Data for 2024-03 processed successfully")
}

func TestRunLateInMonthOnlyCurrentWindow(t *testing.T) {
	acq := &fakeAcquirer{files: map[window.Window]map[string]string{mar: {"mar.json": exampleDocument}}}

	rep, err := newDriver(t, acq, &fakeStorage{}).Run(context.Background(), time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []window.Window{mar}, acq.acquired)
	assert.Len(t, rep.Windows, 1)
}

func TestRunSkipsFailedWindows(t *testing.T) {
	tests := []struct {
		name    string
		acq     *fakeAcquirer
		outcome Outcome
		errIs   error
	}{
		{
			name:    "acquisition failure",
			acq:     &fakeAcquirer{fail: map[window.Window]error{feb: errors.New("404")}},
			outcome: OutcomeAcquireFailed,
		},
		{
			name:    "no document",
			acq:     &fakeAcquirer{files: map[window.Window]map[string]string{feb: {"notes.txt": "x"}}},
			outcome: OutcomeNoDocument,
		},
		{
			name:    "two documents",
			acq:     &fakeAcquirer{files: map[window.Window]map[string]string{feb: {"a.json": exampleDocument, "b.json": exampleDocument}}},
			outcome: OutcomeAmbiguousDocument,
		},
		{
			name:    "malformed document",
			acq:     &fakeAcquirer{files: map[window.Window]map[string]string{feb: {"a.json": `[1, 2]`}}},
			outcome: OutcomeDecodeFailed,
		},
		{
			name:    "truncated document",
			acq:     &fakeAcquirer{files: map[window.Window]map[string]string{feb: {"a.json": `{"records": [{"compiledRelease": `}}},
			outcome: OutcomeDecodeFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.acq.files == nil {
				tt.acq.files = map[window.Window]map[string]string{}
			}
			tt.acq.files[mar] = map[string]string{"mar.json": exampleDocument}
			storage := &fakeStorage{}

			rep, err := newDriver(t, tt.acq, storage).Run(context.Background(), early)
			require.NoError(t, err)

			assert.Equal(t, []Outcome{tt.outcome, OutcomeLoaded}, rep.Outcomes())
			assert.Error(t, rep.Windows[0].Err)
			assert.Len(t, storage.batches, 1, "only the healthy window reaches storage")
			assert.Zero(t, storage.pings)
		})
	}
}

func TestRunPartialWindow(t *testing.T) {
	acq := &fakeAcquirer{files: map[window.Window]map[string]string{
		feb: {"feb.json": exampleDocument},
		mar: {"mar.json": exampleDocument},
	}}
	tableErr := &loader.TableError{Table: "tenders", Rows: 1, Err: errors.New("check violation")}
	storage := &fakeStorage{results: []loader.Result{{
		Committed: true,
		Tables: []loader.TableResult{
			{Table: "compiled_releases", Attempted: 1, Inserted: 1},
			{Table: "tenders", Attempted: 1, Err: tableErr},
		},
	}}}

	rep, err := newDriver(t, acq, storage).Run(context.Background(), early)
	require.NoError(t, err)
	assert.Equal(t, []Outcome{OutcomePartial, OutcomeLoaded}, rep.Outcomes())

	ws := rep.Summary.Windows[0]
	assert.Equal(t, map[string]int64{"compiled_releases": 1}, ws.Inserted)
	assert.Equal(t, []string{tableErr.Error()}, ws.Errors)
}

func TestRunStorageFailureWithHealthyStorageContinues(t *testing.T) {
	acq := &fakeAcquirer{files: map[window.Window]map[string]string{
		feb: {"feb.json": exampleDocument},
		mar: {"mar.json": exampleDocument},
	}}
	storage := &fakeStorage{errs: []error{&loader.StorageError{Op: "insert", Table: "tenders", Err: context.DeadlineExceeded}}}

	rep, err := newDriver(t, acq, storage).Run(context.Background(), early)
	require.NoError(t, err)
	assert.Equal(t, []Outcome{OutcomeStorageFailed, OutcomeLoaded}, rep.Outcomes())
	assert.Equal(t, 1, storage.pings)
}

func TestRunAbortsWhenStorageIsUnreachable(t *testing.T) {
	acq := &fakeAcquirer{files: map[window.Window]map[string]string{
		feb: {"feb.json": exampleDocument},
		mar: {"mar.json": exampleDocument},
	}}
	storage := &fakeStorage{
		errs:    []error{&loader.StorageError{Op: "begin", Err: driver.ErrBadConn}},
		pingErr: &loader.StorageError{Op: "ping", Err: driver.ErrBadConn},
	}
	notifier := &fakeNotifier{}

	rep, err := newDriver(t, acq, storage, WithNotifier(notifier)).Run(context.Background(), early)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, loader.ErrStorage)

	assert.True(t, rep.Aborted)
	assert.Equal(t, []Outcome{OutcomeStorageFailed}, rep.Outcomes())
	assert.Equal(t, []window.Window{feb}, acq.acquired)

	require.Len(t, notifier.summaries, 1)
	assert.True(t, notifier.summaries[0].Failed)
}

func TestRunNotifierFailureDoesNotFailRun(t *testing.T) {
	acq := &fakeAcquirer{files: map[window.Window]map[string]string{mar: {"mar.json": exampleDocument}}}
	notifier := &fakeNotifier{err: errors.New("smtp down")}

	late := time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC)
	rep, err := newDriver(t, acq, &fakeStorage{}, WithNotifier(notifier)).Run(context.Background(), late)
	require.NoError(t, err)
	assert.Equal(t, []Outcome{OutcomeLoaded}, rep.Outcomes())
	assert.Len(t, notifier.summaries, 1)
}

func TestRunCanceled(t *testing.T) {
	acq := &fakeAcquirer{files: map[window.Window]map[string]string{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := newDriver(t, acq, &fakeStorage{}).Run(ctx, early)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, rep.Aborted)
	assert.Empty(t, acq.acquired)
}

func TestRunWithLocker(t *testing.T) {
	acq := &fakeAcquirer{files: map[window.Window]map[string]string{
		feb: {"feb.json": exampleDocument},
		mar: {"mar.json": exampleDocument},
	}}
	locker := &fakeLocker{held: map[string]bool{"2024_02": true}}

	rep, err := newDriver(t, acq, &fakeStorage{}, WithLocker(locker)).Run(context.Background(), early)
	require.NoError(t, err)

	assert.Equal(t, []string{"2024_02", "2024_03"}, locker.keys)
	assert.Equal(t, []Outcome{OutcomeLocked, OutcomeLoaded}, rep.Outcomes())
	assert.Equal(t, []window.Window{mar}, acq.acquired)
}

func TestRunLockServiceDown(t *testing.T) {
	acq := &fakeAcquirer{files: map[window.Window]map[string]string{}}
	locker := &fakeLocker{err: errors.New("dial tcp: connection refused")}

	rep, err := newDriver(t, acq, &fakeStorage{}, WithLocker(locker)).Run(context.Background(), early)
	require.NoError(t, err)
	assert.Equal(t, []Outcome{OutcomeLockFailed, OutcomeLockFailed}, rep.Outcomes())
	assert.Empty(t, acq.acquired)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(exampleDocument), 0o644))
	storage := &fakeStorage{}

	d := NewDriver(&fakeAcquirer{t: t}, storage, Config{}, noopLogger())
	rep, err := d.LoadFile(context.Background(), mar, path)
	require.NoError(t, err)

	require.Len(t, rep.Windows, 1)
	assert.Equal(t, OutcomeLoaded, rep.Windows[0].Outcome)
	assert.Equal(t, path, rep.Windows[0].Document)
	require.Len(t, storage.batches, 1)
	assert.Len(t, storage.batches[0].Items, 1)
}

func TestLoadFileMissing(t *testing.T) {
	d := NewDriver(&fakeAcquirer{t: t}, &fakeStorage{}, Config{}, noopLogger())
	rep, err := d.LoadFile(context.Background(), mar, filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, []Outcome{OutcomeDecodeFailed}, rep.Outcomes())
}

func TestOutcomeCommitted(t *testing.T) {
	assert.True(t, OutcomeLoaded.Committed())
	assert.True(t, OutcomePartial.Committed())
	assert.False(t, OutcomeStorageFailed.Committed())
	assert.False(t, OutcomeNoDocument.Committed())
}
