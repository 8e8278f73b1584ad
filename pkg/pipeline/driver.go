// Package pipeline runs the select, acquire, decode, flatten and load steps for each
// window of a run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/fern/pkg/acquire"
	"github.com/Ramsey-B/fern/pkg/flatten"
	"github.com/Ramsey-B/fern/pkg/loader"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/notify"
	"github.com/Ramsey-B/fern/pkg/ocds"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/report"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/window"
)

const (
	DefaultWindowTimeout = 2 * time.Hour
	DefaultLockTTL       = 3 * time.Hour

	pingTimeout   = 10 * time.Second
	notifyTimeout = 30 * time.Second

	// cancelCheckInterval is how many records are decoded between context checks.
	cancelCheckInterval = 1000
)

// Storage persists a window's rows.
type Storage interface {
	LoadWindow(ctx context.Context, b *flatten.Batch) (loader.Result, error)
	Ping(ctx context.Context) error
}

// Locker serializes work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

type Config struct {
	WorkDir string
	// WindowTimeout bounds acquisition plus load of a single window.
	WindowTimeout time.Duration
	LockTTL       time.Duration
}

type Option func(*Driver)

// WithLocker makes each window hold a lock for its duration.
func WithLocker(l Locker) Option {
	return func(d *Driver) {
		d.locker = l
	}
}

// WithNotifier sends the run summary when a run finishes.
func WithNotifier(n notify.Notifier) Option {
	return func(d *Driver) {
		d.notifier = n
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// Driver processes the selected windows in ascending order, one transaction each.
type Driver struct {
	acquirer acquire.Acquirer
	storage  Storage
	locker   Locker
	notifier notify.Notifier
	cfg      Config
	logger   ectologger.Logger
	now      func() time.Time
}

func NewDriver(acquirer acquire.Acquirer, storage Storage, cfg Config, logger ectologger.Logger, opts ...Option) *Driver {
	if cfg.WindowTimeout <= 0 {
		cfg.WindowTimeout = DefaultWindowTimeout
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}

	d := &Driver{
		acquirer: acquirer,
		storage:  storage,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run processes every window selected for today. Window failures are recorded in the
// report and never stop the run. The returned error is ErrStorageUnavailable when
// storage was lost, or the context error when the run was interrupted.
func (d *Driver) Run(ctx context.Context, today time.Time) (*Report, error) {
	return d.run(ctx, window.Select(today), func(ctx context.Context, w window.Window) WindowOutcome {
		return d.acquireAndLoad(ctx, w)
	})
}

// LoadFile loads an already extracted document as window w.
func (d *Driver) LoadFile(ctx context.Context, w window.Window, path string) (*Report, error) {
	return d.run(ctx, []window.Window{w}, func(ctx context.Context, w window.Window) WindowOutcome {
		return d.loadDocument(ctx, w, path)
	})
}

func (d *Driver) run(ctx context.Context, windows []window.Window, process func(context.Context, window.Window) WindowOutcome) (*Report, error) {
	rep := &Report{RunID: uuid.New().String()}
	rep.Summary = report.New(rep.RunID, d.now())

	ctx, span := tracing.StartSpan(ctx, "Pipeline.Run", attribute.String("run_id", rep.RunID))
	defer span.End()

	log := d.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":   rep.RunID,
		"trace_id": tracing.GetTraceID(ctx),
	})
	log.Infof("Starting run for %d window(s)", len(windows))

	var runErr error
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			rep.Aborted = true
			runErr = err
			rep.Summary.Addf("Run interrupted before %s: %v", w, err)
			break
		}

		wo := d.processWindow(ctx, w, rep.Summary, process)
		rep.Windows = append(rep.Windows, wo)
		rep.Summary.AddWindow(wo.summary())

		if wo.Outcome == OutcomeCanceled {
			rep.Aborted = i < len(windows)-1
			runErr = ctx.Err()
			break
		}

		if wo.Outcome == OutcomeStorageFailed {
			if err := d.pingStorage(ctx); err != nil {
				log.WithError(err).Errorf("Storage unreachable after %s failed, aborting run", w)
				rep.Summary.Addf("Storage unreachable, aborting run: %v", err)
				rep.Aborted = i < len(windows)-1
				runErr = fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
				break
			}
		}
	}

	if runErr != nil {
		tracing.Fail(span, runErr, "run aborted")
	}
	rep.Summary.Finish(d.now(), runErr != nil)
	d.notify(ctx, rep.Summary)

	log.WithField("windows", len(rep.Windows)).Info("Run finished")
	return rep, runErr
}

func (d *Driver) processWindow(ctx context.Context, w window.Window, summary *report.Summary, process func(context.Context, window.Window) WindowOutcome) WindowOutcome {
	ctx, span := tracing.StartSpan(ctx, "Pipeline.processWindow", attribute.String("window", w.String()))
	defer span.End()

	start := d.now()
	summary.Addf("Processing: %s", w)

	wctx, cancel := context.WithTimeout(ctx, d.cfg.WindowTimeout)
	defer cancel()

	var wo WindowOutcome
	if d.locker == nil {
		wo = process(wctx, w)
	} else {
		err := d.locker.WithLock(wctx, w.Key(), d.cfg.LockTTL, func(ctx context.Context) error {
			wo = process(ctx, w)
			return nil
		})
		switch {
		case errors.Is(err, redis.ErrLockNotAcquired):
			wo = WindowOutcome{Window: w, Outcome: OutcomeLocked, Err: err}
		case err != nil:
			wo = WindowOutcome{Window: w, Outcome: OutcomeLockFailed, Err: err}
		}
	}

	if !wo.Outcome.Committed() && ctx.Err() != nil {
		wo.Outcome = OutcomeCanceled
	}
	wo.Window = w
	wo.Duration = d.now().Sub(start)
	span.SetAttributes(attribute.String("outcome", string(wo.Outcome)))
	if wo.Err != nil && wo.Outcome != OutcomeLocked && wo.Outcome != OutcomeNoDocument {
		tracing.Fail(span, wo.Err, string(wo.Outcome))
	}

	d.logOutcome(ctx, wo, summary)
	metrics.RecordWindow(string(wo.Outcome), wo.Duration.Seconds())
	if wo.Outcome.Committed() {
		metrics.RecordWindowSuccess(w.String(), float64(d.now().Unix()))
	}
	return wo
}

func (d *Driver) acquireAndLoad(ctx context.Context, w window.Window) WindowOutcome {
	dir, err := d.acquirer.Acquire(ctx, w, d.cfg.WorkDir)
	if err != nil {
		return WindowOutcome{Window: w, Outcome: OutcomeAcquireFailed, Err: err}
	}

	path, err := acquire.LocateDocument(dir)
	switch {
	case errors.Is(err, acquire.ErrNoDocument):
		return WindowOutcome{Window: w, Outcome: OutcomeNoDocument, Err: err}
	case errors.Is(err, acquire.ErrAmbiguousDocument):
		return WindowOutcome{Window: w, Outcome: OutcomeAmbiguousDocument, Err: err}
	case err != nil:
		return WindowOutcome{Window: w, Outcome: OutcomeAcquireFailed, Err: err}
	}

	return d.loadDocument(ctx, w, path)
}

func (d *Driver) loadDocument(ctx context.Context, w window.Window, path string) WindowOutcome {
	wo := WindowOutcome{Window: w, Document: path}

	batch := flatten.NewBatch()
	decoded := 0
	stats, err := ocds.StreamFile(path, func(rec ocds.Record) error {
		batch.Add(rec)
		decoded++
		if decoded%cancelCheckInterval == 0 {
			return ctx.Err()
		}
		return nil
	})
	wo.Stats = stats
	if err != nil {
		wo.Outcome = OutcomeDecodeFailed
		wo.Err = fmt.Errorf("failed to decode %s: %w", path, err)
		return wo
	}

	metrics.RecordDecode(stats.Records, stats.Skipped)
	d.logger.WithContext(ctx).WithFields(map[string]any{
		"window":   w.String(),
		"records":  stats.Records,
		"skipped":  stats.Skipped,
		"partial":  stats.Partial,
		"document": path,
	}).Infof("Found %d records to process", stats.Records)

	res, err := d.storage.LoadWindow(ctx, batch)
	wo.Load = res
	if err != nil {
		wo.Outcome = OutcomeStorageFailed
		wo.Err = err
		return wo
	}

	wo.Outcome = OutcomeLoaded
	if len(res.FailedTables()) > 0 {
		wo.Outcome = OutcomePartial
	}
	return wo
}

func (d *Driver) logOutcome(ctx context.Context, wo WindowOutcome, summary *report.Summary) {
	log := d.logger.WithContext(ctx).WithFields(map[string]any{
		"window":  wo.Window.String(),
		"outcome": string(wo.Outcome),
	})

	if wo.Stats.Records > 0 || wo.Outcome.Committed() {
		summary.Addf("Found %d records to process", wo.Stats.Records)
	}
	for _, t := range wo.Load.Tables {
		if t.Failed() {
			summary.Addf("Error inserting into %s: %v", t.Table, t.Err)
			continue
		}
		if wo.Outcome.Committed() {
			summary.Addf("%d new rows inserted into %s", t.Inserted, t.Table)
		}
	}

	switch wo.Outcome {
	case OutcomeLoaded:
		log.Infof("Data for %s processed successfully", wo.Window)
		summary.Addf("Data for %s processed successfully", wo.Window)
	case OutcomePartial:
		log.Warnf("Data for %s processed with %d failed table(s)", wo.Window, len(wo.Load.FailedTables()))
		summary.Addf("Data for %s processed with errors", wo.Window)
	case OutcomeNoDocument:
		log.Infof("No document for %s, nothing to do", wo.Window)
		summary.Addf("No JSON document found for %s, nothing to do", wo.Window)
	case OutcomeLocked:
		log.Infof("%s is being processed elsewhere, skipping", wo.Window)
		summary.Addf("%s is being processed elsewhere, skipped", wo.Window)
	default:
		log.WithError(wo.Err).Errorf("Window %s failed: %s", wo.Window, wo.Outcome)
		summary.Addf("Error processing %s: %v", wo.Window, wo.Err)
	}
}

func (d *Driver) pingStorage(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return d.storage.Ping(ctx)
}

// notify delivers the summary even when the run context was canceled.
func (d *Driver) notify(ctx context.Context, summary *report.Summary) {
	if d.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := d.notifier.Notify(ctx, summary); err != nil {
		d.logger.WithContext(ctx).WithError(err).Warn("Run summary could not be delivered")
	}
}
