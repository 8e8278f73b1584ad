// Package notify delivers the run summary to external channels.
package notify

import (
	"context"
	"errors"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/report"
)

// Notifier delivers a finished run summary.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, s *report.Summary) error
}

// Multi fans a summary out to every notifier. A failing notifier is logged and does
// not stop the others.
type Multi struct {
	notifiers []Notifier
	logger    ectologger.Logger
}

func NewMulti(logger ectologger.Logger, notifiers ...Notifier) *Multi {
	m := &Multi{logger: logger}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

func (m *Multi) Name() string {
	return "multi"
}

// Len returns the number of configured notifiers.
func (m *Multi) Len() int {
	return len(m.notifiers)
}

// Notify returns the joined errors of all failed notifiers.
func (m *Multi) Notify(ctx context.Context, s *report.Summary) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, s); err != nil {
			metrics.RecordNotification(n.Name(), "error")
			m.logger.WithContext(ctx).WithError(err).WithField("channel", n.Name()).Error("Failed to deliver run summary")
			errs = append(errs, err)
			continue
		}
		metrics.RecordNotification(n.Name(), "sent")
	}
	return errors.Join(errs...)
}

// Close closes every notifier that holds resources.
func (m *Multi) Close() error {
	var errs []error
	for _, n := range m.notifiers {
		if c, ok := n.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
