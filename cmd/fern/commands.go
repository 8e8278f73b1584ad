package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/pipeline"
	"github.com/Ramsey-B/fern/pkg/scheduler"
	"github.com/Ramsey-B/fern/pkg/window"
)

const version = "1.0.0"

type runOptions struct {
	envFile string
	date    string
	window  string
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return time.Time{}, invalid("invalid --date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func newRunCmd(opts *runOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load the current window, and the previous one early in the month",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, *opts)
		},
	}
	cmd.Flags().StringVar(&opts.date, "date", "", "Run as if today were YYYY-MM-DD (default: today)")
	return cmd
}

func runOnce(cmd *cobra.Command, opts runOptions) error {
	today, err := parseDate(opts.date)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts.envFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	rep, err := a.driver.Run(ctx, today)
	a.finish(cmd, rep)
	return err
}

func newWindowsCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "windows",
		Short: "Print the windows a run would process",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			today, err := parseDate(date)
			if err != nil {
				return err
			}
			for _, w := range window.Select(today) {
				fmt.Fprintln(cmd.OutOrStdout(), w.String())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Select as if today were YYYY-MM-DD (default: today)")
	return cmd
}

func newLoadCmd(opts *runOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <file.json>",
		Short: "Load an already extracted document into one window",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return invalid("load takes exactly one document path, got %d", len(args))
			}
			if opts.window == "" {
				return invalid("load requires --window YYYY-MM")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := window.Parse(opts.window)
			if err != nil {
				return invalid("invalid --window %q: %w", opts.window, err)
			}
			cfg, err := loadConfig(opts.envFile)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			rep, err := a.driver.LoadFile(ctx, w, args[0])
			a.finish(cmd, rep)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.window, "window", "", "Window the document belongs to, YYYY-MM (required)")
	return cmd
}

func newScheduleCmd(opts *runOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run on SCHEDULE_INTERVAL and serve health and metrics",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.envFile)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			return a.serve(ctx)
		},
	}
}

// serve runs the scheduler until ctx is canceled.
func (a *app) serve(ctx context.Context) error {
	sched := scheduler.NewScheduler(a.driver, scheduler.Config{Interval: a.cfg.ScheduleInterval}, a.logger)

	checker := health.NewChecker(version)
	checker.AddCheck("database", health.PingFunc(a.db.PingContext))
	checker.AddCheck("pipeline", sched)
	if a.redis != nil {
		checker.AddOptionalCheck("redis", a.redis)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(otelecho.Middleware(a.cfg.AppName))
	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	addr := ":" + strconv.Itoa(a.cfg.HealthPort)
	serverErr := make(chan error, 1)
	go func() {
		a.logger.WithContext(ctx).Infof("Serving health and metrics on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if err := sched.Start(ctx); err != nil {
		return err
	}
	checker.SetReady(true)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
		a.logger.WithContext(ctx).WithError(runErr).Error("Health server failed")
		runErr = invalid("health server on %s: %w", addr, runErr)
	}
	checker.SetReady(false)

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		a.logger.WithError(err).Warn("Scheduler did not stop in time")
	}
	if err := e.Shutdown(stopCtx); err != nil {
		a.logger.WithError(err).Warn("Failed to shut down health server")
	}

	if runErr != nil {
		return runErr
	}
	if err := sched.Status().LastErr; errors.Is(err, pipeline.ErrStorageUnavailable) {
		return err
	}
	return nil
}

// finish prints the run log and pushes metrics.
func (a *app) finish(cmd *cobra.Command, rep *pipeline.Report) {
	if rep != nil && rep.Summary != nil {
		fmt.Fprint(cmd.OutOrStdout(), rep.Summary.Text())
	}
	a.pushMetrics(cmd.Context())
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return invalid("%s takes no arguments, got %q", cmd.Name(), args)
	}
	return nil
}
