package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/pipeline"
)

const (
	exitStorage     = 1
	exitConfig      = 2
	exitInterrupted = 130
)

// configError marks failures caused by invalid settings or arguments.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func invalid(format string, args ...any) error {
	return &configError{err: fmt.Errorf(format, args...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fern:", err)
	}
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	var cfgErr *configError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &cfgErr):
		return exitConfig
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.Is(err, pipeline.ErrStorageUnavailable):
		return exitStorage
	default:
		return exitStorage
	}
}

func newRootCmd() *cobra.Command {
	var opts runOptions

	root := &cobra.Command{
		Use:           "fern",
		Short:         "Load monthly procurement releases into PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, opts)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &configError{err: err}
	})
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file read before the environment")
	root.Flags().StringVar(&opts.date, "date", "", "Run as if today were YYYY-MM-DD (default: today)")

	root.AddCommand(
		newRunCmd(&opts),
		newWindowsCmd(),
		newLoadCmd(&opts),
		newScheduleCmd(&opts),
	)

	return root
}
