// Package acquire fetches a window's source archive and unpacks it to disk.
package acquire

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/window"
)

const (
	DefaultURLTemplate = "https://contratacionesabiertas.osce.gob.pe/api/v1/file/seace_v3/json/{year}/{month}"

	downloadsDir = "downloads"
	extractedDir = "extracted"
	archiveName  = "source.archive"
)

// Acquirer delivers a directory containing the window's extracted document.
type Acquirer interface {
	// Acquire fetches the window's archive below workDir and returns the directory it
	// was extracted to.
	Acquire(ctx context.Context, w window.Window, workDir string) (string, error)
}

type Config struct {
	URLTemplate string
	Timeout     time.Duration
}

// HTTPAcquirer downloads monthly archives over HTTP.
type HTTPAcquirer struct {
	client      *httpclient.Client
	urlTemplate string
	timeout     time.Duration
	logger      ectologger.Logger
}

func NewHTTPAcquirer(client *httpclient.Client, cfg Config, logger ectologger.Logger) *HTTPAcquirer {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultURLTemplate
	}
	return &HTTPAcquirer{
		client:      client,
		urlTemplate: cfg.URLTemplate,
		timeout:     cfg.Timeout,
		logger:      logger,
	}
}

// URL expands the {year} and {month} placeholders for w. Months are zero padded.
func URL(template string, w window.Window) string {
	return strings.NewReplacer(
		"{year}", strconv.Itoa(w.Year),
		"{month}", w.MonthPadded(),
	).Replace(template)
}

// Dirs returns the download and extraction directories of w below workDir.
func Dirs(workDir string, w window.Window) (download, extract string) {
	return filepath.Join(workDir, downloadsDir, w.Key()), filepath.Join(workDir, extractedDir, w.Key())
}

func (a *HTTPAcquirer) Acquire(ctx context.Context, w window.Window, workDir string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "HTTPAcquirer.Acquire", attribute.String("window", w.String()))
	defer span.End()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	url := URL(a.urlTemplate, w)
	downloadDir, extractDir := Dirs(workDir, w)

	log := a.logger.WithContext(ctx).WithFields(map[string]any{
		"window": w.String(),
		"url":    url,
	})

	archivePath, err := a.download(ctx, url, downloadDir)
	if err != nil {
		tracing.Fail(span, err, "download failed")
		return "", &Error{Window: w, Stage: "download", Err: err}
	}

	if err := resetDir(extractDir); err != nil {
		return "", &Error{Window: w, Stage: "extract", Err: err}
	}
	files, err := Extract(archivePath, extractDir)
	if err != nil {
		tracing.Fail(span, err, "extract failed")
		return "", &Error{Window: w, Stage: "extract", Err: err}
	}

	log.WithField("files", files).Infof("Archive for %s extracted to %s", w, extractDir)
	return extractDir, nil
}

// download writes the archive through a temporary file that is renamed into place once
// complete.
func (a *HTTPAcquirer) download(ctx context.Context, url, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, archiveName+".*.part")
	if err != nil {
		return "", fmt.Errorf("failed to create download file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := a.client.Download(ctx, url, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", err
	}

	target := filepath.Join(dir, archiveName)
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("failed to move download into place: %w", err)
	}

	a.logger.WithContext(ctx).WithField("bytes", n).Infof("Downloaded %s to %s", url, target)
	return target, nil
}

// resetDir removes stale files from a previous run and recreates dir.
func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dir, err)
	}
	return os.MkdirAll(dir, 0o755)
}
