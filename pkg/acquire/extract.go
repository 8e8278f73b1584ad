package acquire

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nwaples/rardecode"
)

var (
	rarMagic = []byte("Rar!\x1a\x07")
	zipMagic = []byte("PK\x03\x04")
)

// Extract unpacks the RAR or zip archive at path into dir and returns the number of
// files written. The format is detected from the file signature.
func Extract(path, dir string) (int, error) {
	magic, err := readMagic(path)
	if err != nil {
		return 0, err
	}

	switch {
	case bytes.HasPrefix(magic, rarMagic):
		return extractRAR(path, dir)
	case bytes.HasPrefix(magic, zipMagic):
		return extractZip(path, dir)
	default:
		return 0, ErrUnknownArchive
	}
}

func readMagic(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	magic := make([]byte, len(rarMagic))
	n, err := io.ReadFull(f, magic)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return magic[:n], nil
}

func extractRAR(path, dir string) (int, error) {
	rc, err := rardecode.OpenReader(path, "")
	if err != nil {
		return 0, fmt.Errorf("failed to open rar archive: %w", err)
	}
	defer rc.Close()

	files := 0
	for {
		hdr, err := rc.Next()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return files, fmt.Errorf("failed to read rar archive: %w", err)
		}

		target, err := safeJoin(dir, hdr.Name)
		if err != nil {
			return files, err
		}
		if hdr.IsDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, err
			}
			continue
		}
		if err := writeFile(target, rc); err != nil {
			return files, err
		}
		files++
	}
}

func extractZip(path, dir string) (int, error) {
	zr, err := zip.OpenReader(path)
	if errors.Is(err, zip.ErrInsecurePath) {
		zr.Close()
		return 0, fmt.Errorf("%w: %v", ErrUnsafePath, err)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer zr.Close()

	files := 0
	for _, f := range zr.File {
		target, err := safeJoin(dir, f.Name)
		if err != nil {
			return files, err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, err
			}
			continue
		}

		r, err := f.Open()
		if err != nil {
			return files, fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		err = writeFile(target, r)
		r.Close()
		if err != nil {
			return files, err
		}
		files++
	}
	return files, nil
}

// safeJoin resolves an archive entry name below dir.
func safeJoin(dir, name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}

	target := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return target, nil
}

func writeFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
