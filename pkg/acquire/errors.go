package acquire

import (
	"errors"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/window"
)

var (
	// ErrNoDocument means the extracted directory holds no .json file.
	ErrNoDocument = errors.New("no json document found")
	// ErrAmbiguousDocument means the extracted directory holds more than one .json file.
	ErrAmbiguousDocument = errors.New("more than one json document found")
	// ErrUnknownArchive means the download is neither a RAR nor a zip archive.
	ErrUnknownArchive = errors.New("unrecognized archive format")
	// ErrUnsafePath means an archive entry would be written outside the target directory.
	ErrUnsafePath = errors.New("archive entry escapes target directory")
)

// Error is an acquisition failure for one window.
type Error struct {
	Window window.Window
	Stage  string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("acquire %s: %s failed: %v", e.Window, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
