package loader

import (
	"errors"
	"fmt"
)

// ErrStorage marks failures of the storage connection or the window transaction. The
// window's work is rolled back when it is returned.
var ErrStorage = errors.New("storage failure")

// StorageError is a failure that aborts the whole window.
type StorageError struct {
	Op    string
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("storage failure during %s of %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// TableError is a failed table batch. Its rows were rolled back to the table's
// savepoint and every other table of the window is unaffected.
type TableError struct {
	Table string
	Rows  int
	Err   error
}

func (e *TableError) Error() string {
	return fmt.Sprintf("failed to insert %d rows into %s: %v", e.Rows, e.Table, e.Err)
}

func (e *TableError) Unwrap() error {
	return e.Err
}
