package loader

import "time"

// TableResult is the outcome of loading one table.
type TableResult struct {
	Table string
	// Attempted is the number of rows sent to storage.
	Attempted int
	// MissingKey counts rows dropped because a key column was null.
	MissingKey int
	// Inserted counts rows whose key was new.
	Inserted int64
	Duration time.Duration
	// Err is a *TableError when the batch was rolled back.
	Err error
}

// Existing is the number of attempted rows whose key was already stored.
func (r TableResult) Existing() int64 {
	if r.Err != nil {
		return 0
	}
	return int64(r.Attempted) - r.Inserted
}

// Failed reports whether the table's batch was rolled back.
func (r TableResult) Failed() bool {
	return r.Err != nil
}

// Result is the outcome of loading one window.
type Result struct {
	Tables    []TableResult
	Committed bool
}

// Inserted is the total number of new rows across tables.
func (r Result) Inserted() int64 {
	var total int64
	for _, t := range r.Tables {
		if t.Err == nil {
			total += t.Inserted
		}
	}
	return total
}

// FailedTables returns the tables whose batch was rolled back.
func (r Result) FailedTables() []TableResult {
	var failed []TableResult
	for _, t := range r.Tables {
		if t.Failed() {
			failed = append(failed, t)
		}
	}
	return failed
}

// Table returns the result for the named table.
func (r Result) Table(name string) (TableResult, bool) {
	for _, t := range r.Tables {
		if t.Table == name {
			return t, true
		}
	}
	return TableResult{}, false
}
