package ocds

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// RecordsKey is the top-level key holding the release records.
const RecordsKey = "records"

// ErrMalformedDocument is returned when the document is not a JSON object or its
// records member is not an array.
var ErrMalformedDocument = errors.New("malformed release package")

// Stats describes what a decode pass saw.
type Stats struct {
	// Records is the number of records handed to the callback.
	Records int
	// Skipped counts elements of the records list that were not objects.
	Skipped int
	// Partial counts records where at least one field had an unexpected JSON type and was left unset.
	Partial int
}

// Package is a fully decoded release package.
type Package struct {
	Records []Record
	Stats   Stats
}

// Stream decodes the package from r, calling fn once per record in document order.
// Records are never held in memory together. An error returned by fn stops decoding
// and is returned as is.
func Stream(r io.Reader, fn func(Record) error) (Stats, error) {
	var stats Stats
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return stats, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return stats, fmt.Errorf("%w: top level value is not an object", ErrMalformedDocument)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return stats, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		key, _ := keyTok.(string)

		if key != RecordsKey {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return stats, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
			}
			continue
		}

		if err := streamRecords(dec, &stats, fn); err != nil {
			return stats, err
		}
	}

	if _, err := dec.Token(); err != nil {
		return stats, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return stats, nil
}

func streamRecords(dec *json.Decoder, stats *Stats, fn func(Record) error) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if tok == nil {
		// "records": null behaves as an empty list
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("%w: %q is not an array", ErrMalformedDocument, RecordsKey)
	}

	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: record %d: %v", ErrMalformedDocument, stats.Records+stats.Skipped, err)
		}

		rec, partial, ok := decodeRecord(raw)
		if !ok {
			stats.Skipped++
			continue
		}
		if partial {
			stats.Partial++
		}
		stats.Records++

		if err := fn(rec); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return nil
}

// decodeRecord decodes one element. Type mismatches inside an object leave the
// offending field unset and mark the record partial.
func decodeRecord(raw json.RawMessage) (Record, bool, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Record{}, false, false
	}

	var rec Record
	err := json.Unmarshal(trimmed, &rec)
	if err == nil {
		return rec, false, true
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return rec, true, true
	}
	return Record{}, false, false
}

// Decode reads a whole package into memory.
func Decode(r io.Reader) (*Package, error) {
	pkg := &Package{}
	stats, err := Stream(r, func(rec Record) error {
		pkg.Records = append(pkg.Records, rec)
		return nil
	})
	pkg.Stats = stats
	if err != nil {
		return nil, err
	}
	return pkg, nil
}

// StreamFile opens path and streams its records to fn.
func StreamFile(path string, fn func(Record) error) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer f.Close()

	return Stream(f, fn)
}
