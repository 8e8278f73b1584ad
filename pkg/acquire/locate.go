package acquire

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocateDocument returns the single .json file directly inside dir. It returns
// ErrNoDocument when there is none and ErrAmbiguousDocument when there are several.
func LocateDocument(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoDocument
		}
		return "", err
	}

	var found []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		found = append(found, e.Name())
	}

	switch len(found) {
	case 0:
		return "", ErrNoDocument
	case 1:
		return filepath.Join(dir, found[0]), nil
	default:
		sort.Strings(found)
		return "", fmt.Errorf("%w: %s", ErrAmbiguousDocument, strings.Join(found, ", "))
	}
}
