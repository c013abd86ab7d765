package moderation

import (
	"bufio"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Allowlist is a sorted, lowercased name list loaded once at startup,
// mirroring the teacher's validated-at-load static config table
// (`cmn/config.go`, since removed as cluster-specific, but the same
// load-once-then-read-only shape). Lookup is a binary search, not a map,
// since the list is read far more often than it changes and never mutates
// after load.
type Allowlist struct {
	sorted []string
}

func LoadAllowlistCSV(path string) (*Allowlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open allowlist csv")
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		for _, field := range strings.Split(scanner.Text(), ",") {
			name := strings.ToLower(strings.TrimSpace(field))
			if name != "" {
				names = append(names, name)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan allowlist csv")
	}
	sort.Strings(names)
	return &Allowlist{sorted: names}, nil
}

// Contains reports whether name (case-insensitively) is on the allowlist.
func (a *Allowlist) Contains(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	i := sort.SearchStrings(a.sorted, name)
	return i < len(a.sorted) && a.sorted[i] == name
}
