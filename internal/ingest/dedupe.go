package ingest

import (
	"strings"

	"github.com/lendops/tapekpi/internal/contracts"
)

// Dedupe removes rows whose key-column combination duplicates an earlier
// row, keeping the first occurrence. It returns the deduplicated frame and
// the number of removed rows. Missing key columns are treated as empty.
func Dedupe(f *contracts.Frame, keyColumns []string) (*contracts.Frame, int) {
	if f == nil || f.NumRows() == 0 || len(keyColumns) == 0 {
		return f, 0
	}

	seen := make(map[string]struct{}, f.NumRows())
	removed := 0

	out := f.Filter(func(row int) bool {
		var b strings.Builder
		for _, col := range keyColumns {
			v, _ := f.Value(col, row)
			b.WriteString(strings.ToLower(v))
			b.WriteByte(0)
		}
		key := b.String()
		if _, dup := seen[key]; dup {
			removed++
			return false
		}
		seen[key] = struct{}{}
		return true
	})

	return out, removed
}
