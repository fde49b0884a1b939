package ingest

import (
	"fmt"
	"strings"

	"github.com/lendops/tapekpi/internal/quality"
)

// ValidationError is returned in strict mode when the table is missing
// required columns or contains non-coercible values. The attached report
// carries the full quality breakdown.
type ValidationError struct {
	Report *quality.Report
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Report.MissingColumns) > 0 {
		parts = append(parts, fmt.Sprintf("missing required columns: %s",
			strings.Join(e.Report.MissingColumns, ", ")))
	}
	if len(e.Report.TypeErrors) > 0 {
		cols := make([]string, 0, len(e.Report.TypeErrors))
		for _, te := range e.Report.TypeErrors {
			cols = append(cols, te.Column)
		}
		parts = append(parts, fmt.Sprintf("type coercion failures in: %s", strings.Join(cols, ", ")))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("quality score %d below pass mark", e.Report.Score))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
