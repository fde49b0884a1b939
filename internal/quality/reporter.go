package quality

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lendops/tapekpi/internal/contracts"
	"github.com/lendops/tapekpi/pkg/logger"
)

// Report statuses.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)

// Scoring deductions. The report starts at 100 and is clamped at 0;
// status is failed when a required column is missing or the score drops
// below the pass mark.
const (
	missingColumnPenalty = 20
	typeErrorPenalty     = 10
	nullColumnPenalty    = 2
	passMark             = 70
)

// TypeError records coercion failures in one column: cells that were
// non-null but could not be parsed as the declared type.
type TypeError struct {
	Column string `json:"column"`
	Kind   string `json:"kind"` // numeric or date
	Count  int    `json:"count"`
}

// Report is the data-quality result for one table. It is built during
// validation, finalized once, and never mutated after being returned.
type Report struct {
	Status         string         `json:"status"`
	Score          int            `json:"score"`
	MissingColumns []string       `json:"missing_columns"`
	TypeErrors     []TypeError    `json:"type_errors"`
	NullCounts     map[string]int `json:"null_counts"`
	TotalRows      int            `json:"total_rows"`
}

// Passed reports whether the table cleared the quality gate.
func (r *Report) Passed() bool {
	return r.Status == StatusPassed
}

// Reporter audits a frame for missing columns, null density and
// type-coercion failures. It is stateless; one Run produces one Report.
type Reporter struct {
	log *logger.Logger
}

// NewReporter creates a Reporter.
func NewReporter(log *logger.Logger) *Reporter {
	return &Reporter{log: log}
}

// Run audits the frame. Column matching is case-insensitive. For each
// numeric and date column the null count is compared before and after
// coercion; an increase marks invalid values as type errors rather than
// silently dropping them.
func (r *Reporter) Run(f *contracts.Frame, requiredColumns, numericColumns, dateColumns []string) *Report {
	report := &Report{
		NullCounts: make(map[string]int),
	}
	if f != nil {
		report.TotalRows = f.NumRows()
	}

	for _, col := range requiredColumns {
		if !f.HasColumn(col) {
			report.MissingColumns = append(report.MissingColumns, col)
		}
	}

	if f != nil {
		for _, col := range f.Columns() {
			if n := f.NullCount(col); n > 0 {
				report.NullCounts[strings.ToLower(col)] = n
			}
		}
	}

	for _, col := range numericColumns {
		if !f.HasColumn(col) {
			continue
		}
		if bad := countUncoercible(f, col, isNumeric); bad > 0 {
			report.TypeErrors = append(report.TypeErrors, TypeError{Column: col, Kind: "numeric", Count: bad})
		}
	}

	for _, col := range dateColumns {
		if !f.HasColumn(col) {
			continue
		}
		if bad := countUncoercible(f, col, isDate); bad > 0 {
			report.TypeErrors = append(report.TypeErrors, TypeError{Column: col, Kind: "date", Count: bad})
		}
	}

	report.Score = score(report)
	if len(report.MissingColumns) > 0 || report.Score < passMark {
		report.Status = StatusFailed
	} else {
		report.Status = StatusPassed
	}

	if r.log != nil {
		r.log.WithFields(map[string]interface{}{
			"status":          report.Status,
			"score":           report.Score,
			"total_rows":      report.TotalRows,
			"missing_columns": len(report.MissingColumns),
			"type_errors":     len(report.TypeErrors),
		}).Info("data quality audit completed")
	}

	return report
}

// countUncoercible returns the null-count increase caused by coercion:
// the number of non-null cells that fail to parse.
func countUncoercible(f *contracts.Frame, col string, parses func(string) bool) int {
	bad := 0
	for _, cell := range f.Strings(col) {
		if cell == "" {
			continue
		}
		if !parses(cell) {
			bad++
		}
	}
	return bad
}

func isNumeric(cell string) bool {
	_, ok := contracts.ParseAmount(cell)
	return ok
}

func isDate(cell string) bool {
	_, ok := contracts.ParseDate(cell)
	return ok
}

// score applies the deductions: 20 per missing required column, 10 per
// column with type errors, 2 per column containing any null, clamped at 0.
func score(r *Report) int {
	s := 100
	s -= missingColumnPenalty * len(r.MissingColumns)
	s -= typeErrorPenalty * len(r.TypeErrors)
	s -= nullColumnPenalty * len(r.NullCounts)
	if s < 0 {
		s = 0
	}
	return s
}

// ToMarkdown renders the report for console and CI output. The section
// structure (Missing Columns, Type Errors, Null Value Analysis) is a
// consumed external interface; do not rename headings.
func (r *Report) ToMarkdown() string {
	var b strings.Builder

	badge := "✅ PASSED"
	if r.Status == StatusFailed {
		badge = "❌ FAILED"
	}
	fmt.Fprintf(&b, "# Data Quality Report\n\n")
	fmt.Fprintf(&b, "**Status:** %s  \n", badge)
	fmt.Fprintf(&b, "**Score:** %d/100  \n", r.Score)
	fmt.Fprintf(&b, "**Rows:** %d\n\n", r.TotalRows)

	b.WriteString("## Missing Columns\n\n")
	if len(r.MissingColumns) == 0 {
		b.WriteString("None.\n\n")
	} else {
		for _, col := range r.MissingColumns {
			fmt.Fprintf(&b, "- `%s`\n", col)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Type Errors\n\n")
	if len(r.TypeErrors) == 0 {
		b.WriteString("None.\n\n")
	} else {
		for _, te := range r.TypeErrors {
			fmt.Fprintf(&b, "- `%s`: %d value(s) not coercible to %s\n", te.Column, te.Count, te.Kind)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Null Value Analysis\n\n")
	if len(r.NullCounts) == 0 {
		b.WriteString("No null values.\n")
	} else {
		cols := make([]string, 0, len(r.NullCounts))
		for col := range r.NullCounts {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for _, col := range cols {
			fmt.Fprintf(&b, "- `%s`: %d null(s)\n", col, r.NullCounts[col])
		}
	}

	return b.String()
}
