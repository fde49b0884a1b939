package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/lendops/tapekpi/internal/contracts"
)

const (
	resultsFileName = "kpi_results.json"
	metricsFileName = "metrics.csv"
)

var metricsHeader = []string{"metric_name", "value", "unit", "date", "segment", "confidence_level"}

// writeArtifacts renders kpi_results.json and metrics.csv into dir and
// returns the written paths.
func writeArtifacts(dir string, summary *Summary) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	resultsPath := filepath.Join(dir, resultsFileName)
	if err := writeResultsJSON(resultsPath, summary); err != nil {
		return nil, err
	}

	metricsPath := filepath.Join(dir, metricsFileName)
	if err := writeMetricsCSV(metricsPath, summary); err != nil {
		return nil, err
	}

	return []string{resultsPath, metricsPath}, nil
}

// writeResultsJSON emits a flat kpi-to-value document so downstream
// dashboards can consume it without walking nested structures.
func writeResultsJSON(path string, summary *Summary) error {
	doc := make(map[string]interface{}, len(summary.Results)+3)
	for key, res := range summary.Results {
		if res.Value != nil {
			doc[key] = *res.Value
		} else {
			doc[key] = nil
		}
	}
	doc["run_id"] = summary.RunID
	doc["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	doc["pipeline_status"] = summary.Status

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// writeMetricsCSV emits one portfolio row per KPI followed by the
// per-segment breakdown rows, all under a fixed header.
func writeMetricsCSV(path string, summary *Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(metricsHeader); err != nil {
		return err
	}

	date := summary.AsOf.Format("2006-01-02")
	confidence := confidenceLevel(summary)

	for _, key := range sortedKeys(summary.Results) {
		res := summary.Results[key]
		if err := w.Write([]string{key, formatValue(res.Value), res.Unit, date, "all", confidence}); err != nil {
			return err
		}
	}

	segments := make([]string, 0, len(summary.SegmentResults))
	for name := range summary.SegmentResults {
		segments = append(segments, name)
	}
	sort.Strings(segments)
	for _, segment := range segments {
		results := summary.SegmentResults[segment]
		for _, key := range sortedKeys(results) {
			res := results[key]
			if err := w.Write([]string{key, formatValue(res.Value), res.Unit, date, segment, confidence}); err != nil {
				return err
			}
		}
	}

	w.Flush()
	return w.Error()
}

// confidenceLevel grades the run by its data-quality score.
func confidenceLevel(summary *Summary) string {
	if summary.Quality == nil {
		return "low"
	}
	switch {
	case summary.Quality.Score >= 90:
		return "high"
	case summary.Quality.Score >= 70:
		return "medium"
	default:
		return "low"
	}
}

func formatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}

func sortedKeys(results map[string]*contracts.KPIResult) []string {
	keys := make([]string, 0, len(results))
	for key := range results {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
