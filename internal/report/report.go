// Package report writes the per-run quality report and the listing of
// rows that need manual attention.
package report

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/rotisserie/eris"

	"github.com/carto-collectif/rostermap/internal/pipeline"
)

// Artifact file names within the run directory.
const (
	QualityFile     = "quality_report.csv"
	ProblematicFile = "problematic_rows.csv"
)

// WriteQuality writes the run counters as a one-row CSV.
func WriteQuality(path string, st pipeline.Stats) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	header := []string{
		"run_id", "total", "processed", "geocoded", "not_geocoded", "incomplete",
		"duplicates", "cache_hits", "cache_misses", "lookups", "cache_hit_rate",
	}
	row := []string{
		st.RunID,
		fmt.Sprintf("%d", st.Total),
		fmt.Sprintf("%d", st.Processed),
		fmt.Sprintf("%d", st.Geocoded),
		fmt.Sprintf("%d", st.NotGeocoded),
		fmt.Sprintf("%d", st.Incomplete),
		fmt.Sprintf("%d", st.Duplicate),
		fmt.Sprintf("%d", st.CacheHits),
		fmt.Sprintf("%d", st.CacheMisses),
		fmt.Sprintf("%d", st.Lookups),
		fmt.Sprintf("%.3f", st.HitRate()),
	}
	if err := w.WriteAll([][]string{header, row}); err != nil {
		return eris.Wrap(err, "report: write quality rows")
	}
	return nil
}

// WriteProblematic writes the rows that did not land in the geocoded
// bucket, with their original columns plus a reason column, preserving
// input order.
func WriteProblematic(path string, header []string, rows []pipeline.RowResult) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(append(append([]string{}, header...), "reason")); err != nil {
		return eris.Wrap(err, "report: write header")
	}

	for _, row := range rows {
		if row.Bucket == pipeline.BucketGeocoded {
			continue
		}
		line := make([]string, 0, len(header)+1)
		for _, col := range header {
			line = append(line, row.Record.Fields[col])
		}
		line = append(line, row.Bucket.String())
		if err := w.Write(line); err != nil {
			return eris.Wrap(err, "report: write row")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "report: flush")
	}
	return nil
}
