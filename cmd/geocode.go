package main

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carto-collectif/rostermap/internal/geocache"
	"github.com/carto-collectif/rostermap/internal/pipeline"
	"github.com/carto-collectif/rostermap/internal/report"
	"github.com/carto-collectif/rostermap/internal/resilience"
	"github.com/carto-collectif/rostermap/internal/roster"
	"github.com/carto-collectif/rostermap/internal/umap"
	"github.com/carto-collectif/rostermap/pkg/geocode"
)

var (
	geocodeInput  string
	geocodeOutdir string
	geocodeLimit  int
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Geocode a roster file and write map artifacts",
	Long: `Reads a roster (CSV or XLSX), resolves each address against the
cumulative geocoding cache and the Nominatim/BAN providers, and writes a
timestamped run directory with per-bucket GeoJSON files, cache deltas, a
quality report, and the problematic-rows listing.

Examples:
  # Geocode a roster, artifacts under results/<timestamp>/
  rostermap geocode -i roster.csv

  # Short test run on the first 20 rows
  rostermap geocode -i roster.csv --limit 20 --outdir /tmp/maps`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		r, err := roster.Load(geocodeInput)
		if err != nil {
			return eris.Wrap(err, "geocode: load roster")
		}
		zap.L().Info("loaded roster",
			zap.String("file", geocodeInput),
			zap.Int("rows", len(r.Records)),
		)

		records := r.Records
		if geocodeLimit > 0 && geocodeLimit < len(records) {
			records = records[:geocodeLimit]
			zap.L().Info("applied row limit", zap.Int("rows", len(records)))
		}

		outParent := geocodeOutdir
		if outParent == "" {
			outParent = cfg.Output.Dir
		}
		runDir := filepath.Join(outParent, time.Now().Format("20060102_150405"))
		if err := os.MkdirAll(runDir, 0o755); err != nil {
			return eris.Wrapf(err, "geocode: create run directory %s", runDir)
		}

		store := geocache.Open(outParent)
		store.Load()

		client := geocode.NewClient(
			geocode.WithRateLimit(cfg.Geocoder.RatePerSec),
			geocode.WithUserAgent(cfg.Geocoder.UserAgent),
			geocode.WithNominatimURL(cfg.Geocoder.NominatimURL),
			geocode.WithBANURL(cfg.Geocoder.BANURL),
			geocode.WithHTTPClient(httpClientFromConfig()),
			geocode.WithRetry(resilience.RetryConfig{MaxAttempts: cfg.Geocoder.MaxAttempts}),
		)

		p := pipeline.New(client, store, pipeline.Options{
			Breaker:    resilience.NewBreaker(cfg.Geocoder.FailureThreshold),
			OnProgress: progressFunc(len(records)),
		})

		outcome, runErr := p.Run(ctx, records)

		// Artifacts are written even when the run aborts so partial cache
		// progress survives and the user sees what needs attention.
		if err := store.Persist(); err != nil {
			return err
		}
		if err := store.WriteDeltas(runDir); err != nil {
			return err
		}
		if err := umap.Write(runDir, outcome.Rows); err != nil {
			return err
		}
		if err := report.WriteQuality(filepath.Join(runDir, report.QualityFile), outcome.Stats); err != nil {
			return err
		}
		if err := report.WriteProblematic(filepath.Join(runDir, report.ProblematicFile), r.Header, outcome.Rows); err != nil {
			return err
		}

		zap.L().Info("artifacts written",
			zap.String("run_dir", runDir),
			zap.String("run_id", outcome.Stats.RunID),
			zap.Int("geocoded", outcome.Stats.Geocoded),
			zap.Int("not_geocoded", outcome.Stats.NotGeocoded),
			zap.Int("incomplete", outcome.Stats.Incomplete),
			zap.Int("duplicates", outcome.Stats.Duplicate),
			zap.Float64("cache_hit_rate", outcome.Stats.HitRate()),
		)

		if runErr != nil {
			if errors.Is(runErr, resilience.ErrServiceDown) {
				return eris.Wrap(runErr, "geocode: run aborted, cache progress saved")
			}
			return eris.Wrap(runErr, "geocode: run failed")
		}
		return nil
	},
}

func init() {
	geocodeCmd.Flags().StringVarP(&geocodeInput, "input", "i", "", "path to roster CSV or XLSX file (required)")
	geocodeCmd.Flags().StringVar(&geocodeOutdir, "outdir", "", "parent directory for run artifacts and caches (default from config)")
	geocodeCmd.Flags().IntVar(&geocodeLimit, "limit", 0, "max rows to process (0 = all)")
	_ = geocodeCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(geocodeCmd)
}

func httpClientFromConfig() *http.Client {
	return &http.Client{Timeout: time.Duration(cfg.Geocoder.TimeoutSecs) * time.Second}
}

// progressFunc returns a per-row progress callback. The bar only renders
// when stderr is a terminal; logs stay clean otherwise.
func progressFunc(total int) func(done, total int) {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("geocoding"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	return func(done, _ int) {
		_ = bar.Set(done)
	}
}
