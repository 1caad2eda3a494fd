//go:build !integration

package main

import (
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carto-collectif/rostermap/internal/config"
	"github.com/carto-collectif/rostermap/internal/resilience"
)

func writeRoster(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.csv")
	require.NoError(t, os.WriteFile(path, []byte(rows), 0o644))
	return path
}

func testConfig(providerURL, outdir string) *config.Config {
	return &config.Config{
		Geocoder: config.GeocoderConfig{
			NominatimURL:     providerURL,
			BANURL:           providerURL,
			UserAgent:        "rostermap-test",
			RatePerSec:       1000,
			MaxAttempts:      1,
			FailureThreshold: 3,
			TimeoutSecs:      5,
		},
		Output: config.OutputConfig{Dir: outdir},
	}
}

func setGeocodeFlags(t *testing.T, input, outdir string) {
	t.Helper()
	geocodeInput, geocodeOutdir, geocodeLimit = input, outdir, 0
	t.Cleanup(func() {
		geocodeInput, geocodeOutdir, geocodeLimit = "", "", 0
	})
}

// runDirIn returns the single timestamped run directory under outdir.
func runDirIn(t *testing.T, outdir string) string {
	t.Helper()
	entries, err := os.ReadDir(outdir)
	require.NoError(t, err)
	for _, e := range entries {
		if e.IsDir() {
			return filepath.Join(outdir, e.Name())
		}
	}
	t.Fatal("no run directory created")
	return ""
}

func readCSVFile(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestGeocodeCmd_RunE_WritesArtifacts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"48.8692","lon":"2.3320","name":"Rue de la Paix"}]`))
	}))
	defer srv.Close()

	input := writeRoster(t,
		"Nom;Adresse;Code Postal;Ville\n"+
			"Jean Dupont;10 Rue de la Paix;75002;Paris\n")
	outdir := t.TempDir()
	cfg = testConfig(srv.URL, outdir)
	setGeocodeFlags(t, input, outdir)

	geocodeCmd.SetContext(context.Background())
	defer geocodeCmd.SetContext(nil)

	require.NoError(t, geocodeCmd.RunE(geocodeCmd, nil))

	assert.FileExists(t, filepath.Join(outdir, "geocache.json"))
	runDir := runDirIn(t, outdir)
	for _, name := range []string{
		"output_umap.geojson", "output_not_geocoded.geojson",
		"output_incomplete.geojson", "output_duplicates.geojson",
		"geocache_added.json", "geocache_new_added.json",
		"quality_report.csv", "problematic_rows.csv",
	} {
		assert.FileExists(t, filepath.Join(runDir, name))
	}

	rows := readCSVFile(t, filepath.Join(runDir, "quality_report.csv"))
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[1][1], "total")
	assert.Equal(t, "1", rows[1][3], "geocoded")
}

func TestGeocodeCmd_RunE_AbortedRunStillWritesArtifacts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	input := writeRoster(t,
		"Nom;Adresse;Code Postal;Ville\n"+
			"A;Grande Rue;75001;Paris\n"+
			"B;Petite Rue;75002;Paris\n"+
			"C;Rue Neuve;75003;Paris\n"+
			"D;Rue Haute;75004;Paris\n"+
			"E;Rue Basse;75005;Paris\n")
	outdir := t.TempDir()
	cfg = testConfig(srv.URL, outdir)
	setGeocodeFlags(t, input, outdir)

	geocodeCmd.SetContext(context.Background())
	defer geocodeCmd.SetContext(nil)

	err := geocodeCmd.RunE(geocodeCmd, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrServiceDown)

	// Partial progress survives the abort: caches, report, and the
	// problematic listing are all on disk.
	assert.FileExists(t, filepath.Join(outdir, "geocache.json"))
	assert.FileExists(t, filepath.Join(outdir, "geocache_new.json"))

	runDir := runDirIn(t, outdir)
	assert.FileExists(t, filepath.Join(runDir, "geocache_added.json"))

	quality := readCSVFile(t, filepath.Join(runDir, "quality_report.csv"))
	require.Len(t, quality, 2)
	assert.Equal(t, "5", quality[1][1], "total")
	assert.Equal(t, "3", quality[1][2], "processed stops at the failure threshold")
	assert.Equal(t, "3", quality[1][4], "not_geocoded")

	problematic := readCSVFile(t, filepath.Join(runDir, "problematic_rows.csv"))
	require.Len(t, problematic, 4, "header plus the three processed rows")
	assert.Equal(t, "not_geocoded", problematic[1][len(problematic[1])-1])
}

func TestGeocodeCmd_RunE_UnreadableInputFailsBeforeGeocoding(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	outdir := t.TempDir()
	cfg = testConfig(srv.URL, outdir)
	setGeocodeFlags(t, filepath.Join(outdir, "absent.csv"), outdir)

	geocodeCmd.SetContext(context.Background())
	defer geocodeCmd.SetContext(nil)

	err := geocodeCmd.RunE(geocodeCmd, nil)
	require.Error(t, err)
	assert.Zero(t, calls, "no provider traffic on input error")

	entries, readErr := os.ReadDir(outdir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "no artifacts on input error")
}
