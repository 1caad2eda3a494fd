// Package geocache persists geocoding results across runs so that known
// addresses never spend another provider request.
//
// Two cumulative files live in the output parent directory: geocache.json
// (every address ever resolved) and geocache_new.json (addresses resolved
// since the last cache reset, kept for map-diff workflows). Each run also
// emits two delta files into its own directory: geocache_added.json (what
// this run resolved) and geocache_new_added.json (the subset that was also
// new to geocache_new.json).
package geocache

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/carto-collectif/rostermap/pkg/geocode"
)

// Cumulative cache file names, relative to the output parent directory.
const (
	CumulativeFile = "geocache.json"
	NewFile        = "geocache_new.json"
)

// Per-run delta file names, relative to the run directory.
const (
	AddedFile    = "geocache_added.json"
	NewAddedFile = "geocache_new_added.json"
)

// Store is an address-key → result cache with per-run delta tracking.
// Only successful resolutions are ever stored; failures are retried on the
// next run by construction.
type Store struct {
	path    string
	newPath string

	entries   map[string]geocode.Result
	newGlobal map[string]geocode.Result
	added     map[string]geocode.Result
	newAdded  map[string]geocode.Result
}

// Open returns a Store rooted in dir. Nothing is read until Load.
func Open(dir string) *Store {
	return &Store{
		path:      filepath.Join(dir, CumulativeFile),
		newPath:   filepath.Join(dir, NewFile),
		entries:   make(map[string]geocode.Result),
		newGlobal: make(map[string]geocode.Result),
		added:     make(map[string]geocode.Result),
		newAdded:  make(map[string]geocode.Result),
	}
}

// Load reads the cumulative cache files. A missing file is an empty cache;
// an unreadable or corrupt file is logged and treated as empty rather than
// blocking the run.
func (s *Store) Load() {
	s.entries = loadFile(s.path)
	s.newGlobal = loadFile(s.newPath)
}

func loadFile(path string) map[string]geocode.Result {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			zap.L().Warn("geocache: unreadable cache file, starting empty",
				zap.String("path", path), zap.Error(err))
		}
		return make(map[string]geocode.Result)
	}

	var raw map[string]entry
	if err := json.Unmarshal(data, &raw); err != nil {
		zap.L().Warn("geocache: corrupt cache file, starting empty",
			zap.String("path", path), zap.Error(err))
		return make(map[string]geocode.Result)
	}

	m := make(map[string]geocode.Result, len(raw))
	for k, e := range raw {
		m[k] = e.Result
	}
	return m
}

// Lookup returns the cached result for key.
func (s *Store) Lookup(key string) (geocode.Result, bool) {
	r, ok := s.entries[key]
	return r, ok
}

// Record inserts a successful resolution. First write wins: a key already
// present keeps its existing coordinates, so the cumulative cache only ever
// grows and repeated lookups stay idempotent.
func (s *Store) Record(key string, result geocode.Result) {
	if _, ok := s.entries[key]; ok {
		return
	}
	s.entries[key] = result
	s.added[key] = result

	if _, ok := s.newGlobal[key]; !ok {
		s.newGlobal[key] = result
		s.newAdded[key] = result
	}
}

// Added returns the entries recorded during this run.
func (s *Store) Added() map[string]geocode.Result {
	return s.added
}

// NewAdded returns the entries recorded during this run that were also
// absent from the persisted geocache_new.json.
func (s *Store) NewAdded() map[string]geocode.Result {
	return s.newAdded
}

// Len returns the number of entries in the cumulative cache.
func (s *Store) Len() int {
	return len(s.entries)
}

// Path returns the cumulative cache file path.
func (s *Store) Path() string {
	return s.path
}

// Persist writes both cumulative files. Each file is written to a
// temporary sibling and renamed into place so a crash mid-write leaves the
// previous valid cache intact.
func (s *Store) Persist() error {
	if err := writeAtomic(s.path, s.entries); err != nil {
		return eris.Wrap(err, "geocache: persist cumulative cache")
	}
	if err := writeAtomic(s.newPath, s.newGlobal); err != nil {
		return eris.Wrap(err, "geocache: persist new-entry cache")
	}
	return nil
}

// WriteDeltas writes the per-run delta files into runDir. Empty deltas
// still produce files so every run directory carries the full artifact set.
func (s *Store) WriteDeltas(runDir string) error {
	if err := writeAtomic(filepath.Join(runDir, AddedFile), s.added); err != nil {
		return eris.Wrap(err, "geocache: write added delta")
	}
	if err := writeAtomic(filepath.Join(runDir, NewAddedFile), s.newAdded); err != nil {
		return eris.Wrap(err, "geocache: write new-added delta")
	}
	return nil
}

func writeAtomic(path string, m map[string]geocode.Result) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "rename into place")
	}
	return nil
}
