package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/carto-collectif/rostermap/internal/address"
	"github.com/carto-collectif/rostermap/internal/geocache"
	"github.com/carto-collectif/rostermap/internal/resilience"
	"github.com/carto-collectif/rostermap/internal/roster"
	"github.com/carto-collectif/rostermap/pkg/geocode"
)

// RowResult is one processed roster row.
type RowResult struct {
	Record roster.Record
	Key    string
	Query  string
	Bucket Bucket

	// Coord is set for geocoded rows, and for duplicates whose first
	// occurrence resolved.
	Coord *geocode.Result
}

// Stats are the running counters of one pipeline run. Total is the input
// size; Processed is how many rows actually ran, which is smaller on an
// aborted run. The bucket counters always sum to Processed.
type Stats struct {
	RunID       string
	Total       int
	Processed   int
	Geocoded    int
	NotGeocoded int
	Incomplete  int
	Duplicate   int
	CacheHits   int
	CacheMisses int
	Lookups     int
}

// HitRate returns the cache hit fraction over all cache consultations.
func (s Stats) HitRate() float64 {
	if s.CacheHits+s.CacheMisses == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.CacheHits+s.CacheMisses)
}

// Outcome is the result of a run: every row in input order plus counters.
// On an aborted run the Outcome holds the rows processed so far.
type Outcome struct {
	Rows  []RowResult
	Stats Stats
}

// Options configures a Pipeline.
type Options struct {
	// Breaker aborts the run on sustained transient provider failure.
	// Nil disables the abort.
	Breaker *resilience.Breaker

	// OnProgress, if set, is called after each processed row.
	OnProgress func(done, total int)
}

// Pipeline processes records sequentially, one geocoding request at a
// time, in strict input order. Input order decides which occurrence of a
// duplicate set counts as first.
type Pipeline struct {
	client geocode.Client
	cache  *geocache.Store
	opts   Options
}

// New creates a Pipeline over the given client and cache.
func New(client geocode.Client, cache *geocache.Store, opts Options) *Pipeline {
	return &Pipeline{client: client, cache: cache, opts: opts}
}

// Run processes all records. It returns a non-nil Outcome even on error so
// the caller can persist partial progress; the error is non-nil when the
// run was aborted (sustained provider outage or cancellation).
func (p *Pipeline) Run(ctx context.Context, records []roster.Record) (*Outcome, error) {
	out := &Outcome{
		Stats: Stats{RunID: uuid.NewString(), Total: len(records)},
	}
	seen := make(map[string]struct{}, len(records))

	log := zap.L().With(zap.String("run_id", out.Stats.RunID))
	log.Info("pipeline: starting run", zap.Int("records", len(records)), zap.Int("cache_entries", p.cache.Len()))

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return out, eris.Wrap(err, "pipeline: cancelled")
		}

		row := p.process(ctx, rec, seen, &out.Stats)
		out.Rows = append(out.Rows, row)
		out.Stats.Processed++
		out.count(row.Bucket)

		if p.opts.OnProgress != nil {
			p.opts.OnProgress(i+1, len(records))
		}

		if p.opts.Breaker != nil && p.opts.Breaker.Tripped() {
			log.Error("pipeline: aborting run, geocoding service unavailable",
				zap.Int("consecutive_failures", p.opts.Breaker.Streak()),
				zap.Int("processed", len(out.Rows)),
			)
			return out, resilience.ErrServiceDown
		}
	}

	log.Info("pipeline: run complete",
		zap.Int("geocoded", out.Stats.Geocoded),
		zap.Int("not_geocoded", out.Stats.NotGeocoded),
		zap.Int("incomplete", out.Stats.Incomplete),
		zap.Int("duplicates", out.Stats.Duplicate),
		zap.Float64("cache_hit_rate", out.Stats.HitRate()),
	)
	return out, nil
}

// process runs one record through normalize → incomplete/duplicate
// short-circuit → cache → client → classify. Short-circuited rows never
// reach the cache or the network.
func (p *Pipeline) process(ctx context.Context, rec roster.Record, seen map[string]struct{}, st *Stats) RowResult {
	norm := address.Normalize(rec.Street, rec.PostalCode, rec.City)
	row := RowResult{Record: rec, Key: norm.Key, Query: norm.Query}

	if norm.Empty() {
		row.Bucket = Classify(true, false, false)
		return row
	}
	if len(norm.Missing) > 0 {
		zap.L().Debug("pipeline: partial address",
			zap.String("query", norm.Query), zap.Strings("missing", norm.Missing))
	}

	// Duplicates combine the address key with the folded name so
	// co-habitants with distinct names stay separate rows on the map.
	dedupKey := norm.Key + "\x00" + address.Fold(rec.Name)
	if _, dup := seen[dedupKey]; dup {
		row.Bucket = Classify(false, true, false)
		if cached, ok := p.cache.Lookup(norm.Key); ok {
			row.Coord = &cached
		}
		return row
	}
	seen[dedupKey] = struct{}{}

	if cached, ok := p.cache.Lookup(norm.Key); ok {
		st.CacheHits++
		row.Bucket = Classify(false, false, true)
		row.Coord = &cached
		return row
	}
	st.CacheMisses++

	st.Lookups++
	result, err := p.client.Resolve(ctx, norm.Query)
	if p.opts.Breaker != nil {
		p.opts.Breaker.Record(err)
	}
	if err != nil {
		if !errors.Is(err, geocode.ErrNoMatch) {
			zap.L().Warn("pipeline: lookup failed",
				zap.String("query", norm.Query), zap.Error(err))
		}
		row.Bucket = Classify(false, false, false)
		return row
	}

	p.cache.Record(norm.Key, *result)
	row.Bucket = Classify(false, false, true)
	row.Coord = result
	return row
}

func (o *Outcome) count(b Bucket) {
	switch b {
	case BucketGeocoded:
		o.Stats.Geocoded++
	case BucketNotGeocoded:
		o.Stats.NotGeocoded++
	case BucketIncomplete:
		o.Stats.Incomplete++
	case BucketDuplicate:
		o.Stats.Duplicate++
	}
}
