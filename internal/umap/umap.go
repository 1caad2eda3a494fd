// Package umap renders classification buckets as uMap-ready GeoJSON
// FeatureCollections, one file per bucket.
package umap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/carto-collectif/rostermap/internal/pipeline"
)

// Output file per bucket.
var bucketFiles = map[pipeline.Bucket]string{
	pipeline.BucketGeocoded:    "output_umap.geojson",
	pipeline.BucketNotGeocoded: "output_not_geocoded.geojson",
	pipeline.BucketIncomplete:  "output_incomplete.geojson",
	pipeline.BucketDuplicate:   "output_duplicates.geojson",
}

// Marker color per bucket, understood by uMap's _umap_options.
var bucketColors = map[pipeline.Bucket]string{
	pipeline.BucketGeocoded:    "blue",
	pipeline.BucketNotGeocoded: "red",
	pipeline.BucketIncomplete:  "orange",
	pipeline.BucketDuplicate:   "purple",
}

// Feature converts one processed row into a GeoJSON point feature. Rows
// without coordinates are pinned at (0,0) so uMap still lists them.
func Feature(row pipeline.RowResult) *geojson.Feature {
	lon, lat := 0.0, 0.0
	if row.Coord != nil {
		lon, lat = row.Coord.Longitude, row.Coord.Latitude
	}

	desc := row.Record.Name
	if row.Query != "" {
		desc = fmt.Sprintf("%s | Adresse : %s", row.Record.Name, row.Query)
	}

	props := map[string]any{
		"name":        row.Record.Name,
		"description": desc,
		"_umap_options": map[string]any{
			"color": bucketColors[row.Bucket],
		},
	}
	for col, val := range row.Record.Fields {
		props[col] = val
	}

	return &geojson.Feature{
		Geometry:   geom.NewPointFlat(geom.XY, []float64{lon, lat}),
		Properties: props,
	}
}

// Write writes the four bucket files into runDir. Rows keep their input
// order within each file; empty buckets still produce a file so the run
// directory always carries the full artifact set.
func Write(runDir string, rows []pipeline.RowResult) error {
	features := map[pipeline.Bucket][]*geojson.Feature{
		pipeline.BucketGeocoded:    {},
		pipeline.BucketNotGeocoded: {},
		pipeline.BucketIncomplete:  {},
		pipeline.BucketDuplicate:   {},
	}
	for _, row := range rows {
		features[row.Bucket] = append(features[row.Bucket], Feature(row))
	}

	for bucket, feats := range features {
		fc := &geojson.FeatureCollection{Features: feats}
		data, err := json.MarshalIndent(fc, "", "  ")
		if err != nil {
			return eris.Wrapf(err, "umap: marshal %s collection", bucket)
		}
		path := filepath.Join(runDir, bucketFiles[bucket])
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return eris.Wrapf(err, "umap: write %s", path)
		}
	}
	return nil
}
