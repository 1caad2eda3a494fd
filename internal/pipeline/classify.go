// Package pipeline drives roster records through normalization, duplicate
// detection, cache lookup, geocoding, and classification.
package pipeline

// Bucket is the classification of one roster row. Every row lands in
// exactly one bucket.
type Bucket int

const (
	BucketGeocoded Bucket = iota
	BucketNotGeocoded
	BucketIncomplete
	BucketDuplicate
)

func (b Bucket) String() string {
	switch b {
	case BucketGeocoded:
		return "geocoded"
	case BucketNotGeocoded:
		return "not_geocoded"
	case BucketIncomplete:
		return "incomplete"
	case BucketDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Classify assigns a bucket. Order matters: incompleteness is a property
// of the row itself and must not be masked by a coincidental duplicate
// key, and duplicates are detected before any lookup is spent on them.
func Classify(empty, duplicate, resolved bool) Bucket {
	switch {
	case empty:
		return BucketIncomplete
	case duplicate:
		return BucketDuplicate
	case resolved:
		return BucketGeocoded
	default:
		return BucketNotGeocoded
	}
}
