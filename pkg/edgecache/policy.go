package edgecache

import "time"

// Class buckets routes by how long their responses may be reused. TTLs are
// resource-type-specific: taxonomy data barely changes, listings churn with
// every mutation, and mutation routes are never cached.
type Class string

const (
	// ClassTaxonomy covers category trees and other near-static reference data.
	ClassTaxonomy Class = "taxonomy"

	// ClassDetail covers single-entity detail pages (review, product, profile).
	ClassDetail Class = "detail"

	// ClassListing covers paginated listings and comment threads.
	ClassListing Class = "listing"

	// ClassAggregate covers homepage composites and latest/popular feeds.
	ClassAggregate Class = "aggregate"
)

// TTLPolicy maps TTL classes to concrete durations.
type TTLPolicy struct {
	Taxonomy  time.Duration
	Detail    time.Duration
	Listing   time.Duration
	Aggregate time.Duration
}

// DefaultTTLPolicy returns the TTLs used by the edge server.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Taxonomy:  24 * time.Hour,
		Detail:    1 * time.Hour,
		Listing:   5 * time.Minute,
		Aggregate: 10 * time.Minute,
	}
}

// TTL returns the duration for a class. Unknown classes get a zero TTL, which
// the middleware treats as uncacheable.
func (p TTLPolicy) TTL(class Class) time.Duration {
	switch class {
	case ClassTaxonomy:
		return p.Taxonomy
	case ClassDetail:
		return p.Detail
	case ClassListing:
		return p.Listing
	case ClassAggregate:
		return p.Aggregate
	default:
		return 0
	}
}
