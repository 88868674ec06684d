// Package market caches Onit market listings per tag set.
//
// Lookups are served from the cache while fresh. Concurrent misses for the
// same tag set share one API call, and a failed refresh falls back to the
// last good listing when one exists.
package market
