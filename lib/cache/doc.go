// Package cache provides the accounting side of the in-memory engine:
// every byte a page's mutation state allocates or reclaims is reported
// here, per page and in total, so an eviction policy has accurate
// footprints to work with and operators can watch memory move through
// Prometheus-compatible metrics.
//
// The accountant is written for the mutation hot path: increments and
// decrements are striped counters (no locks, no contention points), and
// the metrics surface reads them lazily on scrape.
package cache
