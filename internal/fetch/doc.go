// Package fetch downloads a batch of items with a bounded number of transfers
// in flight. Run attempts every job exactly once, isolates per-item failures
// and reports progress through a single aggregator goroutine; HTTPFetcher is
// the single-item implementation used for remote images.
package fetch
