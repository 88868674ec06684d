// Package poller implements the Market Poller component.
//
// The Market Poller:
//   - Refreshes the configured market feeds (tag sets) on an interval
//   - Keeps the market catalog warm so commands answer from cache
//   - Reports markets that appeared since the previous refresh
//   - Bounds concurrent API calls
package poller
