// Package reaper evicts sessions that have been idle longer than their TTL.
//
// Each scan snapshots the registry, then removes stale sessions one by one.
// Removal goes through the session lock and re-checks staleness, so a
// session with a request in flight is left alone until it is idle again.
// Scans run on a fixed interval, never back to back.
package reaper
