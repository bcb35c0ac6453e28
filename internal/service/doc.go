// Package service runs invocations of the collector.
//
// An Invocation is one pass of the whole pipeline:
//
//	lock -> load state -> scan roots -> report -> collect -> publish -> unlock
//
// Scan classifies every immediate subdirectory of the configured roots and
// keeps the complete ones. Report diffs them against the known runs state.
// New runs are handed to the collectors; runs whose collection failed are
// deferred, which means neither reported nor added to the state, so the next
// invocation picks them up again. Publish saves the merged state and makes
// the output artifact visible; a failure at any step leaves the previously
// saved state in place.
//
// Watch repeats invocations on a gocron schedule. A tick which would overlap
// a still running invocation is skipped.
//
// Invariants:
//   - The state only grows.
//   - A run is in the output of at most one successful invocation, unless
//     publishing the output failed after the state was saved.
//   - Only one invocation at a time holds the state lock.
package service
