// Package metadata resolves the media snapshot of a title when it is first
// tracked.
//
// A Provider looks a title up by kind and external id. Client talks to a
// TMDB compatible HTTP API, Cached keeps recent answers in memory and
// Resolve falls back to a synthesized snapshot when no provider knows the
// title. Snapshots are only read at creation time and never refreshed.
package metadata
