// Package backup exports and imports library records.
//
// Exports are JSON documents or CSV files of loosely typed items, the same
// shape accepted back by Import. Imports merge into the current library
// with a merge strategy and are written through the batch operator.
// Snapshots of a library can be stored in the object store and restored
// from there.
package backup
