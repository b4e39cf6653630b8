// Package merge reconciles two snapshots of a library.
//
// Compare and Merge work on replicas of the same records keyed by record id
// and are used by the replication controller. ImportMerge is a one-way bulk
// merge of loosely typed import items keyed by media identity, used by
// backup restore.
package merge
