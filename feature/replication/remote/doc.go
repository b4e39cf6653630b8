// Package remote implements the replication document service on a SQL
// database. Documents are keyed by user and record id, deletes leave
// tombstones, and every write is stamped with a strictly increasing
// modification time that orders the change feed.
package remote
