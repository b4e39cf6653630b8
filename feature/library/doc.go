// Package library exposes the record store over HTTP.
//
// Records are created directly or tracked by title, in which case the media
// snapshot is resolved once through the metadata provider. Tracking a title
// that already sits in the library patches the existing record, and a patch
// that leaves it without any user state removes it. Clearing and bulk
// updates run through the batch operator.
package library
