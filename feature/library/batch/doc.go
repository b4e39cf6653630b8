// Package batch runs chunked, failure-isolated bulk mutations against the
// record store.
//
// Every operation walks its input in fixed-size batches. Items of one batch
// run concurrently; a failing item is logged and recorded in the result but
// never aborts the batch or the sweep. Progress is reported after each batch
// and a short delay is inserted between batches.
package batch
