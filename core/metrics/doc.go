// Package metrics exposes Prometheus collectors for the record store, the replication
// controller and the batch operator, served on /metrics through the fiber adaptor.
//
// Components accept a *Metrics and tolerate nil, so tests and CLI commands can skip it.
package metrics
