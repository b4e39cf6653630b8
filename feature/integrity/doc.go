// Package integrity checks the infrastructure the library depends on.
//
// # Checks Provided
//
//   - Schema: the local record table, and the remote document table when the
//     backend answers, have every column declared by their gorm models.
//   - Storage: the snapshot bucket exists. It can be created with ?fix=true.
//   - Remote: the remote backend answers a ping within the storage timeout.
//
// # HTTP Endpoints
//
//   - GET /integrity : Runs all checks, 503 when any fails.
//   - GET /integrity/schema : Runs the schema checks.
//   - GET /integrity/storage : Runs the storage check (supports ?fix=true).
//   - GET /integrity/remote : Pings the remote backend.
package integrity
