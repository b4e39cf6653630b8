// Package utils provides loose value conversions used when decoding backup files,
// where JSON numbers, CSV strings and hand-edited values all need to land in typed fields.
package utils
