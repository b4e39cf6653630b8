// Package models holds the library data model: records, the media snapshot, patches,
// query parameters and the gorm row used by the record store.
//
// Validation is declarative. Schema maps each field to one Constraint; ValidateRecord
// checks every field of a new record and ValidatePatch only the fields a patch carries,
// so create and update share a single rule set.
package models
