// Package database handles database connections and schema inspection.
//
// It wraps GORM to configure sqlite (local record store, tests) and MySQL (remote
// document service) connections from the application's configuration.
//
// # Connect
//
// Connect picks the dialector from Config.Driver, applies pool settings suited to the
// driver and pings the database before returning.
//
// # Schema Inspection
//
// GetTableColumns lists a table's columns for both dialects. The integrity feature uses it
// to verify that the library table carries every column the row model expects.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
//
//	columns, err := database.GetTableColumns(db, "library_records")
package database
