package checks

import (
	"fmt"
	"reflect"
	"strings"

	"library-sync/core/database"

	"gorm.io/gorm"
)

// Table is a gorm model with a pinned table name.
type Table interface {
	TableName() string
}

// SchemaReport is the result of comparing models against a database.
type SchemaReport struct {
	Matched bool                   `json:"matched"`
	Tables  map[string]TableReport `json:"tables"`
	Errors  []string               `json:"errors"`
}

// TableReport lists the differences found in one table.
type TableReport struct {
	MissingColumns []string `json:"missing_columns"`
	TypeMismatches []string `json:"type_mismatches"`
	Status         string   `json:"status"` // "ok", "error"
}

type column struct {
	name    string
	typ     string
	notNull bool
}

// CheckSchema verifies that every column declared by the models exists in db,
// with the declared type and nullability where the gorm tag states them.
func CheckSchema(db *gorm.DB, tables ...Table) (*SchemaReport, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	report := &SchemaReport{
		Matched: true,
		Tables:  make(map[string]TableReport),
		Errors:  []string{},
	}

	for _, table := range tables {
		name := table.TableName()
		tblReport := TableReport{
			MissingColumns: []string{},
			TypeMismatches: []string{},
			Status:         "ok",
		}

		actualCols, err := database.GetTableColumns(db, name)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("Failed to inspect table %s: %v", name, err))
			report.Matched = false
			continue
		}
		if len(actualCols) == 0 {
			report.Errors = append(report.Errors, fmt.Sprintf("Table %s does not exist", name))
			report.Matched = false
			continue
		}

		actualMap := make(map[string]database.ColumnInfo, len(actualCols))
		for _, col := range actualCols {
			actualMap[col.Field] = col
		}

		for _, exp := range expectedColumns(reflect.TypeOf(table)) {
			act, exists := actualMap[exp.name]
			if !exists {
				tblReport.MissingColumns = append(tblReport.MissingColumns, exp.name)
				continue
			}
			if exp.typ != "" && !strings.Contains(act.Type, exp.typ) {
				tblReport.TypeMismatches = append(tblReport.TypeMismatches,
					fmt.Sprintf("%s: expected %s, got %s", exp.name, exp.typ, act.Type))
			}
			if exp.notNull && act.Null == "YES" {
				tblReport.TypeMismatches = append(tblReport.TypeMismatches,
					fmt.Sprintf("%s: expected not null, got nullable", exp.name))
			}
		}

		if len(tblReport.MissingColumns) > 0 || len(tblReport.TypeMismatches) > 0 {
			tblReport.Status = "error"
			report.Matched = false
		}
		report.Tables[name] = tblReport
	}

	return report, nil
}

// expectedColumns walks the struct fields, descending into embedded structs.
func expectedColumns(t reflect.Type) []column {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	var cols []column
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			cols = append(cols, expectedColumns(field.Type)...)
			continue
		}
		tag := field.Tag.Get("gorm")
		name := parseGormSetting(tag, "column")
		if name == "" {
			continue
		}
		cols = append(cols, column{
			name:    name,
			typ:     strings.ToLower(parseGormSetting(tag, "type")),
			notNull: hasGormFlag(tag, "not null"),
		})
	}
	return cols
}

func parseGormSetting(tag, key string) string {
	for _, p := range strings.Split(tag, ";") {
		if v, ok := strings.CutPrefix(p, key+":"); ok {
			return v
		}
	}
	return ""
}

func hasGormFlag(tag, flag string) bool {
	for _, p := range strings.Split(tag, ";") {
		if strings.EqualFold(strings.TrimSpace(p), flag) {
			return true
		}
	}
	return false
}
