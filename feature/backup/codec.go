package backup

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"library-sync/core/utils"
	"library-sync/feature/library/merge"
	"library-sync/feature/library/models"

	"github.com/goccy/go-json"
)

// Version is written into JSON exports.
const Version = 1

// Format is an export file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts json and csv, defaulting "" to json.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported backup format %q", s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// Document is the JSON export envelope.
type Document struct {
	Version    int          `json:"version"`
	ExportedAt time.Time    `json:"exportedAt"`
	Items      []merge.Item `json:"items"`
}

// csvHeaders are the exported columns. recordId keeps ids stable across a
// round trip.
var csvHeaders = []string{
	merge.KeyID,
	merge.KeyMediaType,
	merge.KeyTitle,
	merge.KeyPosterPath,
	merge.KeyReleaseDate,
	merge.KeyStatus,
	merge.KeyIsFavorite,
	merge.KeyUserRating,
	merge.KeyAddedAt,
	merge.KeyLastUpdatedAt,
	merge.KeyNotes,
	merge.KeyRecordID,
}

// Encode writes records in the given format.
func Encode(w io.Writer, records []models.Record, format Format, now time.Time) error {
	items := make([]merge.Item, 0, len(records))
	for _, r := range records {
		items = append(items, merge.Encode(r))
	}

	switch format {
	case FormatCSV:
		return encodeCSV(w, items)
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(Document{Version: Version, ExportedAt: now.UTC(), Items: items})
	}
	return fmt.Errorf("unsupported backup format %q", format)
}

func encodeCSV(w io.Writer, items []merge.Item) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeaders); err != nil {
		return err
	}
	row := make([]string, len(csvHeaders))
	for _, item := range items {
		for i, h := range csvHeaders {
			row[i] = csvValue(item[h])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(val)
	case []string:
		return strings.Join(val, "|")
	default:
		return utils.ToString(val)
	}
}

// Parse reads the items of an export. JSON accepts the export envelope, a
// bare array of items or an object whose values are items.
func Parse(data []byte, format Format) ([]merge.Item, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("the import file appears to be empty")
	}
	switch format {
	case FormatCSV:
		return parseCSV(data)
	case FormatJSON, "":
		return parseJSON(data)
	}
	return nil, fmt.Errorf("unsupported backup format %q", format)
}

func parseJSON(data []byte) ([]merge.Item, error) {
	trimmed := bytes.TrimSpace(data)
	if trimmed[0] == '[' {
		var items []merge.Item
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("invalid JSON export: %w", err)
		}
		return items, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON export: %w", err)
	}
	if body, ok := raw["items"]; ok {
		var items []merge.Item
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("invalid JSON export items: %w", err)
		}
		return items, nil
	}

	items := make([]merge.Item, 0, len(raw))
	for key, body := range raw {
		var item merge.Item
		if err := json.Unmarshal(body, &item); err != nil {
			return nil, fmt.Errorf("invalid JSON export entry %s: %w", key, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func parseCSV(data []byte) ([]merge.Item, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid CSV export: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV file must contain a header row and at least one data row")
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}
	var missing []string
	for _, required := range []string{merge.KeyID, merge.KeyMediaType} {
		if !slices.Contains(headers, required) {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("CSV is missing required headers: %s", strings.Join(missing, ", "))
	}

	items := make([]merge.Item, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		// A row with the wrong column count is kept empty so it counts as invalid
		if len(row) != len(headers) {
			items = append(items, merge.Item{})
			continue
		}
		item := make(merge.Item, len(headers))
		for i, h := range headers {
			if v := row[i]; v != "" {
				item[h] = v
			}
		}
		if _, ok := item[merge.KeyIsFavorite]; !ok {
			item[merge.KeyIsFavorite] = false
		}
		items = append(items, item)
	}
	return items, nil
}
