// Package normalize turns feed items into flat table records and merges them
// with the records already stored.
package normalize

import (
	"encoding/json"
	"sort"

	"feed_syncer/internal/domain"
)

// coverColumns maps cover_image subfields to their flattened column.
var coverColumns = []struct {
	Field  string
	Column string
}{
	{"url", "cover_url"},
	{"credits", "cover_credits"},
	{"caption", "cover_caption"},
	{"width", "cover_width"},
	{"height", "cover_height"},
	{"format", "cover_format"},
}

// IDSet returns the ids of records as a lookup set.
func IDSet(records []domain.Record) map[string]struct{} {
	ids := make(map[string]struct{}, len(records))
	for _, r := range records {
		ids[r.ID()] = struct{}{}
	}
	return ids
}

// Unseen returns the items whose id is not in ids, in input order.
func Unseen(items []domain.SourceItem, ids map[string]struct{}) []domain.SourceItem {
	var out []domain.SourceItem
	for _, it := range items {
		if _, ok := ids[it.ID()]; !ok {
			out = append(out, it)
		}
	}
	return out
}

// Normalize flattens an item into a record. Plain fields keep their name and
// are stringified; the cover block is expanded through coverColumns.
func Normalize(item domain.SourceItem) domain.Record {
	flat := make(domain.SourceItem, len(item)+len(coverColumns))
	for k, v := range item {
		flat[k] = v
	}

	if raw, ok := flat[domain.CoverField]; ok {
		delete(flat, domain.CoverField)

		var cover map[string]json.RawMessage
		if err := json.Unmarshal(raw, &cover); err == nil {
			for _, c := range coverColumns {
				if v, ok := cover[c.Field]; ok {
					flat[c.Column] = v
				}
			}
		}
	}

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var rec domain.Record
	for _, k := range keys {
		rec.Set(k, domain.Stringify(flat[k]))
	}
	return rec
}

// ItemFromRecord converts a flat record back into an item with string values.
func ItemFromRecord(rec domain.Record) domain.SourceItem {
	item := make(domain.SourceItem, rec.Len())
	for _, k := range rec.Keys() {
		b, _ := json.Marshal(rec.Value(k))
		item[k] = b
	}
	return item
}

// Project lays a record out in column order. Missing values become "".
func Project(rec domain.Record, columns []string) []string {
	row := make([]string, len(columns))
	for i, c := range columns {
		row[i] = rec.Value(c)
	}
	return row
}

// ProjectAll projects every record.
func ProjectAll(records []domain.Record, columns []string) [][]string {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = Project(r, columns)
	}
	return rows
}

// FromRow maps a positional row onto headers. Cells past the end of a short
// row stay absent; cells past the last header are dropped.
func FromRow(headers, row []string) domain.Record {
	var rec domain.Record
	for i, h := range headers {
		if i >= len(row) {
			break
		}
		rec.Set(h, row[i])
	}
	return rec
}

// Merge places newly discovered records first, then the existing ones.
func Merge(fresh, existing []domain.Record) []domain.Record {
	merged := make([]domain.Record, 0, len(fresh)+len(existing))
	merged = append(merged, fresh...)
	merged = append(merged, existing...)
	return merged
}
