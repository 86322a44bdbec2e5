package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Columns is the default positional schema of the record table.
var Columns = []string{
	"title",
	"ingredients",
	"preparation",
	"category",
	"subcategory",
	"tags",
	"cover_url",
	"cover_credits",
	"cover_caption",
	"cover_width",
	"cover_height",
	"cover_format",
	"id",
	"slug",
	"url",
	"section_id",
	"author",
	"created_at",
	"modified_at",
	"published_at",
	"is_published",
	"is_premium",
	"is_archived",
	"status",
}

// IDColumn is the identity key of a record.
const IDColumn = "id"

// Record is an ordered mapping from column name to string value.
type Record struct {
	keys   []string
	values map[string]string
}

// NewRecord builds a record from alternating key/value pairs.
func NewRecord(kv ...string) Record {
	var r Record
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

// Set stores value under key, keeping the first insertion position.
func (r *Record) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value stored under key.
func (r Record) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Value returns the value under key or "" when absent.
func (r Record) Value(key string) string {
	return r.values[key]
}

// ID returns the identity key.
func (r Record) ID() string {
	return r.values[IDColumn]
}

// Keys returns the column names in insertion order.
func (r Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.keys)
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	var c Record
	for _, k := range r.keys {
		c.Set(k, r.values[k])
	}
	return c
}

// Equal reports whether both records hold the same keys, order and values.
func (r Record) Equal(o Record) bool {
	if len(r.keys) != len(o.keys) {
		return false
	}
	for i, k := range r.keys {
		if o.keys[i] != k || o.values[k] != r.values[k] {
			return false
		}
	}
	return true
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record: expected object, got %v", tok)
	}

	*r = Record{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("record: expected key, got %v", tok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("record: field %q: %w", key, err)
		}
		r.Set(key, value)
	}
	_, err = dec.Token()
	return err
}
