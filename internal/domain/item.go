package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// CoverField is the nested cover block of a source item.
const CoverField = "cover_image"

// SourceItem is one raw object of a feed page, keyed by field name.
type SourceItem map[string]json.RawMessage

// Page is one response of the paginated feed.
type Page struct {
	Results []SourceItem `json:"results"`
	Next    *string      `json:"next"`
}

// NextURL returns the cursor to the following page, or "" on the last page.
func (p Page) NextURL() string {
	if p.Next == nil {
		return ""
	}
	return strings.TrimSpace(*p.Next)
}

// ID returns the item identity as a string.
func (it SourceItem) ID() string {
	return Stringify(it["id"])
}

// Stringify renders a raw JSON value as a table cell.
func Stringify(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return string(raw)
		}
		return s
	case 'n':
		return ""
	case 't':
		return "TRUE"
	case 'f':
		return "FALSE"
	case '[', '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return string(raw)
		}
		return buf.String()
	default:
		return string(raw)
	}
}
