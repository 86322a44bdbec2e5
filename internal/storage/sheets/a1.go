package sheets

import (
	"fmt"
	"strings"
)

// columnLetter converts a 1-based column index to its A1 letters (1 → A, 27 → AA).
func columnLetter(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

func quoteSheet(name string) string {
	plain := name != ""
	for _, r := range name {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			plain = false
			break
		}
	}
	if plain {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// rowRange returns "Sheet!A<from>:<last><to>"; to <= 0 leaves the range open downwards.
func rowRange(sheet string, width, from, to int) string {
	last := columnLetter(width)
	if to <= 0 {
		return fmt.Sprintf("%s!A%d:%s", quoteSheet(sheet), from, last)
	}
	return fmt.Sprintf("%s!A%d:%s%d", quoteSheet(sheet), from, last, to)
}
