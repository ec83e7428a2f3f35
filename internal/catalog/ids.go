package catalog

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ParseID coerces a caller-supplied id the way a lenient integer parse does:
// numbers are truncated, strings yield their leading integer ("7", " 7", "7abc").
// Anything else, or a string with no leading digits, is not an id.
func ParseID(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float32:
		return truncate(float64(t))
	case float64:
		return truncate(t)
	case json.Number:
		return parseLeadingInt(t.String())
	case string:
		return parseLeadingInt(t)
	default:
		return 0, false
	}
}

func truncate(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Trunc(f)), true
}

func parseLeadingInt(s string) (int, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// integral reads a stored numeric field. Fractions and strings are rejected.
func integral(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}
