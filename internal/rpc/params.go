package rpc

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Params is the merged parameter bag for one operation. A nil map is a valid
// receiver for every accessor; absence and emptiness read the same.
type Params map[string]any

// String returns the named parameter trimmed of surrounding whitespace, or
// "" when absent or not a string.
func (p Params) String(key string) string {
	return strings.TrimSpace(p.RawString(key))
}

// RawString returns the named string parameter without trimming. Message
// bodies keep their whitespace.
func (p Params) RawString(key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

// Has reports whether the key is present at all, regardless of value.
func (p Params) Has(key string) bool {
	if p == nil {
		return false
	}
	_, ok := p[key]
	return ok
}

// Bool returns the named boolean, or false when absent or mistyped. Boolean
// strings are accepted because query-string merges produce them.
func (p Params) Bool(key string) bool {
	if p == nil {
		return false
	}
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	}
	return false
}

// Int reads an integer parameter. JSON numbers arrive as float64; numeric
// strings are accepted because query-string merges produce them.
func (p Params) Int(key string) (int, bool) {
	if p == nil {
		return 0, false
	}
	switch v := p[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// StringSlice reads a list of strings, skipping non-string elements and
// trimming each entry. Empty entries are dropped.
func (p Params) StringSlice(key string) []string {
	if p == nil {
		return nil
	}
	raw, ok := p[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, el := range raw {
		s, ok := el.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Map reads a nested object parameter.
func (p Params) Map(key string) map[string]any {
	if p == nil {
		return nil
	}
	m, _ := p[key].(map[string]any)
	return m
}
