package expr

import (
	"encoding/json"
	"strconv"
	"strings"
)

// splitSegments splits a path into dot/bracket segments, following the
// teacher template engine's splitPath: "a.b[0].c" -> ["a","b[0]","c"].
func splitSegments(path string) []string {
	if path == "" {
		return nil
	}
	var parts []string
	var cur strings.Builder
	inBracket := false
	for _, ch := range path {
		switch ch {
		case '.':
			if !inBracket && cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			} else if inBracket {
				cur.WriteRune(ch)
			}
		case '[':
			inBracket = true
			cur.WriteRune(ch)
		case ']':
			inBracket = false
			cur.WriteRune(ch)
		default:
			cur.WriteRune(ch)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// resolvePath walks segments against root, returning nil for any missing
// segment: a missing segment yields null, not an error.
func resolvePath(root interface{}, segments []string) interface{} {
	current := root
	for _, seg := range segments {
		name, indices := splitFieldAndIndices(seg)
		if name != "" {
			current = resolveField(current, name)
		}
		for _, idx := range indices {
			current = resolveIndex(current, idx)
		}
		if current == nil {
			return nil
		}
	}
	return current
}

// splitFieldAndIndices splits "items[0][1]" into ("items", [0,1]) and
// "[0]" into ("", [0]).
func splitFieldAndIndices(segment string) (string, []int) {
	bracket := strings.Index(segment, "[")
	if bracket < 0 {
		return segment, nil
	}
	name := segment[:bracket]
	rest := segment[bracket:]
	var indices []int
	for len(rest) > 0 {
		if rest[0] != '[' {
			break
		}
		close := strings.Index(rest, "]")
		if close < 0 {
			break
		}
		n, err := strconv.Atoi(strings.TrimSpace(rest[1:close]))
		if err != nil {
			break
		}
		indices = append(indices, n)
		rest = rest[close+1:]
	}
	return name, indices
}

func resolveField(value interface{}, field string) interface{} {
	if value == nil {
		return nil
	}
	switch m := value.(type) {
	case map[string]interface{}:
		return m[field]
	case map[string]string:
		if v, ok := m[field]; ok {
			return v
		}
		return nil
	}
	// Fall back to a JSON round trip for structs and other map-like values.
	data, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m[field]
}

func resolveIndex(value interface{}, index int) interface{} {
	if value == nil {
		return nil
	}
	switch s := value.(type) {
	case []interface{}:
		if index < 0 || index >= len(s) {
			return nil
		}
		return s[index]
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	var s []interface{}
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if index < 0 || index >= len(s) {
		return nil
	}
	return s[index]
}
