package expr

import (
	"fmt"
	"reflect"
	"strings"
)

// filterFunc applies one pipeline stage. Per §4.1, a filter that cannot
// sensibly apply to its input (arithmetic/type mismatch) returns the input
// unchanged rather than erroring.
type filterFunc func(value interface{}, args []string) interface{}

var filters = map[string]filterFunc{
	"trim":    filterTrim,
	"upper":   filterUpper,
	"lower":   filterLower,
	"length":  filterLength,
	"split":   filterSplit,
	"join":    filterJoin,
	"first":   filterFirst,
	"last":    filterLast,
	"default": filterDefault,
}

// applyFilter looks up name and applies it, or passes value through
// unchanged for an unknown filter name (§4.1: "keeps compatibility with
// forward versions").
func applyFilter(value interface{}, name string, args []string) interface{} {
	f, ok := filters[name]
	if !ok {
		return value
	}
	return f(value, args)
}

func filterTrim(value interface{}, _ []string) interface{} {
	s, ok := value.(string)
	if !ok {
		return value
	}
	return strings.TrimSpace(s)
}

func filterUpper(value interface{}, _ []string) interface{} {
	s, ok := value.(string)
	if !ok {
		return value
	}
	return strings.ToUpper(s)
}

func filterLower(value interface{}, _ []string) interface{} {
	s, ok := value.(string)
	if !ok {
		return value
	}
	return strings.ToLower(s)
}

func filterLength(value interface{}, _ []string) interface{} {
	if value == nil {
		return value
	}
	switch v := value.(type) {
	case string:
		return len(v)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len()
	}
	return value
}

func filterSplit(value interface{}, args []string) interface{} {
	s, ok := value.(string)
	if !ok || len(args) == 0 {
		return value
	}
	parts := strings.Split(s, args[0])
	out := make([]interface{}, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out
}

func filterJoin(value interface{}, args []string) interface{} {
	items, ok := toStringSlice(value)
	if !ok || len(args) == 0 {
		return value
	}
	return strings.Join(items, args[0])
}

func filterFirst(value interface{}, _ []string) interface{} {
	switch v := value.(type) {
	case string:
		if v == "" {
			return value
		}
		return string([]rune(v)[0])
	case []interface{}:
		if len(v) == 0 {
			return value
		}
		return v[0]
	}
	return value
}

func filterLast(value interface{}, _ []string) interface{} {
	switch v := value.(type) {
	case string:
		if v == "" {
			return value
		}
		r := []rune(v)
		return string(r[len(r)-1])
	case []interface{}:
		if len(v) == 0 {
			return value
		}
		return v[len(v)-1]
	}
	return value
}

func filterDefault(value interface{}, args []string) interface{} {
	if len(args) == 0 {
		return value
	}
	if isEmptyValue(value) {
		return args[0]
	}
	return value
}

func isEmptyValue(value interface{}) bool {
	if value == nil {
		return true
	}
	switch v := value.(type) {
	case string:
		return v == ""
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

func toStringSlice(value interface{}) ([]string, bool) {
	items, ok := value.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = fmt.Sprintf("%v", it)
	}
	return out, true
}
