package template

import (
	"reflect"
	"strconv"
	"strings"
)

// parsePath splits a path such as $.user.emails[0] or $['user']["name"] into
// its key segments. The bare path $ yields no segments. Wildcards, filters,
// slices and recursive descent are rejected.
func parsePath(path string) ([]string, bool) {
	if !strings.HasPrefix(path, "$") {
		return nil, false
	}
	rest := path[1:]
	if rest != "" && rest[0] != '.' && rest[0] != '[' {
		rest = "." + rest
	}

	var segs []string
	for rest != "" {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			end := strings.IndexAny(rest, ".[")
			if end < 0 {
				end = len(rest)
			}
			seg := rest[:end]
			if seg == "" || seg == "*" {
				return nil, false
			}
			segs = append(segs, seg)
			rest = rest[end:]

		case '[':
			seg, n, ok := parseBracket(rest)
			if !ok {
				return nil, false
			}
			segs = append(segs, seg)
			rest = rest[n:]

		default:
			return nil, false
		}
	}
	return segs, true
}

// parseBracket reads one [0], ['k'] or ["k"] selector from the start of s and
// returns the segment and the number of bytes consumed.
func parseBracket(s string) (string, int, bool) {
	if len(s) < 3 {
		return "", 0, false
	}

	if q := s[1]; q == '\'' || q == '"' {
		end := strings.IndexByte(s[2:], q)
		if end < 0 {
			return "", 0, false
		}
		closing := 2 + end + 1
		if closing >= len(s) || s[closing] != ']' {
			return "", 0, false
		}
		return s[2 : 2+end], closing + 1, true
	}

	end := strings.IndexByte(s, ']')
	if end < 0 {
		return "", 0, false
	}
	inner := s[1:end]
	if idx, err := strconv.Atoi(inner); err != nil || idx < 0 || strings.HasPrefix(inner, "+") {
		return "", 0, false
	}
	return inner, end + 1, true
}

// lookup walks segs through root. Maps are indexed by key, sequences by a
// non-negative integer segment.
func lookup(root any, segs []string) (any, bool) {
	cur := root
	for _, seg := range segs {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			v, ok := lookupReflect(cur, seg)
			if !ok {
				return nil, false
			}
			cur = v
		}
	}
	return cur, true
}

// lookupReflect handles typed maps and slices, e.g. map[string]string
// supplied by Go callers rather than decoded from JSON.
func lookupReflect(node any, seg string) (any, bool) {
	if node == nil {
		return nil, false
	}
	rv := reflect.ValueOf(node)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(seg).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= rv.Len() {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	}
	return nil, false
}
