package manifest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errEmptyPath = errors.New("empty path")

func errBadPath(seg string) error {
	return fmt.Errorf("malformed path segment %q", seg)
}

// Paths address values inside a JSON document decoded into map[string]any /
// []any, e.g. "choices[0].message.content". Supported segment forms:
//   - "name"       object key
//   - "name[3]"    object key, then array index
//   - "name[*]"    object key, then first array element
//   - "[3]", "[*]" bare index into the current value
//
// A leading "$." (or bare "$") is accepted and ignored so JSONPath-flavored
// documents keep working.

type pathSegment struct {
	key      string
	indices  []int // -1 means [*] (first element)
	hasIndex bool
}

// GetPath resolves path inside doc. The second return is false when any
// segment does not resolve (missing key, index out of range, wrong type).
// JSON null resolves with ok=true and a nil value.
func GetPath(doc any, path string) (any, bool) {
	segs, err := splitPath(path)
	if err != nil || len(segs) == 0 {
		return nil, false
	}
	cur := doc
	for _, seg := range segs {
		if seg.key != "" {
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = obj[seg.key]
			if !ok {
				return nil, false
			}
		}
		for _, idx := range seg.indices {
			arr, ok := cur.([]any)
			if !ok {
				return nil, false
			}
			if idx == -1 {
				idx = 0
			}
			if idx < 0 || idx >= len(arr) {
				return nil, false
			}
			cur = arr[idx]
		}
	}
	return cur, true
}

// SetPath writes value at path inside doc, creating intermediate objects as
// needed and overwriting non-object intermediates. Only object-key segments
// are supported for writes; an indexed segment makes SetPath a no-op and
// returns false.
func SetPath(doc map[string]any, path string, value any) bool {
	segs, err := splitPath(path)
	if err != nil || len(segs) == 0 {
		return false
	}
	for _, seg := range segs {
		if seg.hasIndex || seg.key == "" {
			return false
		}
	}
	cur := doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg.key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg.key] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1].key] = value
	return true
}

func normalizePath(path string) string {
	p := strings.TrimSpace(path)
	p = strings.TrimPrefix(p, "$.")
	return strings.TrimPrefix(p, "$")
}

func splitPath(path string) ([]pathSegment, error) {
	p := normalizePath(path)
	if p == "" {
		return nil, errEmptyPath
	}
	parts := strings.Split(p, ".")
	segs := make([]pathSegment, 0, len(parts))
	for _, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

func parseSegment(s string) (pathSegment, error) {
	var seg pathSegment
	if s == "" {
		return seg, errEmptyPath
	}
	open := strings.IndexByte(s, '[')
	if open == -1 {
		seg.key = s
		return seg, nil
	}
	seg.key = s[:open]
	rest := s[open:]
	for rest != "" {
		if rest[0] != '[' {
			return seg, errBadPath(s)
		}
		close := strings.IndexByte(rest, ']')
		if close == -1 {
			return seg, errBadPath(s)
		}
		inner := rest[1:close]
		if inner == "*" {
			seg.indices = append(seg.indices, -1)
		} else {
			n, err := strconv.Atoi(inner)
			if err != nil || n < 0 {
				return seg, errBadPath(s)
			}
			seg.indices = append(seg.indices, n)
		}
		seg.hasIndex = true
		rest = rest[close+1:]
	}
	return seg, nil
}
