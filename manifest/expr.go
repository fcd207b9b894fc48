package manifest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MatchExpr is a compiled event_map match expression: an OR of AND-groups
// over conditions of the forms
//
//	exists(path)
//	path == 'value'    path != 'value'
//	path == null       path != null
//	path in ['a', 'b']
//
// Values quoted with single or double quotes compare as strings; everything
// else compares against the field's compact JSON encoding, so `index == 0`
// and `done == true` work as expected. Expressions are compiled when the
// manifest loads; evaluation never errors.
type MatchExpr struct {
	src    string
	groups [][]condition
}

type condOp uint8

const (
	condExists condOp = iota
	condIn
	condNotNull
	condIsNull
	condEq
	condNe
)

type condition struct {
	op     condOp
	path   string
	value  string
	values []string
}

// CompileMatch parses expr. Malformed expressions fail here, at load time,
// never during stream evaluation.
func CompileMatch(expr string) (*MatchExpr, error) {
	src := strings.TrimSpace(expr)
	if src == "" {
		return nil, fmt.Errorf("empty match expression")
	}
	m := &MatchExpr{src: src}
	for _, group := range strings.Split(src, "||") {
		conds, err := compileGroup(group)
		if err != nil {
			return nil, fmt.Errorf("match %q: %w", src, err)
		}
		m.groups = append(m.groups, conds)
	}
	return m, nil
}

func compileGroup(group string) ([]condition, error) {
	parts := strings.Split(group, "&&")
	conds := make([]condition, 0, len(parts))
	for _, part := range parts {
		c, err := compileCondition(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, nil
}

func compileCondition(s string) (condition, error) {
	var c condition
	switch {
	case s == "":
		return c, fmt.Errorf("empty condition")

	case strings.HasPrefix(s, "exists(") && strings.HasSuffix(s, ")"):
		c.op = condExists
		c.path = strings.TrimSpace(s[len("exists(") : len(s)-1])

	case strings.Contains(s, " in "):
		idx := strings.Index(s, " in ")
		c.op = condIn
		c.path = strings.TrimSpace(s[:idx])
		list := strings.TrimSpace(s[idx+len(" in "):])
		if !strings.HasPrefix(list, "[") || !strings.HasSuffix(list, "]") {
			return c, fmt.Errorf("condition %q: expected a [...] list after 'in'", s)
		}
		for _, v := range strings.Split(list[1:len(list)-1], ",") {
			c.values = append(c.values, trimQuotes(v))
		}

	case strings.HasSuffix(s, "!= null"):
		c.op = condNotNull
		c.path = strings.TrimSpace(strings.TrimSuffix(s, "!= null"))

	case strings.HasSuffix(s, "== null"):
		c.op = condIsNull
		c.path = strings.TrimSpace(strings.TrimSuffix(s, "== null"))

	case strings.Contains(s, "=="):
		idx := strings.Index(s, "==")
		c.op = condEq
		c.path = strings.TrimSpace(s[:idx])
		c.value = trimQuotes(s[idx+2:])

	case strings.Contains(s, "!="):
		idx := strings.Index(s, "!=")
		c.op = condNe
		c.path = strings.TrimSpace(s[:idx])
		c.value = trimQuotes(s[idx+2:])

	default:
		return c, fmt.Errorf("condition %q: unsupported form", s)
	}

	if c.path == "" {
		return c, fmt.Errorf("condition %q: empty path", s)
	}
	if _, err := splitPath(c.path); err != nil {
		return c, fmt.Errorf("condition %q: %w", s, err)
	}
	return c, nil
}

// Eval reports whether doc satisfies the expression. A group is true when
// all of its conditions hold; the expression is true when any group is.
func (m *MatchExpr) Eval(doc any) bool {
	for _, group := range m.groups {
		if evalGroup(group, doc) {
			return true
		}
	}
	return false
}

// String returns the source expression.
func (m *MatchExpr) String() string { return m.src }

func evalGroup(conds []condition, doc any) bool {
	for _, c := range conds {
		if !c.eval(doc) {
			return false
		}
	}
	return true
}

func (c condition) eval(doc any) bool {
	v, ok := GetPath(doc, c.path)
	switch c.op {
	case condExists:
		return ok
	case condNotNull:
		return ok && v != nil
	case condIsNull:
		return !ok || v == nil
	case condEq:
		return ok && fieldString(v) == c.value
	case condNe:
		return !ok || fieldString(v) != c.value
	case condIn:
		if !ok {
			return false
		}
		s := fieldString(v)
		for _, want := range c.values {
			if s == want {
				return true
			}
		}
	}
	return false
}

// fieldString renders a field value for comparison: strings as-is,
// everything else as compact JSON.
func fieldString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		last := len(s) - 1
		if (s[0] == '\'' && s[last] == '\'') || (s[0] == '"' && s[last] == '"') {
			return s[1:last]
		}
	}
	return s
}
