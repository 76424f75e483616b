// Package formula builds record store filter expressions.
//
// Values are substituted literally. A value containing a single quote or a
// brace produces a broken expression; callers must reject such input before
// it gets here (see Safe).
package formula

import (
	"fmt"
	"sort"
	"strings"
)

// Value is either a scalar string or a list of strings.
type Value struct {
	one  string
	many []string
	list bool
}

func One(v string) Value { return Value{one: v} }

func Any(vs ...string) Value { return Value{many: vs, list: true} }

// Filters maps a field name to the value(s) it must contain.
type Filters map[string]Value

// Search returns SEARCH('v', {field}), or "" for an empty value.
func Search(field, value string) string {
	if value == "" {
		return ""
	}
	return fmt.Sprintf("SEARCH('%s', {%s})", value, field)
}

// SearchAny ORs one Search per value; an empty list yields "".
func SearchAny(field string, values []string) string {
	clauses := make([]string, 0, len(values))
	for _, v := range values {
		clauses = append(clauses, fmt.Sprintf("SEARCH('%s', {%s})", v, field))
	}
	if len(clauses) == 0 {
		return ""
	}
	return "OR(" + strings.Join(clauses, ", ") + ")"
}

// Equals matches a field exactly.
func Equals(field, value string) string {
	return fmt.Sprintf("{%s} = '%s'", field, value)
}

func clause(field string, v Value) string {
	if v.list {
		return SearchAny(field, v.many)
	}
	return Search(field, v.one)
}

// Build ANDs the clause of every field, in field name order. Fields whose
// value is empty are skipped; no remaining clause yields "" (match all).
func Build(f Filters) string {
	fields := make([]string, 0, len(f))
	for k := range f {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	clauses := make([]string, 0, len(fields))
	for _, k := range fields {
		if c := clause(k, f[k]); c != "" {
			clauses = append(clauses, c)
		}
	}
	if len(clauses) == 0 {
		return ""
	}
	return "AND(" + strings.Join(clauses, ", ") + ")"
}

// And combines already built expressions, dropping empty ones.
func And(exprs ...string) string {
	var kept []string
	for _, e := range exprs {
		if e != "" {
			kept = append(kept, e)
		}
	}
	switch len(kept) {
	case 0:
		return ""
	case 1:
		return kept[0]
	}
	return "AND(" + strings.Join(kept, ", ") + ")"
}

// Safe reports whether v can be substituted without breaking the expression.
func Safe(v string) bool {
	return !strings.ContainsAny(v, `'{}\`)
}
