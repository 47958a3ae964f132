package servicenow

import "strings"

// Query builds encoded sysparm_query expressions. The Table API conjoins
// terms with '^', disjoins with '^OR', and embeds ordering directives in
// the same string.
type Query struct {
	parts []string
}

func NewQuery() *Query {
	return &Query{}
}

// Eq adds an exact-match term.
func (q *Query) Eq(field, value string) *Query {
	return q.raw(field + "=" + value)
}

// OrEq adds a disjunctive exact-match term bound to the previous term.
func (q *Query) OrEq(field, value string) *Query {
	if len(q.parts) == 0 {
		return q.Eq(field, value)
	}
	q.parts[len(q.parts)-1] += "^OR" + field + "=" + value
	return q
}

// Like adds a case-insensitive contains term.
func (q *Query) Like(field, value string) *Query {
	return q.raw(field + "LIKE" + value)
}

// After adds a strictly-greater-than term for a datetime field.
func (q *Query) After(field, value string) *Query {
	return q.raw(field + ">" + value)
}

// OrderBy appends an ascending ordering directive.
func (q *Query) OrderBy(field string) *Query {
	return q.raw("ORDERBY" + field)
}

// OrderByDesc appends a descending ordering directive.
func (q *Query) OrderByDesc(field string) *Query {
	return q.raw("ORDERBYDESC" + field)
}

func (q *Query) raw(term string) *Query {
	term = strings.TrimSpace(term)
	if term != "" {
		q.parts = append(q.parts, term)
	}
	return q
}

func (q *Query) String() string {
	if q == nil {
		return ""
	}
	return strings.Join(q.parts, "^")
}
