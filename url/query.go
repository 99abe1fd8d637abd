package url

import (
	"net/url"
	"strings"
)

// Query is an insertion-ordered multi-map of query parameters, matching the
// "encoded query multi-map (insertion-ordered)" invariant in the data
// model: unlike net/url.Values (a map[string][]string with no stable
// iteration order), repeated Add calls preserve the order keys were first
// seen and the order values were added within a key.
type Query struct {
	order []string
	vals  map[string][]string
}

// NewQuery returns an empty Query.
func NewQuery() *Query {
	return &Query{vals: make(map[string][]string)}
}

func parseQuery(raw string) (*Query, error) {
	q := NewQuery()
	if raw == "" {
		return q, nil
	}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		n, err := url.QueryUnescape(strings.ReplaceAll(name, "+", " "))
		if err != nil {
			n = name
		}
		v, err := url.QueryUnescape(strings.ReplaceAll(value, "+", " "))
		if err != nil {
			v = value
		}
		q.Add(n, v)
	}
	return q, nil
}

// Add appends value to the list of values for name, registering name in
// insertion order if it is new.
func (q *Query) Add(name, value string) {
	if _, ok := q.vals[name]; !ok {
		q.order = append(q.order, name)
	}
	q.vals[name] = append(q.vals[name], value)
}

// Set replaces all values for name with a single value.
func (q *Query) Set(name, value string) {
	if _, ok := q.vals[name]; !ok {
		q.order = append(q.order, name)
	}
	q.vals[name] = []string{value}
}

// Get returns the first value for name, or "" if absent.
func (q *Query) Get(name string) string {
	v := q.vals[name]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// All returns every value for name, in insertion order.
func (q *Query) All(name string) []string {
	return append([]string(nil), q.vals[name]...)
}

// Names returns the distinct parameter names, in first-seen order.
func (q *Query) Names() []string {
	return append([]string(nil), q.order...)
}

// Len returns the number of distinct parameter names.
func (q *Query) Len() int {
	if q == nil {
		return 0
	}
	return len(q.order)
}

// Clone returns a deep copy.
func (q *Query) Clone() *Query {
	if q == nil {
		return nil
	}
	c := NewQuery()
	for _, name := range q.order {
		c.order = append(c.order, name)
		c.vals[name] = append([]string(nil), q.vals[name]...)
	}
	return c
}

// Encode renders the query string in insertion order. It is the inverse of
// parseQuery: Parse(u.String()) round-trips both names and per-name value
// order.
func (q *Query) Encode() string {
	if q.Len() == 0 {
		return ""
	}
	var b strings.Builder
	first := true
	for _, name := range q.order {
		for _, v := range q.vals[name] {
			if !first {
				b.WriteByte('&')
			}
			first = false
			b.WriteString(url.QueryEscape(name))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
