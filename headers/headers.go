// Package headers implements the ordered (name, value) header list shared
// by requests and responses. Names are compared case-insensitively;
// retrieval returns all matches in original insertion order. HTTP/2
// pseudo-headers are first-class and sort before regular headers when
// rendered onto the wire.
package headers

import "strings"

// Headers is an ordered sequence of (name, value) pairs.
type Headers struct {
	names  []string // as supplied by the caller, original case
	values []string
}

// New returns an empty Headers list.
func New() *Headers { return &Headers{} }

// IsPseudo reports whether name is an HTTP/2 pseudo-header
// (":method", ":scheme", ":authority", ":path", ":status").
func IsPseudo(name string) bool {
	return strings.HasPrefix(name, ":")
}

// Add appends (name, value), preserving any existing entries for name.
func (h *Headers) Add(name, value string) *Headers {
	h.names = append(h.names, name)
	h.values = append(h.values, value)
	return h
}

// Set removes all existing entries for name and adds a single (name, value).
func (h *Headers) Set(name, value string) *Headers {
	h.Remove(name)
	return h.Add(name, value)
}

// Remove deletes every entry whose name matches (case-insensitively).
func (h *Headers) Remove(name string) *Headers {
	names := h.names[:0:0]
	values := h.values[:0:0]
	for i, n := range h.names {
		if !strings.EqualFold(n, name) {
			names = append(names, n)
			values = append(values, h.values[i])
		}
	}
	h.names, h.values = names, values
	return h
}

// Get returns the first value for name, and whether it was present.
func (h *Headers) Get(name string) (string, bool) {
	for i, n := range h.names {
		if strings.EqualFold(n, name) {
			return h.values[i], true
		}
	}
	return "", false
}

// Values returns all values for name in insertion order.
func (h *Headers) Values(name string) []string {
	var out []string
	for i, n := range h.names {
		if strings.EqualFold(n, name) {
			out = append(out, h.values[i])
		}
	}
	return out
}

// Len returns the number of (name, value) pairs, including duplicates.
func (h *Headers) Len() int { return len(h.names) }

// NameAt and ValueAt give positional access for wire encoders that need to
// walk pairs in order (HPACK, HTTP/1 line-by-line emission).
func (h *Headers) NameAt(i int) string  { return h.names[i] }
func (h *Headers) ValueAt(i int) string { return h.values[i] }

// Range calls fn for every (name, value) pair in insertion order.
func (h *Headers) Range(fn func(name, value string)) {
	for i, n := range h.names {
		fn(n, h.values[i])
	}
}

// Clone returns an independent copy.
func (h *Headers) Clone() *Headers {
	return &Headers{
		names:  append([]string(nil), h.names...),
		values: append([]string(nil), h.values...),
	}
}

// WireOrder returns the pairs in the order they must appear on an HTTP/2
// wire: all pseudo-headers first (in their original relative order), then
// all regular headers.
func (h *Headers) WireOrder() []Pair {
	out := make([]Pair, 0, len(h.names))
	for i, n := range h.names {
		if IsPseudo(n) {
			out = append(out, Pair{n, h.values[i]})
		}
	}
	for i, n := range h.names {
		if !IsPseudo(n) {
			out = append(out, Pair{n, h.values[i]})
		}
	}
	return out
}

// Pair is a single (name, value) header entry.
type Pair struct {
	Name  string
	Value string
}

// Builder constructs a Headers list fluently, e.g. for the bridge
// interceptor assembling default headers.
type Builder struct {
	h Headers
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// Add appends (name, value) and returns the builder for chaining.
func (b *Builder) Add(name, value string) *Builder {
	b.h.Add(name, value)
	return b
}

// Build returns the assembled Headers.
func (b *Builder) Build() *Headers { return b.h.Clone() }
