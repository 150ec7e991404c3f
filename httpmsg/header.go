/*
 * MIT License
 *
 * Copyright (c) 2024 The HTTP Proxy Authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package httpmsg

import "strings"

// headerField is one header line as received: Name keeps its original
// case for emit, while lookups go through strings.EqualFold.
type headerField struct {
	Name  string
	Value string
}

// Header is a case-insensitive multimap preserving both original case and
// insertion order, per spec.md §3 ("case-insensitive multimap of headers
// preserving original case for emit").
type Header struct {
	fields []headerField
}

// Add appends a new occurrence of name=value without touching any
// existing occurrence.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, headerField{Name: name, Value: value})
}

// Set replaces every existing occurrence of name with a single value,
// preserving the position of the first existing occurrence (or appending
// if name is new).
func (h *Header) Set(name, value string) {
	for i := range h.fields {
		if strings.EqualFold(h.fields[i].Name, name) {
			h.fields[i] = headerField{Name: name, Value: value}
			h.removeAllBut(name, i)
			return
		}
	}
	h.Add(name, value)
}

func (h *Header) removeAllBut(name string, keep int) {
	out := h.fields[:0]
	for i, f := range h.fields {
		if i == keep || !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Get returns the first value for name, and whether it was present.
func (h *Header) Get(name string) (string, bool) {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns every value for name, in receive order.
func (h *Header) Values(name string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Del removes every occurrence of name.
func (h *Header) Del(name string) {
	out := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Has reports whether name was set at least once.
func (h *Header) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Each invokes fn for every field in insertion order.
func (h *Header) Each(fn func(name, value string)) {
	for _, f := range h.fields {
		fn(f.Name, f.Value)
	}
}

// Clone returns a deep copy.
func (h *Header) Clone() Header {
	out := Header{fields: make([]headerField, len(h.fields))}
	copy(out.fields, h.fields)
	return out
}

// Len returns the number of header lines (including duplicates).
func (h *Header) Len() int {
	return len(h.fields)
}

// containsToken reports whether a comma-separated header value contains
// token, case-insensitively, per hop-by-hop header matching in
// spec.md §4.6 (Connection: header-name lists).
func containsToken(value, token string) bool {
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
