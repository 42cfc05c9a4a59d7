package query

import "bytes"
import "encoding/json"
import "fmt"

// Row is the insertion-ordered attribute -> value mapping produced by the
// row mapper. It also carries the raw, upper-cased column -> value map
// the driver returned, so calculators and formatters can reach columns
// that were never projected as attributes.
type Row struct {
	order  []string
	values map[string]interface{}
	raw    map[string]interface{}
}

// NewRow returns an empty Row ready for Set/SetRaw calls.
func NewRow() *Row {
	return &Row{values: make(map[string]interface{}), raw: make(map[string]interface{})}
}

// Set assigns value to attr, appending attr to the insertion order the
// first time it is seen.
func (r *Row) Set(attr string, value interface{}) {
	if _, exists := r.values[attr]; !exists {
		r.order = append(r.order, attr)
	}
	r.values[attr] = value
}

// Get returns the projected value for attr.
func (r *Row) Get(attr string) (interface{}, bool) {
	v, ok := r.values[attr]
	return v, ok
}

// SetRaw stores a raw driver column value, keyed by upper-cased column
// name.
func (r *Row) SetRaw(column string, value interface{}) {
	r.raw[column] = value
}

// GetRaw returns a raw driver column value by upper-cased column name.
func (r *Row) GetRaw(column string) (interface{}, bool) {
	v, ok := r.raw[column]
	return v, ok
}

// Keys returns attribute names in insertion order.
func (r *Row) Keys() []string {
	return append([]string(nil), r.order...)
}

// Project returns a copy of r containing only the attributes named in
// selected, preserving r's original insertion order, or r itself if
// selected is nil (no explicit projection requested).
func (r *Row) Project(selected []string) *Row {
	if selected == nil {
		return r
	}
	want := make(map[string]bool, len(selected))
	for _, s := range selected {
		want[s] = true
	}
	out := NewRow()
	for _, key := range r.order {
		if want[key] {
			out.Set(key, r.values[key])
		}
	}
	out.raw = r.raw
	return out
}

// MarshalJSON renders the row as a JSON object preserving attribute
// insertion order, since Go's map iteration order is not guaranteed and
// the response envelope's row shape is expected to mirror the
// definition's attribute declaration order.
func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[key])
		if err != nil {
			return nil, fmt.Errorf("row: marshal attribute %q: %w", key, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
