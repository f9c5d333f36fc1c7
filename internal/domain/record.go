package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Canonical field names.
const (
	FieldStationID   = "station_id"
	FieldStationName = "station_name"
	FieldLatitude    = "latitude"
	FieldLongitude   = "longitude"
	FieldElevation   = "elevation"
	FieldTimestamp   = "timestamp"
)

// RequiredFields are present on every serialized record, null when unknown.
var RequiredFields = []string{
	FieldStationID,
	FieldStationName,
	FieldLatitude,
	FieldLongitude,
	FieldElevation,
	FieldTimestamp,
}

// Record is an ordered field -> value mapping. The zero value is an empty
// record ready for use.
type Record struct {
	origin string
	keys   []string
	values map[string]Value
}

// NewRecord returns an empty record attributed to the named source.
func NewRecord(origin string) Record {
	return Record{origin: origin, values: make(map[string]Value)}
}

// Origin is the name of the source that produced the record.
func (r *Record) Origin() string { return r.origin }

// Len reports the number of fields.
func (r *Record) Len() int { return len(r.keys) }

// Keys returns the field names in insertion order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Get returns the value of field k.
func (r *Record) Get(k string) (Value, bool) {
	v, ok := r.values[k]
	return v, ok
}

// Set assigns field k, appending it if new.
func (r *Record) Set(k string, v Value) {
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	if _, ok := r.values[k]; !ok {
		r.keys = append(r.keys, k)
	}
	r.values[k] = v
}

// Delete removes field k if present.
func (r *Record) Delete(k string) {
	if _, ok := r.values[k]; !ok {
		return
	}
	delete(r.values, k)
	for i, key := range r.keys {
		if key == k {
			r.keys = append(r.keys[:i:i], r.keys[i+1:]...)
			break
		}
	}
}

// Rename moves field from to name to, keeping its position. An existing
// field named to is replaced.
func (r *Record) Rename(from, to string) {
	v, ok := r.values[from]
	if !ok || from == to {
		return
	}
	r.Delete(to)
	for i, key := range r.keys {
		if key == from {
			r.keys[i] = to
			break
		}
	}
	delete(r.values, from)
	r.values[to] = v
}

// Clone returns a deep copy of the record's field table. Nested values are
// shared.
func (r *Record) Clone() Record {
	c := Record{origin: r.origin, keys: r.Keys(), values: make(map[string]Value, len(r.values))}
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// MarshalJSON writes the required fields first, then the rest in insertion
// order. Non-ASCII text is written literally.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(k string, v Value) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, err := marshalNoEscape(k)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := v.MarshalJSON()
		if err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
		buf.Write(vb)
		return nil
	}

	required := make(map[string]bool, len(RequiredFields))
	for _, k := range RequiredFields {
		required[k] = true
		if err := write(k, r.values[k]); err != nil {
			return nil, err
		}
	}
	for _, k := range r.keys {
		if required[k] {
			continue
		}
		if err := write(k, r.values[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a flat JSON object, preserving key order.
func (r *Record) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("record: expected JSON object")
	}
	rec := NewRecord(r.origin)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("record: unexpected key token %v", tok)
		}
		var x any
		if err := dec.Decode(&x); err != nil {
			return fmt.Errorf("record: field %q: %w", key, err)
		}
		rec.Set(key, FromAny(x))
	}
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	*r = rec
	return nil
}

// Dataset is the ordered run output. Duplicates are kept.
type Dataset []Record

// Columns returns the union of field names in first-seen order.
func (ds Dataset) Columns() []string {
	seen := make(map[string]bool)
	var cols []string
	for i := range ds {
		for _, k := range ds[i].keys {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
