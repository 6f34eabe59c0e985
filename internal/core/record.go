package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RawRecord is one record as received from a source API. Keys keep the
// order in which the API sent them.
type RawRecord struct {
	keys   []string
	values map[string]any
}

// NewRawRecord returns an empty record.
func NewRawRecord() *RawRecord {
	return &RawRecord{values: map[string]any{}}
}

// Set stores v under key, appending key if it is new.
func (r *RawRecord) Set(key string, v any) *RawRecord {
	if r.values == nil {
		r.values = map[string]any{}
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
	return r
}

// Get returns the value stored under key.
func (r *RawRecord) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the field names in source order.
func (r *RawRecord) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of fields.
func (r *RawRecord) Len() int {
	return len(r.keys)
}

// UnmarshalJSON decodes a JSON object keeping key order. Scalars decode to
// string, json.Number, bool or nil; arrays and objects are kept verbatim as
// json.RawMessage.
func (r *RawRecord) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record: expected JSON object, got %v", tok)
	}

	*r = RawRecord{values: map[string]any{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("record: unexpected key %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("record: field %q: %w", key, err)
		}
		v, err := decodeValue(raw)
		if err != nil {
			return fmt.Errorf("record: field %q: %w", key, err)
		}
		r.Set(key, v)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	switch trimmed[0] {
	case '[', '{':
		return json.RawMessage(trimmed), nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Record is a normalized record: every value is a string and the key order
// of the source record is preserved.
type Record struct {
	keys   []string
	values map[string]string
}

// NewRecord returns an empty normalized record.
func NewRecord() *Record {
	return &Record{values: map[string]string{}}
}

// Set stores v under key, appending key if it is new.
func (r *Record) Set(key, v string) *Record {
	if r.values == nil {
		r.values = map[string]string{}
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
	return r
}

// Get returns the value stored under key, or "" if there is none.
func (r *Record) Get(key string) string {
	return r.values[key]
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Keys returns the field names in source order. These become a tab header.
func (r *Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Values returns the field values in the record's own key order.
func (r *Record) Values() []string {
	out := make([]string, len(r.keys))
	for i, k := range r.keys {
		out[i] = r.values[k]
	}
	return out
}

// Raw converts the record back into a RawRecord.
func (r *Record) Raw() *RawRecord {
	raw := NewRawRecord()
	for _, k := range r.keys {
		raw.Set(k, r.values[k])
	}
	return raw
}

// Rows flattens records into spreadsheet rows.
func Rows(records []*Record) [][]string {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = r.Values()
	}
	return rows
}
