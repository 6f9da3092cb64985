package core

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"rocklandcensus/internal/geo"
)

type (
	GeoKey = geo.GeoKey
	Place  = geo.Place
)

// Field names every record carries regardless of which sources answered.
const (
	FieldGeoKey      = "ZipCode"
	FieldDisplayName = "TownName"
	// FieldPlaceName is the upstream NAME column. Every source reports it, so the
	// merge overlay resolves it with last-writer-wins.
	FieldPlaceName = "ZCTA_Name"
)

type valueKind uint8

const (
	kindNull valueKind = iota
	kindNumber
	kindText
)

// Value is a single cell: a number, a label, or null.
type Value struct {
	kind valueKind
	num  float64
	text string
}

// Null is the absent value.
var Null = Value{}

// Number wraps a numeric value.
func Number(f float64) Value { return Value{kind: kindNumber, num: f} }

// Text wraps a label value.
func Text(s string) Value { return Value{kind: kindText, text: s} }

// ParseNumber converts upstream text into a number. Empty, non-numeric and
// non-finite input resolves to Null.
func ParseNumber(raw string) Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Null
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Null
	}
	return Number(f)
}

// IsNull reports whether the value is absent.
func (v Value) IsNull() bool { return v.kind == kindNull }

// Float returns the numeric value when v holds a number.
func (v Value) Float() (float64, bool) {
	if v.kind != kindNumber {
		return 0, false
	}
	return v.num, true
}

// String renders the value the way it appears in delimited output. Null is
// the empty string.
func (v Value) String() string {
	switch v.kind {
	case kindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case kindText:
		return v.text
	default:
		return ""
	}
}

// MarshalJSON encodes null, a JSON number, or a JSON string.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindNumber:
		return []byte(strconv.FormatFloat(v.num, 'f', -1, 64)), nil
	case kindText:
		return json.Marshal(v.text)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, numbers and strings.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*v = Null
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return err
	}
	*v = Number(f)
	return nil
}

// Field is a named value inside a record.
type Field struct {
	Name  string
	Value Value
}

// Record is an ordered set of fields for one key. Setting an existing field
// replaces its value in place, so column order is the order of first insertion.
type Record struct {
	Key    GeoKey
	Name   string
	fields []Field
	index  map[string]int
}

// NewRecord returns a record holding only the identifying fields.
func NewRecord(key GeoKey, name string) *Record {
	r := &Record{Key: key, Name: name, index: make(map[string]int)}
	r.Set(FieldGeoKey, Text(string(key)))
	r.Set(FieldDisplayName, Text(name))
	return r
}

// Set writes a field value, keeping the original position if the field exists.
func (r *Record) Set(name string, v Value) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[name]; ok {
		r.fields[i].Value = v
		return
	}
	r.index[name] = len(r.fields)
	r.fields = append(r.fields, Field{Name: name, Value: v})
}

// Get returns a field value and whether the field is present.
func (r *Record) Get(name string) (Value, bool) {
	i, ok := r.index[name]
	if !ok {
		return Null, false
	}
	return r.fields[i].Value, true
}

// Has reports whether the field is present.
func (r *Record) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Fields returns a copy of the fields in order.
func (r *Record) Fields() []Field {
	return append([]Field(nil), r.fields...)
}

// FieldNames returns field names in order.
func (r *Record) FieldNames() []string {
	out := make([]string, len(r.fields))
	for i, f := range r.fields {
		out[i] = f.Name
	}
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int { return len(r.fields) }

// Overlay copies every field of src onto r in src order.
func (r *Record) Overlay(src *Record) {
	if src == nil {
		return
	}
	for _, f := range src.fields {
		r.Set(f.Name, f.Value)
	}
}

// Clone returns an independent copy.
func (r *Record) Clone() *Record {
	dup := &Record{Key: r.Key, Name: r.Name, index: make(map[string]int, len(r.fields))}
	dup.fields = append([]Field(nil), r.fields...)
	for k, v := range r.index {
		dup.index[k] = v
	}
	return dup
}

// MarshalJSON encodes the record as an object with keys in field order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Dataset is the merged result: one record per requested key, in request order.
type Dataset []*Record

// Keys returns the record keys in order.
func (d Dataset) Keys() []GeoKey {
	out := make([]GeoKey, len(d))
	for i, r := range d {
		out[i] = r.Key
	}
	return out
}

// Columns returns the union of field names in first-seen order.
func (d Dataset) Columns() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range d {
		for _, f := range r.fields {
			if _, ok := seen[f.Name]; ok {
				continue
			}
			seen[f.Name] = struct{}{}
			out = append(out, f.Name)
		}
	}
	return out
}
