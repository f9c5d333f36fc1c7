package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// TimestampLayout renders canonical timestamps: ISO-8601, UTC, no zone suffix.
const TimestampLayout = "2006-01-02T15:04:05.999999999"

// Kind identifies which member of the Value union is set.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindNumber
	KindTime
	KindNested
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindTime:
		return "time"
	case KindNested:
		return "nested"
	default:
		return "unknown"
	}
}

// Value is a single field value of a record. Nested holds maps and slices
// carried through from a source that were never flattened.
type Value struct {
	kind   Kind
	text   string
	num    float64
	at     time.Time
	nested any
}

func Null() Value              { return Value{} }
func Text(s string) Value      { return Value{kind: KindText, text: s} }
func Number(f float64) Value   { return Value{kind: KindNumber, num: f} }
func Time(t time.Time) Value   { return Value{kind: KindTime, at: t} }
func Nested(v any) Value       { return Value{kind: KindNested, nested: v} }
func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) IsScalar() bool { return v.kind != KindNested }

// TextValue returns the text and whether v holds text.
func (v Value) TextValue() (string, bool) { return v.text, v.kind == KindText }

// NumberValue returns the number and whether v holds a number.
func (v Value) NumberValue() (float64, bool) { return v.num, v.kind == KindNumber }

// TimeValue returns the instant and whether v holds one.
func (v Value) TimeValue() (time.Time, bool) { return v.at, v.kind == KindTime }

// NestedValue returns the nested structure and whether v holds one.
func (v Value) NestedValue() (any, bool) { return v.nested, v.kind == KindNested }

// FromAny converts a decoded source value into a Value. It never fails:
// unknown types are rendered as text.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return Text(t)
	case []byte:
		return Text(string(t))
	case bool:
		return Text(strconv.FormatBool(t))
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int8:
		return Number(float64(t))
	case int16:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case uint8:
		return Number(float64(t))
	case uint16:
		return Number(float64(t))
	case uint32:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Text(t.String())
		}
		return Number(f)
	case time.Time:
		return Time(t)
	case map[string]any, []any:
		return Nested(t)
	default:
		return Text(fmt.Sprint(t))
	}
}

// Any returns the plain Go representation of v (nil, string, float64,
// time.Time or the nested structure).
func (v Value) Any() any {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return v.num
	case KindTime:
		return v.at
	case KindNested:
		return v.nested
	default:
		return nil
	}
}

// String renders v for logs and comparison keys.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindTime:
		return FormatTimestamp(v.at)
	case KindNested:
		b, err := marshalNoEscape(v.nested)
		if err != nil {
			return fmt.Sprint(v.nested)
		}
		return string(b)
	default:
		return ""
	}
}

// FormatTimestamp renders t in the canonical timestamp layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// MarshalJSON renders numbers that JSON cannot carry (NaN, ±Inf) as null.
// Nested values are written as their JSON text so output values are only
// strings, numbers or null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText:
		return marshalNoEscape(v.text)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.num)
	case KindTime:
		return marshalNoEscape(FormatTimestamp(v.at))
	case KindNested:
		return marshalNoEscape(v.String())
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes any JSON value through FromAny.
func (v *Value) UnmarshalJSON(b []byte) error {
	var x any
	if err := json.Unmarshal(b, &x); err != nil {
		return err
	}
	*v = FromAny(x)
	return nil
}
