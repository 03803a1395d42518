// Package value holds the native side of the codec: a closed tagged variant
// checked against field kinds at encode time.
package value

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind tags the payload carried by a Value.
type Kind uint8

const (
	Invalid Kind = iota
	IntKind
	UintKind
	DoubleKind
	DecimalKind
	StringKind
	BytesKind
	ArrayKind
	RecordKind
	UnionKind
)

var kindNames = [...]string{"invalid", "int", "uint", "double", "decimal", "string", "bytes", "array", "record", "union"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Record is a native associative value keyed by field name.
type Record map[string]Value

// Value is one native field value. The zero Value is Invalid.
type Value struct {
	kind Kind
	i    int64
	u    uint64
	f    float64
	d    primitive.Decimal128
	s    string // string payload or union variant name
	b    []byte
	list []Value
	rec  Record
}

func Int(v int64) Value { return Value{kind: IntKind, i: v} }
func Uint(v uint64) Value { return Value{kind: UintKind, u: v} }
func Double(v float64) Value { return Value{kind: DoubleKind, f: v} }
func Decimal(v primitive.Decimal128) Value { return Value{kind: DecimalKind, d: v} }
func String(v string) Value { return Value{kind: StringKind, s: v} }
func Bytes(v []byte) Value { return Value{kind: BytesKind, b: v} }
func Array(items ...Value) Value { return Value{kind: ArrayKind, list: items} }
func Doc(r Record) Value { return Value{kind: RecordKind, rec: r} }

// Union returns a union value with exactly one active variant.
func Union(variant string, v Value) Value {
	return Value{kind: UnionKind, s: variant, list: []Value{v}}
}

// ParseDecimal parses s as an exact 128-bit decimal.
func ParseDecimal(s string) (Value, error) {
	d, err := primitive.ParseDecimal128(s)
	if err != nil {
		return Value{}, err
	}
	return Decimal(d), nil
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) Int() (int64, bool) { return v.i, v.kind == IntKind }
func (v Value) Uint() (uint64, bool) { return v.u, v.kind == UintKind }
func (v Value) Double() (float64, bool) { return v.f, v.kind == DoubleKind }
func (v Value) Decimal() (primitive.Decimal128, bool) {
	return v.d, v.kind == DecimalKind
}
func (v Value) Text() (string, bool) { return v.s, v.kind == StringKind }
func (v Value) Bytes() ([]byte, bool) { return v.b, v.kind == BytesKind }
func (v Value) Items() ([]Value, bool) { return v.list, v.kind == ArrayKind }
func (v Value) Record() (Record, bool) { return v.rec, v.kind == RecordKind }

// Variant returns the active variant of a union value.
func (v Value) Variant() (string, Value, bool) {
	if v.kind != UnionKind || len(v.list) != 1 {
		return "", Value{}, false
	}
	return v.s, v.list[0], true
}

// Equal reports deep equality. Doubles compare by value with NaN equal to
// NaN; decimals compare by their 128-bit encoding.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case Invalid:
		return true
	case IntKind:
		return v.i == o.i
	case UintKind:
		return v.u == o.u
	case DoubleKind:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case DecimalKind:
		return v.d == o.d
	case StringKind:
		return v.s == o.s
	case BytesKind:
		return bytes.Equal(v.b, o.b)
	case ArrayKind:
		return equalList(v.list, o.list)
	case RecordKind:
		return v.rec.Equal(o.rec)
	case UnionKind:
		return v.s == o.s && equalList(v.list, o.list)
	}
	return false
}

func equalList(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Equal reports whether both records hold the same keys with equal values.
func (r Record) Equal(o Record) bool {
	if len(r) != len(o) {
		return false
	}
	for k, v := range r {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Keys returns the record keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v Value) String() string {
	var b strings.Builder
	v.format(&b)
	return b.String()
}

func (v Value) format(b *strings.Builder) {
	switch v.kind {
	case IntKind:
		fmt.Fprintf(b, "%d", v.i)
	case UintKind:
		fmt.Fprintf(b, "%du", v.u)
	case DoubleKind:
		fmt.Fprintf(b, "%g", v.f)
	case DecimalKind:
		b.WriteString(v.d.String())
		b.WriteString("d")
	case StringKind:
		fmt.Fprintf(b, "%q", v.s)
	case BytesKind:
		fmt.Fprintf(b, "0x%x", v.b)
	case ArrayKind:
		b.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				b.WriteString(", ")
			}
			item.format(b)
		}
		b.WriteByte(']')
	case RecordKind:
		v.rec.format(b)
	case UnionKind:
		fmt.Fprintf(b, "<%s: ", v.s)
		if len(v.list) == 1 {
			v.list[0].format(b)
		}
		b.WriteByte('>')
	default:
		b.WriteString("<invalid>")
	}
}

func (r Record) String() string {
	var b strings.Builder
	r.format(&b)
	return b.String()
}

func (r Record) format(b *strings.Builder) {
	b.WriteByte('{')
	for i, k := range r.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		r[k].format(b)
	}
	b.WriteByte('}')
}
