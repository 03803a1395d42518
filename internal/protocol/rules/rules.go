// Package rules is the scalar type rules table: for every scalar field kind
// the BSON element it is written as, the elements accepted back, the fixed
// payload width, and the native<->element conversion pair.
package rules

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"

	"github.com/danmuck/bsonctl/internal/protocol/schema"
	"github.com/danmuck/bsonctl/internal/protocol/value"
)

var (
	ErrTypeMismatch    = errors.New("rules: type mismatch")
	ErrValueOutOfRange = errors.New("rules: value out of range")
	ErrUnsupportedKind = errors.New("rules: unsupported kind")
)

// AppendFunc writes v as the element key of dst.
type AppendFunc func(dst []byte, key string, f *schema.Field, v value.Value) ([]byte, error)

// ReadFunc converts one element back into a native value.
type ReadFunc func(f *schema.Field, raw bsoncore.Value) (value.Value, error)

// Rule describes how one scalar kind travels.
type Rule struct {
	Kind   schema.Kind
	Tag    bsontype.Type   // element written; zero when the kind cannot be encoded
	Accept []bsontype.Type // elements read back
	Width  int             // payload bytes for fixed-width elements, 0 otherwise
	Min    int64           // integer range, valid when Kind.Integer()
	Max    uint64
	Append AppendFunc
	Read   ReadFunc
}

var integers = []bsontype.Type{bsontype.Int32, bsontype.Int64}

var table = [...]Rule{
	schema.Int8:   intRule(schema.Int8, bsontype.Int32, math.MinInt8, math.MaxInt8),
	schema.Int16:  intRule(schema.Int16, bsontype.Int32, math.MinInt16, math.MaxInt16),
	schema.Int32:  intRule(schema.Int32, bsontype.Int32, math.MinInt32, math.MaxInt32),
	schema.Int64:  intRule(schema.Int64, bsontype.Int64, math.MinInt64, math.MaxInt64),
	schema.UInt8:  intRule(schema.UInt8, bsontype.Int32, 0, math.MaxUint8),
	schema.UInt16: intRule(schema.UInt16, bsontype.Int32, 0, math.MaxUint16),
	schema.UInt32: intRule(schema.UInt32, bsontype.Int64, 0, math.MaxUint32),
	schema.UInt64: {
		Kind:   schema.UInt64,
		Accept: integers,
		Min:    0,
		Max:    math.MaxUint64,
		Append: func(dst []byte, _ string, _ *schema.Field, _ value.Value) ([]byte, error) {
			return dst, fmt.Errorf("%w: uint64 has no BSON element", ErrUnsupportedKind)
		},
		Read: readInteger(0, math.MaxUint64),
	},
	schema.Double: {
		Kind:   schema.Double,
		Tag:    bsontype.Double,
		Accept: []bsontype.Type{bsontype.Double, bsontype.Int32, bsontype.Int64},
		Width:  8,
		Append: appendDouble,
		Read:   readDouble,
	},
	schema.Decimal128: {
		Kind:   schema.Decimal128,
		Tag:    bsontype.Decimal128,
		Accept: []bsontype.Type{bsontype.Decimal128},
		Width:  16,
		Append: appendDecimal,
		Read:   readDecimal,
	},
	schema.String: {
		Kind:   schema.String,
		Tag:    bsontype.String,
		Accept: []bsontype.Type{bsontype.String},
		Append: appendString,
		Read:   readString,
	},
	schema.Bytes: {
		Kind:   schema.Bytes,
		Tag:    bsontype.Binary,
		Accept: []bsontype.Type{bsontype.Binary, bsontype.String},
		Append: appendBytes,
		Read:   readBytes,
	},
}

// byteString replaces the Bytes rule for fields with Options.ByteString.
var byteString = Rule{
	Kind:   schema.Bytes,
	Tag:    bsontype.String,
	Accept: []bsontype.Type{bsontype.String},
	Append: appendByteString,
	Read:   readByteString,
}

func intRule(kind schema.Kind, tag bsontype.Type, lo int64, hi uint64) Rule {
	width := 4
	if tag == bsontype.Int64 {
		width = 8
	}
	return Rule{
		Kind:   kind,
		Tag:    tag,
		Accept: integers,
		Width:  width,
		Min:    lo,
		Max:    hi,
		Append: appendInteger(tag, lo, hi),
		Read:   readInteger(lo, hi),
	}
}

// Lookup returns the rule for a scalar field, honouring its options.
func Lookup(f *schema.Field) (Rule, error) {
	if !f.Kind.Scalar() {
		return Rule{}, fmt.Errorf("%w: %s is not a scalar kind", ErrUnsupportedKind, f.Kind)
	}
	if f.Kind == schema.Bytes && f.Options.ByteString {
		return byteString, nil
	}
	return table[f.Kind], nil
}

// Table returns a copy of every scalar rule in kind order, followed by the
// string presentation of byte fields.
func Table() []Rule {
	out := make([]Rule, 0, len(table))
	for _, r := range table {
		if r.Kind == schema.KindInvalid {
			continue
		}
		out = append(out, r)
	}
	return append(out, byteString)
}

// Accepts reports whether the rule reads elements tagged t.
func (r Rule) Accepts(t bsontype.Type) bool {
	for _, a := range r.Accept {
		if a == t {
			return true
		}
	}
	return false
}

func mismatch(f *schema.Field, got string) error {
	return fmt.Errorf("%w: %s field cannot hold %s", ErrTypeMismatch, f.Type(), got)
}

func outOfRange(f *schema.Field, v any) error {
	return fmt.Errorf("%w: %v does not fit %s", ErrValueOutOfRange, v, f.Type())
}

// appendInteger range checks against [lo, hi] and widens to tag.
func appendInteger(tag bsontype.Type, lo int64, hi uint64) AppendFunc {
	return func(dst []byte, key string, f *schema.Field, v value.Value) ([]byte, error) {
		var n int64
		switch v.Kind() {
		case value.IntKind:
			n, _ = v.Int()
			if n < lo || (n > 0 && uint64(n) > hi) {
				return dst, outOfRange(f, n)
			}
		case value.UintKind:
			u, _ := v.Uint()
			if u > hi || u > math.MaxInt64 {
				return dst, outOfRange(f, u)
			}
			n = int64(u)
		default:
			return dst, mismatch(f, v.Kind().String())
		}
		if tag == bsontype.Int32 {
			return bsoncore.AppendInt32Element(dst, key, int32(n)), nil
		}
		return bsoncore.AppendInt64Element(dst, key, n), nil
	}
}

func readInteger(lo int64, hi uint64) ReadFunc {
	return func(f *schema.Field, raw bsoncore.Value) (value.Value, error) {
		var n int64
		switch raw.Type {
		case bsontype.Int32:
			i, _ := raw.Int32OK()
			n = int64(i)
		case bsontype.Int64:
			n, _ = raw.Int64OK()
		default:
			return value.Value{}, mismatch(f, raw.Type.String())
		}
		if n < lo || (n > 0 && uint64(n) > hi) {
			return value.Value{}, outOfRange(f, n)
		}
		if f.Kind.Unsigned() {
			return value.Uint(uint64(n)), nil
		}
		return value.Int(n), nil
	}
}

func appendDouble(dst []byte, key string, f *schema.Field, v value.Value) ([]byte, error) {
	switch v.Kind() {
	case value.DoubleKind:
		d, _ := v.Double()
		return bsoncore.AppendDoubleElement(dst, key, d), nil
	case value.IntKind:
		i, _ := v.Int()
		return bsoncore.AppendDoubleElement(dst, key, float64(i)), nil
	case value.UintKind:
		u, _ := v.Uint()
		return bsoncore.AppendDoubleElement(dst, key, float64(u)), nil
	}
	return dst, mismatch(f, v.Kind().String())
}

func readDouble(f *schema.Field, raw bsoncore.Value) (value.Value, error) {
	switch raw.Type {
	case bsontype.Double:
		d, _ := raw.DoubleOK()
		return value.Double(d), nil
	case bsontype.Int32:
		i, _ := raw.Int32OK()
		return value.Double(float64(i)), nil
	case bsontype.Int64:
		i, _ := raw.Int64OK()
		return value.Double(float64(i)), nil
	}
	return value.Value{}, mismatch(f, raw.Type.String())
}

func appendDecimal(dst []byte, key string, f *schema.Field, v value.Value) ([]byte, error) {
	var d primitive.Decimal128
	switch v.Kind() {
	case value.DecimalKind:
		d, _ = v.Decimal()
	case value.StringKind:
		s, _ := v.Text()
		parsed, err := primitive.ParseDecimal128(s)
		if err != nil {
			return dst, fmt.Errorf("%w: %q is not a decimal", ErrTypeMismatch, s)
		}
		d = parsed
	case value.IntKind:
		i, _ := v.Int()
		d, _ = primitive.ParseDecimal128(strconv.FormatInt(i, 10))
	case value.UintKind:
		u, _ := v.Uint()
		d, _ = primitive.ParseDecimal128(strconv.FormatUint(u, 10))
	default:
		return dst, mismatch(f, v.Kind().String())
	}
	return bsoncore.AppendDecimal128Element(dst, key, d), nil
}

func readDecimal(f *schema.Field, raw bsoncore.Value) (value.Value, error) {
	d, ok := raw.Decimal128OK()
	if !ok {
		return value.Value{}, mismatch(f, raw.Type.String())
	}
	return value.Decimal(d), nil
}

func appendString(dst []byte, key string, f *schema.Field, v value.Value) ([]byte, error) {
	s, ok := v.Text()
	if !ok {
		return dst, mismatch(f, v.Kind().String())
	}
	if !utf8.ValidString(s) {
		return dst, mismatch(f, "invalid UTF-8")
	}
	return bsoncore.AppendStringElement(dst, key, s), nil
}

func readString(f *schema.Field, raw bsoncore.Value) (value.Value, error) {
	s, ok := raw.StringValueOK()
	if !ok {
		return value.Value{}, mismatch(f, raw.Type.String())
	}
	if !utf8.ValidString(s) {
		return value.Value{}, mismatch(f, "invalid UTF-8")
	}
	return value.String(s), nil
}

// blob returns the raw bytes of a Bytes or String native value.
func blob(f *schema.Field, v value.Value) ([]byte, error) {
	switch v.Kind() {
	case value.BytesKind:
		b, _ := v.Bytes()
		return b, nil
	case value.StringKind:
		s, _ := v.Text()
		return []byte(s), nil
	}
	return nil, mismatch(f, v.Kind().String())
}

// Byte blobs always travel at exactly the declared width; shorter native
// values are zero padded.
func appendBytes(dst []byte, key string, f *schema.Field, v value.Value) ([]byte, error) {
	b, err := blob(f, v)
	if err != nil {
		return dst, err
	}
	if len(b) > f.Size {
		return dst, outOfRange(f, fmt.Sprintf("%d bytes", len(b)))
	}
	if len(b) < f.Size {
		padded := make([]byte, f.Size)
		copy(padded, b)
		b = padded
	}
	return bsoncore.AppendBinaryElement(dst, key, bsontype.BinaryGeneric, b), nil
}

func readBytes(f *schema.Field, raw bsoncore.Value) (value.Value, error) {
	var b []byte
	switch raw.Type {
	case bsontype.Binary:
		_, data, _ := raw.BinaryOK()
		b = data
	case bsontype.String:
		s, _ := raw.StringValueOK()
		b = []byte(s)
	default:
		return value.Value{}, mismatch(f, raw.Type.String())
	}
	if len(b) > f.Size {
		return value.Value{}, outOfRange(f, fmt.Sprintf("%d bytes", len(b)))
	}
	out := make([]byte, f.Size)
	copy(out, b)
	return value.Bytes(out), nil
}

func appendByteString(dst []byte, key string, f *schema.Field, v value.Value) ([]byte, error) {
	b, err := blob(f, v)
	if err != nil {
		return dst, err
	}
	if len(b) > f.Size {
		return dst, outOfRange(f, fmt.Sprintf("%d bytes", len(b)))
	}
	switch f.Options.Trim {
	case schema.TrimPadded:
		if len(b) < f.Size {
			padded := make([]byte, f.Size)
			copy(padded, b)
			b = padded
		}
	default:
		if i := bytes.IndexByte(b, 0); i >= 0 {
			b = b[:i]
		}
	}
	if !utf8.Valid(b) {
		return dst, mismatch(f, "invalid UTF-8")
	}
	return bsoncore.AppendStringElement(dst, key, string(b)), nil
}

func readByteString(f *schema.Field, raw bsoncore.Value) (value.Value, error) {
	s, ok := raw.StringValueOK()
	if !ok {
		return value.Value{}, mismatch(f, raw.Type.String())
	}
	if len(s) > f.Size {
		return value.Value{}, outOfRange(f, fmt.Sprintf("%d bytes", len(s)))
	}
	if !utf8.ValidString(s) {
		return value.Value{}, mismatch(f, "invalid UTF-8")
	}
	switch f.Options.Trim {
	case schema.TrimPadded:
		if len(s) < f.Size {
			padded := make([]byte, f.Size)
			copy(padded, s)
			s = string(padded)
		}
	default:
		if i := strings.IndexByte(s, 0); i >= 0 {
			s = s[:i]
		}
	}
	return value.String(s), nil
}
