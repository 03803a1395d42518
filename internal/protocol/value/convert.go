package value

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BinaryKey wraps byte values in their JSON form, following MongoDB Extended
// JSON: {"$binary": {"base64": "...", "subType": "00"}}. Schema identifiers
// cannot start with '$', so the wrapper never shadows a record field.
const BinaryKey = "$binary"

// FromGo converts a loosely typed Go value, such as the output of
// encoding/json with UseNumber, into a Value. Maps become records; the
// encoder reinterprets single-key records as union values where the schema
// declares a union.
func FromGo(in any) (Value, error) {
	switch v := in.(type) {
	case Value:
		return v, nil
	case Record:
		return Doc(v), nil
	case int:
		return Int(int64(v)), nil
	case int8:
		return Int(int64(v)), nil
	case int16:
		return Int(int64(v)), nil
	case int32:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	case uint:
		return Uint(uint64(v)), nil
	case uint8:
		return Uint(uint64(v)), nil
	case uint16:
		return Uint(uint64(v)), nil
	case uint32:
		return Uint(uint64(v)), nil
	case uint64:
		return Uint(v), nil
	case float32:
		return Double(float64(v)), nil
	case float64:
		return Double(v), nil
	case json.Number:
		return fromNumber(v)
	case primitive.Decimal128:
		return Decimal(v), nil
	case string:
		return String(v), nil
	case []byte:
		return Bytes(v), nil
	case []any:
		items := make([]Value, len(v))
		for i, item := range v {
			conv, err := FromGo(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = conv
		}
		return Array(items...), nil
	case map[string]any:
		if b, ok, err := fromBinary(v); ok {
			return b, err
		}
		rec, err := RecordFromGo(v)
		if err != nil {
			return Value{}, err
		}
		return Doc(rec), nil
	default:
		return Value{}, fmt.Errorf("value: unsupported native type %T", in)
	}
}

// RecordFromGo converts every entry of m with FromGo.
func RecordFromGo(m map[string]any) (Record, error) {
	rec := make(Record, len(m))
	for k, item := range m {
		conv, err := FromGo(item)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		rec[k] = conv
	}
	return rec, nil
}

// fromBinary recognises the BinaryKey wrapper. The inner value is either the
// canonical {"base64", "subType"} object or a bare base64 string.
func fromBinary(m map[string]any) (Value, bool, error) {
	raw, ok := m[BinaryKey]
	if !ok || len(m) != 1 {
		return Value{}, false, nil
	}
	var text string
	switch inner := raw.(type) {
	case string:
		text = inner
	case map[string]any:
		s, ok := inner["base64"].(string)
		if !ok {
			return Value{}, true, fmt.Errorf("value: %s needs a base64 string", BinaryKey)
		}
		if sub, ok := inner["subType"]; ok && sub != "00" && sub != "0" {
			return Value{}, true, fmt.Errorf("value: %s subtype %v unsupported", BinaryKey, sub)
		}
		text = s
	default:
		return Value{}, true, fmt.Errorf("value: %s holds %T", BinaryKey, raw)
	}
	b, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return Value{}, true, fmt.Errorf("value: %s: %w", BinaryKey, err)
	}
	return Bytes(b), true, nil
}

func fromNumber(n json.Number) (Value, error) {
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return Int(i), nil
	}
	if u, err := strconv.ParseUint(string(n), 10, 64); err == nil {
		return Uint(u), nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return Value{}, fmt.Errorf("value: invalid number %q", n)
	}
	return Double(f), nil
}

// Interface converts v back into plain Go values: int64, uint64, float64,
// string (decimals use their canonical text), []any and map[string]any.
// Bytes become the BinaryKey wrapper, which FromGo reads back; a union
// becomes a single-key map.
func (v Value) Interface() any {
	switch v.kind {
	case IntKind:
		return v.i
	case UintKind:
		return v.u
	case DoubleKind:
		return v.f
	case DecimalKind:
		return v.d.String()
	case StringKind:
		return v.s
	case BytesKind:
		return map[string]any{BinaryKey: map[string]any{
			"base64":  base64.StdEncoding.EncodeToString(v.b),
			"subType": "00",
		}}
	case ArrayKind:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case RecordKind:
		return v.rec.Interface()
	case UnionKind:
		if len(v.list) != 1 {
			return nil
		}
		return map[string]any{v.s: v.list[0].Interface()}
	default:
		return nil
	}
}

// Interface converts every entry of r with Value.Interface.
func (r Record) Interface() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v.Interface()
	}
	return out
}
