package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseType builds a field from its textual type:
//
//	int8 .. uint64, double, decimal128, string  scalars
//	byteN                                       fixed byte blob of N bytes
//	T[N]                                        fixed array of N entries
//	*T                                          dynamic array
//	Name                                        sub-message or union reference
//
// References are classified later by ParseField or New's resolver; ParseType
// marks them SubRecord unless unions lists the name.
func ParseType(name, typ string, unions map[string]bool) (*Field, error) {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return nil, fmt.Errorf("schema: field %s: empty type", name)
	}
	if strings.HasPrefix(typ, "*") {
		elem, err := ParseType(name, typ[1:], unions)
		if err != nil {
			return nil, err
		}
		return &Field{Name: name, Kind: DynamicArray, Elem: elem}, nil
	}
	if strings.HasSuffix(typ, "]") {
		open := strings.LastIndexByte(typ, '[')
		if open <= 0 {
			return nil, fmt.Errorf("schema: field %s: malformed array type %q", name, typ)
		}
		count, err := strconv.Atoi(typ[open+1 : len(typ)-1])
		if err != nil || count <= 0 {
			return nil, fmt.Errorf("schema: field %s: invalid array count in %q", name, typ)
		}
		elem, err := ParseType(name, typ[:open], unions)
		if err != nil {
			return nil, err
		}
		return &Field{Name: name, Kind: FixedArray, Count: count, Elem: elem}, nil
	}
	if kind, ok := scalarByName[typ]; ok {
		return &Field{Name: name, Kind: kind}, nil
	}
	if rest, ok := strings.CutPrefix(typ, "byte"); ok {
		size, err := strconv.Atoi(rest)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("schema: field %s: invalid byte width in %q", name, typ)
		}
		return &Field{Name: name, Kind: Bytes, Size: size}, nil
	}
	if !validIdent(typ) {
		return nil, fmt.Errorf("schema: field %s: unknown type %q", name, typ)
	}
	if unions[typ] {
		return &Field{Name: name, Kind: UnionKind, Ref: typ}, nil
	}
	return &Field{Name: name, Kind: SubRecord, Ref: typ}, nil
}

// ParseField is ParseType plus textual options ("type" = "string" for byte
// fields presented as strings, "trim" = "null" | "padded").
func ParseField(name, typ string, options map[string]string, unions map[string]bool) (*Field, error) {
	f, err := ParseType(name, typ, unions)
	if err != nil {
		return nil, err
	}
	if len(options) == 0 {
		return f, nil
	}
	target := f
	for target.Elem != nil {
		target = target.Elem
	}
	for key, raw := range options {
		val := strings.ToLower(strings.TrimSpace(raw))
		switch key {
		case "type":
			if val != "string" {
				return nil, fmt.Errorf("schema: field %s: unsupported options.type %q", name, raw)
			}
			if target.Kind != Bytes {
				return nil, fmt.Errorf("schema: field %s: options.type=string needs a byte field", name)
			}
			target.Options.ByteString = true
		case "trim":
			switch val {
			case "null", "":
				target.Options.Trim = TrimNull
			case "padded":
				target.Options.Trim = TrimPadded
			default:
				return nil, fmt.Errorf("schema: field %s: unsupported options.trim %q", name, raw)
			}
		default:
			return nil, fmt.Errorf("schema: field %s: unknown option %q", name, key)
		}
	}
	return f, nil
}

// Type renders f back into the textual form accepted by ParseType.
func (f *Field) Type() string {
	switch f.Kind {
	case Bytes:
		return "byte" + strconv.Itoa(f.Size)
	case FixedArray:
		return f.Elem.Type() + "[" + strconv.Itoa(f.Count) + "]"
	case DynamicArray:
		return "*" + f.Elem.Type()
	case SubRecord, UnionKind:
		return f.Ref
	default:
		return f.Kind.String()
	}
}

func validIdent(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}

// Scalar returns a scalar field definition.
func Scalar(name string, kind Kind) *Field {
	return &Field{Name: name, Kind: kind}
}

// ByteField returns a fixed byte blob definition of size bytes.
func ByteField(name string, size int, opts Options) *Field {
	return &Field{Name: name, Kind: Bytes, Size: size, Options: opts}
}

// ArrayOf returns a fixed array of count entries of elem.
func ArrayOf(name string, elem *Field, count int) *Field {
	return &Field{Name: name, Kind: FixedArray, Count: count, Elem: elem}
}

// ListOf returns a dynamic array of elem.
func ListOf(name string, elem *Field) *Field {
	return &Field{Name: name, Kind: DynamicArray, Elem: elem}
}

// RecordRef returns a sub-record field referencing the field set ref.
func RecordRef(name, ref string) *Field {
	return &Field{Name: name, Kind: SubRecord, Ref: ref}
}

// UnionRef returns a union field referencing the union ref.
func UnionRef(name, ref string) *Field {
	return &Field{Name: name, Kind: UnionKind, Ref: ref}
}
