package schema

// Kind is the declared type of a field.
type Kind uint8

const (
	KindInvalid Kind = iota
	Int8
	Int16
	Int32
	Int64
	UInt8
	UInt16
	UInt32
	UInt64
	Double
	Decimal128
	String
	Bytes
	FixedArray
	DynamicArray
	SubRecord
	UnionKind
)

var kindNames = [...]string{
	KindInvalid:  "invalid",
	Int8:         "int8",
	Int16:        "int16",
	Int32:        "int32",
	Int64:        "int64",
	UInt8:        "uint8",
	UInt16:       "uint16",
	UInt32:       "uint32",
	UInt64:       "uint64",
	Double:       "double",
	Decimal128:   "decimal128",
	String:       "string",
	Bytes:        "bytes",
	FixedArray:   "array",
	DynamicArray: "pointer",
	SubRecord:    "message",
	UnionKind:    "union",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Scalar reports whether k is handled by the type rules table rather than by
// the composite walkers of the encoder and decoder.
func (k Kind) Scalar() bool {
	return k >= Int8 && k <= Bytes
}

// Integer reports whether k is one of the fixed-width integer kinds.
func (k Kind) Integer() bool {
	return k >= Int8 && k <= UInt64
}

// Unsigned reports whether k is an unsigned integer kind.
func (k Kind) Unsigned() bool {
	return k >= UInt8 && k <= UInt64
}

var scalarByName = map[string]Kind{
	"int8":       Int8,
	"int16":      Int16,
	"int32":      Int32,
	"int64":      Int64,
	"uint8":      UInt8,
	"uint16":     UInt16,
	"uint32":     UInt32,
	"uint64":     UInt64,
	"double":     Double,
	"decimal128": Decimal128,
	"string":     String,
}

// TrimMode controls how a byte field presented as a string treats bytes after
// the text.
type TrimMode uint8

const (
	// TrimNull cuts the text at the first NUL byte on encode and decode.
	TrimNull TrimMode = iota
	// TrimPadded keeps the full declared width; trailing NUL padding is
	// significant and round-trips.
	TrimPadded
)

func (m TrimMode) String() string {
	if m == TrimPadded {
		return "padded"
	}
	return "null"
}

// Options are per-field presentation options.
type Options struct {
	// ByteString presents a fixed byte field as a UTF-8 string element with a
	// string native value.
	ByteString bool
	Trim       TrimMode
}
