package protocol

import (
	"errors"
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
	"pgregory.net/rapid"

	"github.com/danmuck/bsonctl/internal/protocol/schema"
	"github.com/danmuck/bsonctl/internal/protocol/value"
	"github.com/danmuck/bsonctl/internal/testutil/testlog"
)

const codecSchema = `
[[submessage]]
name = "Sub"
  [[submessage.field]]
  name = "s0"
  type = "int8"

[[union]]
name = "Union"
  [[union.variant]]
  name = "i8"
  type = "int8"
  [[union.variant]]
  name = "s"
  type = "string"
  [[union.variant]]
  name = "sub"
  type = "Sub"

[[message]]
name = "Data"
id = 10
  [[message.field]]
  name = "f0"
  type = "int32"

[[message]]
name = "All"
id = 20
  [[message.field]]
  name = "i8"
  type = "int8"
  [[message.field]]
  name = "i16"
  type = "int16"
  [[message.field]]
  name = "i32"
  type = "int32"
  [[message.field]]
  name = "i64"
  type = "int64"
  [[message.field]]
  name = "u8"
  type = "uint8"
  [[message.field]]
  name = "u16"
  type = "uint16"
  [[message.field]]
  name = "u32"
  type = "uint32"
  [[message.field]]
  name = "u64"
  type = "uint64"
  [[message.field]]
  name = "d"
  type = "double"
  [[message.field]]
  name = "dec"
  type = "decimal128"
  [[message.field]]
  name = "s"
  type = "string"
  [[message.field]]
  name = "b"
  type = "byte4"
  [[message.field]]
  name = "bs"
  type = "byte8"
  options = { type = "string" }
  [[message.field]]
  name = "list"
  type = "*int16"
  [[message.field]]
  name = "arr"
  type = "int8[4]"
  [[message.field]]
  name = "sub"
  type = "Sub"
  [[message.field]]
  name = "subs"
  type = "*Sub"
  [[message.field]]
  name = "u"
  type = "Union"
  [[message.field]]
  name = "us"
  type = "Union[2]"
`

func newCodec(t *testing.T, settings Settings) (*Encoder, *Decoder) {
	t.Helper()
	s, err := schema.Parse(codecSchema)
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	enc, err := NewEncoder(s, settings)
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	dec, err := NewDecoder(s, settings)
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	return enc, dec
}

func wire(t *testing.T, doc []byte) bson.D {
	t.Helper()
	var out bson.D
	if err := bson.Unmarshal(doc, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func marshal(t *testing.T, d bson.D) []byte {
	t.Helper()
	doc, err := bson.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return doc
}

func roundTrip(t *testing.T, enc *Encoder, dec *Decoder, name string, seq int64, rec value.Record) Decoded {
	t.Helper()
	doc, err := enc.EncodeName(name, seq, rec)
	if err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	out, err := dec.Decode(doc)
	if err != nil {
		t.Fatalf("decode %s: %v", name, err)
	}
	return out
}

func TestEndToEnd(t *testing.T) {
	testlog.Start(t)
	enc, dec := newCodec(t, DefaultSettings())

	doc, err := enc.EncodeName("Data", 100, value.Record{"f0": value.Int(-123123)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := bson.D{
		{Key: "_tll_name", Value: "Data"},
		{Key: "_tll_seq", Value: int64(100)},
		{Key: "f0", Value: int32(-123123)},
	}
	if diff := cmp.Diff(want, wire(t, doc)); diff != "" {
		t.Fatalf("wire layout mismatch (-want +got):\n%s", diff)
	}

	out, err := dec.Decode(doc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Message.ID != 10 || out.Seq != 100 || !out.HasSeq {
		t.Fatalf("unexpected envelope: id=%d seq=%d", out.Message.ID, out.Seq)
	}
	if diff := cmp.Diff(value.Record{"f0": value.Int(-123123)}, out.Record); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestScalarRoundTrip(t *testing.T) {
	testlog.Start(t)
	enc, dec := newCodec(t, DefaultSettings())
	rapid.Check(t, func(rt *rapid.T) {
		rec := value.Record{
			"i8":  value.Int(int64(rapid.Int8().Draw(rt, "i8"))),
			"i16": value.Int(int64(rapid.Int16().Draw(rt, "i16"))),
			"i32": value.Int(int64(rapid.Int32().Draw(rt, "i32"))),
			"i64": value.Int(rapid.Int64().Draw(rt, "i64")),
			"u8":  value.Uint(uint64(rapid.Uint8().Draw(rt, "u8"))),
			"u16": value.Uint(uint64(rapid.Uint16().Draw(rt, "u16"))),
			"u32": value.Uint(uint64(rapid.Uint32().Draw(rt, "u32"))),
			"d":   value.Double(rapid.Float64().Draw(rt, "d")),
			"s":   value.String(rapid.String().Draw(rt, "s")),
			"b":   value.Bytes(rapid.SliceOfN(rapid.Byte(), 4, 4).Draw(rt, "b")),
			"bs":  value.String(rapid.StringMatching(`[a-zA-Z0-9 ._-]{0,8}`).Draw(rt, "bs")),
		}
		coef := big.NewInt(rapid.Int64().Draw(rt, "coef"))
		exp := rapid.IntRange(-6176, 6111).Draw(rt, "exp")
		dec128, ok := primitive.ParseDecimal128FromBigInt(coef, exp)
		if !ok {
			rt.Fatalf("decimal %se%d out of range", coef, exp)
		}
		rec["dec"] = value.Decimal(dec128)
		seq := rapid.Int64().Draw(rt, "seq")
		doc, err := enc.EncodeName("All", seq, rec)
		if err != nil {
			rt.Fatalf("encode: %v", err)
		}
		out, err := dec.Decode(doc)
		if err != nil {
			rt.Fatalf("decode: %v", err)
		}
		if out.Seq != seq {
			rt.Fatalf("seq = %d, want %d", out.Seq, seq)
		}
		if !out.Record.Equal(rec) {
			rt.Fatalf("round trip = %v, want %v", out.Record, rec)
		}
	})
}

func TestBytePresentation(t *testing.T) {
	testlog.Start(t)
	enc, dec := newCodec(t, DefaultSettings())
	doc, err := enc.EncodeName("All", 1, value.Record{
		"b":  value.String("ab"),
		"bs": value.String("name"),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	w := wire(t, doc)
	if bin, ok := w[2].Value.(primitive.Binary); !ok || string(bin.Data) != "ab\x00\x00" || bin.Subtype != 0 {
		t.Fatalf("b on the wire = %#v", w[2].Value)
	}
	if s, ok := w[3].Value.(string); !ok || s != "name" {
		t.Fatalf("bs on the wire = %#v", w[3].Value)
	}
	out, err := dec.Decode(doc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := value.Record{"b": value.Bytes([]byte("ab\x00\x00")), "bs": value.String("name")}
	if diff := cmp.Diff(want, out.Record); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestArrayFidelity(t *testing.T) {
	testlog.Start(t)
	enc, dec := newCodec(t, DefaultSettings())
	list := value.Array(value.Int(3), value.Int(-1), value.Int(7))
	out := roundTrip(t, enc, dec, "All", 1, value.Record{"list": list})
	items, ok := out.Record["list"].Items()
	if !ok || len(items) != 3 || !out.Record["list"].Equal(list) {
		t.Fatalf("list round trip = %v", out.Record["list"])
	}

	for _, n := range []int{3, 5} {
		entries := make([]value.Value, n)
		for i := range entries {
			entries[i] = value.Int(int64(i))
		}
		_, err := enc.EncodeName("All", 1, value.Record{"arr": value.Array(entries...)})
		if !errors.Is(err, ErrArrayLength) {
			t.Fatalf("arr with %d entries: expected ErrArrayLength, got %v", n, err)
		}
	}

	doc := marshal(t, bson.D{
		{Key: "_tll_name", Value: "All"},
		{Key: "_tll_seq", Value: int64(1)},
		{Key: "arr", Value: bson.A{int32(1), int32(2)}},
	})
	if _, err := dec.Decode(doc); !errors.Is(err, ErrArrayLength) {
		t.Fatalf("decode short fixed array: expected ErrArrayLength, got %v", err)
	}
}

func TestUnionFidelity(t *testing.T) {
	testlog.Start(t)
	enc, dec := newCodec(t, DefaultSettings())
	doc, err := enc.EncodeName("All", 1, value.Record{"u": value.Union("i8", value.Int(10))})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := bson.D{{Key: "i8", Value: int32(10)}}
	if diff := cmp.Diff(want, wire(t, doc)[2].Value); diff != "" {
		t.Fatalf("union wire mismatch (-want +got):\n%s", diff)
	}
	out, err := dec.Decode(doc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Record["u"].Equal(value.Union("i8", value.Int(10))) {
		t.Fatalf("union round trip = %v", out.Record["u"])
	}

	// A single-key record is accepted as the loose union form.
	out = roundTrip(t, enc, dec, "All", 1, value.Record{
		"us": value.Array(
			value.Doc(value.Record{"s": value.String("x")}),
			value.Union("sub", value.Doc(value.Record{"s0": value.Int(1)})),
		),
	})
	wantUs := value.Array(
		value.Union("s", value.String("x")),
		value.Union("sub", value.Doc(value.Record{"s0": value.Int(1)})),
	)
	if !out.Record["us"].Equal(wantUs) {
		t.Fatalf("union array = %v", out.Record["us"])
	}

	two := value.Doc(value.Record{"i8": value.Int(1), "s": value.String("x")})
	if _, err := enc.EncodeName("All", 1, value.Record{"u": two}); !errors.Is(err, ErrUnionVariant) {
		t.Fatalf("expected ErrUnionVariant, got %v", err)
	}
	if _, err := enc.EncodeName("All", 1, value.Record{"u": value.Union("f", value.Int(1))}); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("expected ErrUnknownVariant, got %v", err)
	}

	base := bson.D{{Key: "_tll_name", Value: "All"}, {Key: "_tll_seq", Value: int64(1)}}
	twoKeys := marshal(t, append(base, bson.E{Key: "u", Value: bson.D{{Key: "i8", Value: int32(1)}, {Key: "s", Value: "x"}}}))
	if _, err := dec.Decode(twoKeys); !errors.Is(err, ErrUnionVariant) {
		t.Fatalf("decode two variants: expected ErrUnionVariant, got %v", err)
	}
	unknown := marshal(t, append(base[:2:2], bson.E{Key: "u", Value: bson.D{{Key: "f", Value: int32(1)}}}))
	if _, err := dec.Decode(unknown); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("decode unknown variant: expected ErrUnknownVariant, got %v", err)
	}
}

func TestSubRecordFidelity(t *testing.T) {
	testlog.Start(t)
	enc, dec := newCodec(t, DefaultSettings())
	out := roundTrip(t, enc, dec, "All", 1, value.Record{"sub": value.Doc(value.Record{"s0": value.Int(10)})})
	rec, ok := out.Record["sub"].Record()
	if !ok || len(rec) != 1 || !rec["s0"].Equal(value.Int(10)) {
		t.Fatalf("sub round trip = %v", out.Record["sub"])
	}
}

func TestDecimalFidelity(t *testing.T) {
	testlog.Start(t)
	enc, dec := newCodec(t, DefaultSettings())
	d, err := value.ParseDecimal("123.123")
	if err != nil {
		t.Fatalf("parse decimal: %v", err)
	}
	out := roundTrip(t, enc, dec, "All", 1, value.Record{"dec": d})
	got, ok := out.Record["dec"].Decimal()
	if !ok || got.String() != "123.123" {
		t.Fatalf("decimal round trip = %v", out.Record["dec"])
	}
}

func TestEnvelope(t *testing.T) {
	testlog.Start(t)
	_, dec := newCodec(t, DefaultSettings())

	unknown := marshal(t, bson.D{{Key: "_tll_name", Value: "Nope"}, {Key: "_tll_seq", Value: int64(1)}})
	if _, err := dec.Decode(unknown); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}

	seq32 := marshal(t, bson.D{{Key: "f0", Value: int32(1)}, {Key: "_tll_seq", Value: int32(200)}, {Key: "_tll_name", Value: "Data"}})
	out, err := dec.Decode(seq32)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Seq != 200 || out.Message.ID != 10 {
		t.Fatalf("envelope = id %d seq %d", out.Message.ID, out.Seq)
	}

	cases := map[string]bson.D{
		"missing name":   {{Key: "_tll_seq", Value: int64(1)}},
		"missing seq":    {{Key: "_tll_name", Value: "Data"}},
		"name not text":  {{Key: "_tll_name", Value: int32(10)}, {Key: "_tll_seq", Value: int64(1)}},
		"seq not int":    {{Key: "_tll_name", Value: "Data"}, {Key: "_tll_seq", Value: "1"}},
		"duplicate name": {{Key: "_tll_name", Value: "Data"}, {Key: "_tll_name", Value: "Data"}, {Key: "_tll_seq", Value: int64(1)}},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := dec.Decode(marshal(t, d)); !errors.Is(err, ErrMalformedEnvelope) {
				t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
			}
		})
	}
}

func TestNestedMode(t *testing.T) {
	testlog.Start(t)
	settings := DefaultSettings()
	settings.Mode = ModeNested
	enc, dec := newCodec(t, settings)
	doc, err := enc.EncodeName("Data", 5, value.Record{"f0": value.Int(1)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := bson.D{
		{Key: "_tll_seq", Value: int64(5)},
		{Key: "Data", Value: bson.D{{Key: "f0", Value: int32(1)}}},
	}
	if diff := cmp.Diff(want, wire(t, doc)); diff != "" {
		t.Fatalf("nested layout mismatch (-want +got):\n%s", diff)
	}
	out, err := dec.Decode(doc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Message.Name != "Data" || out.Seq != 5 || !out.Record.Equal(value.Record{"f0": value.Int(1)}) {
		t.Fatalf("nested round trip = %+v", out)
	}

	two := marshal(t, append(want, bson.E{Key: "Data", Value: bson.D{}}))
	if _, err := dec.Decode(two); !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
	}
}

func TestDisabledSeqKey(t *testing.T) {
	testlog.Start(t)
	settings := DefaultSettings()
	settings.SeqKey = ""
	enc, dec := newCodec(t, settings)
	out := roundTrip(t, enc, dec, "Data", 99, value.Record{"f0": value.Int(1)})
	if out.HasSeq || out.Seq != 0 {
		t.Fatalf("seq should not travel in the body: %+v", out)
	}
}

func TestEncodeErrors(t *testing.T) {
	testlog.Start(t)
	enc, _ := newCodec(t, DefaultSettings())
	cases := []struct {
		name string
		rec  value.Record
		want error
		path string
	}{
		{"unknown field", value.Record{"zz": value.Int(1)}, ErrUnknownField, "zz"},
		{"uint64", value.Record{"u64": value.Uint(1)}, ErrUnsupportedKind, "u64"},
		{"type mismatch", value.Record{"s": value.Int(1)}, ErrTypeMismatch, "s"},
		{"range", value.Record{"i8": value.Int(300)}, ErrValueOutOfRange, "i8"},
		{"nested unknown field", value.Record{"sub": value.Doc(value.Record{"zz": value.Int(1)})}, ErrUnknownField, "sub.zz"},
		{
			"path through array",
			value.Record{"subs": value.Array(
				value.Doc(value.Record{"s0": value.Int(1)}),
				value.Doc(value.Record{"s0": value.Int(1000)}),
			)},
			ErrValueOutOfRange, "subs[1].s0",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := enc.EncodeName("All", 1, tc.rec)
			if doc != nil {
				t.Fatalf("partial output returned with error")
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var pe *Error
			if !errors.As(err, &pe) || pe.Path != tc.path || pe.Message != "All" {
				t.Fatalf("unexpected error detail: %#v", err)
			}
			if !IsMessageError(err) {
				t.Fatalf("expected message error")
			}
		})
	}
	if _, err := enc.EncodeName("Nope", 1, nil); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
	if _, err := enc.EncodeID(99, 1, nil); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	testlog.Start(t)
	_, dec := newCodec(t, DefaultSettings())
	base := func(extra ...bson.E) []byte {
		d := bson.D{{Key: "_tll_name", Value: "All"}, {Key: "_tll_seq", Value: int64(1)}}
		return marshal(t, append(d, extra...))
	}
	cases := []struct {
		name string
		doc  []byte
		want error
		path string
	}{
		{"unknown field", base(bson.E{Key: "zz", Value: int32(1)}), ErrUnknownField, "zz"},
		{"type mismatch", base(bson.E{Key: "i32", Value: "x"}), ErrTypeMismatch, "i32"},
		{"out of range", base(bson.E{Key: "u8", Value: int32(-1)}), ErrValueOutOfRange, "u8"},
		{"array of wrong kind", base(bson.E{Key: "list", Value: int32(1)}), ErrTypeMismatch, "list"},
		{"array entry", base(bson.E{Key: "list", Value: bson.A{int32(1), "x"}}), ErrTypeMismatch, "list[1]"},
		{"union entry", base(bson.E{Key: "us", Value: bson.A{bson.D{{Key: "i8", Value: int32(1)}}, bson.D{}}}), ErrUnionVariant, "us[1]"},
		{"fixed array count", base(bson.E{Key: "us", Value: bson.A{bson.D{{Key: "i8", Value: int32(1)}}}}), ErrArrayLength, "us"},
		{"duplicate field", base(bson.E{Key: "i8", Value: int32(1)}, bson.E{Key: "i8", Value: int32(2)}), ErrMalformedDocument, "i8"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := dec.Decode(tc.doc)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var pe *Error
			if !errors.As(err, &pe) || pe.Path != tc.path {
				t.Fatalf("unexpected error detail: %#v", err)
			}
		})
	}

	// The first failing element wins; us[0] fails before us[1] is read.
	first := base(bson.E{Key: "us", Value: bson.A{bson.D{{Key: "sub", Value: bson.D{{Key: "s0", Value: "x"}}}}, bson.D{}}})
	_, err := dec.Decode(first)
	var pe *Error
	if !errors.As(err, &pe) || pe.Path != "us[0].sub.s0" {
		t.Fatalf("unexpected nested path: %v", err)
	}
	if got := Reason(err); got != "type_mismatch" {
		t.Fatalf("Reason = %q", got)
	}
}

func TestMalformedDocument(t *testing.T) {
	testlog.Start(t)
	_, dec := newCodec(t, DefaultSettings())
	good := marshal(t, bson.D{{Key: "_tll_name", Value: "Data"}, {Key: "_tll_seq", Value: int64(1)}})
	broken := append([]byte(nil), good...)
	broken[len(broken)-1] = 1
	cases := map[string][]byte{
		"empty":      nil,
		"truncated":  good[:len(good)-3],
		"trailing":   append(append([]byte(nil), good...), 0),
		"terminator": broken,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := dec.Decode(doc)
			if !errors.Is(err, ErrMalformedDocument) {
				t.Fatalf("expected ErrMalformedDocument, got %v", err)
			}
			if Reason(err) != "malformed_document" {
				t.Fatalf("Reason = %q", Reason(err))
			}
		})
	}
}

func TestSettings(t *testing.T) {
	testlog.Start(t)
	s, err := schema.New(schema.Definitions{Messages: []*schema.Message{{
		SubMessage: schema.SubMessage{Name: "M", Fields: []*schema.Field{schema.Scalar("_tll_seq", schema.Int64)}},
		ID:         1,
	}}})
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	_, err = NewEncoder(s, DefaultSettings())
	if !errors.Is(err, ErrReservedKey) {
		t.Fatalf("expected ErrReservedKey, got %v", err)
	}
	if IsMessageError(err) {
		t.Fatalf("reserved key collision is not a message error")
	}

	// Nested mode keeps fields away from the envelope.
	nested := DefaultSettings()
	nested.Mode = ModeNested
	if _, err := NewDecoder(s, nested); err != nil {
		t.Fatalf("nested decoder: %v", err)
	}
	if _, err := NewEncoder(s, Settings{TypeKey: "k", SeqKey: "k"}); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
	if m, err := ParseMode("Nested"); err != nil || m != ModeNested {
		t.Fatalf("ParseMode = %v, %v", m, err)
	}
	if _, err := ParseMode("sideways"); err == nil {
		t.Fatalf("expected mode error")
	}
}

func recursiveCodec(t *testing.T) (*Encoder, *Decoder) {
	t.Helper()
	s, err := schema.New(schema.Definitions{
		SubMessages: []*schema.SubMessage{{Name: "Node", Fields: []*schema.Field{
			schema.RecordRef("n", "Node"),
			schema.Scalar("v", schema.Int32),
		}}},
		Messages: []*schema.Message{{SubMessage: schema.SubMessage{Name: "Deep", Fields: []*schema.Field{schema.RecordRef("n", "Node")}}, ID: 30}},
	})
	if err != nil {
		t.Fatalf("recursive schema: %v", err)
	}
	enc, err := NewEncoder(s, DefaultSettings())
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	dec, err := NewDecoder(s, DefaultSettings())
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	return enc, dec
}

// chain builds {n: {n: ... {v: 1}}} with levels sub-records below the message.
func chain(levels int) value.Record {
	rec := value.Record{"v": value.Int(1)}
	for i := 1; i < levels; i++ {
		rec = value.Record{"n": value.Doc(rec)}
	}
	return value.Record{"n": value.Doc(rec)}
}

func TestNestingDepth(t *testing.T) {
	testlog.Start(t)
	enc, dec := recursiveCodec(t)

	out := roundTrip(t, enc, dec, "Deep", 1, chain(MaxDepth))
	if !out.Record.Equal(chain(MaxDepth)) {
		t.Fatalf("record at the depth limit did not round trip")
	}

	if _, err := enc.EncodeName("Deep", 1, chain(MaxDepth+1)); !errors.Is(err, ErrNestingDepth) {
		t.Fatalf("expected ErrNestingDepth on encode, got %v", err)
	}

	// Build the over-deep document by hand; the encoder refuses it.
	inner := bsoncore.NewDocumentBuilder().AppendInt32("v", 1).Build()
	for i := 0; i < 1000; i++ {
		inner = bsoncore.NewDocumentBuilder().AppendDocument("n", inner).Build()
	}
	doc := bsoncore.NewDocumentBuilder().
		AppendString(DefaultTypeKey, "Deep").
		AppendInt64(DefaultSeqKey, 1).
		AppendDocument("n", inner).
		Build()
	_, err := dec.Decode(doc)
	if !errors.Is(err, ErrMalformedDocument) || !errors.Is(err, ErrNestingDepth) {
		t.Fatalf("expected malformed nesting error, got %v", err)
	}
	if !IsMessageError(err) || Reason(err) != "malformed_document" {
		t.Fatalf("unexpected classification: message=%t reason=%s", IsMessageError(err), Reason(err))
	}
}
