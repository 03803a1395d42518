package protocol

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"

	"github.com/danmuck/bsonctl/internal/protocol/rules"
	"github.com/danmuck/bsonctl/internal/protocol/schema"
	"github.com/danmuck/bsonctl/internal/protocol/value"
)

// Decoded is one decoded document. Record holds only the fields present in
// the document.
type Decoded struct {
	Message *schema.Message
	Seq     int64
	HasSeq  bool // false when the sequence key is disabled
	Record  value.Record
}

// Decoder reads BSON documents back into native records. Like Encoder it is
// stateless after construction.
type Decoder struct {
	schema   *schema.Schema
	settings Settings
}

// NewDecoder binds a decoder to s.
func NewDecoder(s *schema.Schema, settings Settings) (*Decoder, error) {
	if err := settings.Validate(s); err != nil {
		return nil, err
	}
	return &Decoder{schema: s, settings: settings}, nil
}

func (d *Decoder) Schema() *schema.Schema { return d.schema }
func (d *Decoder) Settings() Settings     { return d.settings }

// Decode validates the framing of doc, resolves its envelope and converts
// every body element according to the message definition.
func (d *Decoder) Decode(doc []byte) (Decoded, error) {
	elems, err := readDocument(doc)
	if err != nil {
		return Decoded{}, wrap("decode", "", err)
	}

	var (
		out      Decoded
		name     string
		haveName bool
		body     []bsoncore.Element
		nested   bool
	)
	for _, el := range elems {
		key := el.Key()
		switch {
		case d.settings.Mode == ModeFlat && key == d.settings.TypeKey:
			if haveName {
				return Decoded{}, wrap("decode", "", errorf(ErrMalformedEnvelope, "duplicate %q key", key))
			}
			s, ok := el.Value().StringValueOK()
			if !ok {
				return Decoded{}, wrap("decode", "", errorf(ErrMalformedEnvelope, "%q is %s, want string", key, el.Value().Type))
			}
			name, haveName = s, true
		case d.settings.SeqKey != "" && key == d.settings.SeqKey:
			if out.HasSeq {
				return Decoded{}, wrap("decode", "", errorf(ErrMalformedEnvelope, "duplicate %q key", key))
			}
			seq, err := readSeq(el.Value())
			if err != nil {
				return Decoded{}, wrap("decode", "", errorf(ErrMalformedEnvelope, "%q: %v", key, err))
			}
			out.Seq, out.HasSeq = seq, true
		case d.settings.Mode == ModeNested:
			if nested {
				return Decoded{}, wrap("decode", name, errorf(ErrMalformedEnvelope, "second message key %q", key))
			}
			sub, ok := el.Value().DocumentOK()
			if !ok {
				return Decoded{}, wrap("decode", key, errorf(ErrMalformedEnvelope, "message body is %s, want document", el.Value().Type))
			}
			if body, err = sub.Elements(); err != nil {
				return Decoded{}, wrap("decode", key, errorf(ErrMalformedDocument, "%v", err))
			}
			name, haveName, nested = key, true, true
		default:
			body = append(body, el)
		}
	}

	if !haveName {
		if d.settings.Mode == ModeNested {
			return Decoded{}, wrap("decode", "", errorf(ErrMalformedEnvelope, "missing message body"))
		}
		return Decoded{}, wrap("decode", "", errorf(ErrMalformedEnvelope, "missing %q key", d.settings.TypeKey))
	}
	msg, ok := d.schema.Message(name)
	if !ok {
		return Decoded{}, wrap("decode", name, errorf(ErrUnknownMessage, "%q", name))
	}
	if d.settings.SeqKey != "" && !out.HasSeq {
		return Decoded{}, wrap("decode", name, errorf(ErrMalformedEnvelope, "missing %q key", d.settings.SeqKey))
	}

	rec, err := d.readFields(body, &msg.SubMessage, 0)
	if err != nil {
		return Decoded{}, wrap("decode", name, err)
	}
	out.Message = msg
	out.Record = rec
	return out, nil
}

// readDocument checks the outer framing: the declared length must match the
// buffer exactly and every element must be well formed.
func readDocument(doc []byte) ([]bsoncore.Element, error) {
	length, _, ok := bsoncore.ReadLength(doc)
	if !ok {
		return nil, errorf(ErrMalformedDocument, "truncated length prefix (%d bytes)", len(doc))
	}
	if int(length) != len(doc) {
		return nil, errorf(ErrMalformedDocument, "length prefix %d, buffer %d", length, len(doc))
	}
	if err := bsoncore.Document(doc).Validate(); err != nil {
		return nil, errorf(ErrMalformedDocument, "%v", err)
	}
	elems, err := bsoncore.Document(doc).Elements()
	if err != nil {
		return nil, errorf(ErrMalformedDocument, "%v", err)
	}
	return elems, nil
}

func readSeq(v bsoncore.Value) (int64, error) {
	switch v.Type {
	case bsontype.Int32:
		i, _ := v.Int32OK()
		return int64(i), nil
	case bsontype.Int64:
		i, _ := v.Int64OK()
		return i, nil
	}
	return 0, errorf(ErrTypeMismatch, "sequence is %s", v.Type)
}

func (d *Decoder) readFields(elems []bsoncore.Element, sub *schema.SubMessage, depth int) (value.Record, error) {
	rec := make(value.Record, len(elems))
	for _, el := range elems {
		key := el.Key()
		f, ok := sub.Field(key)
		if !ok {
			return nil, atField(key, errorf(ErrUnknownField, "%s has no field %q", sub.Name, key))
		}
		if _, dup := rec[key]; dup {
			return nil, atField(key, errorf(ErrMalformedDocument, "duplicate key"))
		}
		v, err := d.readValue(f, el.Value(), depth)
		if err != nil {
			return nil, atField(key, err)
		}
		rec[key] = v
	}
	return rec, nil
}

func (d *Decoder) readValue(f *schema.Field, raw bsoncore.Value, depth int) (value.Value, error) {
	if !f.Kind.Scalar() {
		if depth++; depth > MaxDepth {
			return value.Value{}, fmt.Errorf("%w: %w: deeper than %d levels", ErrMalformedDocument, ErrNestingDepth, MaxDepth)
		}
	}
	switch f.Kind {
	case schema.FixedArray, schema.DynamicArray:
		arr, ok := raw.ArrayOK()
		if !ok {
			return value.Value{}, errorf(ErrTypeMismatch, "%s field cannot hold %s", f.Type(), raw.Type)
		}
		vals, err := arr.Values()
		if err != nil {
			return value.Value{}, errorf(ErrMalformedDocument, "%v", err)
		}
		if f.Kind == schema.FixedArray && len(vals) != f.Count {
			return value.Value{}, errorf(ErrArrayLength, "got %d entries, want %d", len(vals), f.Count)
		}
		items := make([]value.Value, len(vals))
		for i, raw := range vals {
			if items[i], err = d.readValue(f.Elem, raw, depth); err != nil {
				return value.Value{}, atIndex(i, err)
			}
		}
		return value.Array(items...), nil

	case schema.SubRecord:
		doc, ok := raw.DocumentOK()
		if !ok {
			return value.Value{}, errorf(ErrTypeMismatch, "%s field cannot hold %s", f.Type(), raw.Type)
		}
		elems, err := doc.Elements()
		if err != nil {
			return value.Value{}, errorf(ErrMalformedDocument, "%v", err)
		}
		rec, err := d.readFields(elems, d.schema.SubMessageOf(f), depth)
		if err != nil {
			return value.Value{}, err
		}
		return value.Doc(rec), nil

	case schema.UnionKind:
		doc, ok := raw.DocumentOK()
		if !ok {
			return value.Value{}, errorf(ErrTypeMismatch, "%s field cannot hold %s", f.Type(), raw.Type)
		}
		elems, err := doc.Elements()
		if err != nil {
			return value.Value{}, errorf(ErrMalformedDocument, "%v", err)
		}
		if len(elems) != 1 {
			return value.Value{}, errorf(ErrUnionVariant, "got %d variant keys", len(elems))
		}
		u := d.schema.UnionOf(f)
		name := elems[0].Key()
		vf, ok := u.Variant(name)
		if !ok {
			return value.Value{}, atField(name, errorf(ErrUnknownVariant, "%s has no variant %q", u.Name, name))
		}
		inner, err := d.readValue(vf, elems[0].Value(), depth)
		if err != nil {
			return value.Value{}, atField(name, err)
		}
		return value.Union(name, inner), nil
	}

	r, err := rules.Lookup(f)
	if err != nil {
		return value.Value{}, err
	}
	return r.Read(f, raw)
}
