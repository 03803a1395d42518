package protocol

import (
	"strconv"

	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"

	"github.com/danmuck/bsonctl/internal/protocol/rules"
	"github.com/danmuck/bsonctl/internal/protocol/schema"
	"github.com/danmuck/bsonctl/internal/protocol/value"
)

// Encoder writes native records as BSON documents. It holds no mutable state
// and is safe for concurrent use.
type Encoder struct {
	schema   *schema.Schema
	settings Settings
}

// NewEncoder binds an encoder to s. Settings are validated against the
// schema once here.
func NewEncoder(s *schema.Schema, settings Settings) (*Encoder, error) {
	if err := settings.Validate(s); err != nil {
		return nil, err
	}
	return &Encoder{schema: s, settings: settings}, nil
}

func (e *Encoder) Schema() *schema.Schema { return e.schema }
func (e *Encoder) Settings() Settings     { return e.settings }

// Encode writes rec as message msg with sequence number seq. Fields missing
// from rec are omitted. On error no document is returned.
func (e *Encoder) Encode(msg *schema.Message, seq int64, rec value.Record) ([]byte, error) {
	if msg == nil || !e.schema.Owns(msg) {
		name := ""
		if msg != nil {
			name = msg.Name
		}
		return nil, wrap("encode", name, errorf(ErrUnknownMessage, "%q is not part of the schema", name))
	}

	idx, doc := bsoncore.AppendDocumentStart(nil)
	var err error
	switch e.settings.Mode {
	case ModeNested:
		if e.settings.SeqKey != "" {
			doc = bsoncore.AppendInt64Element(doc, e.settings.SeqKey, seq)
		}
		var body int32
		body, doc = bsoncore.AppendDocumentElementStart(doc, msg.Name)
		if doc, err = e.appendFields(doc, &msg.SubMessage, rec, 0); err != nil {
			return nil, wrap("encode", msg.Name, err)
		}
		if doc, err = bsoncore.AppendDocumentEnd(doc, body); err != nil {
			return nil, wrap("encode", msg.Name, errorf(ErrMalformedDocument, "%v", err))
		}
	default:
		doc = bsoncore.AppendStringElement(doc, e.settings.TypeKey, msg.Name)
		if e.settings.SeqKey != "" {
			doc = bsoncore.AppendInt64Element(doc, e.settings.SeqKey, seq)
		}
		if doc, err = e.appendFields(doc, &msg.SubMessage, rec, 0); err != nil {
			return nil, wrap("encode", msg.Name, err)
		}
	}
	if doc, err = bsoncore.AppendDocumentEnd(doc, idx); err != nil {
		return nil, wrap("encode", msg.Name, errorf(ErrMalformedDocument, "%v", err))
	}
	return doc, nil
}

// EncodeName encodes rec as the message called name.
func (e *Encoder) EncodeName(name string, seq int64, rec value.Record) ([]byte, error) {
	msg, ok := e.schema.Message(name)
	if !ok {
		return nil, wrap("encode", name, errorf(ErrUnknownMessage, "%q", name))
	}
	return e.Encode(msg, seq, rec)
}

// EncodeID encodes rec as the message with numeric id.
func (e *Encoder) EncodeID(id uint32, seq int64, rec value.Record) ([]byte, error) {
	msg, ok := e.schema.MessageByID(id)
	if !ok {
		return nil, wrap("encode", "", errorf(ErrUnknownMessage, "id %d", id))
	}
	return e.Encode(msg, seq, rec)
}

func (e *Encoder) appendFields(dst []byte, sub *schema.SubMessage, rec value.Record, depth int) ([]byte, error) {
	for _, k := range rec.Keys() {
		if _, ok := sub.Field(k); !ok {
			return dst, atField(k, errorf(ErrUnknownField, "%s has no field %q", sub.Name, k))
		}
	}
	var err error
	for _, f := range sub.Fields {
		v, ok := rec[f.Name]
		if !ok {
			continue
		}
		if dst, err = e.appendValue(dst, f.Name, f, v, depth); err != nil {
			return dst, atField(f.Name, err)
		}
	}
	return dst, nil
}

func (e *Encoder) appendValue(dst []byte, key string, f *schema.Field, v value.Value, depth int) ([]byte, error) {
	if !f.Kind.Scalar() {
		if depth++; depth > MaxDepth {
			return dst, errorf(ErrNestingDepth, "deeper than %d levels", MaxDepth)
		}
	}
	switch f.Kind {
	case schema.FixedArray, schema.DynamicArray:
		items, ok := v.Items()
		if !ok {
			return dst, errorf(ErrTypeMismatch, "%s field cannot hold %s", f.Type(), v.Kind())
		}
		if f.Kind == schema.FixedArray && len(items) != f.Count {
			return dst, errorf(ErrArrayLength, "got %d entries, want %d", len(items), f.Count)
		}
		idx, out := bsoncore.AppendArrayElementStart(dst, key)
		var err error
		for i, item := range items {
			if out, err = e.appendValue(out, strconv.Itoa(i), f.Elem, item, depth); err != nil {
				return dst, atIndex(i, err)
			}
		}
		return bsoncore.AppendArrayEnd(out, idx)

	case schema.SubRecord:
		rec, ok := v.Record()
		if !ok {
			return dst, errorf(ErrTypeMismatch, "%s field cannot hold %s", f.Type(), v.Kind())
		}
		idx, out := bsoncore.AppendDocumentElementStart(dst, key)
		out, err := e.appendFields(out, e.schema.SubMessageOf(f), rec, depth)
		if err != nil {
			return dst, err
		}
		return bsoncore.AppendDocumentEnd(out, idx)

	case schema.UnionKind:
		name, inner, err := unionVariant(v)
		if err != nil {
			return dst, err
		}
		u := e.schema.UnionOf(f)
		vf, ok := u.Variant(name)
		if !ok {
			return dst, errorf(ErrUnknownVariant, "%s has no variant %q", u.Name, name)
		}
		idx, out := bsoncore.AppendDocumentElementStart(dst, key)
		if out, err = e.appendValue(out, name, vf, inner, depth); err != nil {
			return dst, atField(name, err)
		}
		return bsoncore.AppendDocumentEnd(out, idx)
	}

	r, err := rules.Lookup(f)
	if err != nil {
		return dst, err
	}
	return r.Append(dst, key, f, v)
}

// unionVariant accepts a union value or a single-key record, the loose form
// produced by value.FromGo.
func unionVariant(v value.Value) (string, value.Value, error) {
	if name, inner, ok := v.Variant(); ok {
		return name, inner, nil
	}
	rec, ok := v.Record()
	if !ok {
		return "", value.Value{}, errorf(ErrTypeMismatch, "union field cannot hold %s", v.Kind())
	}
	if len(rec) != 1 {
		return "", value.Value{}, errorf(ErrUnionVariant, "got %d variant keys", len(rec))
	}
	for name, inner := range rec {
		return name, inner, nil
	}
	return "", value.Value{}, nil
}
