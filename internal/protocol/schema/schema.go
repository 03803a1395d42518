package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrResolution is matched by every *ResolutionError.
var ErrResolution = errors.New("schema: resolution failed")

// ResolutionError reports an invalid or unresolvable definition. It is a
// configuration problem, never a per-message one.
type ResolutionError struct {
	Owner  string
	Field  string
	Ref    string
	Reason string
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	b.WriteString("schema: ")
	b.WriteString(e.Owner)
	if e.Field != "" {
		b.WriteString(".")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Ref != "" {
		fmt.Fprintf(&b, " %q", e.Ref)
	}
	return b.String()
}

func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolution
}

// Field is one named, typed slot of a message, sub-message or union.
type Field struct {
	Name    string
	Kind    Kind
	Size    int    // byte width for Bytes
	Count   int    // entry count for FixedArray
	Elem    *Field // element definition for FixedArray and DynamicArray
	Ref     string // SubRecord or UnionKind target name
	Options Options

	target int
}

// SubMessage is a named field set without an id of its own.
type SubMessage struct {
	Name   string
	Fields []*Field

	index map[string]int
}

// Field returns the field declared under name.
func (s *SubMessage) Field(name string) (*Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.Fields[i], true
}

// Message is a top-level message type. Its field set may also be referenced
// as a sub-record.
type Message struct {
	SubMessage
	ID uint32
}

// Union is a closed set of named variants.
type Union struct {
	Name     string
	Variants []*Field

	index map[string]int
}

// Variant returns the variant declared under name.
func (u *Union) Variant(name string) (*Field, bool) {
	i, ok := u.index[name]
	if !ok {
		return nil, false
	}
	return u.Variants[i], true
}

// Definitions is the unresolved definition graph handed over by a schema
// provider. New takes ownership of every value reachable from it.
type Definitions struct {
	Messages    []*Message
	SubMessages []*SubMessage
	Unions      []*Union
}

// Schema is the resolved, read-only definition graph. Sub-message and union
// references are resolved into arena indexes.
type Schema struct {
	messages []*Message
	byName   map[string]*Message
	byID     map[uint32]*Message

	records  []*SubMessage
	recordAt map[string]int
	unions   []*Union
	unionAt  map[string]int
}

// New validates defs and resolves all cross references.
func New(defs Definitions) (*Schema, error) {
	s := &Schema{
		byName:   make(map[string]*Message, len(defs.Messages)),
		byID:     make(map[uint32]*Message, len(defs.Messages)),
		recordAt: make(map[string]int),
		unionAt:  make(map[string]int, len(defs.Unions)),
	}

	for _, sub := range defs.SubMessages {
		if sub == nil || strings.TrimSpace(sub.Name) == "" {
			return nil, &ResolutionError{Owner: "submessage", Reason: "missing name"}
		}
		if err := s.addRecord(sub); err != nil {
			return nil, err
		}
	}
	for _, msg := range defs.Messages {
		if msg == nil || strings.TrimSpace(msg.Name) == "" {
			return nil, &ResolutionError{Owner: "message", Reason: "missing name"}
		}
		if _, dup := s.byName[msg.Name]; dup {
			return nil, &ResolutionError{Owner: msg.Name, Reason: "duplicate message name"}
		}
		if prev, dup := s.byID[msg.ID]; dup {
			return nil, &ResolutionError{
				Owner:  msg.Name,
				Ref:    prev.Name,
				Reason: fmt.Sprintf("message id %d already used by", msg.ID),
			}
		}
		if err := s.addRecord(&msg.SubMessage); err != nil {
			return nil, err
		}
		s.messages = append(s.messages, msg)
		s.byName[msg.Name] = msg
		s.byID[msg.ID] = msg
	}
	for _, u := range defs.Unions {
		if u == nil || strings.TrimSpace(u.Name) == "" {
			return nil, &ResolutionError{Owner: "union", Reason: "missing name"}
		}
		if _, dup := s.unionAt[u.Name]; dup {
			return nil, &ResolutionError{Owner: u.Name, Reason: "duplicate union name"}
		}
		if len(u.Variants) == 0 {
			return nil, &ResolutionError{Owner: u.Name, Reason: "union has no variants"}
		}
		index, err := indexFields(u.Name, u.Variants)
		if err != nil {
			return nil, err
		}
		u.index = index
		s.unionAt[u.Name] = len(s.unions)
		s.unions = append(s.unions, u)
	}

	for _, rec := range s.records {
		for _, f := range rec.Fields {
			if err := s.resolve(rec.Name, f); err != nil {
				return nil, err
			}
		}
	}
	for _, u := range s.unions {
		for _, f := range u.Variants {
			if err := s.resolve(u.Name, f); err != nil {
				return nil, err
			}
		}
	}

	log.Debug().
		Int("messages", len(s.messages)).
		Int("records", len(s.records)).
		Int("unions", len(s.unions)).
		Msg("schema.New resolved")
	return s, nil
}

func (s *Schema) addRecord(rec *SubMessage) error {
	if _, dup := s.recordAt[rec.Name]; dup {
		return &ResolutionError{Owner: rec.Name, Reason: "duplicate record name"}
	}
	index, err := indexFields(rec.Name, rec.Fields)
	if err != nil {
		return err
	}
	rec.index = index
	s.recordAt[rec.Name] = len(s.records)
	s.records = append(s.records, rec)
	return nil
}

func indexFields(owner string, fields []*Field) (map[string]int, error) {
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		if f == nil || strings.TrimSpace(f.Name) == "" {
			return nil, &ResolutionError{Owner: owner, Reason: fmt.Sprintf("field %d has no name", i)}
		}
		if _, dup := index[f.Name]; dup {
			return nil, &ResolutionError{Owner: owner, Field: f.Name, Reason: "duplicate field name"}
		}
		index[f.Name] = i
	}
	return index, nil
}

// resolve checks kind parameters and binds references for f and, through
// array elements, everything below it.
func (s *Schema) resolve(owner string, f *Field) error {
	fail := func(reason, ref string) error {
		return &ResolutionError{Owner: owner, Field: f.Name, Ref: ref, Reason: reason}
	}
	switch f.Kind {
	case Bytes:
		if f.Size <= 0 {
			return fail(fmt.Sprintf("byte field needs positive size, got %d", f.Size), "")
		}
	case FixedArray, DynamicArray:
		if f.Elem == nil {
			return fail("array field has no element definition", "")
		}
		if f.Kind == FixedArray && f.Count <= 0 {
			return fail(fmt.Sprintf("fixed array needs positive count, got %d", f.Count), "")
		}
		if f.Elem.Name == "" {
			f.Elem.Name = f.Name
		}
		return s.resolve(owner, f.Elem)
	case SubRecord:
		i, ok := s.recordAt[f.Ref]
		if !ok {
			return fail("undefined sub-message", f.Ref)
		}
		f.target = i
	case UnionKind:
		i, ok := s.unionAt[f.Ref]
		if !ok {
			return fail("undefined union", f.Ref)
		}
		f.target = i
	default:
		if !f.Kind.Scalar() {
			return fail(fmt.Sprintf("invalid kind %d", f.Kind), "")
		}
		if f.Options.ByteString {
			return fail("string presentation requires a byte field", "")
		}
	}
	return nil
}

// Message returns the top-level message named name.
func (s *Schema) Message(name string) (*Message, bool) {
	m, ok := s.byName[name]
	return m, ok
}

// MessageByID returns the top-level message with the given numeric id.
func (s *Schema) MessageByID(id uint32) (*Message, bool) {
	m, ok := s.byID[id]
	return m, ok
}

// Messages returns all top-level messages ordered by id.
func (s *Schema) Messages() []*Message {
	out := make([]*Message, len(s.messages))
	copy(out, s.messages)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SubMessage returns the field set named name. Top-level messages are
// included.
func (s *Schema) SubMessage(name string) (*SubMessage, bool) {
	i, ok := s.recordAt[name]
	if !ok {
		return nil, false
	}
	return s.records[i], true
}

// Union returns the union named name.
func (s *Schema) Union(name string) (*Union, bool) {
	i, ok := s.unionAt[name]
	if !ok {
		return nil, false
	}
	return s.unions[i], true
}

// SubMessageOf returns the field set referenced by a SubRecord field. It
// panics on any other field, which only a caller bug can produce.
func (s *Schema) SubMessageOf(f *Field) *SubMessage {
	if f.Kind != SubRecord {
		panic("schema: SubMessageOf on " + f.Kind.String() + " field " + f.Name)
	}
	return s.records[f.target]
}

// UnionOf returns the union referenced by a UnionKind field.
func (s *Schema) UnionOf(f *Field) *Union {
	if f.Kind != UnionKind {
		panic("schema: UnionOf on " + f.Kind.String() + " field " + f.Name)
	}
	return s.unions[f.target]
}

// Owns reports whether msg is the resolved definition held by s.
func (s *Schema) Owns(msg *Message) bool {
	if msg == nil {
		return false
	}
	m, ok := s.byName[msg.Name]
	return ok && m == msg
}
