package schema

import (
	"fmt"
	"math"
	"strings"

	"github.com/BurntSushi/toml"
)

type fileSchema struct {
	Messages    []fileRecord `toml:"message"`
	SubMessages []fileRecord `toml:"submessage"`
	Unions      []fileUnion  `toml:"union"`
}

type fileRecord struct {
	Name   string      `toml:"name"`
	ID     *int64      `toml:"id"`
	Fields []fileField `toml:"field"`
}

type fileUnion struct {
	Name     string      `toml:"name"`
	Variants []fileField `toml:"variant"`
}

type fileField struct {
	Name    string            `toml:"name"`
	Type    string            `toml:"type"`
	Options map[string]string `toml:"options"`
}

// Load reads and resolves a TOML schema file:
//
//	[[submessage]]
//	name = "Sub"
//	  [[submessage.field]]
//	  name = "s0"
//	  type = "int8"
//
//	[[union]]
//	name = "Union"
//	  [[union.variant]]
//	  name = "i8"
//	  type = "int8"
//
//	[[message]]
//	name = "Data"
//	id = 10
//	  [[message.field]]
//	  name = "f0"
//	  type = "byte8"
//	  options = { type = "string" }
func Load(path string) (*Schema, error) {
	var raw fileSchema
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("schema load failed (%s): %w", path, err)
	}
	s, err := build(raw, meta)
	if err != nil {
		return nil, fmt.Errorf("schema load failed (%s): %w", path, err)
	}
	return s, nil
}

// Parse is Load for an in-memory document.
func Parse(data string) (*Schema, error) {
	var raw fileSchema
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("schema parse failed: %w", err)
	}
	return build(raw, meta)
}

func build(raw fileSchema, meta toml.MetaData) (*Schema, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("schema: unknown keys: %s", strings.Join(keys, ", "))
	}

	unions := make(map[string]bool, len(raw.Unions))
	for _, u := range raw.Unions {
		unions[strings.TrimSpace(u.Name)] = true
	}

	var defs Definitions
	for _, rec := range raw.SubMessages {
		if rec.ID != nil {
			return nil, fmt.Errorf("schema: submessage %s: sub-messages carry no id", rec.Name)
		}
		fields, err := buildFields(rec.Name, rec.Fields, unions)
		if err != nil {
			return nil, err
		}
		defs.SubMessages = append(defs.SubMessages, &SubMessage{Name: strings.TrimSpace(rec.Name), Fields: fields})
	}
	for _, rec := range raw.Messages {
		if rec.ID == nil {
			return nil, fmt.Errorf("schema: message %s: missing id", rec.Name)
		}
		if *rec.ID < 0 || *rec.ID > math.MaxUint32 {
			return nil, fmt.Errorf("schema: message %s: id %d out of range", rec.Name, *rec.ID)
		}
		fields, err := buildFields(rec.Name, rec.Fields, unions)
		if err != nil {
			return nil, err
		}
		defs.Messages = append(defs.Messages, &Message{
			SubMessage: SubMessage{Name: strings.TrimSpace(rec.Name), Fields: fields},
			ID:         uint32(*rec.ID),
		})
	}
	for _, u := range raw.Unions {
		variants, err := buildFields(u.Name, u.Variants, unions)
		if err != nil {
			return nil, err
		}
		defs.Unions = append(defs.Unions, &Union{Name: strings.TrimSpace(u.Name), Variants: variants})
	}
	return New(defs)
}

func buildFields(owner string, in []fileField, unions map[string]bool) ([]*Field, error) {
	out := make([]*Field, 0, len(in))
	for _, ff := range in {
		f, err := ParseField(strings.TrimSpace(ff.Name), ff.Type, ff.Options, unions)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", owner, err)
		}
		out = append(out, f)
	}
	return out, nil
}
