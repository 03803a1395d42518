package protocol

import (
	"fmt"
	"strings"

	"github.com/danmuck/bsonctl/internal/protocol/schema"
)

// Mode selects where message fields sit relative to the envelope keys.
type Mode uint8

const (
	// ModeFlat writes fields next to the envelope keys:
	// {_tll_name: "Data", _tll_seq: 100, f0: ...}.
	ModeFlat Mode = iota
	// ModeNested wraps fields in a document keyed by the message name:
	// {_tll_seq: 100, Data: {f0: ...}}.
	ModeNested
)

func (m Mode) String() string {
	if m == ModeNested {
		return "nested"
	}
	return "flat"
}

// ParseMode accepts "flat" or "nested".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "flat":
		return ModeFlat, nil
	case "nested":
		return ModeNested, nil
	}
	return ModeFlat, fmt.Errorf("%w: unknown mode %q", ErrInvalidSettings, s)
}

const (
	DefaultTypeKey = "_tll_name"
	DefaultSeqKey  = "_tll_seq"
)

// Settings name the reserved envelope keys. An empty SeqKey disables the
// sequence key; the sequence then travels only out of band.
type Settings struct {
	TypeKey string
	SeqKey  string
	Mode    Mode
}

func DefaultSettings() Settings {
	return Settings{TypeKey: DefaultTypeKey, SeqKey: DefaultSeqKey, Mode: ModeFlat}
}

// Validate checks the settings against s.
func (st Settings) Validate(s *schema.Schema) error {
	if s == nil {
		return fmt.Errorf("%w: nil schema", ErrInvalidSettings)
	}
	switch st.Mode {
	case ModeFlat:
		if st.TypeKey == "" {
			return fmt.Errorf("%w: flat mode needs a type key", ErrInvalidSettings)
		}
	case ModeNested:
	default:
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidSettings, st.Mode)
	}
	if st.TypeKey != "" && st.TypeKey == st.SeqKey {
		return fmt.Errorf("%w: type and seq key are both %q", ErrInvalidSettings, st.TypeKey)
	}
	for _, msg := range s.Messages() {
		if st.Mode == ModeNested {
			if msg.Name == st.SeqKey {
				return fmt.Errorf("%w: message %s", ErrReservedKey, msg.Name)
			}
			continue
		}
		for _, f := range msg.Fields {
			if f.Name == st.TypeKey || (st.SeqKey != "" && f.Name == st.SeqKey) {
				return fmt.Errorf("%w: %s.%s", ErrReservedKey, msg.Name, f.Name)
			}
		}
	}
	return nil
}
