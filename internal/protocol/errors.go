package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/bsonctl/internal/protocol/rules"
	"github.com/danmuck/bsonctl/internal/protocol/schema"
)

var (
	ErrMalformedDocument = errors.New("protocol: malformed document")
	ErrMalformedEnvelope = errors.New("protocol: malformed envelope")
	ErrUnknownMessage    = errors.New("protocol: unknown message")
	ErrUnknownField      = errors.New("protocol: unknown field")
	ErrArrayLength       = errors.New("protocol: array length mismatch")
	ErrUnionVariant      = errors.New("protocol: union needs exactly one variant")
	ErrUnknownVariant    = errors.New("protocol: unknown union variant")
	ErrReservedKey       = errors.New("protocol: field name collides with envelope key")
	ErrInvalidSettings   = errors.New("protocol: invalid settings")
	ErrNestingDepth      = errors.New("protocol: nesting too deep")

	ErrTypeMismatch    = rules.ErrTypeMismatch
	ErrValueOutOfRange = rules.ErrValueOutOfRange
	ErrUnsupportedKind = rules.ErrUnsupportedKind
)

// MaxDepth bounds composite nesting below the message. Schemas may be
// recursive; the encoder and decoder enforce the bound per record.
const MaxDepth = 100

// Error is a per-message encode or decode failure. Path locates the failing
// element below the message, e.g. "f0.sub[2].s0".
type Error struct {
	Op      string
	Message string
	Path    string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("protocol: ")
	b.WriteString(e.Op)
	if e.Message != "" {
		b.WriteString(" ")
		b.WriteString(e.Message)
	}
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(strings.TrimPrefix(e.Err.Error(), "protocol: "))
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// IsMessageError reports whether err concerns a single message and may be
// skipped, as opposed to a schema or settings problem.
func IsMessageError(err error) bool {
	if err == nil || errors.Is(err, schema.ErrResolution) || errors.Is(err, ErrInvalidSettings) || errors.Is(err, ErrReservedKey) {
		return false
	}
	var pe *Error
	return errors.As(err, &pe)
}

var reasons = []struct {
	err   error
	label string
}{
	{ErrMalformedDocument, "malformed_document"},
	{ErrMalformedEnvelope, "malformed_envelope"},
	{ErrUnknownMessage, "unknown_message"},
	{ErrUnknownField, "unknown_field"},
	{ErrArrayLength, "array_length"},
	{ErrUnionVariant, "union_variant"},
	{ErrUnknownVariant, "unknown_variant"},
	{ErrTypeMismatch, "type_mismatch"},
	{ErrValueOutOfRange, "out_of_range"},
	{ErrUnsupportedKind, "unsupported_kind"},
	{ErrNestingDepth, "nesting_depth"},
	{ErrReservedKey, "reserved_key"},
	{schema.ErrResolution, "schema"},
}

// Reason returns a stable label for err, suitable for metrics.
func Reason(err error) string {
	if err == nil {
		return "none"
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "other"
}

// fieldError carries the failing element path back up through the walkers.
// Segments are pushed innermost first.
type fieldError struct {
	segments []string
	err      error
}

func (e *fieldError) Error() string { return e.path() + ": " + e.err.Error() }
func (e *fieldError) Unwrap() error { return e.err }

func (e *fieldError) path() string {
	var b strings.Builder
	for i := len(e.segments) - 1; i >= 0; i-- {
		s := e.segments[i]
		if i != len(e.segments)-1 && !strings.HasPrefix(s, "[") {
			b.WriteByte('.')
		}
		b.WriteString(s)
	}
	return b.String()
}

func atField(name string, err error) error {
	return push(name, err)
}

func atIndex(i int, err error) error {
	return push("["+strconv.Itoa(i)+"]", err)
}

func push(seg string, err error) error {
	var fe *fieldError
	if errors.As(err, &fe) {
		fe.segments = append(fe.segments, seg)
		return fe
	}
	return &fieldError{segments: []string{seg}, err: err}
}

// wrap turns a walker failure into the public *Error.
func wrap(op, message string, err error) error {
	if err == nil {
		return nil
	}
	out := &Error{Op: op, Message: message, Err: err}
	var fe *fieldError
	if errors.As(err, &fe) {
		out.Path = fe.path()
		out.Err = fe.err
	}
	return out
}

func errorf(base error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{base}, args...)...)
}
