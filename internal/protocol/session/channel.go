package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/bsonctl/internal/observability"
	"github.com/danmuck/bsonctl/internal/protocol"
	"github.com/danmuck/bsonctl/internal/protocol/frame"
	"github.com/danmuck/bsonctl/internal/protocol/schema"
	"github.com/danmuck/bsonctl/internal/protocol/value"
)

var ErrEnvelopeMismatch = errors.New("session: envelope mismatch")

// Message is one typed record with its envelope.
type Message struct {
	MsgID  uint32
	Seq    int64
	Name   string
	Record value.Record
}

// Handler receives decoded messages from Serve. A returned error ends Serve.
type Handler func(ctx context.Context, msg Message) error

// Channel pairs an encoder and decoder over one schema with frame limits.
// It is safe for concurrent use; writers must serialize access to their own
// io.Writer.
type Channel struct {
	enc *protocol.Encoder
	dec *protocol.Decoder
	cfg Config
}

func NewChannel(s *schema.Schema, settings protocol.Settings, cfg Config) (*Channel, error) {
	enc, err := protocol.NewEncoder(s, settings)
	if err != nil {
		return nil, err
	}
	dec, err := protocol.NewDecoder(s, settings)
	if err != nil {
		return nil, err
	}
	if cfg.Limits.MaxPayloadBytes == 0 {
		cfg.Limits = frame.DefaultLimits()
	}
	return &Channel{enc: enc, dec: dec, cfg: cfg}, nil
}

func (c *Channel) Encoder() *protocol.Encoder { return c.enc }
func (c *Channel) Decoder() *protocol.Decoder { return c.dec }

// resolve finds the definition for msg by name, falling back to the id.
func (c *Channel) resolve(msg Message) (*schema.Message, error) {
	s := c.enc.Schema()
	if msg.Name != "" {
		def, ok := s.Message(msg.Name)
		if !ok {
			return nil, &protocol.Error{Op: "encode", Message: msg.Name, Err: protocol.ErrUnknownMessage}
		}
		if msg.MsgID != 0 && msg.MsgID != def.ID {
			return nil, fmt.Errorf("%w: %s has id %d, message carries %d", ErrEnvelopeMismatch, def.Name, def.ID, msg.MsgID)
		}
		return def, nil
	}
	def, ok := s.MessageByID(msg.MsgID)
	if !ok {
		return nil, &protocol.Error{Op: "encode", Message: fmt.Sprintf("id %d", msg.MsgID), Err: protocol.ErrUnknownMessage}
	}
	return def, nil
}

// EncodeFrame encodes msg and fills the out-of-band header.
func (c *Channel) EncodeFrame(msg Message) (frame.Frame, error) {
	def, err := c.resolve(msg)
	if err != nil {
		observability.RecordCodecError(observability.DirectionEncode, protocol.Reason(err))
		return frame.Frame{}, err
	}
	doc, err := c.enc.Encode(def, msg.Seq, msg.Record)
	if err != nil {
		observability.RecordCodecError(observability.DirectionEncode, protocol.Reason(err))
		return frame.Frame{}, err
	}
	observability.RecordCodecMessage(observability.DirectionEncode, def.Name, len(doc))

	h := frame.Header{Seq: uint64(msg.Seq), MsgID: def.ID}
	if c.enc.Settings().Mode == protocol.ModeNested {
		h.Flags |= frame.FlagNested
	}
	return frame.Frame{Header: h, Payload: doc}, nil
}

// DecodeFrame decodes f and reconciles the document envelope with the frame
// header. The document body wins: the id comes from the decoded name and
// the header sequence is used only when the body carries none.
func (c *Channel) DecodeFrame(f frame.Frame) (Message, error) {
	nested := f.Header.Flags&frame.FlagNested != 0
	if nested != (c.dec.Settings().Mode == protocol.ModeNested) {
		err := fmt.Errorf("%w: frame nested=%t, channel mode %s", ErrEnvelopeMismatch, nested, c.dec.Settings().Mode)
		observability.RecordCodecError(observability.DirectionDecode, "envelope_mismatch")
		return Message{}, err
	}
	return c.decode(f.Payload, f.Header)
}

// Decode decodes a bare document without a frame header.
func (c *Channel) Decode(doc []byte) (Message, error) {
	return c.decode(doc, frame.Header{})
}

// Encode encodes msg as a bare document.
func (c *Channel) Encode(msg Message) ([]byte, error) {
	f, err := c.EncodeFrame(msg)
	if err != nil {
		return nil, err
	}
	return f.Payload, nil
}

func (c *Channel) decode(doc []byte, h frame.Header) (Message, error) {
	out, err := c.dec.Decode(doc)
	if err != nil {
		observability.RecordCodecError(observability.DirectionDecode, protocol.Reason(err))
		return Message{}, err
	}
	observability.RecordCodecMessage(observability.DirectionDecode, out.Message.Name, len(doc))

	msg := Message{MsgID: out.Message.ID, Name: out.Message.Name, Record: out.Record, Seq: int64(h.Seq)}
	if out.HasSeq {
		if h.Seq != 0 && out.Seq != msg.Seq {
			log.Debug().
				Str("msg_type", out.Message.Name).
				Int64("body_seq", out.Seq).
				Uint64("header_seq", h.Seq).
				Msg("session.DecodeFrame seq differs from header")
		}
		msg.Seq = out.Seq
	}
	if h.MsgID != 0 && h.MsgID != out.Message.ID {
		log.Debug().
			Str("msg_type", out.Message.Name).
			Uint32("body_id", out.Message.ID).
			Uint32("header_id", h.MsgID).
			Msg("session.DecodeFrame id differs from header")
	}
	return msg, nil
}

// Post encodes msg and writes it as one frame.
func (c *Channel) Post(w io.Writer, msg Message) error {
	f, err := c.EncodeFrame(msg)
	if err != nil {
		return err
	}
	return frame.WriteFrame(w, f, c.cfg.Limits)
}

// Serve reads frames from r until end of stream, ctx cancellation or a fatal
// error. Per-message decode failures are skipped when SkipInvalid is set.
func (c *Channel) Serve(ctx context.Context, r io.Reader, h Handler) error {
	var served, skipped int
	defer func() {
		log.Debug().Int("served", served).Int("skipped", skipped).Msg("session.Serve done")
	}()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := frame.ReadFrame(r, c.cfg.Limits)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("session: read frame: %w", err)
		}
		msg, err := c.DecodeFrame(f)
		if err != nil {
			if c.cfg.SkipInvalid && protocol.IsMessageError(err) {
				skipped++
				log.Warn().
					Err(err).
					Uint64("seq", f.Header.Seq).
					Uint32("msg_id", f.Header.MsgID).
					Str("reason", protocol.Reason(err)).
					Msg("session.Serve skip invalid message")
				continue
			}
			return err
		}
		if err := h(ctx, msg); err != nil {
			return err
		}
		served++
	}
}
