package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"

	"github.com/danmuck/bsonctl/internal/protocol"
	"github.com/danmuck/bsonctl/internal/protocol/session"
)

type decodeOptions struct {
	framed bool
}

// decodedLine is one JSON line written by decode.
type decodedLine struct {
	Message string         `json:"message"`
	ID      uint32         `json:"id"`
	Seq     int64          `json:"seq"`
	Record  map[string]any `json:"record"`
}

func newDecodeCommand(root *rootOptions) *cobra.Command {
	var opts decodeOptions
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode BSON documents from stdin into JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), root, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.framed, "framed", false, "read length-prefixed frames instead of bare documents")
	return cmd
}

func runDecode(ctx context.Context, in io.Reader, out io.Writer, root *rootOptions, opts decodeOptions) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ch, cfg, err := root.channel()
	if err != nil {
		return err
	}
	// Lines decoded before a failure are still written.
	w := bufio.NewWriter(out)
	defer func() {
		if ferr := w.Flush(); err == nil {
			err = ferr
		}
	}()
	enc := json.NewEncoder(w)
	emit := func(_ context.Context, msg session.Message) error {
		return enc.Encode(decodedLine{Message: msg.Name, ID: msg.MsgID, Seq: msg.Seq, Record: msg.Record.Interface()})
	}

	if opts.framed {
		return ch.Serve(ctx, in, emit)
	}

	r := bufio.NewReader(in)
	limit := cfg.Frame.MaxPayloadBytes
	for n := 0; ; n++ {
		doc, err := readDocument(r, limit)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("document %d: %w", n, err)
		}
		msg, err := ch.Decode(doc)
		if err != nil {
			if cfg.Session.SkipInvalid && protocol.IsMessageError(err) {
				continue
			}
			return fmt.Errorf("document %d: %w", n, err)
		}
		if err := emit(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// readDocument reads one length-prefixed BSON document. It returns io.EOF
// only when the stream ends cleanly between documents.
func readDocument(r io.Reader, limit uint64) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated length prefix", protocol.ErrMalformedDocument)
		}
		return nil, err
	}
	length, _, ok := bsoncore.ReadLength(prefix[:])
	if !ok || length < 5 || uint64(length) > limit {
		return nil, fmt.Errorf("%w: document length %d", protocol.ErrMalformedDocument, length)
	}
	doc := make([]byte, length)
	copy(doc, prefix[:])
	if _, err := io.ReadFull(r, doc[4:]); err != nil {
		return nil, fmt.Errorf("%w: truncated document: %v", protocol.ErrMalformedDocument, err)
	}
	return doc, nil
}
