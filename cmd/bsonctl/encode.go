package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danmuck/bsonctl/internal/protocol/session"
	"github.com/danmuck/bsonctl/internal/protocol/value"
)

type encodeOptions struct {
	message string
	seq     int64
	framed  bool
}

func newEncodeCommand(root *rootOptions) *cobra.Command {
	var opts encodeOptions
	cmd := &cobra.Command{
		Use:   "encode MESSAGE",
		Short: "Encode JSON records from stdin into BSON documents",
		Long: "Reads a stream of JSON objects from stdin and writes one BSON document\n" +
			"per object to stdout. The sequence number starts at --seq and increments\n" +
			"per record.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.message = args[0]
			return runEncode(cmd.InOrStdin(), cmd.OutOrStdout(), root, opts)
		},
	}
	flags := cmd.Flags()
	flags.Int64Var(&opts.seq, "seq", 0, "sequence number of the first record")
	flags.BoolVar(&opts.framed, "framed", false, "write length-prefixed frames instead of bare documents")
	return cmd
}

func runEncode(in io.Reader, out io.Writer, root *rootOptions, opts encodeOptions) (err error) {
	ch, _, err := root.channel()
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	defer func() {
		if ferr := w.Flush(); err == nil {
			err = ferr
		}
	}()
	dec := json.NewDecoder(in)
	dec.UseNumber()

	seq := opts.seq
	for {
		var body map[string]any
		if err := dec.Decode(&body); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("read record %d: %w", seq-opts.seq, err)
		}
		rec, err := value.RecordFromGo(body)
		if err != nil {
			return fmt.Errorf("record %d: %w", seq-opts.seq, err)
		}
		msg := session.Message{Name: opts.message, Seq: seq, Record: rec}
		if opts.framed {
			err = ch.Post(w, msg)
		} else {
			var doc []byte
			if doc, err = ch.Encode(msg); err == nil {
				_, err = w.Write(doc)
			}
		}
		if err != nil {
			return err
		}
		seq++
	}
	return nil
}
