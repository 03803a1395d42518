package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/danmuck/bsonctl/internal/protocol/rules"
	"github.com/danmuck/bsonctl/internal/protocol/schema"
)

func newRulesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the scalar type rules table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRules(cmd.OutOrStdout())
		},
	}
}

func runRules(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tWRITES\tACCEPTS\tWIDTH")
	for _, r := range rules.Table() {
		kind := r.Kind.String()
		if r.Kind == schema.Bytes && r.Tag == bsontype.String {
			kind += " (string)"
		}
		writes := "-"
		if r.Tag != 0 {
			writes = r.Tag.String()
		}
		accepts := make([]string, 0, len(r.Accept))
		for _, t := range r.Accept {
			accepts = append(accepts, t.String())
		}
		width := "-"
		if r.Width > 0 {
			width = fmt.Sprint(r.Width)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", kind, writes, strings.Join(accepts, ","), width)
	}
	return tw.Flush()
}
