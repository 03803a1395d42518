package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/danmuck/bsonctl/internal/protocol/schema"
)

func newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect schema files",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newSchemaCheckCommand())
	return cmd
}

func newSchemaCheckCommand() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "check FILE",
		Short: "Load and resolve a schema file, then list its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaCheck(cmd.OutOrStdout(), args[0], quiet)
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only report errors")
	return cmd
}

func runSchemaCheck(out io.Writer, path string, quiet bool) error {
	s, err := schema.Load(path)
	if err != nil {
		return err
	}
	if quiet {
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMESSAGE\tFIELD\tTYPE")
	for _, msg := range s.Messages() {
		if len(msg.Fields) == 0 {
			fmt.Fprintf(tw, "%d\t%s\t-\t-\n", msg.ID, msg.Name)
			continue
		}
		for _, f := range msg.Fields {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", msg.ID, msg.Name, f.Name, f.Type())
		}
	}
	return tw.Flush()
}
