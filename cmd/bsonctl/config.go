package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danmuck/bsonctl/internal/config"
)

type configInitOptions struct {
	kind     string
	output   string
	force    bool
	validate bool
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage bsonctl configuration files",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newConfigInitCommand())
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var opts configInitOptions
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config or schema template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.kind, "kind", "config", "template kind: config|schema")
	flags.StringVarP(&opts.output, "output", "o", "", "output path, stdout when empty")
	flags.BoolVar(&opts.force, "force", false, "overwrite an existing file")
	flags.BoolVar(&opts.validate, "validate", false, "load the written config back and validate it")
	return cmd
}

func runConfigInit(out io.Writer, opts configInitOptions) error {
	if opts.output == "" {
		tmpl, err := config.Template(opts.kind)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, tmpl)
		return err
	}
	if err := config.WriteTemplate(opts.output, opts.kind, opts.force); err != nil {
		return err
	}
	if opts.validate && opts.kind != "schema" {
		if _, err := config.Load(opts.output); err != nil {
			return fmt.Errorf("validate %s: %w", opts.output, err)
		}
	}
	fmt.Fprintf(out, "wrote %s template to %s\n", opts.kind, opts.output)
	return nil
}
