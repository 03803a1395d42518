package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/danmuck/bsonctl/internal/server"
)

type serveOptions struct {
	addr string
}

func newServeCommand(root *rootOptions) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP codec gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

func runServe(root *rootOptions, opts serveOptions) error {
	ch, cfg, err := root.channel()
	if err != nil {
		return err
	}
	addr := cfg.Server.Addr
	if opts.addr != "" {
		addr = opts.addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("addr", addr).
		Str("schema", cfg.Codec.Schema).
		Str("mode", cfg.Codec.Mode).
		Msg("bsonctl serve")
	srv := server.New(server.Options{Addr: addr, CorsOrigins: cfg.Server.CorsOrigins, Channel: ch})
	return srv.Serve(ctx)
}
