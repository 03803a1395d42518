package main

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/danmuck/bsonctl/internal/config"
	"github.com/danmuck/bsonctl/internal/logging"
	"github.com/danmuck/bsonctl/internal/observability"
	"github.com/danmuck/bsonctl/internal/protocol/schema"
	"github.com/danmuck/bsonctl/internal/protocol/session"
	"github.com/danmuck/bsonctl/internal/server"
)

var initLogger sync.Once

type rootOptions struct {
	configPath string
	schemaPath string
	mode       string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "bsonctl",
		Short:         "Schema driven BSON encoder and decoder",
		Version:       server.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initLogger.Do(func() { observability.InitLogger("bsonctl") })
			if opts.logLevel != "" && !logging.SetLevel(opts.logLevel) {
				return fmt.Errorf("unknown log level %q", opts.logLevel)
			}
			return nil
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (TOML)")
	flags.StringVarP(&opts.schemaPath, "schema", "s", "", "schema file, overrides codec.schema")
	flags.StringVar(&opts.mode, "mode", "", "envelope mode: flat|nested, overrides codec.mode")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: trace|debug|info|warn|error|off")

	cmd.AddCommand(
		newEncodeCommand(opts),
		newDecodeCommand(opts),
		newServeCommand(opts),
		newSchemaCommand(),
		newRulesCommand(),
		newConfigCommand(),
	)
	return cmd
}

// loadConfig resolves the config file and flag overrides.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if o.schemaPath != "" {
		cfg.Codec.Schema = o.schemaPath
	}
	if o.mode != "" {
		cfg.Codec.Mode = o.mode
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	if o.logLevel == "" {
		logging.SetLevel(cfg.Log.Level)
	}
	return cfg, nil
}

func (o *rootOptions) channel() (*session.Channel, config.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, config.Config{}, err
	}
	s, err := schema.Load(cfg.Codec.Schema)
	if err != nil {
		return nil, config.Config{}, err
	}
	ch, err := session.NewChannel(s, cfg.Settings(), cfg.SessionConfig())
	if err != nil {
		return nil, config.Config{}, err
	}
	log.Debug().
		Str("schema", cfg.Codec.Schema).
		Str("mode", cfg.Codec.Mode).
		Int("messages", len(s.Messages())).
		Msg("bsonctl channel ready")
	return ch, cfg, nil
}
