package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/danmuck/bsonctl/internal/logging"
	"github.com/danmuck/bsonctl/internal/protocol"
	"github.com/danmuck/bsonctl/internal/protocol/frame"
	"github.com/danmuck/bsonctl/internal/protocol/session"
)

type Config struct {
	Codec   CodecConfig   `toml:"codec"`
	Frame   FrameConfig   `toml:"frame"`
	Session SessionConfig `toml:"session"`
	Server  ServerConfig  `toml:"server"`
	Log     LogConfig     `toml:"log"`
}

type CodecConfig struct {
	Schema  string  `toml:"schema"`
	TypeKey string  `toml:"type_key"`
	SeqKey  *string `toml:"seq_key"`
	Mode    string  `toml:"mode"`
}

type FrameConfig struct {
	MaxPayloadBytes uint64 `toml:"max_payload_bytes"`
}

type SessionConfig struct {
	SkipInvalid bool `toml:"skip_invalid"`
}

type ServerConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns a config with every default applied and no schema path.
func Default() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

// Load reads path, applies defaults and validates. A relative schema path is
// resolved against the directory of the config file.
func Load(path string) (Config, error) {
	var cfg Config
	if err := loadToml(path, &cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if cfg.Codec.Schema != "" && !filepath.IsAbs(cfg.Codec.Schema) {
		cfg.Codec.Schema = filepath.Join(filepath.Dir(path), cfg.Codec.Schema)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Codec.TypeKey == "" {
		cfg.Codec.TypeKey = protocol.DefaultTypeKey
	}
	if cfg.Codec.SeqKey == nil {
		seq := protocol.DefaultSeqKey
		cfg.Codec.SeqKey = &seq
	}
	if cfg.Codec.Mode == "" {
		cfg.Codec.Mode = protocol.ModeFlat.String()
	}
	if cfg.Frame.MaxPayloadBytes == 0 {
		cfg.Frame.MaxPayloadBytes = frame.DefaultLimits().MaxPayloadBytes
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":9400"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Codec.Schema) == "" {
		return fmt.Errorf("codec config missing schema")
	}
	if _, err := protocol.ParseMode(cfg.Codec.Mode); err != nil {
		return fmt.Errorf("codec config: %w", err)
	}
	if strings.TrimSpace(cfg.Codec.TypeKey) == "" {
		return fmt.Errorf("codec config missing type_key")
	}
	if cfg.Codec.SeqKey != nil && *cfg.Codec.SeqKey == cfg.Codec.TypeKey {
		return fmt.Errorf("codec config seq_key equals type_key %q", cfg.Codec.TypeKey)
	}
	if cfg.Frame.MaxPayloadBytes < 5 {
		return fmt.Errorf("frame config max_payload_bytes %d below minimum document size", cfg.Frame.MaxPayloadBytes)
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return fmt.Errorf("server config missing addr")
	}
	if _, ok := logging.ParseLevel(cfg.Log.Level); !ok {
		return fmt.Errorf("log config unknown level %q", cfg.Log.Level)
	}
	return nil
}

// Settings converts the codec section. Load has already validated the mode.
func (c Config) Settings() protocol.Settings {
	mode, _ := protocol.ParseMode(c.Codec.Mode)
	st := protocol.Settings{TypeKey: c.Codec.TypeKey, Mode: mode}
	if c.Codec.SeqKey != nil {
		st.SeqKey = *c.Codec.SeqKey
	}
	return st
}

func (c Config) SessionConfig() session.Config {
	return session.Config{
		Limits:      frame.Limits{MaxPayloadBytes: c.Frame.MaxPayloadBytes},
		SkipInvalid: c.Session.SkipInvalid,
	}
}
