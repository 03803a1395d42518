package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/bsonctl/internal/protocol"
	"github.com/danmuck/bsonctl/internal/protocol/schema"
	"github.com/danmuck/bsonctl/internal/testutil/testlog"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestTemplatesLoad(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "bsonctl.toml")
	if err := WriteTemplate(path, "config", false); err != nil {
		t.Fatalf("write config template: %v", err)
	}
	if err := WriteTemplate(filepath.Join(dir, "schema.toml"), "schema", false); err != nil {
		t.Fatalf("write schema template: %v", err)
	}
	if err := WriteTemplate(path, "config", false); err == nil {
		t.Fatalf("expected error when template exists")
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Codec.Schema != filepath.Join(dir, "schema.toml") {
		t.Fatalf("schema path not resolved: %s", cfg.Codec.Schema)
	}
	if got := cfg.Settings(); got != protocol.DefaultSettings() {
		t.Fatalf("settings = %+v", got)
	}
	if sc := cfg.SessionConfig(); sc.Limits.MaxPayloadBytes != 16777216 || sc.SkipInvalid {
		t.Fatalf("session config = %+v", sc)
	}
	if _, err := schema.Load(cfg.Codec.Schema); err != nil {
		t.Fatalf("schema template does not load: %v", err)
	}
}

func TestLoadDefaultsAndDisabledSeqKey(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "c.toml", "[codec]\nschema = \"/abs/schema.toml\"\nseq_key = \"\"\nmode = \"nested\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	st := cfg.Settings()
	if st.SeqKey != "" || st.TypeKey != protocol.DefaultTypeKey || st.Mode != protocol.ModeNested {
		t.Fatalf("settings = %+v", st)
	}
	if cfg.Server.Addr != ":9400" || cfg.Log.Level != "info" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"missing schema": "[codec]\nmode = \"flat\"\n",
		"bad mode":       "[codec]\nschema = \"s.toml\"\nmode = \"sideways\"\n",
		"same keys":      "[codec]\nschema = \"s.toml\"\ntype_key = \"k\"\nseq_key = \"k\"\n",
		"bad level":      "[codec]\nschema = \"s.toml\"\n[log]\nlevel = \"loud\"\n",
		"unknown key":    "[codec]\nschema = \"s.toml\"\ncolour = \"blue\"\n",
		"tiny payload":   "[codec]\nschema = \"s.toml\"\n[frame]\nmax_payload_bytes = 2\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "c.toml", body)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil || !strings.Contains(err.Error(), "config load failed") {
		t.Fatalf("expected load failure, got %v", err)
	}
	if _, err := Template("daemon"); err == nil {
		t.Fatalf("expected unknown template error")
	}
}
