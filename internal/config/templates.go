package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "config", "bsonctl":
		return configTemplate, nil
	case "schema":
		return schemaTemplate, nil
	default:
		return "", fmt.Errorf("unknown template kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const configTemplate = `[codec]
schema = "schema.toml"
type_key = "_tll_name"
seq_key = "_tll_seq"
mode = "flat"

[frame]
max_payload_bytes = 16777216

[session]
skip_invalid = false

[server]
addr = ":9400"
cors_origins = ["http://localhost:3000"]

[log]
level = "info"
`

const schemaTemplate = `[[submessage]]
name = "Sub"
  [[submessage.field]]
  name = "s0"
  type = "int8"

[[union]]
name = "Union"
  [[union.variant]]
  name = "i8"
  type = "int8"
  [[union.variant]]
  name = "s"
  type = "string"

[[message]]
name = "Data"
id = 10
  [[message.field]]
  name = "f0"
  type = "int32"
  [[message.field]]
  name = "list"
  type = "*int16"
  [[message.field]]
  name = "sub"
  type = "Sub"
  [[message.field]]
  name = "u"
  type = "Union"
  [[message.field]]
  name = "tag"
  type = "byte8"
  options = { type = "string" }
  [[message.field]]
  name = "price"
  type = "decimal128"
`
