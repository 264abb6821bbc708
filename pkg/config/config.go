// Package config loads a dict schema definition from a yaml or toml file. The
// definition names the table and its key/value columns, plus optional low-level sqlite
// parameters for the factory functions. Validation of the schema itself is not done
// here - it belongs to mapping.New, which the Mapping method delegates to.
package config

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/umputun/cachedict/pkg/cachedict"
	"github.com/umputun/cachedict/pkg/mapping"
)

// Schema defines the dict schema as loaded from a definition file.
type Schema struct {
	Table  string            `yaml:"table" toml:"table"`   // table identifier, required
	Keys   map[string]string `yaml:"keys" toml:"keys"`     // key columns, name to optional sql type
	Values map[string]string `yaml:"values" toml:"values"` // value columns, name to optional sql type

	SQLiteParams map[string]any `yaml:"sqlite_params" toml:"sqlite_params"` // low-level connection params
	StrictParams bool           `yaml:"strict_params" toml:"strict_params"` // fail on filtered params
}

// Load reads and parses the schema definition file. Format is picked by extension,
// yaml for .yml/.yaml or extension-less files, toml for .toml.
func Load(fname string) (*Schema, error) {
	log.Printf("[DEBUG] request to load schema %q", fname)
	data, err := os.ReadFile(fname) // nolint gosec // path comes from the caller on purpose
	if err != nil {
		return nil, fmt.Errorf("can't read schema file %s: %w", fname, err)
	}

	res := &Schema{}
	switch {
	case strings.HasSuffix(fname, ".yml") || strings.HasSuffix(fname, ".yaml") || !strings.Contains(fname, "."):
		yamlDecoder := yaml.NewDecoder(bytes.NewReader(data))
		yamlDecoder.KnownFields(true) // strict mode, fail on unknown fields
		if err = yamlDecoder.Decode(res); err != nil {
			return nil, fmt.Errorf("can't unmarshal yaml schema %s: %w", fname, err)
		}
	case strings.HasSuffix(fname, ".toml"):
		if err = toml.Unmarshal(data, res); err != nil {
			return nil, fmt.Errorf("can't unmarshal toml schema %s: %w", fname, err)
		}
	default:
		return nil, fmt.Errorf("unknown schema format %s", fname)
	}

	log.Printf("[INFO] schema loaded from %s, table %q, %d keys, %d values",
		fname, res.Table, len(res.Keys), len(res.Values))
	return res, nil
}

// Mapping builds the validated schema mapping from the definition.
func (s *Schema) Mapping() (*mapping.Mapping, error) {
	return mapping.New(s.Table, s.Keys, s.Values)
}

// Params returns the connection parameters for the Open* factories.
func (s *Schema) Params() cachedict.Params {
	return cachedict.Params{SQLite: s.SQLiteParams, Strict: s.StrictParams}
}
