package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Yaml(t *testing.T) {
	fname := writeSchema(t, "schema.yml", `
table: kv
keys:
  k: TEXT
values:
  v: TEXT
sqlite_params:
  timeout: 5
strict_params: true
`)
	s, err := Load(fname)
	require.NoError(t, err)
	assert.Equal(t, "kv", s.Table)
	assert.Equal(t, map[string]string{"k": "TEXT"}, s.Keys)
	assert.Equal(t, map[string]string{"v": "TEXT"}, s.Values)
	assert.Equal(t, map[string]any{"timeout": 5}, s.SQLiteParams)
	assert.True(t, s.StrictParams)
}

func TestLoad_YamlNoExtension(t *testing.T) {
	fname := writeSchema(t, "schema", "table: kv\nkeys:\n  k: TEXT\n")
	s, err := Load(fname)
	require.NoError(t, err)
	assert.Equal(t, "kv", s.Table)
	assert.Empty(t, s.Values)
}

func TestLoad_Toml(t *testing.T) {
	fname := writeSchema(t, "schema.toml", `
table = "pairs"

[keys]
a = "TEXT"
b = "INTEGER"

[values]
x = "TEXT"
y = ""
`)
	s, err := Load(fname)
	require.NoError(t, err)
	assert.Equal(t, "pairs", s.Table)
	assert.Equal(t, map[string]string{"a": "TEXT", "b": "INTEGER"}, s.Keys)
	assert.Equal(t, map[string]string{"x": "TEXT", "y": ""}, s.Values)
}

func TestLoad_Failed(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
		assert.Error(t, err)
	})

	t.Run("unknown extension", func(t *testing.T) {
		fname := writeSchema(t, "schema.json", `{"table": "kv"}`)
		_, err := Load(fname)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown schema format")
	})

	t.Run("bad yaml", func(t *testing.T) {
		fname := writeSchema(t, "schema.yml", "table: [broken\n")
		_, err := Load(fname)
		assert.Error(t, err)
	})

	t.Run("unknown yaml field", func(t *testing.T) {
		fname := writeSchema(t, "schema.yml", "table: kv\nkeys:\n  k: TEXT\ntabel: typo\n")
		_, err := Load(fname)
		assert.Error(t, err, "strict decoding rejects unknown fields")
	})

	t.Run("bad toml", func(t *testing.T) {
		fname := writeSchema(t, "schema.toml", "table = broken")
		_, err := Load(fname)
		assert.Error(t, err)
	})
}

func TestSchema_Mapping(t *testing.T) {
	s := &Schema{Table: "kv", Keys: map[string]string{"k": "TEXT"}, Values: map[string]string{"v": "TEXT"}}
	m, err := s.Mapping()
	require.NoError(t, err)
	assert.Equal(t, "kv", m.Table())

	bad := &Schema{Table: "kv"}
	_, err = bad.Mapping()
	assert.Error(t, err, "schema without keys fails validation")
}

func TestSchema_Params(t *testing.T) {
	s := &Schema{SQLiteParams: map[string]any{"timeout": 5}, StrictParams: true}
	p := s.Params()
	assert.Equal(t, map[string]any{"timeout": 5}, p.SQLite)
	assert.True(t, p.Strict)
}

func writeSchema(t *testing.T, name, body string) string {
	fname := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(fname, []byte(body), 0o600))
	return fname
}
