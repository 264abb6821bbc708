package mapping

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/cachedict/pkg/causes"
)

func TestNew(t *testing.T) {
	t.Run("single key and value", func(t *testing.T) {
		m, err := New("kv", Columns{"k": "TEXT"}, Columns{"v": "TEXT"})
		require.NoError(t, err)
		assert.Equal(t, "kv", m.Table())
		assert.Equal(t, []string{"k"}, m.KeyColumns())
		assert.Equal(t, []string{"v"}, m.ValueColumns())
		assert.Equal(t, "TEXT", m.KeyType("k"))
		assert.Equal(t, "TEXT", m.ValueType("v"))
	})

	t.Run("composite keys sorted", func(t *testing.T) {
		m, err := New("pairs", Columns{"b": "INTEGER", "a": "TEXT"}, Columns{"y": "", "x": "TEXT"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, m.KeyColumns())
		assert.Equal(t, []string{"x", "y"}, m.ValueColumns())
		assert.Equal(t, "INTEGER", m.KeyType("b"))
		assert.Equal(t, "", m.ValueType("y"), "blank sqltype stays untyped")
	})

	t.Run("keys only", func(t *testing.T) {
		m, err := New("seen", Columns{"k": "TEXT"}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"k"}, m.KeyColumns())
		assert.Empty(t, m.ValueColumns())
	})

	t.Run("normalization", func(t *testing.T) {
		m, err := New(" KV ", Columns{" Key ": " text "}, Columns{"Val": "Integer"})
		require.NoError(t, err)
		assert.Equal(t, "kv", m.Table(), "table trimmed and folded to lowercase")
		assert.Equal(t, []string{"key"}, m.KeyColumns())
		assert.Equal(t, "TEXT", m.KeyType("key"), "sqltype trimmed and folded to uppercase")
		assert.Equal(t, "INTEGER", m.ValueType("val"))
	})

	t.Run("unknown sqltype accepted", func(t *testing.T) {
		m, err := New("kv", Columns{"k": "PICKLE"}, nil)
		require.NoError(t, err, "unknown types warn but don't fail")
		assert.Equal(t, "PICKLE", m.KeyType("k"))
	})
}

func TestNew_Failed(t *testing.T) {
	tbl := []struct {
		name   string
		table  string
		keys   Columns
		values Columns
		causes []*causes.Cause
	}{
		{"nil keys", "kv", nil, nil, []*causes.Cause{ErrMissingKeys}},
		{"empty keys", "kv", Columns{}, Columns{"v": "TEXT"}, []*causes.Cause{ErrMissingKeys}},
		{"reserved table", "sqlite_x", Columns{"k": "TEXT"}, nil, []*causes.Cause{ErrReservedTable}},
		{"reserved after folding", "SQLite_x", Columns{"k": "TEXT"}, nil, []*causes.Cause{ErrReservedTable}},
		{"empty table", "", Columns{"k": "TEXT"}, nil, []*causes.Cause{ErrNoIdentifier}},
		{"blank table", "   ", Columns{"k": "TEXT"}, nil, []*causes.Cause{ErrNoIdentifier}},
		{"bad table identifier", "1bad", Columns{"k": "TEXT"}, nil, []*causes.Cause{ErrInvalidIdentifier}},
		{"bad key identifier", "kv", Columns{"k": "TEXT", "1bad": "TEXT"}, nil, []*causes.Cause{ErrInvalidIdentifier}},
		{"bad sqltype", "kv", Columns{"k": "TEXT", "b": "TE XT"}, nil, []*causes.Cause{ErrInvalidSQLType}},
		{"duplicate keys", "kv", Columns{"a": "TEXT", "A": "TEXT"}, nil, []*causes.Cause{ErrDuplicateKeys}},
		{"duplicate values", "kv", Columns{"k": "TEXT"}, Columns{"v": "TEXT", "V": "TEXT"}, []*causes.Cause{ErrDuplicateValues}},
		{"key value overlap", "kv", Columns{"a": "TEXT"}, Columns{"a": "TEXT", "b": ""}, []*causes.Cause{ErrKeyValueOverlap}},
		{"chained failures", "kv", Columns{"a": "TEXT", "A": "TEXT"}, Columns{"a": "TEXT"},
			[]*causes.Cause{ErrDuplicateKeys, ErrKeyValueOverlap}},
		{"everything at once", "sqlite_bad", Columns{"a": "TEXT", "A": "TEXT"}, Columns{"a": "TEXT", "1bad": "TEXT"},
			[]*causes.Cause{ErrReservedTable, ErrDuplicateKeys, ErrKeyValueOverlap, ErrInvalidIdentifier}},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.table, tt.keys, tt.values)
			require.Error(t, err)
			assert.Nil(t, m)
			assert.True(t, causes.IsCategory(err, causes.SchemaValidation))
			for _, cause := range tt.causes {
				assert.True(t, errors.Is(err, cause), "expected cause %s in %v", cause.Name(), err)
			}
		})
	}
}

func TestNew_DuplicateReportsAllOrigins(t *testing.T) {
	_, err := New("kv", Columns{"a": "TEXT", "A": "TEXT", " a ": "TEXT"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateKeys))
	assert.Contains(t, err.Error(), `a (from " a ", "A", "a")`, "every colliding original name is reported")
}

func TestNew_OverlapNamesColumns(t *testing.T) {
	_, err := New("kv", Columns{"a": "TEXT", "b": "TEXT"}, Columns{"a": "TEXT", "b": "TEXT", "c": "TEXT"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyValueOverlap))
	assert.Contains(t, err.Error(), `"a", "b"`)
	assert.NotContains(t, err.Error(), `"c"`)
}

func TestValidateIdentifier(t *testing.T) {
	tbl := []struct {
		in    string
		out   string
		cause *causes.Cause
	}{
		{"simple", "simple", nil},
		{"With_Digits_123", "with_digits_123", nil},
		{" padded ", "padded", nil},
		{"", "", ErrNoIdentifier},
		{"  ", "", ErrNoIdentifier},
		{"1leading", "", ErrInvalidIdentifier},
		{"_leading", "", ErrInvalidIdentifier},
		{"has space", "", ErrInvalidIdentifier},
		{"has-dash", "", ErrInvalidIdentifier},
		{"a234567890123456789012345678901234567890123456789012345678901234", "", ErrInvalidIdentifier}, // 64 chars
	}

	for _, tt := range tbl {
		t.Run(tt.in, func(t *testing.T) {
			out, err := validateIdentifier(tt.in)
			if tt.cause != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.cause))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.out, out)
		})
	}
}

func TestValidateSQLType(t *testing.T) {
	tbl := []struct {
		in    string
		out   string
		cause *causes.Cause
	}{
		{"TEXT", "TEXT", nil},
		{"text", "TEXT", nil},
		{" integer ", "INTEGER", nil},
		{"", "", nil},
		{"  ", "", nil},
		{"PICKLE", "PICKLE", nil}, // unknown type passes with a warning
		{"TE XT", "", ErrInvalidSQLType},
		{"1TEXT", "", ErrInvalidSQLType},
	}

	for _, tt := range tbl {
		t.Run(tt.in, func(t *testing.T) {
			out, err := validateSQLType(tt.in)
			if tt.cause != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.cause))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.out, out)
		})
	}
}
