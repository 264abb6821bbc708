package cachedict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	tbl := []struct {
		in string
		ok bool
	}{
		{"2026-08-31T10:15:04.123456789Z", true},
		{"2026-08-31T10:15:04+02:00", true},
		{"2026-08-31 10:15:04.123456789+02:00", true},
		{"2026-08-31 10:15:04", true},
		{"not a time", false},
		{"", false},
	}
	for _, tt := range tbl {
		t.Run(tt.in, func(t *testing.T) {
			ts, ok := parseTime(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, 2026, ts.Year())
			}
		})
	}
}

func TestToTime(t *testing.T) {
	now := time.Now()
	ts, ok := toTime(now)
	require.True(t, ok)
	assert.True(t, ts.Equal(now))

	ts, ok = toTime("2026-08-31 10:15:04")
	require.True(t, ok)
	assert.Equal(t, 31, ts.Day())

	ts, ok = toTime([]byte("2026-08-31 10:15:04"))
	require.True(t, ok)
	assert.Equal(t, time.August, ts.Month())

	_, ok = toTime(42)
	assert.False(t, ok)
}

func TestToInt64(t *testing.T) {
	n, ok := toInt64(int64(7))
	require.True(t, ok)
	assert.Equal(t, int64(7), n)

	n, ok = toInt64(7)
	require.True(t, ok)
	assert.Equal(t, int64(7), n)

	_, ok = toInt64("7")
	assert.False(t, ok)
}

func TestNormalizeScanned(t *testing.T) {
	assert.Equal(t, "blob", normalizeScanned([]byte("blob")))
	assert.Equal(t, "text", normalizeScanned("text"))
	assert.Equal(t, int64(1), normalizeScanned(int64(1)))
	assert.Nil(t, normalizeScanned(nil))
}

func TestDecoder_Partitioning(t *testing.T) {
	d := testDict(t)
	require.NoError(t, d.Set(Record{"k": "a"}, Record{"v": "data"}))

	rows, err := d.db.Query(d.mapping.ItemsStatement())
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())

	row, err := d.dec.decode(rows)
	require.NoError(t, err)
	assert.Equal(t, Record{"k": "a"}, row.Key)
	assert.Equal(t, Record{"v": "data"}, row.Value)
	assert.Nil(t, row.Count, "items scan carries no count column")
	assert.Nil(t, row.Timestamp, "items scan carries no timestamp column")
}
