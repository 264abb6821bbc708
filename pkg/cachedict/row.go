package cachedict

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/umputun/cachedict/pkg/mapping"
)

// Record holds column values addressed by normalized column name. It is used both for
// keys passed into the dict and for key/value payloads decoded from result rows.
type Record map[string]any

// Row is a decoded result row, partitioned into key and value records plus the
// implicit count and timestamp scalars. Parts not present in the result set are nil.
type Row struct {
	Key       Record
	Value     Record
	Count     *int64
	Timestamp *time.Time
}

// decoder partitions flat result rows by column name into Row parts. The column sets
// are fixed at construction from the mapping, no per-row reflection is involved.
type decoder struct {
	keySet map[string]bool
	valSet map[string]bool
}

func newDecoder(m *mapping.Mapping) *decoder {
	dec := &decoder{keySet: map[string]bool{}, valSet: map[string]bool{}}
	for _, name := range m.KeyColumns() {
		dec.keySet[name] = true
	}
	for _, name := range m.ValueColumns() {
		dec.valSet[name] = true
	}
	return dec
}

// decode scans the current row of rows and partitions it. Columns matching neither
// set and neither implicit column, like the NULL literal of value-less schemas, are
// dropped. A value-less schema with a timestamp still yields an empty, non-nil value
// record - the row exists, it just carries no payload.
func (dc *decoder) decode(rows *sql.Rows) (Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return Row{}, fmt.Errorf("can't get result columns: %w", err)
	}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return Row{}, fmt.Errorf("can't scan row: %w", err)
	}

	var res Row
	for i, col := range cols {
		val := raw[i]
		switch {
		case col == mapping.TimestampColumn:
			if val == nil {
				continue
			}
			if ts, ok := toTime(val); ok {
				res.Timestamp = &ts
			} else {
				log.Printf("[DEBUG] can't interpret timestamp value %v (%T)", val, val)
			}
		case col == mapping.CountColumn:
			if n, ok := toInt64(val); ok {
				res.Count = &n
			}
		case dc.keySet[col]:
			if res.Key == nil {
				res.Key = Record{}
			}
			res.Key[col] = normalizeScanned(val)
		case dc.valSet[col]:
			if res.Value == nil {
				res.Value = Record{}
			}
			res.Value[col] = normalizeScanned(val)
		}
	}

	if res.Value == nil && len(dc.valSet) == 0 && res.Timestamp != nil {
		res.Value = Record{} // row present, schema has no payload columns
	}
	return res, nil
}

// normalizeScanned converts driver byte slices to strings so records compare cleanly.
func normalizeScanned(val any) any {
	if b, ok := val.([]byte); ok {
		return string(b)
	}
	return val
}

func toTime(val any) (time.Time, bool) {
	switch v := val.(type) {
	case time.Time:
		return v, true
	case string:
		return parseTime(v)
	case []byte:
		return parseTime(string(v))
	}
	return time.Time{}, false
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func toInt64(val any) (int64, bool) {
	switch v := val.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}
