package mapping

import (
	"fmt"
	"strings"
)

// statements holds the synthesized SQL text for every operation on the mapped table.
// Everything is computed once by synthesize and never mutated, so accessors can return
// the cached string directly. Columns are always emitted in sorted order to keep the
// text deterministic for a given schema.
type statements struct {
	create string
	clear  string
	drop   string
	upsert string
	sel    string
	remove string
	length string
	exists string

	keys   string
	items  string
	values string

	keysReverse   string
	itemsReverse  string
	valuesReverse string
}

// CreateStatement returns the idempotent table creation statement.
func (m *Mapping) CreateStatement() string { return m.stmts.create }

// ClearStatement returns the statement removing all rows from the table.
func (m *Mapping) ClearStatement() string { return m.stmts.clear }

// DeleteStatement returns the statement dropping the table.
func (m *Mapping) DeleteStatement() string { return m.stmts.drop }

// UpsertStatement returns the insert-or-update statement. Parameters are
// (timestamp, key columns..., value columns...) in sorted column order.
func (m *Mapping) UpsertStatement() string { return m.stmts.upsert }

// SelectStatement returns the single-key lookup statement. Parameters are the key
// columns in sorted order.
func (m *Mapping) SelectStatement() string { return m.stmts.sel }

// RemoveStatement returns the single-key delete statement.
func (m *Mapping) RemoveStatement() string { return m.stmts.remove }

// LengthStatement returns the row count statement.
func (m *Mapping) LengthStatement() string { return m.stmts.length }

// ExistsStatement returns the cheap any-row-present statement.
func (m *Mapping) ExistsStatement() string { return m.stmts.exists }

// KeysStatement returns the all-keys scan statement.
func (m *Mapping) KeysStatement() string { return m.stmts.keys }

// ItemsStatement returns the all-rows scan statement with key and value columns.
func (m *Mapping) ItemsStatement() string { return m.stmts.items }

// ValuesStatement returns the all-values scan statement. For a schema without value
// columns a NULL literal is selected instead, so keys-only tables stay queryable.
func (m *Mapping) ValuesStatement() string { return m.stmts.values }

// KeysReverseStatement returns the all-keys scan ordered by descending key.
func (m *Mapping) KeysReverseStatement() string { return m.stmts.keysReverse }

// ItemsReverseStatement returns the all-rows scan ordered by descending key.
func (m *Mapping) ItemsReverseStatement() string { return m.stmts.itemsReverse }

// ValuesReverseStatement returns the all-values scan ordered by descending key.
func (m *Mapping) ValuesReverseStatement() string { return m.stmts.valuesReverse }

func synthesize(m *Mapping) statements {
	table := quote(m.table)
	keyCols := quoteAll(m.keyNames)
	valCols := quoteAll(m.valNames)

	keyList := strings.Join(keyCols, ", ")
	valList := strings.Join(valCols, ", ")

	res := statements{
		clear:  fmt.Sprintf("DELETE FROM %s", table),
		drop:   fmt.Sprintf("DROP TABLE %s", table),
		length: fmt.Sprintf("SELECT COUNT(*) AS %s FROM %s", quote(CountColumn), table),
		exists: fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", table),
		keys:   fmt.Sprintf("SELECT %s FROM %s", keyList, table),
	}

	// create, keys then values then the implicit timestamp, composite primary key
	defs := make([]string, 0, len(m.keyNames)+len(m.valNames)+1)
	for _, name := range m.keyNames {
		defs = append(defs, columnDef(name, m.keyTypes[name]))
	}
	for _, name := range m.valNames {
		defs = append(defs, columnDef(name, m.valTypes[name]))
	}
	defs = append(defs, columnDef(TimestampColumn, "TIMESTAMP"))
	res.create = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s, PRIMARY KEY (%s) ON CONFLICT ABORT)",
		table, strings.Join(defs, ", "), keyList)

	// upsert, parameters are (timestamp, keys..., values...)
	insertCols := append([]string{quote(TimestampColumn)}, keyCols...)
	insertCols = append(insertCols, valCols...)
	if len(valCols) > 0 {
		setCols := append(append([]string{}, valCols...), quote(TimestampColumn))
		excluded := make([]string, len(setCols))
		for i, col := range setCols {
			excluded[i] = "excluded." + col
		}
		res.upsert = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET (%s) = (%s)",
			table, strings.Join(insertCols, ", "), placeholders(len(insertCols)),
			keyList, strings.Join(setCols, ", "), strings.Join(excluded, ", "))
	} else {
		// no value columns, nothing to update on conflict
		res.upsert = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
			table, strings.Join(insertCols, ", "), placeholders(len(insertCols)))
	}

	whereKey := fmt.Sprintf("WHERE (%s) = (%s)", keyList, placeholders(len(keyCols)))
	selectVals := valList
	if len(valCols) == 0 {
		selectVals = "null" // null literal to permit querying keys-only tables
	}
	res.sel = fmt.Sprintf("SELECT %s, %s FROM %s %s", selectVals, quote(TimestampColumn), table, whereKey)
	res.remove = fmt.Sprintf("DELETE FROM %s %s", table, whereKey)

	allCols := keyList
	if len(valCols) > 0 {
		allCols += ", " + valList
	}
	res.items = fmt.Sprintf("SELECT %s FROM %s", allCols, table)
	res.values = fmt.Sprintf("SELECT %s FROM %s", selectVals, table)

	// reverse iteration orders by descending key
	desc := make([]string, len(keyCols))
	for i, col := range keyCols {
		desc[i] = col + " DESC"
	}
	orderDesc := " ORDER BY " + strings.Join(desc, ", ")
	res.keysReverse = res.keys + orderDesc
	res.itemsReverse = res.items + orderDesc
	res.valuesReverse = res.values + orderDesc

	return res
}

func columnDef(name, sqltype string) string {
	if sqltype == "" {
		return quote(name)
	}
	return quote(name) + " " + sqltype
}

func quote(name string) string { return `"` + name + `"` }

func quoteAll(names []string) []string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = quote(name)
	}
	return quoted
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
