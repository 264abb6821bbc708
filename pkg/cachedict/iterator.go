package cachedict

import (
	"context"
	"database/sql"
	"fmt"
)

type iterKind int

const (
	iterKeys iterKind = iota
	iterValues
	iterItems
)

// Iterator streams rows lazily from an open cursor. Usual loop:
//
//	it, err := d.Items(false)
//	...
//	defer it.Close()
//	for it.Next() {
//	    row := it.Row()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
//
// The cursor stays open for the duration of the iteration on its own connection, so
// other dict calls keep working while iterating; mutation of the same table while
// iterating has engine-defined ordering - undefined order, not unsafe.
type Iterator struct {
	conn *sql.Conn
	rows *sql.Rows
	dec  *decoder
	kind iterKind
	cur  Row
	err  error
	done bool
}

// Next advances to the next row, false when the stream is exhausted or failed. A row
// with an empty key record terminates key and item iteration as end-of-stream.
func (it *Iterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	if !it.rows.Next() {
		it.err = it.rows.Err()
		it.finish()
		return false
	}
	row, err := it.dec.decode(it.rows)
	if err != nil {
		it.err = err
		it.finish()
		return false
	}
	if it.kind != iterValues && len(row.Key) == 0 {
		it.finish() // empty key signals end of stream, not a data row
		return false
	}
	it.cur = row
	return true
}

// Row returns the current decoded row.
func (it *Iterator) Row() Row { return it.cur }

// Key returns the key record of the current row.
func (it *Iterator) Key() Record { return it.cur.Key }

// Value returns the value record of the current row.
func (it *Iterator) Value() Record { return it.cur.Value }

// Err returns the first error hit while iterating.
func (it *Iterator) Err() error { return it.err }

// Close releases the cursor and its connection. Safe to call more than once.
func (it *Iterator) Close() error {
	it.done = true
	err := it.rows.Close()
	if it.conn != nil {
		if cerr := it.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
		it.conn = nil
	}
	return err
}

func (it *Iterator) finish() {
	it.done = true
	_ = it.rows.Close()
	if it.conn != nil {
		_ = it.conn.Close()
		it.conn = nil
	}
}

// Keys iterates over key records, in descending key order when reverse is set.
func (d *Dict) Keys(reverse bool) (*Iterator, error) {
	stmt := d.mapping.KeysStatement()
	if reverse {
		stmt = d.mapping.KeysReverseStatement()
	}
	return d.iterate("keys", iterKeys, stmt)
}

// Values iterates over value records, in descending key order when reverse is set.
func (d *Dict) Values(reverse bool) (*Iterator, error) {
	stmt := d.mapping.ValuesStatement()
	if reverse {
		stmt = d.mapping.ValuesReverseStatement()
	}
	return d.iterate("values", iterValues, stmt)
}

// Items iterates over full rows with key and value records, in descending key order
// when reverse is set.
func (d *Dict) Items(reverse bool) (*Iterator, error) {
	stmt := d.mapping.ItemsStatement()
	if reverse {
		stmt = d.mapping.ItemsReverseStatement()
	}
	return d.iterate("items", iterItems, stmt)
}

func (d *Dict) iterate(op string, kind iterKind, stmt string) (*Iterator, error) {
	if err := d.checkOpen(op); err != nil {
		return nil, err
	}
	// the cursor gets a dedicated connection, other calls on the dict must not starve
	// behind an open iteration
	conn, err := d.db.Conn(context.Background())
	if err != nil {
		return nil, fmt.Errorf("can't get connection for %s of table %q: %w", op, d.mapping.Table(), err)
	}
	rows, err := conn.QueryContext(context.Background(), stmt)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("can't iterate %s of table %q: %w", op, d.mapping.Table(), err)
	}
	return &Iterator{conn: conn, rows: rows, dec: d.dec, kind: kind}, nil
}
