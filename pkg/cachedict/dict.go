// Package cachedict implements a persistent, schema-validated key to value mapping
// stored in a single sqlite table. A Dict binds an exclusively-owned connection to a
// validated mapping and exposes the usual dictionary protocol: lookup, upsert, delete,
// iteration, length and existence checks, plus table lifecycle operations.
//
// All durability, locking and isolation behavior is delegated to sqlite; the dict adds
// no consistency contract of its own. Each Dict owns its database handle and must be
// released with Close, after which every operation fails.
package cachedict

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/umputun/cachedict/pkg/causes"
	"github.com/umputun/cachedict/pkg/mapping"
)

// runtime failure causes, raised at the point of the protocol call that triggered them
var (
	ErrNotFound       = causes.New(causes.NotFound, "no_such_key", "key %v not present in table %q")
	ErrKeyType        = causes.New(causes.TypeMismatch, "key_shape", "key %v does not match key columns %v")
	ErrValueType      = causes.New(causes.TypeMismatch, "value_shape", "value %v does not match value columns %v")
	ErrReadOnly       = causes.New(causes.ReadOnly, "read_only", "attempting to perform %q on readonly table %q")
	ErrClosed         = causes.New(causes.ConnectionClosed, "closed", "attempting to perform %q on closed dict for table %q")
	ErrFilteredParams = causes.New(causes.Configuration, "filtered_params", "sqlite params contained unsupported keys: %v")
)

// Dict is a mapping over a single sqlite table. Construct via the Open* factory
// functions; a read-only dict rejects every schema or data mutation.
type Dict struct {
	db       *sql.DB
	mapping  *mapping.Mapping
	dec      *decoder
	readOnly bool
	closed   bool

	removeOnClose string // anon disk databases are deleted on close
}

// newDict binds an already-open connection to the mapping. Unless read-only, the mapped
// table is created right away (idempotent). The connection is owned by the dict from
// this point on and is closed if construction fails.
func newDict(db *sql.DB, m *mapping.Mapping, readOnly bool) (*Dict, error) {
	d := &Dict{db: db, mapping: m, dec: newDecoder(m), readOnly: readOnly}
	if !readOnly {
		if err := d.CreateTable(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("can't create table %q: %w", m.Table(), err)
		}
	}
	log.Printf("[DEBUG] dict created for table %q, read-only: %v", m.Table(), readOnly)
	return d, nil
}

// Mapping returns the schema mapping the dict operates on.
func (d *Dict) Mapping() *mapping.Mapping { return d.mapping }

// ReadOnly reports if the dict rejects mutations.
func (d *Dict) ReadOnly() bool { return d.readOnly }

// Get returns the value record for the key. A missing row fails with ErrNotFound.
func (d *Dict) Get(key Record) (Record, error) {
	if err := d.checkOpen("get"); err != nil {
		return nil, err
	}
	if err := d.validateKey(key); err != nil {
		return nil, err
	}
	row, err := d.queryRow(d.mapping.SelectStatement(), d.keyArgs(key)...)
	if err != nil {
		return nil, fmt.Errorf("can't get key %v from table %q: %w", key, d.mapping.Table(), err)
	}
	if row == nil {
		return nil, ErrNotFound.Errorf(key, d.mapping.Table())
	}
	if row.Value == nil {
		// a present key always decodes to some value record, even an empty one
		return nil, fmt.Errorf("row for key %v in table %q has no value payload", key, d.mapping.Table())
	}
	return row.Value, nil
}

// Set upserts the value record under the key. A nil or empty value is stored as a
// zero-valued record. The modification timestamp is captured at call time.
func (d *Dict) Set(key, value Record) error {
	if err := d.checkWritable("set"); err != nil {
		return err
	}
	if err := d.validateKey(key); err != nil {
		return err
	}
	if len(value) == 0 {
		value = d.zeroValue()
	}
	if err := d.validateValue(value); err != nil {
		return err
	}

	args := make([]any, 0, 1+len(key)+len(value))
	args = append(args, time.Now())
	args = append(args, d.keyArgs(key)...)
	for _, col := range d.mapping.ValueColumns() {
		args = append(args, value[col])
	}
	if _, err := d.db.Exec(d.mapping.UpsertStatement(), args...); err != nil {
		return fmt.Errorf("can't set key %v in table %q: %w", key, d.mapping.Table(), err)
	}
	return nil
}

// Delete removes the key's row. The key is re-validated for presence first, so deleting
// an absent key fails with ErrNotFound.
func (d *Dict) Delete(key Record) error {
	if err := d.checkWritable("delete"); err != nil {
		return err
	}
	if _, err := d.Get(key); err != nil {
		return err
	}
	if _, err := d.db.Exec(d.mapping.RemoveStatement(), d.keyArgs(key)...); err != nil {
		return fmt.Errorf("can't delete key %v from table %q: %w", key, d.mapping.Table(), err)
	}
	return nil
}

// Contains reports if the key is present. Presence requires a row with a non-empty
// value payload, or, for schemas without value columns, a recorded timestamp. This
// keeps "present with empty value" distinguishable from "absent".
func (d *Dict) Contains(key Record) (bool, error) {
	if err := d.checkOpen("contains"); err != nil {
		return false, err
	}
	if err := d.validateKey(key); err != nil {
		return false, err
	}
	row, err := d.queryRow(d.mapping.SelectStatement(), d.keyArgs(key)...)
	if err != nil {
		return false, fmt.Errorf("can't check key %v in table %q: %w", key, d.mapping.Table(), err)
	}
	if row == nil {
		return false, nil
	}
	if len(row.Value) > 0 {
		return true, nil
	}
	return len(d.mapping.ValueColumns()) == 0 && row.Timestamp != nil, nil
}

// Len returns the number of rows in the table. A missing result counts as zero.
func (d *Dict) Len() (int, error) {
	if err := d.checkOpen("len"); err != nil {
		return 0, err
	}
	row, err := d.queryRow(d.mapping.LengthStatement())
	if err != nil {
		return 0, fmt.Errorf("can't get length of table %q: %w", d.mapping.Table(), err)
	}
	if row == nil || row.Count == nil {
		return 0, nil
	}
	return int(*row.Count), nil
}

// NotEmpty reports if the table holds at least one row, using a dedicated existence
// query rather than a full count.
func (d *Dict) NotEmpty() (bool, error) {
	if err := d.checkOpen("exists"); err != nil {
		return false, err
	}
	rows, err := d.db.Query(d.mapping.ExistsStatement())
	if err != nil {
		return false, fmt.Errorf("can't check existence for table %q: %w", d.mapping.Table(), err)
	}
	defer rows.Close()
	if rows.Next() {
		return true, nil
	}
	return false, rows.Err()
}

// CreateTable creates the mapped table if it does not exist yet.
func (d *Dict) CreateTable() error {
	if err := d.checkWritable("create"); err != nil {
		return err
	}
	if _, err := d.db.Exec(d.mapping.CreateStatement()); err != nil {
		return fmt.Errorf("can't create table %q: %w", d.mapping.Table(), err)
	}
	return nil
}

// ClearTable removes all rows from the mapped table.
func (d *Dict) ClearTable() error {
	if err := d.checkWritable("clear"); err != nil {
		return err
	}
	if _, err := d.db.Exec(d.mapping.ClearStatement()); err != nil {
		return fmt.Errorf("can't clear table %q: %w", d.mapping.Table(), err)
	}
	return nil
}

// DeleteTable drops the mapped table.
func (d *Dict) DeleteTable() error {
	if err := d.checkWritable("drop"); err != nil {
		return err
	}
	if _, err := d.db.Exec(d.mapping.DeleteStatement()); err != nil {
		return fmt.Errorf("can't drop table %q: %w", d.mapping.Table(), err)
	}
	return nil
}

// Close releases the owned connection. Idempotent; failures during teardown are logged
// and suppressed since nothing can act on them at that point.
func (d *Dict) Close() {
	if d.closed {
		return
	}
	d.closed = true
	log.Printf("[DEBUG] closing dict for table %q", d.mapping.Table())
	if err := d.db.Close(); err != nil {
		log.Printf("[ERROR] can't close connection for table %q: %v", d.mapping.Table(), err)
	}
	if d.removeOnClose != "" {
		if err := os.Remove(d.removeOnClose); err != nil {
			log.Printf("[WARN] can't remove anon database %s: %v", d.removeOnClose, err)
		}
	}
}

func (d *Dict) checkOpen(op string) error {
	if d.closed {
		return ErrClosed.Errorf(op, d.mapping.Table())
	}
	return nil
}

func (d *Dict) checkWritable(op string) error {
	if err := d.checkOpen(op); err != nil {
		return err
	}
	if d.readOnly {
		return ErrReadOnly.Errorf(op, d.mapping.Table())
	}
	return nil
}

// validateKey requires the key record to cover exactly the mapping's key columns.
func (d *Dict) validateKey(key Record) error {
	cols := d.mapping.KeyColumns()
	if len(key) != len(cols) {
		return ErrKeyType.Errorf(key, cols)
	}
	for _, col := range cols {
		if _, ok := key[col]; !ok {
			return ErrKeyType.Errorf(key, cols)
		}
	}
	return nil
}

// validateValue requires the value record to cover exactly the mapping's value columns.
func (d *Dict) validateValue(value Record) error {
	cols := d.mapping.ValueColumns()
	if len(value) != len(cols) {
		return ErrValueType.Errorf(value, cols)
	}
	for _, col := range cols {
		if _, ok := value[col]; !ok {
			return ErrValueType.Errorf(value, cols)
		}
	}
	return nil
}

// zeroValue makes a zero-valued record covering every value column.
func (d *Dict) zeroValue() Record {
	res := Record{}
	for _, col := range d.mapping.ValueColumns() {
		res[col] = nil
	}
	return res
}

func (d *Dict) keyArgs(key Record) []any {
	cols := d.mapping.KeyColumns()
	args := make([]any, len(cols))
	for i, col := range cols {
		args[i] = key[col]
	}
	return args
}

// queryRow runs the statement and decodes the first result row, nil if none.
func (d *Dict) queryRow(stmt string, args ...any) (*Row, error) {
	rows, err := d.db.Query(stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	row, err := d.dec.decode(rows)
	if err != nil {
		return nil, err
	}
	return &row, nil
}
