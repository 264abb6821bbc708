// Package mapping validates a table/column schema and synthesizes the fixed set of
// parameterized SQL statements needed to operate the table. A Mapping is immutable
// after construction; every statement is computed once inside New and statement
// accessors return the identical cached text thereafter.
package mapping

import (
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"

	"github.com/go-pkgz/stringutils"
	"github.com/hashicorp/go-multierror"

	"github.com/umputun/cachedict/pkg/causes"
)

// schema validation causes, all raised eagerly by New and never deferred to query time
var (
	ErrMissingKeys       = causes.New(causes.SchemaValidation, "missing_keys", "mapping must have at least one key column")
	ErrReservedTable     = causes.New(causes.SchemaValidation, "reserved_table", "table cannot start with %q: %q")
	ErrInvalidIdentifier = causes.New(causes.SchemaValidation, "invalid_identifier", "identifier %q does not match requirements %s")
	ErrInvalidSQLType    = causes.New(causes.SchemaValidation, "invalid_sql_type", "sqltype %q does not match requirements %s")
	ErrDuplicateKeys     = causes.New(causes.SchemaValidation, "duplicate_keys", "key columns collide after normalization: %s")
	ErrDuplicateValues   = causes.New(causes.SchemaValidation, "duplicate_values", "value columns collide after normalization: %s")
	ErrKeyValueOverlap   = causes.New(causes.SchemaValidation, "key_value_overlap", "key and value column sets must be disjoint, columns %s occur in both")
	ErrNoIdentifier      = causes.New(causes.SchemaValidation, "no_identifier", "empty identifier provided")
)

// identifierRequirements describes the identifier grammar, used in error messages
const identifierRequirements = "start with an ascii letter followed by up to 62 letters, digits or underscores"

// reservedPrefix is the engine's reserved table name prefix
const reservedPrefix = "sqlite_"

// implicit columns maintained by the storage engine. The leading underscore keeps them
// outside the identifier grammar, so they can never collide with a validated column.
const (
	TimestampColumn = "_timestamp"
	CountColumn     = "_count"
)

var identifierPattern = regexp.MustCompile(`(?i)^[a-z][a-z0-9_]{0,62}$`)

// sql types the engine converts natively; anything else is accepted with a warning
var knownSQLTypes = []string{
	"TEXT", "INTEGER", "INT", "REAL", "FLOAT", "DOUBLE", "NUMERIC",
	"BLOB", "BOOLEAN", "DATE", "DATETIME", "TIMESTAMP", "VARCHAR",
}

// Columns defines column names with optional declared sql types. An empty type leaves
// the column untyped, which sqlite is perfectly happy with.
type Columns map[string]string

// Mapping is the immutable, validated description of a table plus its synthesized
// SQL statement set. Key and value column sets are disjoint by normalized name and
// the key set is never empty.
type Mapping struct {
	table    string
	keyNames []string // sorted, normalized
	keyTypes map[string]string
	valNames []string // sorted, normalized
	valTypes map[string]string

	stmts statements
}

// New validates the table identifier and the key/value column specifications and builds
// a Mapping with all statements synthesized. All validation failures are collected and
// reported together, chained into a single error, never just the first one found.
func New(table string, keys, values Columns) (*Mapping, error) {
	errs := new(multierror.Error)

	vtable, err := validateIdentifier(table)
	if err != nil {
		errs = multierror.Append(errs, err)
	} else if strings.HasPrefix(vtable, reservedPrefix) {
		errs = multierror.Append(errs, ErrReservedTable.Errorf(reservedPrefix, vtable))
	}

	keyTypes, keyOrigins, err := validateColumns(keys, ErrDuplicateKeys)
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	valTypes := map[string]string{}
	var overlaps []string
	if len(values) > 0 {
		vals, _, verr := validateColumns(values, ErrDuplicateValues)
		if verr != nil {
			errs = multierror.Append(errs, verr)
		}
		for name, sqltype := range vals {
			if _, inKeys := keyTypes[name]; inKeys {
				overlaps = append(overlaps, name) // recorded, not silently dropped
				continue
			}
			valTypes[name] = sqltype
		}
	}
	if len(overlaps) > 0 {
		sort.Strings(overlaps)
		errs = multierror.Append(errs, ErrKeyValueOverlap.Errorf(quoteList(overlaps)))
	}

	// checked against the validated set, a degenerate key spec still fails meaningfully
	if len(keyTypes) == 0 {
		errs = multierror.Append(errs, ErrMissingKeys.Errorf())
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	m := &Mapping{
		table:    vtable,
		keyNames: sortedNames(keyTypes),
		keyTypes: keyTypes,
		valNames: sortedNames(valTypes),
		valTypes: valTypes,
	}
	m.stmts = synthesize(m)
	log.Printf("[DEBUG] mapping created for table %q, keys: %v, values: %v (origins: %v)",
		m.table, m.keyNames, m.valNames, keyOrigins)
	return m, nil
}

// Table returns the normalized table identifier.
func (m *Mapping) Table() string { return m.table }

// KeyColumns returns the normalized key column names in sorted order.
func (m *Mapping) KeyColumns() []string { return append([]string{}, m.keyNames...) }

// ValueColumns returns the normalized value column names in sorted order.
func (m *Mapping) ValueColumns() []string { return append([]string{}, m.valNames...) }

// KeyType returns the declared sql type of a key column, empty for untyped columns.
func (m *Mapping) KeyType(name string) string { return m.keyTypes[name] }

// ValueType returns the declared sql type of a value column, empty for untyped columns.
func (m *Mapping) ValueType(name string) string { return m.valTypes[name] }

// validateColumns validates every column of the given set, normalizing names and types.
// Names that collapse to the same normalized form are collected, all of them, into a
// single error built from dupCause.
func validateColumns(cols Columns, dupCause *causes.Cause) (types map[string]string, origins map[string][]string, err error) {
	errs := new(multierror.Error)
	types = map[string]string{}
	origins = map[string][]string{}

	for _, name := range sortedNames(cols) {
		vname, verr := validateIdentifier(name)
		if verr != nil {
			errs = multierror.Append(errs, verr)
			continue
		}
		origins[vname] = append(origins[vname], name)
		if len(origins[vname]) > 1 {
			continue // collision recorded in origins, reported below
		}
		vtype, terr := validateSQLType(cols[name])
		if terr != nil {
			errs = multierror.Append(errs, terr)
			continue
		}
		types[vname] = vtype
	}

	var dups []string
	for vname, names := range origins {
		if len(names) > 1 {
			sort.Strings(names)
			dups = append(dups, fmt.Sprintf("%s (from %s)", vname, quoteList(names)))
		}
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		errs = multierror.Append(errs, dupCause.Errorf(strings.Join(dups, ", ")))
	}
	return types, origins, errs.ErrorOrNil()
}

// validateIdentifier trims, validates against the identifier grammar and case-folds to
// lowercase. Trimming and folding are informational, not errors.
func validateIdentifier(identifier string) (string, error) {
	if identifier == "" {
		return "", ErrNoIdentifier.Errorf()
	}
	trimmed := strings.TrimSpace(identifier)
	if trimmed != identifier {
		log.Printf("[INFO] identifier %q has surrounding whitespace which will be stripped", identifier)
	}
	if trimmed == "" {
		return "", ErrNoIdentifier.Errorf()
	}
	if !identifierPattern.MatchString(trimmed) {
		return "", ErrInvalidIdentifier.Errorf(trimmed, identifierRequirements)
	}
	lower := strings.ToLower(trimmed)
	if lower != trimmed {
		log.Printf("[WARN] identifier %q is not lowercase, using %q", trimmed, lower)
	}
	return lower, nil
}

// validateSQLType normalizes a declared sql type to uppercase. Blank input is the empty
// (untyped) type. Types unknown to the engine's native conversions are accepted with a
// warning since sqlite may hand them back without conversion.
func validateSQLType(sqltype string) (string, error) {
	trimmed := strings.TrimSpace(sqltype)
	if trimmed != sqltype {
		log.Printf("[INFO] sqltype %q has surrounding whitespace which will be stripped", sqltype)
	}
	if trimmed == "" {
		return "", nil
	}
	if !identifierPattern.MatchString(trimmed) {
		return "", ErrInvalidSQLType.Errorf(trimmed, identifierRequirements)
	}
	upper := strings.ToUpper(trimmed)
	if upper != trimmed {
		log.Printf("[WARN] sqltype %q is not uppercase, using %q", trimmed, upper)
	}
	if !stringutils.Contains(upper, knownSQLTypes) {
		log.Printf("[WARN] sqltype %q has no native conversion, values may come back unconverted", upper)
	}
	return upper, nil
}

func sortedNames(cols map[string]string) []string {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(quoted, ", ")
}
