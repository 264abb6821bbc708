package cachedict

import (
	"database/sql"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/go-pkgz/fileutils"
	"github.com/go-pkgz/stringutils"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // sqlite driver loaded here

	"github.com/umputun/cachedict/pkg/mapping"
)

// connection pragmas. Iteration runs on its own pooled connection, so writers must not
// be blocked by an open read cursor on another connection: wal covers file databases,
// read_uncommitted covers shared-cache memory databases where wal is unavailable.
const (
	pragmaWAL             = "_pragma=journal_mode(wal)"
	pragmaReadUncommitted = "_pragma=read_uncommitted(1)"
)

// passthroughParams is the allow-list of low-level sqlite parameters accepted by the
// factory functions. Anything else is dropped with a warning, or fails the open when
// Params.Strict is set.
var passthroughParams = []string{"timeout", "detect_types", "isolation_level", "factory", "cached_statements"}

// Params carries low-level sqlite connection parameters for the Open* factories.
// The zero value is fine for defaults.
type Params struct {
	SQLite map[string]any // filtered against the passthrough allow-list
	Strict bool           // fail on filtered params instead of dropping them
}

// OpenAnonMemory opens an anonymous in-memory dict. The database gets a unique name
// with a shared cache, so every connection of the pool sees the same data while
// separate dicts stay isolated from each other.
func OpenAnonMemory(m *mapping.Mapping, params Params) (*Dict, error) {
	log.Printf("[INFO] open anon memory dict for table %q", m.Table())
	uri := "file:" + uuid.New().String() + "?mode=memory&cache=shared"
	db, err := openDB(uri, params, pragmaReadUncommitted)
	if err != nil {
		return nil, err
	}
	return newDict(db, m, false)
}

// OpenAnonDisk opens a dict backed by an anonymous on-disk database. The database
// lives in a temporary file which is removed when the dict is closed.
func OpenAnonDisk(m *mapping.Mapping, params Params) (*Dict, error) {
	log.Printf("[INFO] open anon disk dict for table %q", m.Table())
	path, err := fileutils.TempFileName("", "cachedict-"+uuid.New().String()+".db")
	if err != nil {
		return nil, fmt.Errorf("can't make anon database name: %w", err)
	}
	db, err := openDB("file:"+path+"?mode=rwc", params, pragmaWAL)
	if err != nil {
		return nil, err
	}
	d, err := newDict(db, m, false)
	if err != nil {
		return nil, err
	}
	d.removeOnClose = path
	return d, nil
}

// OpenReadOnly opens an existing database in read-only mode. All schema and data
// mutations on the resulting dict fail with ErrReadOnly.
func OpenReadOnly(path string, m *mapping.Mapping, params Params) (*Dict, error) {
	log.Printf("[INFO] open readonly dict for table %q at %s", m.Table(), path)
	db, err := openDB("file:"+path+"?mode=ro", params)
	if err != nil {
		return nil, err
	}
	return newDict(db, m, true)
}

// OpenReadWrite opens a database read-write. With create set the database file is
// created if missing, otherwise opening a missing file fails.
func OpenReadWrite(path string, create bool, m *mapping.Mapping, params Params) (*Dict, error) {
	log.Printf("[INFO] open readwrite dict for table %q at %s, create: %v", m.Table(), path, create)
	mode := "rw"
	if create {
		mode = "rwc"
	}
	db, err := openDB("file:"+path+"?mode="+mode, params, pragmaWAL)
	if err != nil {
		return nil, err
	}
	return newDict(db, m, false)
}

// openDB opens a sqlite connection pool with the pragmas and the filtered params
// applied to the dsn.
func openDB(uri string, params Params, pragmas ...string) (*sql.DB, error) {
	frags, err := params.fragments()
	if err != nil {
		return nil, err
	}
	frags = append(append([]string{}, pragmas...), frags...)
	dsn := uri
	if len(frags) > 0 {
		sep := "?"
		if strings.Contains(uri, "?") {
			sep = "&"
		}
		dsn += sep + strings.Join(frags, "&")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("can't open database %s: %w", uri, err)
	}
	// idle connections are kept around; a shared-cache memory database lives only as
	// long as at least one connection stays open
	db.SetMaxIdleConns(2)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("can't connect to database %s: %w", uri, err)
	}
	return db, nil
}

// fragments filters the caller-supplied params against the allow-list and converts the
// surviving ones to dsn query fragments.
func (p Params) fragments() ([]string, error) {
	if len(p.SQLite) == 0 {
		return nil, nil
	}

	var filtered []string
	var frags []string
	for _, param := range sortedParams(p.SQLite) {
		value := p.SQLite[param]
		if !stringutils.Contains(param, passthroughParams) {
			log.Printf("[WARN] unsupported sqlite parameter %q with value %v - removing", param, value)
			filtered = append(filtered, param)
			continue
		}
		if value == nil {
			log.Printf("[DEBUG] sqlite parameter %q present but has no value", param)
			continue
		}
		switch param {
		case "timeout":
			ms, err := timeoutMillis(value)
			if err != nil {
				return nil, err
			}
			frags = append(frags, fmt.Sprintf("_pragma=busy_timeout(%d)", ms))
		case "isolation_level":
			frags = append(frags, "_txlock="+strings.ToLower(fmt.Sprint(value)))
		default:
			// allowed for compatibility but meaningless with this driver
			log.Printf("[DEBUG] sqlite parameter %q accepted but has no effect", param)
		}
	}

	if len(filtered) > 0 && p.Strict {
		log.Printf("[INFO] failing open for filtered sqlite params")
		return nil, ErrFilteredParams.Errorf(filtered)
	}
	return frags, nil
}

// timeoutMillis converts a timeout value, seconds by convention, to milliseconds.
func timeoutMillis(value any) (int64, error) {
	switch v := value.(type) {
	case time.Duration:
		return v.Milliseconds(), nil
	case int:
		return int64(v) * 1000, nil
	case int64:
		return v * 1000, nil
	case float64:
		return int64(v * 1000), nil
	default:
		return 0, fmt.Errorf("can't use timeout value %v (%T), expected seconds or duration", value, value)
	}
}

func sortedParams(params map[string]any) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
