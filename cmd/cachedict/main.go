package main

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/hashicorp/go-multierror"
	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"

	"github.com/umputun/cachedict/pkg/cachedict"
	"github.com/umputun/cachedict/pkg/config"
	"github.com/umputun/cachedict/pkg/mapping"
)

type options struct {
	Schema string `short:"s" long:"schema" env:"CACHEDICT_SCHEMA" required:"true" description:"schema definition file (yaml or toml)"`
	DB     string `short:"d" long:"db" env:"CACHEDICT_DB" default:"cachedict.db" description:"database file"`
	Mem    bool   `long:"mem" description:"use an anonymous in-memory database"`
	RO     bool   `long:"ro" description:"open the database read-only"`
	Dbg    bool   `long:"dbg" description:"debug mode"`

	GetCmd struct {
		Key map[string]string `short:"k" long:"key" required:"true" description:"key columns, col:value"`
	} `command:"get" description:"get the value for a key"`

	SetCmd struct {
		Key   map[string]string `short:"k" long:"key" required:"true" description:"key columns, col:value"`
		Value map[string]string `short:"v" long:"value" description:"value columns, col:value"`
	} `command:"set" description:"set the value for a key"`

	DelCmd struct {
		Key map[string]string `short:"k" long:"key" required:"true" description:"key columns, col:value"`
	} `command:"del" description:"delete a key"`

	KeysCmd struct {
		Reverse bool `long:"reverse" description:"descending key order"`
	} `command:"keys" description:"list all keys"`

	ItemsCmd struct {
		Reverse bool `long:"reverse" description:"descending key order"`
	} `command:"items" description:"list all keys with values"`

	LenCmd struct{} `command:"len" description:"count rows"`

	ClearCmd struct{} `command:"clear" description:"remove all rows"`

	DropCmd struct{} `command:"drop" description:"drop the table"`

	ImportCmd struct {
		PositionalArgs struct {
			File string `positional-arg-name:"file" description:"yaml file with records to import"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"import" description:"bulk set records from a yaml file"`
}

var revision = "latest"

var exitFunc = os.Exit

func main() {
	fmt.Printf("cachedict %s\n", revision)

	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		exitFunc(1) // can be redefined in tests
	}
	setupLog(opts.Dbg)

	if err := run(p, opts); err != nil {
		log.Printf("[WARN] %v", err)
		exitFunc(1)
	}
}

// runCommand parses os.Args and runs the active command, used by tests
func runCommand() error {
	var opts options
	p := flags.NewParser(&opts, flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		return fmt.Errorf("can't parse command line: %w", err)
	}
	return run(p, opts)
}

func run(p *flags.Parser, opts options) error {
	schema, err := config.Load(opts.Schema)
	if err != nil {
		return fmt.Errorf("can't load schema: %w", err)
	}
	m, err := schema.Mapping()
	if err != nil {
		return fmt.Errorf("can't build mapping: %w", err)
	}

	d, err := openDict(m, schema.Params(), opts)
	if err != nil {
		return fmt.Errorf("can't open dict: %w", err)
	}
	defer d.Close()

	active := func(name string) bool { return p.Active != nil && p.Command.Find(name) == p.Active }

	switch {
	case active("get"):
		log.Printf("[INFO] get command, key=%s", formatRecord(toRecord(opts.GetCmd.Key)))
		val, err := d.Get(toRecord(opts.GetCmd.Key))
		if err != nil {
			return fmt.Errorf("can't get value: %w", err)
		}
		fmt.Println(formatRecord(val))
	case active("set"):
		log.Printf("[INFO] set command, key=%s", formatRecord(toRecord(opts.SetCmd.Key)))
		if err := d.Set(toRecord(opts.SetCmd.Key), toRecord(opts.SetCmd.Value)); err != nil {
			return fmt.Errorf("can't set value: %w", err)
		}
	case active("del"):
		log.Printf("[INFO] del command, key=%s", formatRecord(toRecord(opts.DelCmd.Key)))
		if err := d.Delete(toRecord(opts.DelCmd.Key)); err != nil {
			return fmt.Errorf("can't delete key: %w", err)
		}
	case active("keys"):
		log.Printf("[INFO] keys command, reverse=%v", opts.KeysCmd.Reverse)
		it, err := d.Keys(opts.KeysCmd.Reverse)
		if err != nil {
			return fmt.Errorf("can't list keys: %w", err)
		}
		defer it.Close()
		for it.Next() {
			fmt.Println(formatRecord(it.Key()))
		}
		if err := it.Err(); err != nil {
			return fmt.Errorf("keys iteration failed: %w", err)
		}
	case active("items"):
		log.Printf("[INFO] items command, reverse=%v", opts.ItemsCmd.Reverse)
		it, err := d.Items(opts.ItemsCmd.Reverse)
		if err != nil {
			return fmt.Errorf("can't list items: %w", err)
		}
		defer it.Close()
		for it.Next() {
			fmt.Printf("%s -> %s\n", formatRecord(it.Key()), formatRecord(it.Value()))
		}
		if err := it.Err(); err != nil {
			return fmt.Errorf("items iteration failed: %w", err)
		}
	case active("len"):
		n, err := d.Len()
		if err != nil {
			return fmt.Errorf("can't count rows: %w", err)
		}
		log.Printf("[INFO] len command, count=%d", n)
		fmt.Println(n)
	case active("clear"):
		log.Printf("[INFO] clear command, table=%s", m.Table())
		if err := d.ClearTable(); err != nil {
			return fmt.Errorf("can't clear table: %w", err)
		}
	case active("drop"):
		log.Printf("[INFO] drop command, table=%s", m.Table())
		if err := d.DeleteTable(); err != nil {
			return fmt.Errorf("can't drop table: %w", err)
		}
	case active("import"):
		log.Printf("[INFO] import command, file=%s", opts.ImportCmd.PositionalArgs.File)
		n, err := importRecords(d, opts.ImportCmd.PositionalArgs.File)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		log.Printf("[INFO] imported %d records", n)
	}

	return nil
}

func openDict(mm *mapping.Mapping, params cachedict.Params, opts options) (*cachedict.Dict, error) {
	switch {
	case opts.Mem:
		return cachedict.OpenAnonMemory(mm, params)
	case opts.RO:
		return cachedict.OpenReadOnly(opts.DB, mm, params)
	default:
		return cachedict.OpenReadWrite(opts.DB, true, mm, params)
	}
}

// importRecords bulk-sets records from a yaml file of {key: {...}, value: {...}} entries.
// Bad records are collected and reported together, good ones still go in.
func importRecords(d *cachedict.Dict, fname string) (int, error) {
	data, err := os.ReadFile(fname) // nolint gosec // path comes from the caller on purpose
	if err != nil {
		return 0, fmt.Errorf("can't read import file %s: %w", fname, err)
	}

	var records []struct {
		Key   map[string]string `yaml:"key"`
		Value map[string]string `yaml:"value"`
	}
	if err := yaml.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("can't unmarshal import file %s: %w", fname, err)
	}

	count := 0
	errs := new(multierror.Error)
	for i, rec := range records {
		if err := d.Set(toRecord(rec.Key), toRecord(rec.Value)); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		count++
	}
	return count, errs.ErrorOrNil()
}

func toRecord(m map[string]string) cachedict.Record {
	res := cachedict.Record{}
	for k, v := range m {
		res[k] = v
	}
	return res
}

func formatRecord(rec cachedict.Record) string {
	if rec == nil {
		return "<none>"
	}
	cols := make([]string, 0, len(rec))
	for col := range rec {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = fmt.Sprintf("%s=%v", col, rec[col])
	}
	return strings.Join(parts, ", ")
}

func setupLog(dbg bool) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
