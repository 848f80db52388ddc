// recsql is a tiny interactive SQL shell over the record storage engine.
//
// Usage:
//
//	recsql create <table-dir> <schema-file>   Create a new table
//	recsql open <table-dir>                   Open an existing table
//
// REPL commands are SQL statements (INSERT/SELECT/DELETE/UPDATE, see
// internal/sqlfront) plus:
//
//	.schema    Print the table's column list
//	.config    Print the resolved engine configuration
//	help       Show this help
//	exit/quit/q
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/recordstore/internal/config"
	"github.com/calvinalkan/recordstore/internal/engine"
	"github.com/calvinalkan/recordstore/internal/schema"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		printUsage()

		return errors.New("missing command")
	}

	switch args[0] {
	case "create":
		return runCreate(args[1:])
	case "open":
		return runOpen(args[1:])
	default:
		printUsage()

		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  recsql create <table-dir> <schema-file>   Create a new table\n")
	fmt.Fprintf(os.Stderr, "  recsql open <table-dir>                   Open an existing table\n")
}

func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	pageSize := fs.Uint32P("page-size", "p", 0, "page size in bytes (default: config/8192)")
	maxPages := fs.Uint32P("max-pages", "m", 0, "maximum data pages (default: config/2047)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: recsql create [options] <table-dir> <schema-file>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 2 {
		fs.Usage()

		return errors.New("missing table directory or schema file")
	}

	tableDir := fs.Arg(0)
	schemaFile := fs.Arg(1)

	if _, err := os.Stat(tableDir); err == nil {
		return fmt.Errorf("table directory already exists: %s (use 'recsql open %s' to open it)", tableDir, tableDir)
	}

	f, err := os.Open(schemaFile) //nolint:gosec // schema file path is user-supplied on the command line
	if err != nil {
		return fmt.Errorf("opening schema file: %w", err)
	}
	defer f.Close()

	sch, err := schema.Parse(f)
	if err != nil {
		return fmt.Errorf("parsing schema file: %w", err)
	}

	cfg, err := config.LoadConfig(tableDir, config.Overrides{PageSize: *pageSize, MaxPages: *maxPages})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tb, err := engine.Create(tableDir, sch, int(cfg.PageSize), cfg.MaxPages)
	if err != nil {
		return fmt.Errorf("creating table: %w", err)
	}
	defer tb.Close()

	repl := &REPL{table: tb, dir: tableDir, cfg: cfg}

	return repl.Run()
}

func runOpen(args []string) error {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: recsql open <table-dir>\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		fs.Usage()

		return errors.New("missing table directory")
	}

	tableDir := fs.Arg(0)

	if _, err := os.Stat(tableDir); os.IsNotExist(err) {
		return fmt.Errorf("table directory does not exist: %s (use 'recsql create' to make it)", tableDir)
	}

	cfg, err := config.LoadConfig(tableDir, config.Overrides{})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tb, err := engine.Open(tableDir, int(cfg.PageSize), cfg.MaxPages)
	if err != nil {
		return fmt.Errorf("opening table: %w", err)
	}
	defer tb.Close()

	repl := &REPL{table: tb, dir: tableDir, cfg: cfg}

	return repl.Run()
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".recsql_history")
}
