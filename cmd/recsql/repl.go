package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/peterh/liner"

	"github.com/calvinalkan/recordstore/internal/config"
	"github.com/calvinalkan/recordstore/internal/engine"
	"github.com/calvinalkan/recordstore/internal/sqlfront"
	"github.com/calvinalkan/recordstore/internal/storage/record"
)

// REPL is the interactive command loop over one open table.
type REPL struct {
	table *engine.Table
	dir   string
	cfg   config.Config
	liner *liner.State
}

var replCommands = []string{"help", "exit", "quit", "q", ".schema", ".config"}

// Run starts the read-eval-print loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("recsql - record storage engine shell (table=%s)\n", r.dir)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("recsql> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		switch strings.ToLower(line) {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil
		case "help", "?":
			r.printHelp()

			continue
		case ".schema":
			r.printSchema()

			continue
		case ".config":
			r.printConfig()

			continue
		}

		r.execute(line)
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range replCommands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Statements:")
	fmt.Println("  insert into <table> values (<lit>, ...)")
	fmt.Println("  select (* | col, ...) from <table> [where <expr>]")
	fmt.Println("  delete from <table> [where <expr>]")
	fmt.Println("  update <table> set col = <lit>, ... [where <expr>]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  .schema    Print the table's column list")
	fmt.Println("  .config    Print the resolved engine configuration")
	fmt.Println("  help       Show this help")
	fmt.Println("  exit/quit/q")
}

func (r *REPL) printSchema() {
	for _, c := range r.table.Schema().Columns {
		fmt.Printf("  %-16s %-8s capacity=%-4d not_null=%-5v indexed=%-5v primary=%v\n",
			c.Name, c.Kind, c.Capacity, c.NotNull, c.Indexed, c.Primary)
	}
}

func (r *REPL) printConfig() {
	text, err := config.FormatConfig(r.cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)

		return
	}

	fmt.Println(text)
}

// execute parses and runs one SQL statement, printing either the result
// table (SELECT) or a row count (INSERT/DELETE/UPDATE). Errors are printed
// to stderr; the REPL keeps running afterward.
func (r *REPL) execute(line string) {
	stmt, err := sqlfront.Parse(line)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse error: %v\n", err)

		return
	}

	switch {
	case stmt.Insert != nil:
		err = r.execInsert(stmt.Insert)
	case stmt.Select != nil:
		err = r.execSelect(stmt.Select)
	case stmt.Delete != nil:
		err = r.execDelete(stmt.Delete)
	case stmt.Update != nil:
		err = r.execUpdate(stmt.Update)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
}

func (r *REPL) execInsert(ins *sqlfront.InsertStmt) error {
	sch := r.table.Schema()

	if len(ins.Values) != len(sch.Columns) {
		return fmt.Errorf("insert: got %d values, table %q has %d columns", len(ins.Values), ins.Table, len(sch.Columns))
	}

	tup := make(record.Tuple, len(ins.Values))

	for i, lit := range ins.Values {
		v, err := sqlfront.LiteralToColumnValue(lit, sch.Columns[i].Capacity)
		if err != nil {
			return err
		}

		tup[i] = v
	}

	rid, err := r.table.Insert(tup)
	if err != nil {
		return err
	}

	fmt.Printf("inserted 1 row at %s\n", rid)

	return nil
}

func (r *REPL) execSelect(sel *sqlfront.SelectStmt) error {
	where, err := sqlfront.ToExpr(sel.Where)
	if err != nil {
		return err
	}

	var fields []string
	if !sel.Star {
		fields = sel.Columns
	}

	rows, err := r.table.Select(fields, where)
	if err != nil {
		return err
	}

	header := fields
	if header == nil {
		header = columnNames(r.table)
	}

	printTable(header, rows)

	return nil
}

func (r *REPL) execDelete(del *sqlfront.DeleteStmt) error {
	where, err := sqlfront.ToExpr(del.Where)
	if err != nil {
		return err
	}

	n, err := r.table.Delete(where)
	if err != nil {
		return err
	}

	fmt.Printf("deleted %d row(s)\n", n)

	return nil
}

func (r *REPL) execUpdate(upd *sqlfront.UpdateStmt) error {
	sch := r.table.Schema()

	assignments := make([]engine.Assignment, 0, len(upd.Assignments))

	for _, a := range upd.Assignments {
		colIdx, ok := sch.ColumnIndex(a.Column)
		if !ok {
			return fmt.Errorf("update: unknown column %q", a.Column)
		}

		v, err := sqlfront.LiteralToColumnValue(a.Value, sch.Columns[colIdx].Capacity)
		if err != nil {
			return err
		}

		assignments = append(assignments, engine.Assignment{Column: a.Column, Value: v})
	}

	where, err := sqlfront.ToExpr(upd.Where)
	if err != nil {
		return err
	}

	n, err := r.table.Update(assignments, where)
	if err != nil {
		return err
	}

	fmt.Printf("updated %d row(s)\n", n)

	return nil
}

func columnNames(tb *engine.Table) []string {
	cols := tb.Schema().Columns
	names := make([]string, len(cols))

	for i, c := range cols {
		names[i] = c.Name
	}

	return names
}

// printTable renders rows as a fixed-width table, padding each cell to the
// widest value in its column using rune-width (not byte-length) so the
// columns still line up with multi-byte characters.
func printTable(header []string, rows []record.Tuple) {
	widths := make([]int, len(header))

	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}

	cells := make([][]string, len(rows))

	for i, row := range rows {
		cells[i] = make([]string, len(row))

		for j, v := range row {
			s := v.Print()
			cells[i][j] = s

			if w := runewidth.StringWidth(s); w > widths[j] {
				widths[j] = w
			}
		}
	}

	printRow(header, widths)

	for _, row := range cells {
		printRow(row, widths)
	}

	fmt.Printf("(%d row(s))\n", len(rows))
}

func printRow(cells []string, widths []int) {
	var b strings.Builder

	for i, c := range cells {
		b.WriteString(c)

		if pad := widths[i] - runewidth.StringWidth(c); pad > 0 {
			b.WriteString(strings.Repeat(" ", pad))
		}

		b.WriteString("  ")
	}

	fmt.Println(strings.TrimRight(b.String(), " "))
}
