package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"dabbertorres.dev/dbconsole"
	"dabbertorres.dev/dbconsole/query"
)

// database is the part of *dbconsole.Console the REPL uses.
type database interface {
	Close() error
	CurrentName() string
	ListConnections() (names []string, active []bool)
	SwitchConnection(connName string, prompter ssh.KeyboardInteractiveChallenge) error
	ListTables(schema string) ([]string, error)
	ListSchemas() ([]string, error)
	DescribeTable(name string) (*dbconsole.TableSchema, error)
	ListColumns(table string) ([]string, error)
	Catalog(schema string) (map[string][]string, error)
	Stats() sql.DBStats
	Query(ctx context.Context, script string) (*dbconsole.QueryResult, error)
}

type cli struct {
	terminal *term.Terminal
	out      io.Writer
	db       database
	prompter ssh.KeyboardInteractiveChallenge
	running  bool

	session    *dbconsole.Session
	lastResult *dbconsole.QueryResult
	catalog    *catalogCache
	completer  *completer

	editor  dbconsole.Editor
	history io.Writer
}

func newCLI(terminal *term.Terminal, db database, editor dbconsole.Editor, history io.Writer) *cli {
	catalog := &catalogCache{db: db}
	return &cli{
		terminal:  terminal,
		out:       terminal,
		db:        db,
		prompter:  dbconsole.PasswordPrompt(terminal),
		running:   true,
		session:   dbconsole.NewSession(db, editor.PageSize),
		catalog:   catalog,
		completer: newCompleter(catalog.get),
		editor:    editor,
		history:   history,
	}
}

func (c *cli) Close() error {
	if _, err := c.session.Flush(c.history, time.Now().Add(c.editor.FlushInterval()), c.editor.FlushInterval()); err != nil {
		log.Print(err)
	}
	return c.db.Close()
}

func (c *cli) println(args ...interface{}) {
	fmt.Fprintln(c.out, args...)
}

func (c *cli) printf(format string, args ...interface{}) {
	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}
	fmt.Fprintf(c.out, format, args...)
}

func (c *cli) run(initialConnection string) {
	defer c.Close()

	if initialConnection != "" {
		if err := c.db.SwitchConnection(initialConnection, c.prompter); err != nil {
			log.Fatal(err)
		}
	}

	done := make(chan struct{})
	defer close(done)
	go c.autosave(done)

	for c.running {
		line, err := c.terminal.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if err != term.ErrPasteIndicator {
				c.println(err)
				continue
			}
		}

		if err := c.handle(line); err != nil {
			c.println(err)
		}
	}
}

func (c *cli) autosave(done <-chan struct{}) {
	interval := c.editor.FlushInterval()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if _, err := c.session.Flush(c.history, now, interval); err != nil {
				log.Print(err)
			}

		case <-done:
			return
		}
	}
}

// handle runs a single line of input: a backslash command, or a query.
func (c *cli) handle(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if line[0] == '\\' {
		args := strings.Fields(line[1:])
		if len(args) == 0 {
			return errors.New("missing command")
		}
		return c.command(args)
	}

	c.session.SetText(line)
	return c.runQuery()
}

func (c *cli) command(args []string) error {
	switch args[0] {
	case "active", "a":
		return c.activeConnection(args[1:])

	case "connections", "c":
		return c.listConnections(args[1:])

	case "switch", "s":
		return c.switchConnection(args[1:])

	case "tables", "t":
		return c.listTables(args[1:])

	case "schemas", "sn":
		return c.listSchemas(args[1:])

	case "describe", "d":
		return c.describeTable(args[1:])

	case "query", "qt":
		c.println(c.session.Text())
		return nil

	case "params", "p":
		return c.printParams(args[1:])

	case "sort", "o":
		return c.sort(args[1:])

	case "page", "pg":
		return c.page(args[1:])

	case "next", "n":
		return c.rewriteAndRun(c.session.NextPage)

	case "prev", "pv":
		return c.rewriteAndRun(c.session.PrevPage)

	case "columns", "cols":
		return c.columns(args[1:])

	case "run", "r":
		return c.runQuery()

	case "export", "e":
		return c.export(args[1:])

	case "refresh":
		c.catalog.reset()
		c.println("schema cache cleared")
		return nil

	case "stats":
		return c.printStats(args[1:])

	case "help", "h", "?":
		c.help()
		return nil

	case "quit", "q":
		c.running = false
		return nil

	default:
		return fmt.Errorf("unknown command '%s'", args[0])
	}
}

func (c *cli) help() {
	c.println("commands:")
	c.println()
	c.println(`Connections:`)
	c.println(`\active (\a): print the name of the active database connection.`)
	c.println(`\connections (\c): print a list of available database connections.`)
	c.println(`\switch (\s): switch to (and open if necessary) a different connection.`)
	c.println()
	c.println(`Database:`)
	c.println(`\tables (\t): print a list of accessible tables. An (optional) schema name may be provided, otherwise all schemas are listed.`)
	c.println(`\schemas (\sn): print a list of accessible schemas (if relevant for current connection).`)
	c.println(`\describe (\d): print the schema of a given table. To specify a non-default table, use <schema>.<table> syntax.`)
	c.println(`\refresh: forget cached tables and columns used for completion.`)
	c.println()
	c.println(`Query:`)
	c.println(`\query (\qt): print the current query.`)
	c.println(`\params (\p): print the table, sorting and pagination of the current query.`)
	c.println(`\sort (\o) [col [asc|desc]]...: set the ORDER BY of the current query and run it. No columns removes it.`)
	c.println(`\page (\pg) [limit [offset]]: set the LIMIT/OFFSET of the current query and run it. No arguments removes them.`)
	c.println(`\next (\n), \prev (\pv): move the current query a page forward or back and run it.`)
	c.println(`\columns (\cols) col...: set the selected columns of the current query and run it.`)
	c.println(`\run (\r): run the current query again.`)
	c.println(`\export (\e) file: write the last result to file as CSV.`)
	c.println()
	c.println(`Extra:`)
	c.println(`\stats: print stats about the current database connection`)
	c.println(`\help (\h, \?): print this dialog.`)
	c.println(`\quit (\q): exit.`)
	c.println()
}

func (c *cli) activeConnection(args []string) error {
	if c.db.CurrentName() != "" {
		c.println(c.db.CurrentName())
	} else {
		c.println("no active connection")
	}
	return nil
}

func (c *cli) listConnections(args []string) error {
	names, active := c.db.ListConnections()
	for i := range names {
		// denote open connections
		if active[i] {
			c.println(names[i], " *")
		} else {
			c.println(names[i])
		}
	}
	return nil
}

func (c *cli) switchConnection(args []string) error {
	if len(args) != 1 {
		return errors.New("a single connection name must be specified")
	}

	if err := c.db.SwitchConnection(args[0], c.prompter); err != nil {
		return err
	}
	c.catalog.reset()
	return nil
}

func (c *cli) listTables(args []string) error {
	var schema string
	if len(args) != 0 {
		schema = args[0]
	}

	tables, err := c.db.ListTables(schema)
	if err != nil {
		return err
	}

	for _, name := range tables {
		c.println(name)
	}

	return nil
}

func (c *cli) listSchemas(args []string) error {
	schemas, err := c.db.ListSchemas()
	if err != nil {
		return err
	}

	for _, name := range schemas {
		c.println(name)
	}

	return nil
}

func (c *cli) describeTable(args []string) error {
	if len(args) < 1 {
		return errors.New("'\\describe' requires at least one table name")
	}

	for _, name := range args {
		schema, err := c.db.DescribeTable(name)
		if err != nil {
			return err
		}

		c.println(schema.Name)

		t := c.newTable()
		t.AppendHeader(table.Row{"column", "type", "attributes"})
		for _, col := range schema.Columns {
			t.AppendRow(table.Row{col.Name, col.Type, strings.Join(col.Attrs, "; ")})
		}
		t.Render()
		c.println()
	}

	return nil
}

func (c *cli) printParams(args []string) error {
	params := c.session.Params()

	name := params.Table
	if name == "" {
		name = "(none)"
	}

	sorts := make([]string, len(params.Sortings))
	for i, s := range params.Sortings {
		sorts[i] = s.String()
	}

	c.printf("table:  %s", name)
	c.printf("sort:   %s", strings.Join(sorts, ", "))
	c.printf("limit:  %d", params.Limit)
	c.printf("offset: %d", params.Offset)
	return nil
}

func (c *cli) sort(args []string) error {
	sorts, err := query.ParseSorts(args)
	if err != nil {
		return err
	}
	return c.rewriteAndRun(func() string {
		return c.session.Sort(sorts)
	})
}

func (c *cli) page(args []string) error {
	p, err := query.ParsePagination(args)
	if err != nil {
		return err
	}
	return c.rewriteAndRun(func() string {
		return c.session.Page(p)
	})
}

func (c *cli) columns(args []string) error {
	columns := query.ParseColumns(args)
	if len(columns) == 0 {
		return errors.New("'\\columns' requires at least one column name")
	}
	return c.rewriteAndRun(func() string {
		return c.session.Project(columns)
	})
}

func (c *cli) rewriteAndRun(rewrite func() string) error {
	if c.session.Text() == "" {
		return errors.New("no current query")
	}

	c.println(rewrite())
	return c.runQuery()
}

func (c *cli) runQuery() error {
	if c.session.Text() == "" {
		return errors.New("no current query")
	}

	result, err := c.session.Run(context.Background())
	if err != nil {
		return err
	}
	c.lastResult = result

	c.render(result)
	return nil
}

func (c *cli) render(result *dbconsole.QueryResult) {
	if result == nil {
		c.println("no results")
		return
	}

	t := c.newTable()

	header := make(table.Row, len(result.Columns))
	for i, col := range result.Columns {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, row := range result.Rows {
		t.AppendRow(table.Row(row))
	}

	// don't want to write anything until we're done (and successful)
	t.Render()
	c.printf("(%d rows)", len(result.Rows))
}

func (c *cli) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(c.out)
	t.SetStyle(table.StyleLight)
	return t
}

func (c *cli) export(args []string) error {
	if len(args) != 1 {
		return errors.New("a single file name must be specified")
	}
	if c.lastResult == nil {
		return errors.New("no result to export")
	}

	blob, err := c.lastResult.CSV()
	if err != nil {
		return err
	}

	if err := os.WriteFile(args[0], blob.Data, 0o644); err != nil {
		return fmt.Errorf("could not export: %w", err)
	}
	c.printf("wrote %d rows to %s", len(c.lastResult.Rows), args[0])
	return nil
}

func (c *cli) printStats(args []string) error {
	// ignore arguments
	stats := c.db.Stats()

	c.println("Connections")
	c.printf("Open:             % 9d", stats.OpenConnections)
	c.printf("In Use:           % 9d", stats.InUse)
	c.printf("Idle:             % 9d", stats.Idle)
	c.printf("Idle Closed:      % 9d", stats.MaxIdleClosed)
	c.printf("Idle Time Closed: % 9d", stats.MaxIdleTimeClosed)
	c.printf("Lifetime Closed:  % 9d", stats.MaxLifetimeClosed)
	c.println()
	c.println("Wait Counters:")
	c.printf("Count:            % 9d", stats.WaitCount)
	c.printf("Total Duration:   % 9s", stats.WaitDuration)
	c.println()

	return nil
}
