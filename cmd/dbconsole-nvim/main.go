package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/neovim/go-client/nvim"
	"github.com/neovim/go-client/nvim/plugin"

	"dabbertorres.dev/dbconsole"
	"dabbertorres.dev/dbconsole/query"
)

func main() {
	var cfg dbconsole.Config
	if err := dbconsole.LoadConfig(dbconsole.DefaultConfigFile, true, &cfg); err != nil {
		// keep serving, so commands report the missing connections instead of the host dying
		log.Print(err)
	}

	db := dbconsole.New(&cfg)
	defer db.Close()

	state := newPluginState(db, cfg.Editor.PageSize)

	plugin.Main(func(p *plugin.Plugin) error {
		register(p, state)
		return nil
	})
}

func register(p *plugin.Plugin, state *pluginState) {
	p.HandleFunction(listConnectionsCompletion(state))
	p.HandleFunction(omniComplete(state))
	p.HandleCommand(listConnections(state))
	p.HandleCommand(listSchemas(state))
	p.HandleCommand(listTables(state))
	p.HandleCommand(describeTable(state))
	p.HandleCommand(switchConnection(state))
	p.HandleCommand(refreshSchemas(state))
	p.HandleCommand(runQuery(state))
	p.HandleCommand(sortQuery(state))
	p.HandleCommand(pageQuery(state))
	p.HandleCommand(nextPage(state))
	p.HandleCommand(prevPage(state))
	p.HandleCommand(projectQuery(state))
	p.HandleCommand(exportResult(state))
}

func listConnectionsCompletion(state *pluginState) (*plugin.FunctionOptions, func(*nvim.Nvim, []interface{}) (string, error)) {
	opts := &plugin.FunctionOptions{
		Name: "DBConnectionsF",
	}
	return opts, func(*nvim.Nvim, []interface{}) (string, error) {
		names, _ := state.db.ListConnections()
		return strings.Join(names, "\n") + "\n", nil
	}
}

// omniComplete implements 'omnifunc': setlocal omnifunc=DBComplete
func omniComplete(state *pluginState) (*plugin.FunctionOptions, func(*nvim.Nvim, []interface{}) (interface{}, error)) {
	opts := &plugin.FunctionOptions{
		Name: "DBComplete",
	}
	return opts, func(api *nvim.Nvim, args []interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("DBComplete: expected 2 arguments, got %d", len(args))
		}

		findstart, ok := toInt(args[0])
		if !ok {
			return nil, fmt.Errorf("DBComplete: invalid findstart '%v'", args[0])
		}

		if findstart == 1 {
			var (
				line   []byte
				cursor [2]int
				lines  [][]byte
			)
			batch := api.NewBatch()
			batch.CurrentLine(&line)
			batch.WindowCursor(0, &cursor)
			batch.BufferLines(0, 0, -1, false, &lines)
			if err := batch.Execute(); err != nil {
				return nil, err
			}

			return state.findStart(string(line), cursor[1], joinLines(lines)), nil
		}

		base, _ := args[1].(string)
		return state.matches(base), nil
	}
}

// toInt accepts the integer encodings vim arguments arrive in.
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

func listConnections(state *pluginState) (*plugin.CommandOptions, func(*nvim.Nvim) error) {
	opts := &plugin.CommandOptions{
		Name:  "DBConnections",
		NArgs: "0",
	}
	return opts, func(api *nvim.Nvim) error {
		names, _ := state.db.ListConnections()
		return api.WriteOut(strings.Join(names, "\n") + "\n")
	}
}

func listSchemas(state *pluginState) (*plugin.CommandOptions, func(*nvim.Nvim) error) {
	opts := &plugin.CommandOptions{
		Name:  "DBSchemas",
		NArgs: "0",
	}

	return opts, func(api *nvim.Nvim) error {
		schemas, err := state.db.ListSchemas()
		if err != nil {
			return err
		}
		return api.WriteOut(strings.Join(schemas, "\n") + "\n")
	}
}

func listTables(state *pluginState) (*plugin.CommandOptions, func(*nvim.Nvim, []string) error) {
	opts := &plugin.CommandOptions{
		Name:  "DBTables",
		NArgs: "*",
	}

	return opts, func(api *nvim.Nvim, args []string) error {
		tables, err := collectTables(state.db, args)
		if err != nil {
			return err
		}
		return api.WriteOut(strings.Join(tables, "\n") + "\n")
	}
}

// collectTables lists the tables of each schema given, prefixed with the
// schema name if there is more than one.
func collectTables(db dbManager, schemas []string) ([]string, error) {
	switch len(schemas) {
	case 0:
		return db.ListTables("")

	case 1:
		return db.ListTables(schemas[0])

	default:
		var tables []string
		for _, schema := range schemas {
			schemaTables, err := db.ListTables(schema)
			if err != nil {
				return nil, err
			}

			for _, t := range schemaTables {
				tables = append(tables, schema+"."+t)
			}
		}
		return tables, nil
	}
}

func describeTable(state *pluginState) (*plugin.CommandOptions, func(*nvim.Nvim, []string) error) {
	opts := &plugin.CommandOptions{
		Name:  "DBDescribe",
		NArgs: "1",
	}
	return opts, func(api *nvim.Nvim, args []string) error {
		schema, err := state.db.DescribeTable(strings.TrimSpace(args[0]))
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"column", "type", "attributes"})
		for _, col := range schema.Columns {
			t.AppendRow(table.Row{col.Name, col.Type, strings.Join(col.Attrs, "; ")})
		}
		return api.WriteOut(t.Render() + "\n")
	}
}

func switchConnection(state *pluginState) (*plugin.CommandOptions, func(*nvim.Nvim, []string) error) {
	opts := &plugin.CommandOptions{
		Name:     "DBConnect",
		NArgs:    "1",
		Complete: "custom,DBConnectionsF",
	}
	return opts, func(api *nvim.Nvim, args []string) error {
		name := strings.TrimSpace(args[0])
		if err := state.db.SwitchConnection(name, passwordPrompt(api)); err != nil {
			api.WritelnErr(fmt.Sprintf("failed to connect to '%s': %v", name, err))
			return err
		}

		autoDisplay := true
		_ = api.Var("db_auto_display_schema", &autoDisplay)

		if autoDisplay {
			if err := state.displaySchemas(api, true); err != nil {
				return err
			}
		}

		api.WriteOut(fmt.Sprintf("connected to '%s'!\n", name))
		return nil
	}
}

func refreshSchemas(state *pluginState) (*plugin.CommandOptions, func(*nvim.Nvim) error) {
	opts := &plugin.CommandOptions{
		Name:  "DBRefresh",
		NArgs: "0",
	}
	return opts, func(api *nvim.Nvim) error {
		if state.db.CurrentName() == "" {
			return dbconsole.ErrNoConnection
		}
		return state.displaySchemas(api, true)
	}
}

func runQuery(state *pluginState) (*plugin.CommandOptions, func(*nvim.Nvim, []string, [2]int) error) {
	opts := &plugin.CommandOptions{
		Name:  "DBRun",
		NArgs: "?",
		Range: "%",
		Addr:  "lines",
		Bar:   true,
	}
	return opts, func(api *nvim.Nvim, args []string, bufRange [2]int) error {
		// grab the query
		queryBuffer, err := api.CurrentBuffer()
		if err != nil {
			return err
		}

		queryLines, err := api.BufferLines(queryBuffer, bufRange[0]-1, bufRange[1], false)
		if err != nil {
			return err
		}

		// did the user specify a buffer for the results?
		if len(args) != 0 {
			buf, err := strconv.Atoi(args[0])
			if err != nil {
				return err
			}
			state.outputBuf = nvim.Buffer(buf)
		}

		q := state.query(queryBuffer)
		q.session.SetText(joinLines(queryLines))
		return state.run(api, q)
	}
}

func sortQuery(state *pluginState) (*plugin.CommandOptions, func(*nvim.Nvim, []string) error) {
	opts := &plugin.CommandOptions{
		Name:  "DBSort",
		NArgs: "*",
	}
	return opts, func(api *nvim.Nvim, args []string) error {
		sorts, err := query.ParseSorts(args)
		if err != nil {
			return err
		}
		return state.rewrite(api, func(s *dbconsole.Session) string {
			return s.Sort(sorts)
		})
	}
}

func pageQuery(state *pluginState) (*plugin.CommandOptions, func(*nvim.Nvim, []string) error) {
	opts := &plugin.CommandOptions{
		Name:  "DBPage",
		NArgs: "*",
	}
	return opts, func(api *nvim.Nvim, args []string) error {
		p, err := query.ParsePagination(args)
		if err != nil {
			return err
		}
		return state.rewrite(api, func(s *dbconsole.Session) string {
			return s.Page(p)
		})
	}
}

func nextPage(state *pluginState) (*plugin.CommandOptions, func(*nvim.Nvim) error) {
	opts := &plugin.CommandOptions{
		Name:  "DBNext",
		NArgs: "0",
	}
	return opts, func(api *nvim.Nvim) error {
		return state.rewrite(api, (*dbconsole.Session).NextPage)
	}
}

func prevPage(state *pluginState) (*plugin.CommandOptions, func(*nvim.Nvim) error) {
	opts := &plugin.CommandOptions{
		Name:  "DBPrev",
		NArgs: "0",
	}
	return opts, func(api *nvim.Nvim) error {
		return state.rewrite(api, (*dbconsole.Session).PrevPage)
	}
}

func projectQuery(state *pluginState) (*plugin.CommandOptions, func(*nvim.Nvim, []string) error) {
	opts := &plugin.CommandOptions{
		Name:  "DBColumns",
		NArgs: "+",
	}
	return opts, func(api *nvim.Nvim, args []string) error {
		columns := query.ParseColumns(args)
		if len(columns) == 0 {
			return errors.New("at least one column is required")
		}
		return state.rewrite(api, func(s *dbconsole.Session) string {
			return s.Project(columns)
		})
	}
}

func exportResult(state *pluginState) (*plugin.CommandOptions, func(*nvim.Nvim, []string) error) {
	opts := &plugin.CommandOptions{
		Name:     "DBExport",
		NArgs:    "?",
		Complete: "file",
	}
	return opts, func(api *nvim.Nvim, args []string) error {
		buf, err := api.CurrentBuffer()
		if err != nil {
			return err
		}

		q, ok := state.queries[buf]
		if !ok || q.result == nil {
			return errors.New("no result to export, run the query in this buffer first")
		}

		blob, err := q.result.CSV()
		if err != nil {
			return err
		}

		if len(args) != 0 {
			path := strings.TrimSpace(args[0])
			if err := os.WriteFile(path, blob.Data, 0o644); err != nil {
				return err
			}
			return api.WriteOut(fmt.Sprintf("wrote %d rows to %s\n", len(q.result.Rows), path))
		}

		csvBuf, _, err := openSplitWindow(api, false, 0, csvScratch)
		if err != nil {
			return err
		}
		return writeScratch(api, csvBuf, strings.Split(strings.TrimSuffix(string(blob.Data), "\n"), "\n"))
	}
}

// rewrite applies a clause rewrite to the query in the current buffer, then
// runs it.
func (s *pluginState) rewrite(api *nvim.Nvim, fn func(*dbconsole.Session) string) error {
	buf, err := api.CurrentBuffer()
	if err != nil {
		return err
	}

	lines, err := api.BufferLines(buf, 0, -1, false)
	if err != nil {
		return err
	}

	q := s.query(buf)
	q.session.SetText(joinLines(lines))

	if err := api.SetBufferLines(buf, 0, -1, false, splitLines(fn(q.session))); err != nil {
		return err
	}

	return s.run(api, q)
}

func (s *pluginState) run(api *nvim.Nvim, q *queryBuffer) error {
	result, err := q.session.Run(context.Background())
	if err != nil {
		if errors.Is(err, dbconsole.ErrAlreadyLoading) {
			api.WritelnErr(err.Error())
			return nil
		}
		return err
	}
	q.result = result

	if result == nil || len(result.Columns) == 0 {
		return api.WriteOut("no results\n")
	}

	return s.showResult(api, q.session.Text(), result)
}

// showResult writes result into the output buffer, opening a window for it
// if it isn't already visible.
func (s *pluginState) showResult(api *nvim.Nvim, text string, result *dbconsole.QueryResult) error {
	var validBuf bool
	if s.outputBuf > 0 {
		var err error
		validBuf, err = api.IsBufferLoaded(s.outputBuf)
		if err != nil {
			return err
		}
	}

	var visible bool
	if validBuf {
		var err error
		s.outputWin, visible, err = bufferWindow(api, s.outputBuf)
		if err != nil {
			return err
		}
	} else {
		s.outputBuf = 0
	}

	if !visible {
		var err error
		s.outputBuf, s.outputWin, err = openSplitWindow(api, false, s.outputBuf, resultScratch)
		if err != nil {
			return err
		}
	}

	// set the buffer's name to '[connection] query'
	// if it fails, oh well, doesn't hurt anything
	_ = api.SetBufferName(s.outputBuf, fmt.Sprintf("[%s] %s", s.db.CurrentName(), strings.Join(strings.Fields(text), " ")))

	return writeScratch(api, s.outputBuf, renderResult(result))
}

func renderResult(result *dbconsole.QueryResult) []string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(result.Columns))
	for i, col := range result.Columns {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, row := range result.Rows {
		t.AppendRow(table.Row(row))
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d rows", len(result.Rows))})

	return strings.Split(t.Render(), "\n")
}
