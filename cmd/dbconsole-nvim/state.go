package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"text/tabwriter"

	"github.com/neovim/go-client/nvim"
	"golang.org/x/crypto/ssh"

	"dabbertorres.dev/dbconsole"
	"dabbertorres.dev/dbconsole/hint"
)

type dbManager interface {
	CurrentName() string
	DefaultSchema() string
	ListConnections() (names []string, active []bool)
	SwitchConnection(connName string, prompter ssh.KeyboardInteractiveChallenge) error
	ListTables(schema string) ([]string, error)
	ListSchemas() ([]string, error)
	DescribeTable(name string) (*dbconsole.TableSchema, error)
	Query(ctx context.Context, script string) (*dbconsole.QueryResult, error)
}

type pluginState struct {
	db           dbManager
	pageSize     int
	displayCache map[string][]schemaState // connection -> schemas -> tables
	displayBuf   nvim.Buffer
	displayWin   nvim.Window
	outputBuf    nvim.Buffer
	outputWin    nvim.Window

	queries  map[nvim.Buffer]*queryBuffer
	lastHint hint.Hint
}

type schemaState struct {
	Name   string
	Tables []dbconsole.TableSchema
}

// queryBuffer is the editing session of a buffer holding a query, and the
// result of its last run.
type queryBuffer struct {
	session *dbconsole.Session
	result  *dbconsole.QueryResult
}

func newPluginState(db dbManager, pageSize int) *pluginState {
	return &pluginState{
		db:           db,
		pageSize:     pageSize,
		displayBuf:   -1,
		displayWin:   -1,
		displayCache: make(map[string][]schemaState),
		queries:      make(map[nvim.Buffer]*queryBuffer),
	}
}

func (s *pluginState) query(buf nvim.Buffer) *queryBuffer {
	q, ok := s.queries[buf]
	if !ok {
		q = &queryBuffer{session: dbconsole.NewSession(s.db, s.pageSize)}
		s.queries[buf] = q
	}
	return q
}

func (s *pluginState) displaySchemas(api *nvim.Nvim, refreshCache bool) error {
	var (
		validBuf bool
		validWin bool

		currWin nvim.Window
		currBuf nvim.Buffer
	)
	batch := api.NewBatch()

	if s.displayBuf > 0 {
		batch.IsBufferLoaded(s.displayBuf, &validBuf)
	}
	if s.displayWin > 0 {
		batch.IsWindowValid(s.displayWin, &validWin)
	}

	batch.CurrentWindow(&currWin)
	batch.CurrentBuffer(&currBuf)
	if err := batch.Execute(); err != nil {
		return err
	}

	// always reset to user's current window/buffer
	defer func() {
		batch := api.NewBatch()
		batch.SetCurrentWindow(currWin)
		batch.SetCurrentBuffer(currBuf)
		if err := batch.Execute(); err != nil {
			log.Print("failed to reset focus to user's window and buffer: " + err.Error())
		}
	}()

	if !validWin {
		reuse := nvim.Buffer(0)
		if validBuf {
			reuse = s.displayBuf
		}

		var err error
		s.displayBuf, s.displayWin, err = openSplitWindow(api, true, reuse, schemaScratch)
		if err != nil {
			return err
		}

		batch := api.NewBatch()
		batch.SetWindowOption(s.displayWin, "foldenable", true)
		batch.SetWindowOption(s.displayWin, "foldmethod", "indent")
		batch.SetWindowOption(s.displayWin, "foldlevel", 1)
		batch.SetWindowOption(s.displayWin, "foldminlines", 0)
		batch.SetBufferName(s.displayBuf, s.db.CurrentName())
		if err := batch.Execute(); err != nil {
			log.Print("failed to set window fold options and buffer name: ", err)
		}
	}

	if refreshCache {
		api.WriteOut("refreshing cache...\n")
		if err := s.refreshCache(); err != nil {
			api.WritelnErr("failed: " + err.Error())
			return err
		}
		api.WriteOut("done\n")
	}

	var (
		shiftwidth int
		maxWidth   int
	)
	batch = api.NewBatch()
	batch.SetCurrentWindow(s.displayWin)
	batch.SetCurrentBuffer(s.displayBuf)
	batch.Call("shiftwidth", &shiftwidth)
	batch.WindowWidth(s.displayWin, &maxWidth)
	if err := batch.Execute(); err != nil {
		return err
	}

	batch = api.NewBatch()
	batch.SetBufferOption(s.displayBuf, "modifiable", true)
	batch.Command("%d")
	longestLine := s.drawSchemas(batch, shiftwidth)
	batch.SetBufferOption(s.displayBuf, "modifiable", false)
	// shrink window to fit, without growing
	if longestLine < maxWidth {
		batch.SetWindowWidth(s.displayWin, longestLine)
	}
	return batch.Execute()
}

func (s *pluginState) refreshCache() error {
	schemaNames, err := s.db.ListSchemas()
	if err != nil {
		return err
	}

	cache := make([]schemaState, len(schemaNames))
	for i, name := range schemaNames {
		schema := &cache[i]
		schema.Name = name
		tables, err := s.db.ListTables(name)
		if err != nil {
			return err
		}

		schema.Tables = make([]dbconsole.TableSchema, len(tables))
		for j, table := range tables {
			tableSchema, err := s.db.DescribeTable(name + "." + table)
			if err != nil {
				return err
			}
			schema.Tables[j] = *tableSchema
		}
	}
	s.displayCache[s.db.CurrentName()] = cache
	return nil
}

func (s *pluginState) drawSchemas(batch *nvim.Batch, shiftwidth int) int {
	schemas := s.displayCache[s.db.CurrentName()]

	var (
		sb strings.Builder

		// indenting for foldmethod=indent
		// schema name indent is 0
		tableNameFormat = strings.Repeat(" ", shiftwidth) + "%s\n"
		tableColFormat  = strings.Repeat(" ", shiftwidth*2) + "%s\t %s\t %s\n"

		longestLine int
	)

	var descWriter tabwriter.Writer

	for _, schema := range schemas {
		fmt.Fprintln(&sb, schema.Name)

		for _, tbl := range schema.Tables {
			fmt.Fprintf(&sb, tableNameFormat, tbl.Name)

			descWriter.Init(&sb, 2, 2, 1, ' ', tabwriter.Debug)
			for _, col := range tbl.Columns {
				// might not be the exact line length, but good enough for our purposes (until it isn't)
				lineLen, _ := fmt.Fprintf(&descWriter, tableColFormat, col.Name, col.Type, strings.Join(col.Attrs, "; "))
				if lineLen > longestLine {
					longestLine = lineLen
				}
			}
			descWriter.Flush()
		}
	}

	lines := strings.Split(sb.String(), "\n")
	// chop off trailing empty line
	lines = lines[:len(lines)-1]
	// NOTE: because of setting param after=false, there will be an extra tailing line
	batch.Put(lines, "l", false, false)
	return longestLine + 8 // minimum size of 8
}

// catalog builds completion candidates from the schema cache of the active
// connection. Tables in the default schema are listed by name, all others as
// <schema>.<table>.
func (s *pluginState) catalog() hint.Catalog {
	name := s.db.CurrentName()
	if name == "" {
		return nil
	}

	schemas, ok := s.displayCache[name]
	if !ok {
		if err := s.refreshCache(); err != nil {
			log.Print("failed to load schemas for completion: ", err)
			return nil
		}
		schemas = s.displayCache[name]
	}

	defaultSchema := s.db.DefaultSchema()

	catalog := make(hint.Catalog)
	for _, schema := range schemas {
		for _, tbl := range schema.Tables {
			cols := make([]string, len(tbl.Columns))
			for i, col := range tbl.Columns {
				cols[i] = col.Name
			}

			if schema.Name == defaultSchema {
				catalog[tbl.Name] = cols
			} else {
				catalog[schema.Name+"."+tbl.Name] = cols
			}
		}
	}
	return catalog
}

// findStart is the first omnifunc call: it computes the hint at col, a byte
// offset into line, and returns where the completed text starts.
// buffer is the whole query, so a FROM on another line still names the table
// whose columns are offered.
// -3 tells nvim to quietly cancel completion.
func (s *pluginState) findStart(line string, col int, buffer string) int {
	text := line
	if buffer != "" {
		text += "\n" + buffer
	}
	s.lastHint = hint.GetHint(text, col, s.catalog())
	if s.lastHint.Empty() {
		return -3
	}
	return s.lastHint.From
}

// completeItem is a vim complete-items entry.
type completeItem struct {
	Word string `msgpack:"word"`
	Abbr string `msgpack:"abbr"`
	Menu string `msgpack:"menu"`
}

// matches is the second omnifunc call: the candidates of the last hint that
// start with base.
func (s *pluginState) matches(base string) []completeItem {
	items := make([]completeItem, 0, len(s.lastHint.Candidates))
	for _, c := range s.lastHint.Candidates {
		if strings.HasPrefix(c.Text, base) {
			items = append(items, completeItem{
				Word: c.Text,
				Abbr: c.Display(),
				Menu: "[" + s.db.CurrentName() + "]",
			})
		}
	}
	return items
}
