package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/ssh"

	"dabbertorres.dev/dbconsole"
)

type fakeDatabase struct {
	fakeCatalogSource

	result  *dbconsole.QueryResult
	scripts []string
	closed  bool
}

func (f *fakeDatabase) Close() error {
	f.closed = true
	return nil
}

func (f *fakeDatabase) CurrentName() string { return "local" }

func (f *fakeDatabase) ListConnections() ([]string, []bool) {
	return []string{"local", "prod"}, []bool{true, false}
}

func (f *fakeDatabase) SwitchConnection(string, ssh.KeyboardInteractiveChallenge) error {
	return nil
}

func (f *fakeDatabase) ListTables(schema string) ([]string, error) {
	return []string{"customers", "orders"}, nil
}

func (f *fakeDatabase) ListSchemas() ([]string, error) {
	return []string{"public"}, nil
}

func (f *fakeDatabase) DescribeTable(name string) (*dbconsole.TableSchema, error) {
	return &dbconsole.TableSchema{
		Name: name,
		Columns: []dbconsole.ColumnSchema{
			{Name: "order_id", Type: "bigint", Attrs: []string{"NOT NULL"}},
		},
	}, nil
}

func (f *fakeDatabase) Stats() sql.DBStats {
	return sql.DBStats{}
}

func (f *fakeDatabase) Query(_ context.Context, script string) (*dbconsole.QueryResult, error) {
	f.scripts = append(f.scripts, script)
	return f.result, nil
}

func newTestCLI(db *fakeDatabase) (*cli, *bytes.Buffer) {
	var out bytes.Buffer
	catalog := &catalogCache{db: db}
	return &cli{
		out:       &out,
		db:        db,
		running:   true,
		session:   dbconsole.NewSession(db, 10),
		catalog:   catalog,
		completer: newCompleter(catalog.get),
		editor:    dbconsole.Editor{PageSize: 10, FlushIntervalSec: 5},
		history:   &bytes.Buffer{},
	}, &out
}

func Test_cli_handle_queryCommands(t *testing.T) {
	db := &fakeDatabase{
		result: &dbconsole.QueryResult{
			Columns: []string{"id", "name"},
			Rows: [][]interface{}{
				{int64(1), "alice"},
				{int64(2), "bob"},
			},
		},
	}
	c, out := newTestCLI(db)

	lines := []string{
		"select * from orders",
		"",
		`\sort total desc`,
		`\page 5 10`,
		`\next`,
		`\prev`,
		`\columns id, name`,
		`\page`,
		`\sort`,
		`\run`,
	}
	for _, line := range lines {
		if err := c.handle(line); err != nil {
			t.Fatalf("%q: unexpected error: %v", line, err)
		}
	}

	expect := []string{
		"select * from orders",
		"select * from orders order by total desc",
		"select * from orders order by total desc offset 10 limit 5",
		"select * from orders order by total desc offset 15 limit 5",
		"select * from orders order by total desc offset 10 limit 5",
		"select id, name from orders order by total desc offset 10 limit 5",
		"select id, name from orders order by total desc",
		"select id, name from orders",
		"select id, name from orders",
	}
	if diff := cmp.Diff(expect, db.scripts); diff != "" {
		t.Errorf("unexpected queries. diff:\n%s\n", diff)
	}

	output := out.String()
	for _, s := range []string{"alice", "bob", "(2 rows)"} {
		if !strings.Contains(output, s) {
			t.Errorf("expected output to contain %q:\n%s", s, output)
		}
	}
}

func Test_cli_handle_params(t *testing.T) {
	c, out := newTestCLI(&fakeDatabase{})
	c.session.SetText("select * from orders order by total desc, id limit 20")

	if err := c.handle(`\params`); err != nil {
		t.Fatal("unexpected error:", err)
	}

	expect := "table:  orders\nsort:   total desc, id\nlimit:  20\noffset: 0\n"
	if diff := cmp.Diff(expect, out.String()); diff != "" {
		t.Errorf("unexpected output. diff:\n%s\n", diff)
	}
}

func Test_cli_handle_errors(t *testing.T) {
	c, _ := newTestCLI(&fakeDatabase{})

	tests := []string{
		`\`,
		`\bogus`,
		`\next`,
		`\run`,
		`\columns`,
		`\page ten`,
		`\sort desc`,
		`\export`,
		`\export out.csv`,
		`\switch`,
	}

	for _, line := range tests {
		if err := c.handle(line); err == nil {
			t.Errorf("%q: expected an error", line)
		}
	}
}

func Test_cli_export(t *testing.T) {
	db := &fakeDatabase{
		result: &dbconsole.QueryResult{
			Columns: []string{"id", "name"},
			Rows: [][]interface{}{
				{int64(1), "smith, j"},
			},
		},
	}
	c, _ := newTestCLI(db)

	if err := c.handle("select id, name from customers"); err != nil {
		t.Fatal("unexpected error:", err)
	}

	path := filepath.Join(t.TempDir(), "out.csv")
	if err := c.handle(`\export ` + path); err != nil {
		t.Fatal("unexpected error:", err)
	}

	actual, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff("id,name\n1,\"smith, j\"\n", string(actual)); diff != "" {
		t.Errorf("unexpected csv. diff:\n%s\n", diff)
	}
}

func Test_cli_handle_noResults(t *testing.T) {
	c, out := newTestCLI(&fakeDatabase{})

	if err := c.handle("delete from orders"); err != nil {
		t.Fatal("unexpected error:", err)
	}

	if out.String() != "no results\n" {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func Test_cli_handle_refreshAndQuit(t *testing.T) {
	db := &fakeDatabase{}
	db.catalog = map[string][]string{"orders": nil}
	c, _ := newTestCLI(db)

	_ = c.catalog.get("select ")
	if err := c.handle(`\refresh`); err != nil {
		t.Fatal("unexpected error:", err)
	}
	if c.catalog.catalog != nil {
		t.Error("expected catalog to be cleared")
	}

	if err := c.handle(`\quit`); err != nil {
		t.Fatal("unexpected error:", err)
	}
	if c.running {
		t.Error("expected cli to stop running")
	}

	if err := c.Close(); err != nil {
		t.Fatal("unexpected error:", err)
	}
	if !db.closed {
		t.Error("expected database to be closed")
	}
}
