package dbconsole

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

var ErrNoConnection = errors.New("an active connection is required")

type Console struct {
	current        metaQuerier
	cfg            *Config
	activeQueriers map[string]metaQuerier
	activeTunnels  map[string]*Tunnel
	currentName    string
}

func New(cfg *Config) *Console {
	return &Console{
		cfg:            cfg,
		current:        nil,
		currentName:    "",
		activeQueriers: make(map[string]metaQuerier),
		activeTunnels:  make(map[string]*Tunnel),
	}
}

func (c *Console) Close() error {
	var errs []error
	for _, q := range c.activeQueriers {
		errs = append(errs, q.Close())
	}

	for _, t := range c.activeTunnels {
		errs = append(errs, t.Close())
	}

	return makeErrorList(errs...)
}

func (c *Console) CurrentName() string {
	return c.currentName
}

// ListConnections returns the configured connection names, sorted, and
// whether each one is currently open.
func (c *Console) ListConnections() (names []string, active []bool) {
	names = make([]string, 0, len(c.cfg.Connections))
	for k := range c.cfg.Connections {
		names = append(names, k)
	}
	sort.Strings(names)

	active = make([]bool, len(names))
	for i, name := range names {
		_, active[i] = c.activeQueriers[name]
	}
	return names, active
}

func (c *Console) SwitchConnection(connName string, prompter ssh.KeyboardInteractiveChallenge) error {
	conn, ok := c.cfg.Connections[connName]
	if !ok {
		return fmt.Errorf("'%s' is not a configured connection", connName)
	}

	querier, ok := c.activeQueriers[connName]
	if ok {
		c.current = querier
		c.currentName = connName
		return nil
	}

	if conn.Tunnel != "" {
		tunnel, ok := c.activeTunnels[conn.Tunnel]
		if !ok {
			tunnelCfg := c.cfg.Tunnels[conn.Tunnel]

			var err error
			tunnel, err = NewTunnel(prompter, &tunnelCfg, conn.Host, conn.Port)
			if err != nil {
				return fmt.Errorf("could not establish tunnel: %w", err)
			}

			c.activeTunnels[conn.Tunnel] = tunnel
		}

		// point the connection at the local end of the tunnel
		localHost, localPort, _ := net.SplitHostPort(tunnel.LocalAddr().String())
		conn.Host = localHost
		conn.Port, _ = strconv.Atoi(localPort)
	}

	if conn.Password == "" {
		if pgpassword := os.Getenv("PGPASSWORD"); pgpassword != "" {
			conn.Password = pgpassword
		} else {
			answers, err := prompter("", "", []string{"database password: "}, []bool{false})
			if err != nil {
				return err
			}
			conn.Password = answers[0]
		}
	}

	switch conn.Driver {
	case "postgres":
		db, err := postgresOpen(&conn)
		if err != nil {
			return fmt.Errorf("failed to open database connection: %w", err)
		}
		db.SetMaxOpenConns(conn.MaxOpenConns)
		db.SetConnMaxIdleTime(1 * time.Hour)
		querier = dbMeta{db}

	default:
		return fmt.Errorf("unsupported database driver '%s'", conn.Driver)
	}

	ctx := context.Background()
	if conn.ConnectTimeoutSec != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(conn.ConnectTimeoutSec)*time.Second)
		defer cancel()
	}
	if err := querier.PingContext(ctx); err != nil {
		querier.Close()
		return fmt.Errorf("failed to connect to database instance: %w", err)
	}

	c.activeQueriers[connName] = querier
	c.current = querier
	c.currentName = connName
	return nil
}

// DefaultSchema is the schema of the active connection that unqualified table
// names resolve against.
func (c *Console) DefaultSchema() string {
	if c.cfg != nil {
		if conn, ok := c.cfg.Connections[c.currentName]; ok && conn.Schema != "" {
			return conn.Schema
		}
	}
	return "public"
}

func (c *Console) ListTables(schema string) ([]string, error) {
	if c.current == nil {
		return nil, ErrNoConnection
	}

	if schema != "" {
		return c.current.ListTablesInSchema(schema)
	}
	return c.current.ListTables()
}

func (c *Console) ListSchemas() ([]string, error) {
	if c.current == nil {
		return nil, ErrNoConnection
	}
	return c.current.ListSchemas()
}

func (c *Console) DescribeTable(name string) (*TableSchema, error) {
	if c.current == nil {
		return nil, ErrNoConnection
	}
	return c.current.DescribeTable(name)
}

// ListColumns returns the column names of table, in ordinal order.
// An unqualified table is looked up in DefaultSchema.
func (c *Console) ListColumns(table string) ([]string, error) {
	if !strings.Contains(table, ".") {
		table = c.DefaultSchema() + "." + table
	}

	schema, err := c.DescribeTable(table)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(schema.Columns))
	for i, col := range schema.Columns {
		names[i] = col.Name
	}
	return names, nil
}

// Catalog returns the tables of schema keyed by unqualified name. Columns are
// not loaded; every table maps to nil until ListColumns fills it in.
func (c *Console) Catalog(schema string) (map[string][]string, error) {
	if schema == "" {
		schema = c.DefaultSchema()
	}

	tables, err := c.ListTables(schema)
	if err != nil {
		return nil, fmt.Errorf("could not list tables of '%s': %w", schema, err)
	}

	catalog := make(map[string][]string, len(tables))
	for _, name := range tables {
		catalog[name] = nil
	}
	return catalog, nil
}

func (c *Console) Stats() sql.DBStats {
	if c.current == nil {
		return sql.DBStats{}
	}
	return c.current.Stats()
}

type QueryResult struct {
	Columns []string
	Rows    [][]interface{}
}

// Records returns each row keyed by column name.
func (r *QueryResult) Records() []map[string]interface{} {
	records := make([]map[string]interface{}, len(r.Rows))
	for i, row := range r.Rows {
		record := make(map[string]interface{}, len(r.Columns))
		for j, col := range r.Columns {
			if j < len(row) {
				record[col] = row[j]
			}
		}
		records[i] = record
	}
	return records
}

// Query returns a QueryResult with the results of the provided script.
// If no error occurred, and there were no results (e.g, an INSERT/CREATE),
// a nil QueryResult is returned.
func (c *Console) Query(ctx context.Context, script string) (*QueryResult, error) {
	if c.current == nil {
		return nil, ErrNoConnection
	}

	rows, err := c.current.QueryContext(ctx, script)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	if len(columns) == 0 {
		return nil, nil
	}

	var (
		result = QueryResult{
			Columns: make([]string, len(columns)),
		}

		scanners = make([]interface{}, len(columns))
	)
	for i, col := range columns {
		result.Columns[i] = col.Name()
		scanners[i] = scannerFor(col)
	}

	for rows.Next() {
		if err := rows.Scan(scanners...); err != nil {
			return nil, err
		}

		data := make([]interface{}, len(scanners))
		for i, val := range scanners {
			if val == nil {
				data[i] = nullValue{}
			} else {
				data[i] = reflect.Indirect(reflect.ValueOf(val)).Interface()
			}
		}

		result.Rows = append(result.Rows, data)
	}

	return &result, rows.Err()
}
