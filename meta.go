package dbconsole

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

type ColumnSchema struct {
	Name  string
	Type  string
	Attrs []string
}

type TableSchema struct {
	Name    string
	Columns []ColumnSchema
}

type querier interface {
	PingContext(context.Context) error
	Query(string, ...interface{}) (*sql.Rows, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	Stats() sql.DBStats
	Close() error
}

type metaQuerier interface {
	querier
	ListTables() ([]string, error)
	ListTablesInSchema(string) ([]string, error)
	ListSchemas() ([]string, error)
	DescribeTable(string) (*TableSchema, error)
}

func postgresOpen(conn *Connection) (*sql.DB, error) {
	sslmode, ok := conn.DriverOpts["sslmode"]
	if !ok {
		sslmode = "require"
	}
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		conn.Host,
		conn.Port,
		conn.Database,
		conn.Username,
		conn.Password,
		sslmode,
	)
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(connector), nil
}

type dbMeta struct {
	querier
}

const (
	listTablesQuery = `SELECT format('%s.%s', table_schema, table_name) FROM information_schema.tables
                       WHERE table_schema NOT LIKE 'pg_%'
                       AND table_schema <> 'information_schema'
                       ORDER BY table_schema, table_name`

	listTablesInSchemaQuery = `SELECT table_name FROM information_schema.tables
                               WHERE table_schema = $1
                               ORDER BY table_name`

	listSchemasQuery = `SELECT schema_name FROM information_schema.schemata
                        WHERE schema_name NOT LIKE 'pg_%'
                        AND schema_name <> 'information_schema'
                        ORDER BY schema_name`

	describeTableQuery = `SELECT column_name, column_default, is_nullable, data_type, udt_schema, udt_name
                          FROM information_schema.columns
                          WHERE table_schema = $1 AND table_name = $2
                          ORDER BY ordinal_position`
)

// ListTables returns every user table as <schema>.<table>.
func (m dbMeta) ListTables() ([]string, error) {
	return m.queryStrings(listTablesQuery)
}

func (m dbMeta) ListTablesInSchema(schema string) ([]string, error) {
	return m.queryStrings(listTablesInSchemaQuery, schema)
}

func (m dbMeta) ListSchemas() ([]string, error) {
	return m.queryStrings(listSchemasQuery)
}

// queryStrings runs a query selecting a single text column.
func (m dbMeta) queryStrings(query string, args ...interface{}) ([]string, error) {
	rows, err := m.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	return out, rows.Err()
}

// splitTableName splits "schema.table", defaulting the schema to public.
func splitTableName(name string) (schema, table string, err error) {
	parts := strings.Split(name, ".")
	switch len(parts) {
	case 2:
		return parts[0], parts[1], nil

	case 1:
		return "public", parts[0], nil

	default:
		return "", "", fmt.Errorf("invalid table name: '%s'", name)
	}
}

func (m dbMeta) DescribeTable(tablename string) (*TableSchema, error) {
	schema, table, err := splitTableName(tablename)
	if err != nil {
		return nil, err
	}

	rows, err := m.Query(describeTableQuery, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := TableSchema{
		Name: table,
	}
	for rows.Next() {
		var col ColumnSchema

		var (
			defaultVal     sql.NullString
			nullable       yesOrNo
			userTypeSchema sql.NullString
			userType       sql.NullString
		)
		if err := rows.Scan(&col.Name, &defaultVal, &nullable, &col.Type, &userTypeSchema, &userType); err != nil {
			return nil, err
		}

		if col.Type == "USER-DEFINED" {
			col.Type = userTypeSchema.String + "." + userType.String
		}

		if defaultVal.Valid {
			col.Attrs = append(col.Attrs, "DEFAULT "+defaultVal.String)
		}

		if nullable {
			col.Attrs = append(col.Attrs, "NULL")
		} else {
			col.Attrs = append(col.Attrs, "NOT NULL")
		}

		result.Columns = append(result.Columns, col)
	}

	return &result, rows.Err()
}

type yesOrNo bool

func parseYesOrNo(s string) (yesOrNo, error) {
	switch s {
	case "YES", "yes":
		return true, nil
	case "NO", "no":
		return false, nil
	default:
		return false, errors.New("yesOrNo: invalid value")
	}
}

func (v yesOrNo) Value() (driver.Value, error) {
	if v {
		return "YES", nil
	}
	return "NO", nil
}

func (v *yesOrNo) Scan(src interface{}) error {
	switch srcVal := src.(type) {
	case string:
		var err error
		*v, err = parseYesOrNo(srcVal)
		return err

	case []byte:
		var err error
		*v, err = parseYesOrNo(string(srcVal))
		return err

	default:
		return errors.New("yesOrNo: incompatible type")
	}
}
