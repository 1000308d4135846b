package dbconsole

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// scannerFor picks the destination a column of col's type is scanned into.
// Each destination renders SQL NULL as "NULL" when printed.
func scannerFor(col *sql.ColumnType) interface{} {
	switch strings.ToUpper(col.DatabaseTypeName()) {
	case "CHARACTER", "CHAR", "CHARACTER VARYING", "VARCHAR", "NVARCHAR", "TEXT", "BPCHAR", "NAME":
		return new(nullString)

	case "BOOL", "BOOLEAN":
		return new(nullBool)

	case "BIGINT", "INT8", "BIGSERIAL", "SERIAL8", "INTERVAL":
		return new(nullInt64)

	case "INTEGER", "INT", "INT4", "SERIAL", "SERIAL4":
		return new(nullInt32)

	case "SMALLINT", "INT2", "SMALLSERIAL", "SERIAL2":
		return new(nullInt16)

	case "DOUBLE", "FLOAT8", "NUMERIC", "DECIMAL":
		return new(nullFloat64)

	case "REAL", "FLOAT4":
		return new(nullFloat32)

	case "TIMESTAMP", "TIMESTAMPTZ", "TIME", "TIMETZ", "DATE":
		return new(nullTime)

	case "UUID":
		return new(nullUUID)

	case "ARRAY":
		return new([]interface{})

	default:
		if t := col.ScanType(); t != nil {
			return reflect.New(t).Interface()
		}
		return new(interface{})
	}
}

// nullable is implemented by every scan destination that can hold SQL NULL.
type nullable interface {
	isNull() bool
}

// cellText renders a scanned value for export: NULL becomes the empty string.
func cellText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case nullable:
		if val.isNull() {
			return ""
		}
	case []byte:
		return string(val)
	}
	return fmt.Sprint(v)
}

type (
	nullString  struct{ sql.NullString }
	nullBool    struct{ sql.NullBool }
	nullInt64   struct{ sql.NullInt64 }
	nullInt32   struct{ sql.NullInt32 }
	nullFloat64 struct{ sql.NullFloat64 }
	nullTime    struct{ sql.NullTime }
	nullUUID    struct{ uuid.NullUUID }
)

func (s nullString) isNull() bool  { return !s.Valid }
func (b nullBool) isNull() bool    { return !b.Valid }
func (i nullInt64) isNull() bool   { return !i.Valid }
func (i nullInt32) isNull() bool   { return !i.Valid }
func (f nullFloat64) isNull() bool { return !f.Valid }
func (t nullTime) isNull() bool    { return !t.Valid }
func (u nullUUID) isNull() bool    { return !u.Valid }
func (i nullInt16) isNull() bool   { return !i.Valid }
func (f nullFloat32) isNull() bool { return !f.Valid }
func (nullValue) isNull() bool     { return true }

func (s nullString) String() string {
	if s.Valid {
		return s.NullString.String
	}
	return "NULL"
}

func (b nullBool) String() string {
	if b.Valid {
		return strconv.FormatBool(b.Bool)
	}
	return "NULL"
}

func (i nullInt64) String() string {
	if i.Valid {
		return strconv.FormatInt(i.Int64, 10)
	}
	return "NULL"
}

func (i nullInt32) String() string {
	if i.Valid {
		return strconv.FormatInt(int64(i.Int32), 10)
	}
	return "NULL"
}

func (f nullFloat64) String() string {
	if f.Valid {
		return strconv.FormatFloat(f.Float64, 'g', -1, 64)
	}
	return "NULL"
}

func (t nullTime) String() string {
	if t.Valid {
		return t.Time.String()
	}
	return "NULL"
}

func (u nullUUID) String() string {
	if u.Valid {
		return u.UUID.String()
	}
	return "NULL"
}

type nullInt16 struct {
	Int16 int16
	Valid bool
}

func (i *nullInt16) Scan(v interface{}) error {
	switch rv := v.(type) {
	case nil:
		i.Int16 = 0
		i.Valid = false
		return nil

	case int64:
		i.Int16 = int16(rv)
		i.Valid = true
		return nil

	default:
		return fmt.Errorf("unexpected type '%T'", v)
	}
}

func (i nullInt16) String() string {
	if i.Valid {
		return strconv.FormatInt(int64(i.Int16), 10)
	}
	return "NULL"
}

type nullFloat32 struct {
	Float32 float32
	Valid   bool
}

func (f *nullFloat32) Scan(v interface{}) error {
	switch rv := v.(type) {
	case nil:
		f.Float32 = 0
		f.Valid = false
		return nil

	case float64:
		f.Float32 = float32(rv)
		f.Valid = true
		return nil

	default:
		return fmt.Errorf("unexpected type '%T'", v)
	}
}

func (f nullFloat32) String() string {
	if f.Valid {
		return strconv.FormatFloat(float64(f.Float32), 'g', -1, 32)
	}
	return "NULL"
}

type nullValue struct{}

func (nullValue) String() string {
	return "NULL"
}
