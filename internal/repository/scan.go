package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the DATETIME text format written by every repository
// ("YYYY-MM-DD HH:MM:SS", UTC). Both drivers accept it as input.
const TimestampLayout = "2006-01-02 15:04:05"

// dbtx is satisfied by *sql.DB and *sql.Tx so statements can be shared
// between the plain and the transactional variants of a method.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func timestamp(t time.Time) string { return t.UTC().Format(TimestampLayout) }

var timeLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02",
}

// dbTime scans DATETIME columns. MySQL (parseTime=true) yields time.Time,
// SQLite yields time.Time or text depending on the stored value.
type dbTime struct{ t *time.Time }

func (d dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d.t = time.Time{}
		return nil
	case time.Time:
		*d.t = v.UTC()
		return nil
	case []byte:
		return d.parse(string(v))
	case string:
		return d.parse(v)
	}
	return fmt.Errorf("cannot scan %T into time", src)
}

func (d dbTime) parse(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*d.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("cannot parse time %q", s)
}

// placeholders returns "?,?,?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
