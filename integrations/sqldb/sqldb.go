// Package sqldb wraps *sql.DB so every statement is reported at the sql log
// point. The service is the configured database name and the action is the
// statement verb.
package sqldb

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aponysus/callscope/callscope"
	"github.com/aponysus/callscope/observe"
)

// DefaultService names the database when none is configured.
const DefaultService = "db"

// DB is an instrumented *sql.DB. Methods not overridden here go straight to
// the embedded handle and are not reported.
type DB struct {
	*sql.DB
	engine  *callscope.Engine
	service string
	action  func(query string) string
	tags    []string
}

type Option func(*DB)

// WithEngine selects the engine. The default engine is used otherwise.
func WithEngine(e *callscope.Engine) Option {
	return func(db *DB) { db.engine = e }
}

func WithService(name string) Option {
	return func(db *DB) {
		if name = strings.TrimSpace(name); name != "" {
			db.service = name
		}
	}
}

// WithActionFunc overrides how a query maps to an action.
func WithActionFunc(fn func(query string) string) Option {
	return func(db *DB) {
		if fn != nil {
			db.action = fn
		}
	}
}

// WithTags sets tag templates resolved against the first query argument.
func WithTags(templates ...string) Option {
	return func(db *DB) { db.tags = append(db.tags, templates...) }
}

// Wrap instruments db.
func Wrap(db *sql.DB, opts ...Option) *DB {
	w := &DB{DB: db, service: DefaultService, action: Verb}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Open opens a database with sql.Open and wraps it.
func Open(driver, dsn string, opts ...Option) (*DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	return Wrap(db, opts...), nil
}

// Verb returns the upper-cased first keyword of query, e.g. "SELECT".
func Verb(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	return strings.ToUpper(fields[0])
}

func (db *DB) complete(ctx context.Context, query string, args []any, start time.Time, out any, err error) {
	engine := db.engine
	if engine == nil {
		engine = callscope.Default()
	}
	input := append([]any{query}, args...)
	call := callscope.Call{
		Start:  start,
		Cost:   time.Since(start),
		Input:  input,
		Output: out,
		Err:    err,
	}
	call.Sources.Args = args
	engine.Complete(ctx, callscope.Site{
		LogPoint: observe.LogPointSQL,
		Service:  db.service,
		Action:   db.action(query),
		Tags:     db.tags,
	}, call)
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := db.DB.ExecContext(ctx, query, args...)
	var out any
	if err == nil {
		if n, rerr := res.RowsAffected(); rerr == nil {
			out = map[string]any{"rowsAffected": n}
		}
	}
	db.complete(ctx, query, args, start, out, err)
	return res, err
}

// QueryContext reports the time to the first result set. Row iteration is
// not included.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := db.DB.QueryContext(ctx, query, args...)
	db.complete(ctx, query, args, start, nil, err)
	return rows, err
}

// QueryRowContext reports query errors. sql.ErrNoRows surfaces only on Scan
// and is not reported.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := db.DB.QueryRowContext(ctx, query, args...)
	db.complete(ctx, query, args, start, nil, row.Err())
	return row
}
