// Package sqldb executes queries through database/sql. Every request gets its
// own handle and connection, both closed before Execute returns.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"

	"github.com/sqlchat/sqlchat/internal/query"
)

type Config struct {
	Driver   string
	DSN      string
	ReadOnly bool
}

// OpenFunc matches sql.Open.
type OpenFunc func(driver, dsn string) (*sql.DB, error)

type Engine struct {
	driver string
	dsn    string
	open   OpenFunc
}

func New(cfg Config) (*Engine, error) {
	driver := strings.TrimSpace(cfg.Driver)
	if _, ok := driverNames[driver]; !ok {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.ReadOnly {
		var err error
		if dsn, err = ReadOnlyDSN(driver, dsn); err != nil {
			return nil, err
		}
	}
	return &Engine{driver: driver, dsn: dsn, open: sql.Open}, nil
}

// WithOpen replaces how database handles are opened. Tests inject sqlmock here.
func (e *Engine) WithOpen(open OpenFunc) *Engine {
	e.open = open
	return e
}

// Driver is the configured driver name.
func (e *Engine) Driver() string {
	return e.driver
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	statement := trimStatement(request.SQL)
	if statement == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}

	began := time.Now()
	conn, release, err := e.connect(ctx)
	if err != nil {
		return query.Result{}, err
	}
	defer release()

	rows, err := conn.QueryContext(ctx, statement)
	if err != nil {
		return query.Result{}, &query.ExecutionError{Stage: query.StageQuery, Err: err}
	}
	result, err := materialize(rows, request.RowLimit)
	if err != nil {
		return query.Result{}, &query.ExecutionError{Stage: query.StageScan, Err: err}
	}
	result.Duration = time.Since(began)
	return result, nil
}

// materialize reads and closes rows, converting []byte cells to string. With
// a positive limit it stops after limit rows and reports whether more followed.
func materialize(rows *sql.Rows, limit int) (query.Result, error) {
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, err
	}
	cells := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range cells {
		dest[i] = &cells[i]
	}

	result := query.Result{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		if limit > 0 && len(result.Rows) == limit {
			result.Truncated = true
			break
		}
		if err := rows.Scan(dest...); err != nil {
			return query.Result{}, err
		}
		row := make([]any, len(cells))
		for i, cell := range cells {
			if b, ok := cell.([]byte); ok {
				cell = string(b)
			}
			row[i] = cell
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, err
	}
	return result, nil
}

// Ping opens and releases one connection.
func (e *Engine) Ping(ctx context.Context) error {
	_, release, err := e.connect(ctx)
	if err != nil {
		return err
	}
	release()
	return nil
}

func (e *Engine) connect(ctx context.Context) (*sql.Conn, func(), error) {
	db, err := e.open(driverNames[e.driver], e.dsn)
	if err != nil {
		return nil, nil, &query.ExecutionError{Stage: query.StageOpen, Err: err}
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, nil, &query.ExecutionError{Stage: query.StageOpen, Err: err}
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, nil, &query.ExecutionError{Stage: query.StageOpen, Err: err}
	}
	return conn, func() {
		_ = conn.Close()
		_ = db.Close()
	}, nil
}

// trimStatement drops surrounding whitespace and any trailing semicolons.
func trimStatement(sqlText string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(sqlText), "; \t\r\n"))
}
