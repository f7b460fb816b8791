// Package migrations creates the Employees database tables on any supported driver.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/sqlchat/sqlchat/internal/sqlguard"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const versionTable = "sqlchat_schema_migrations"

// Files are named <version>_<name>.<up|down>.sql.
var fileName = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// Status describes one known migration and whether it has been applied.
type Status struct {
	Version int64
	Name    string
	Applied bool
}

type Runner struct {
	fsys   fs.FS
	driver string
}

// NewRunner returns a runner for the given database/sql driver name.
func NewRunner(driver string) *Runner {
	return &Runner{fsys: embeddedFS, driver: driver}
}

// bind is the positional parameter marker for the runner's driver.
func (r *Runner) bind() string {
	if r.driver == "pgx" {
		return "$1"
	}
	return "?"
}

// Up applies pending migrations oldest first. steps <= 0 applies all.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	known, applied, err := r.plan(ctx, db)
	if err != nil {
		return 0, err
	}
	record := "INSERT INTO " + versionTable + " (version) VALUES (" + r.bind() + ")"

	done := 0
	for _, m := range known {
		if applied[m.Version] {
			continue
		}
		if steps > 0 && done == steps {
			break
		}
		if err := execScript(ctx, db, m.UpSQL, record, m.Version); err != nil {
			return done, fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		done++
	}
	return done, nil
}

// Down rolls back applied migrations newest first. steps <= 0 rolls back one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	known, applied, err := r.plan(ctx, db)
	if err != nil {
		return 0, err
	}
	byVersion := make(map[int64]migration, len(known))
	for _, m := range known {
		byVersion[m.Version] = m
	}
	versions := make([]int64, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	slices.Sort(versions)
	slices.Reverse(versions)

	forget := "DELETE FROM " + versionTable + " WHERE version = " + r.bind()
	done := 0
	for _, v := range versions {
		if done == steps {
			break
		}
		m, ok := byVersion[v]
		if !ok {
			return done, fmt.Errorf("applied migration %d has no embedded script", v)
		}
		if err := execScript(ctx, db, m.DownSQL, forget, m.Version); err != nil {
			return done, fmt.Errorf("rollback migration %d (%s): %w", m.Version, m.Name, err)
		}
		done++
	}
	return done, nil
}

// Status lists every embedded migration in version order.
func (r *Runner) Status(ctx context.Context, db *sql.DB) ([]Status, error) {
	known, applied, err := r.plan(ctx, db)
	if err != nil {
		return nil, err
	}
	out := make([]Status, len(known))
	for i, m := range known {
		out[i] = Status{Version: m.Version, Name: m.Name, Applied: applied[m.Version]}
	}
	return out, nil
}

// plan loads the embedded migrations and the set of versions already recorded.
func (r *Runner) plan(ctx context.Context, db *sql.DB) ([]migration, map[int64]bool, error) {
	known, err := loadMigrations(r.fsys)
	if err != nil {
		return nil, nil, err
	}
	ddl := "CREATE TABLE IF NOT EXISTS " + versionTable + ` (
	version BIGINT PRIMARY KEY,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", versionTable, err)
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, nil, err
	}
	return known, applied, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int64]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM "+versionTable+" ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", versionTable, err)
	}
	defer func() { _ = rows.Close() }()

	applied := map[int64]bool{}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", versionTable, err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", versionTable, err)
	}
	return applied, nil
}

// execScript runs each statement of script and the bookkeeping statement in
// one transaction.
func execScript(ctx context.Context, db *sql.DB, script, bookkeeping string, version int64) error {
	stmts, err := sqlguard.SplitStatements(script)
	if err != nil {
		return fmt.Errorf("split script: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, version); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

// UpScript returns the up script of one embedded migration.
func UpScript(version int64) (string, error) {
	known, err := loadMigrations(embeddedFS)
	if err != nil {
		return "", err
	}
	i := slices.IndexFunc(known, func(m migration) bool { return m.Version == version })
	if i < 0 {
		return "", fmt.Errorf("migration %d not found", version)
	}
	return known[i].UpSQL, nil
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, "sql/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := map[int64]*migration{}
	for _, file := range files {
		parts := fileName.FindStringSubmatch(path.Base(file))
		if parts == nil {
			continue
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version: %w", file, err)
		}
		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", file, err)
		}

		m := byVersion[version]
		if m == nil {
			m = &migration{Version: version, Name: parts[2]}
			byVersion[version] = m
		}
		if parts[3] == "up" {
			m.UpSQL = string(body)
		} else {
			m.DownSQL = string(body)
		}
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		switch {
		case strings.TrimSpace(m.UpSQL) == "":
			return nil, fmt.Errorf("migration %d missing up SQL", m.Version)
		case strings.TrimSpace(m.DownSQL) == "":
			return nil, fmt.Errorf("migration %d missing down SQL", m.Version)
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b migration) int {
		switch {
		case a.Version < b.Version:
			return -1
		case a.Version > b.Version:
			return 1
		}
		return 0
	})
	return out, nil
}
