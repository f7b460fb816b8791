package migrations

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	_ "modernc.org/sqlite"

	"github.com/sqlchat/sqlchat/internal/schema"
)

func TestLoadMigrationsSortsAndPairsUpDown(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000002_two.up.sql":   {Data: []byte("SELECT 2;")},
		"sql/000002_two.down.sql": {Data: []byte("SELECT -2;")},
		"sql/000001_one.up.sql":   {Data: []byte("SELECT 1;")},
		"sql/000001_one.down.sql": {Data: []byte("SELECT -1;")},
	}

	items, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d", len(items))
	}
	if items[0].Version != 1 || items[1].Version != 2 {
		t.Fatalf("unexpected migration order: %+v", items)
	}
}

func TestLoadMigrationsErrorsWhenDownMissing(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000001_one.up.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := loadMigrations(fsys)
	if err == nil {
		t.Fatal("expected error for missing down migration")
	}
	if !strings.Contains(err.Error(), "missing down SQL") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEmployeesMigrationMatchesBuiltInSchema(t *testing.T) {
	up, err := UpScript(1)
	if err != nil {
		t.Fatalf("UpScript(1) error = %v", err)
	}
	doc, err := schema.Parse(up)
	if err != nil {
		t.Fatalf("schema.Parse(up) error = %v", err)
	}
	if !reflect.DeepEqual(doc.Tables(), schema.Default().Tables()) {
		t.Fatalf("migration tables differ from the built-in schema:\n%+v", doc.Tables())
	}
	if _, err := UpScript(99); err == nil {
		t.Fatal("UpScript(99) expected error")
	}
}

func TestRunnerUpExecutesStatementsAndRecordsVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sqlchat_schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM sqlchat_schema_migrations ORDER BY version").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	for _, table := range []string{"employee_data", "recruitment_data", "training_and_development_data", "employee_engagement_survey_data"} {
		mock.ExpectExec("CREATE TABLE " + table).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sqlchat_schema_migrations (version) VALUES ($1)")).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := NewRunner("pgx").Up(context.Background(), db, 0)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if applied != 1 {
		t.Fatalf("Up() applied = %d, want 1", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunnerUpRollsBackFailedMigration(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sqlchat_schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM sqlchat_schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE employee_data").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	applied, err := NewRunner("mysql").Up(context.Background(), db, 0)
	if err == nil || !strings.Contains(err.Error(), "apply migration 1 (employees): permission denied") {
		t.Fatalf("Up() error = %v", err)
	}
	if applied != 0 {
		t.Fatalf("Up() applied = %d, want 0", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunnerAgainstSQLite(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "employees.db"))
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	runner := NewRunner("sqlite")

	before, err := runner.Status(ctx, db)
	if err != nil || len(before) != 1 || before[0].Applied {
		t.Fatalf("Status() before Up = %+v, %v", before, err)
	}

	applied, err := runner.Up(ctx, db, 0)
	if err != nil || applied != 1 {
		t.Fatalf("Up() = %d, %v", applied, err)
	}
	after, err := runner.Status(ctx, db)
	if err != nil || len(after) != 1 || !after[0].Applied || after[0].Name != "employees" || after[0].Version != 1 {
		t.Fatalf("Status() after Up = %+v, %v", after, err)
	}
	if got := countTables(t, db); got != 4 {
		t.Fatalf("tables after Up = %d, want 4", got)
	}
	if applied, err := runner.Up(ctx, db, 0); err != nil || applied != 0 {
		t.Fatalf("second Up() = %d, %v", applied, err)
	}

	rolledBack, err := runner.Down(ctx, db, 0)
	if err != nil || rolledBack != 1 {
		t.Fatalf("Down() = %d, %v", rolledBack, err)
	}
	if got := countTables(t, db); got != 0 {
		t.Fatalf("tables after Down = %d, want 0", got)
	}
}

func countTables(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN
		('employee_data', 'recruitment_data', 'training_and_development_data', 'employee_engagement_survey_data')`).Scan(&n)
	if err != nil {
		t.Fatalf("count tables: %v", err)
	}
	return n
}
