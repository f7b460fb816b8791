// Package seed loads a reproducible Employees demo database.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sqlchat/sqlchat/internal/migrations"
	"github.com/sqlchat/sqlchat/internal/schema"
)

// Summary counts the rows written per table.
type Summary struct {
	Tables   map[string]int
	Duration time.Duration
}

type Seeder struct {
	cfg    Config
	db     *sql.DB
	doc    schema.Document
	logger *slog.Logger
}

func New(cfg Config, db *sql.DB, logger *slog.Logger) (*Seeder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Seeder{cfg: cfg, db: db, doc: schema.Default(), logger: logger}, nil
}

// Run creates the tables when needed and fills them. It refuses to append to
// a populated employee_data table unless Reset is set.
func (s *Seeder) Run(ctx context.Context) (Summary, error) {
	started := time.Now()
	runner := migrations.NewRunner(s.cfg.Driver)
	if s.cfg.Reset {
		if _, err := runner.Down(ctx, s.db, 0); err != nil {
			return Summary{}, fmt.Errorf("reset tables: %w", err)
		}
	}
	if _, err := runner.Up(ctx, s.db, 0); err != nil {
		return Summary{}, fmt.Errorf("create tables: %w", err)
	}

	var existing int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM employee_data").Scan(&existing); err != nil {
		return Summary{}, fmt.Errorf("count employees: %w", err)
	}
	if existing > 0 {
		return Summary{}, fmt.Errorf("employee_data already holds %d rows; reset to reseed", existing)
	}

	gen := NewGenerator(s.cfg.Seed)
	employees := make([]Row, 0, s.cfg.Employees)
	trainings := make([]Row, 0, s.cfg.Employees)
	surveys := make([]Row, 0, s.cfg.Employees)
	for id := 1; id <= s.cfg.Employees; id++ {
		employees = append(employees, gen.Employee(id))
		trainings = append(trainings, gen.Training(id))
		surveys = append(surveys, gen.Survey(id))
	}
	applicants := make([]Row, 0, s.cfg.Employees/10+1)
	for id := 1; id <= s.cfg.Employees/10+1; id++ {
		applicants = append(applicants, gen.Applicant(1000+id))
	}

	summary := Summary{Tables: map[string]int{}}
	for _, batch := range []struct {
		table string
		rows  []Row
	}{
		{"employee_data", employees},
		{"recruitment_data", applicants},
		{"training_and_development_data", trainings},
		{"employee_engagement_survey_data", surveys},
	} {
		n, err := s.insert(ctx, batch.table, batch.rows)
		if err != nil {
			return Summary{}, err
		}
		summary.Tables[batch.table] = n
		s.logger.Info("table_seeded", slog.String("table", batch.table), slog.Int("rows", n))
	}
	summary.Duration = time.Since(started)
	return summary, nil
}

func (s *Seeder) insert(ctx context.Context, table string, rows []Row) (int, error) {
	def, ok := s.doc.Table(table)
	if !ok {
		return 0, fmt.Errorf("table %s is not in the schema", table)
	}
	columns := make([]string, len(def.Columns))
	for i, col := range def.Columns {
		columns[i] = col.Name
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	written := 0
	for start := 0; start < len(rows); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(rows))
		stmt, args := insertStatement(s.cfg.Driver, table, columns, rows[start:end])
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return 0, fmt.Errorf("insert into %s: %w", table, err)
		}
		written += end - start
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s: %w", table, err)
	}
	return written, nil
}

// insertStatement builds one multi-row INSERT with driver-specific placeholders.
func insertStatement(driver, table string, columns []string, rows []Row) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(rows)*len(columns))
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, col := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			args = append(args, row[col])
			if driver == "pgx" {
				b.WriteString("$" + strconv.Itoa(len(args)))
			} else {
				b.WriteByte('?')
			}
		}
		b.WriteByte(')')
	}
	return b.String(), args
}
