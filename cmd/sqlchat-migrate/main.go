package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jedib0t/go-pretty/v6/table"
	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/sqlchat/sqlchat/internal/config"
	"github.com/sqlchat/sqlchat/internal/migrations"
)

// target is an open database plus the driver name the runner needs for
// placeholder syntax.
type target struct {
	db     *sql.DB
	driver string
}

type openFunc func(ctx context.Context) (target, error)

func main() {
	root := newRootCmd(openFromEnv, os.Stdout)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sqlchat-migrate: %v\n", err)
		os.Exit(1)
	}
}

func openFromEnv(ctx context.Context) (target, error) {
	cfg, err := config.LoadFromEnv("sqlchat-migrate")
	if err != nil {
		return target{}, fmt.Errorf("config: %w", err)
	}
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return target{}, fmt.Errorf("open %s: %w", cfg.Database.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return target{}, fmt.Errorf("ping %s: %w", cfg.Database.Driver, err)
	}
	return target{db: db, driver: cfg.Database.Driver}, nil
}

func newRootCmd(open openFunc, out io.Writer) *cobra.Command {
	var timeout time.Duration

	root := &cobra.Command{
		Use:           "sqlchat-migrate",
		Short:         "Create or drop the Employees tables",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline for the command")
	root.SetOut(out)

	// withRunner opens the database for the duration of one subcommand.
	withRunner := func(fn func(ctx context.Context, r *migrations.Runner, db *sql.DB) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			t, err := open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = t.db.Close() }()
			return fn(ctx, migrations.NewRunner(t.driver), t.db)
		}
	}

	var upSteps int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: withRunner(func(ctx context.Context, r *migrations.Runner, db *sql.DB) error {
			n, err := r.Up(ctx, db, upSteps)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "applied %d migration(s)\n", n)
			return nil
		}),
	}
	up.Flags().IntVar(&upSteps, "steps", 0, "migrations to apply; 0 applies all")

	var downSteps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: withRunner(func(ctx context.Context, r *migrations.Runner, db *sql.DB) error {
			n, err := r.Down(ctx, db, downSteps)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "rolled back %d migration(s)\n", n)
			return nil
		}),
	}
	down.Flags().IntVar(&downSteps, "steps", 1, "migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether each is applied",
		Args:  cobra.NoArgs,
		RunE: withRunner(func(ctx context.Context, r *migrations.Runner, db *sql.DB) error {
			rows, err := r.Status(ctx, db)
			if err != nil {
				return err
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(out)
			tw.AppendHeader(table.Row{"Version", "Name", "Applied"})
			for _, row := range rows {
				tw.AppendRow(table.Row{row.Version, row.Name, row.Applied})
			}
			tw.Render()
			return nil
		}),
	}

	show := &cobra.Command{
		Use:   "show <version>",
		Short: "Print the up script of one migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			version, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			script, err := migrations.UpScript(version)
			if err != nil {
				return err
			}
			_, err = io.WriteString(out, script)
			return err
		},
	}

	root.AddCommand(up, down, status, show)
	return root
}
