package main

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
)

func sqliteOpener(t *testing.T) openFunc {
	t.Helper()
	path := filepath.Join(t.TempDir(), "employees.db")
	return func(context.Context) (target, error) {
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return target{}, err
		}
		return target{db: db, driver: "sqlite"}, nil
	}
}

func run(t *testing.T, open openFunc, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(open, &out)
	root.SetArgs(args)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestUpStatusDown(t *testing.T) {
	open := sqliteOpener(t)

	out, err := run(t, open, "status")
	if err != nil || !strings.Contains(out, "employees") || !strings.Contains(out, "false") {
		t.Fatalf("status before up = %q, %v", out, err)
	}

	out, err = run(t, open, "up")
	if err != nil || out != "applied 1 migration(s)\n" {
		t.Fatalf("up = %q, %v", out, err)
	}
	out, err = run(t, open, "up")
	if err != nil || out != "applied 0 migration(s)\n" {
		t.Fatalf("second up = %q, %v", out, err)
	}

	out, err = run(t, open, "status")
	if err != nil || !strings.Contains(out, "true") {
		t.Fatalf("status after up = %q, %v", out, err)
	}

	out, err = run(t, open, "down")
	if err != nil || out != "rolled back 1 migration(s)\n" {
		t.Fatalf("down = %q, %v", out, err)
	}
}

func TestShowPrintsUpScript(t *testing.T) {
	out, err := run(t, nil, "show", "1")
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if !strings.Contains(out, "CREATE TABLE employee_data") {
		t.Fatalf("show output = %q", out)
	}
	if _, err := run(t, nil, "show", "one"); err == nil {
		t.Fatal("show with a non-numeric version expected error")
	}
}

func TestRejectsPositionalArgs(t *testing.T) {
	if _, err := run(t, sqliteOpener(t), "up", "extra"); err == nil {
		t.Fatal("up with an argument expected error")
	}
}
