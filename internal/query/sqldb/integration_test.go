//go:build integration

package sqldb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sqlchat/sqlchat/internal/query"
)

func TestPostgresReadOnlyExecution(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "sqlchat",
				"POSTGRES_PASSWORD": "sqlchat",
				"POSTGRES_DB":       "employees",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	defer func() { _ = container.Terminate(context.Background()) }()

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://sqlchat:sqlchat@%s:%s/employees?sslmode=disable", host, port.Port())
	seed(t, "pgx", dsn, seedStatements...)

	engine, err := New(Config{Driver: "pgx", DSN: dsn, ReadOnly: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	result, err := engine.Execute(ctx, query.Request{SQL: "SELECT firstname FROM employee_data ORDER BY empid"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 || result.Rows[0][0] != "Ada" {
		t.Fatalf("Rows = %#v", result.Rows)
	}

	if _, err := engine.Execute(ctx, query.Request{SQL: "DELETE FROM employee_data"}); err == nil {
		t.Fatal("Execute(DELETE) on a read-only session expected error")
	}
}
