package sqldb

import (
	"fmt"
	"net/url"
	"strings"
)

// driverNames maps configured driver names to database/sql registrations.
var driverNames = map[string]string{
	"sqlite": "sqlite",
	"duckdb": "duckdb",
	"pgx":    "pgx",
	"mysql":  "mysql",
}

// ReadOnlyDSN rewrites dsn so the driver opens the database read-only.
// For SQLite this also means a missing file is an error instead of being created.
func ReadOnlyDSN(driver, dsn string) (string, error) {
	switch driver {
	case "sqlite":
		if !strings.HasPrefix(dsn, "file:") {
			dsn = "file:" + dsn
		}
		return withParam(dsn, "mode", "ro"), nil
	case "duckdb":
		return withParam(dsn, "access_mode", "read_only"), nil
	case "pgx":
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			return withParam(dsn, "default_transaction_read_only", "on"), nil
		}
		if strings.Contains(dsn, "default_transaction_read_only") {
			return dsn, nil
		}
		return dsn + " default_transaction_read_only=on", nil
	case "mysql":
		return withParam(dsn, "transaction_read_only", "1"), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// withParam appends key=value to the query part of dsn unless key is already set.
func withParam(dsn, key, value string) string {
	_, rawQuery, _ := strings.Cut(dsn, "?")
	params, err := url.ParseQuery(rawQuery)
	if err == nil && params.Has(key) {
		return dsn
	}
	sep := "?"
	if rawQuery != "" {
		sep = "&"
	} else if strings.HasSuffix(dsn, "?") {
		sep = ""
	}
	return dsn + sep + key + "=" + url.QueryEscape(value)
}
