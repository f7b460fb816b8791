package seed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	Driver    string
	DSN       string
	Employees int
	BatchSize int
	Seed      int64
	// Reset drops and recreates the tables before loading.
	Reset bool
}

func DefaultConfig() Config {
	return Config{
		Driver:    "sqlite",
		DSN:       "employees.db",
		Employees: 3000,
		BatchSize: 500,
		Seed:      20240101,
	}
}

// LoadConfigFromEnv overlays SQLCHAT_* variables on DefaultConfig.
func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, errors.New("lookup function is required")
	}

	cfg := DefaultConfig()
	overlays := []error{
		overlay(lookup, "SQLCHAT_DB_DRIVER", &cfg.Driver, parseText),
		overlay(lookup, "SQLCHAT_DB_DSN", &cfg.DSN, parseText),
		overlay(lookup, "SQLCHAT_SEED_EMPLOYEES", &cfg.Employees, strconv.Atoi),
		overlay(lookup, "SQLCHAT_SEED_BATCH_SIZE", &cfg.BatchSize, strconv.Atoi),
		overlay(lookup, "SQLCHAT_SEED_RANDOM_SEED", &cfg.Seed, parseInt64),
		overlay(lookup, "SQLCHAT_SEED_RESET", &cfg.Reset, strconv.ParseBool),
	}
	if err := errors.Join(overlays...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.Driver == "":
		return fmt.Errorf("SQLCHAT_DB_DRIVER is required")
	case c.DSN == "":
		return fmt.Errorf("SQLCHAT_DB_DSN is required")
	case c.Employees <= 0:
		return fmt.Errorf("SQLCHAT_SEED_EMPLOYEES must be > 0")
	case c.BatchSize <= 0:
		return fmt.Errorf("SQLCHAT_SEED_BATCH_SIZE must be > 0")
	}
	return nil
}

// overlay replaces *dst with the parsed value of key when it is set.
func overlay[T any](lookup LookupFunc, key string, dst *T, parse func(string) (T, error)) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func parseText(raw string) (string, error) { return raw, nil }

func parseInt64(raw string) (int64, error) { return strconv.ParseInt(raw, 10, 64) }
