package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sqlchat/sqlchat/internal/cli/sqlchatctl"
	"github.com/sqlchat/sqlchat/internal/config"
)

const defaultTimeout = 60 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	options := sqlchatctl.Options{
		BaseURL: "http://localhost:8080",
		Timeout: defaultTimeout,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		ObjectStore: func() (config.ObjectStoreConfig, error) {
			cfg, err := config.LoadFromEnv("sqlchatctl")
			if err != nil {
				return config.ObjectStoreConfig{}, err
			}
			return cfg.ObjectStore, nil
		},
	}
	if url := strings.TrimSpace(os.Getenv("SQLCHAT_API_URL")); url != "" {
		options.BaseURL = url
	}
	if raw := strings.TrimSpace(os.Getenv("SQLCHAT_CLI_TIMEOUT")); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil || timeout <= 0 {
			fmt.Fprintf(os.Stderr, "ignoring SQLCHAT_CLI_TIMEOUT=%q; using %s\n", raw, defaultTimeout)
		} else {
			options.Timeout = timeout
		}
	}

	code := sqlchatctl.Run(ctx, os.Args[1:], options)
	stop()
	os.Exit(code)
}
