// Package sqlchatctl is the operator command line for a running sqlchat API.
package sqlchatctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/sqlchat/sqlchat/internal/config"
	"github.com/sqlchat/sqlchat/internal/storage"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
	// ObjectStore resolves the bucket settings for exemplar publishing.
	ObjectStore func() (config.ObjectStoreConfig, error)
	OpenStore   func(ctx context.Context, cfg config.ObjectStoreConfig) (storage.ObjectStore, error)
}

// usageError marks failures that exit with status 2.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// httpError is a non-2xx API answer.
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, e.body)
}

// Run executes one command and returns the process exit code.
func Run(ctx context.Context, args []string, defaults Options) int {
	opts := withDefaults(defaults)
	root := NewRootCmd(&opts)
	root.SetArgs(args)
	root.SetIn(opts.Stdin)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var usage usageError
	if errors.As(err, &usage) {
		_, _ = fmt.Fprintf(opts.Stderr, "%v\n\n", err)
		_, _ = fmt.Fprint(opts.Stderr, root.UsageString())
		return 2
	}
	var httpErr *httpError
	if errors.As(err, &httpErr) {
		_, _ = fmt.Fprintln(opts.Stderr, httpErr.Error())
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stderr, "request failed: %v\n", err)
	return 1
}

func withDefaults(opts Options) Options {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Stdin == nil {
		opts.Stdin = strings.NewReader("")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.OpenStore == nil {
		opts.OpenStore = openS3Store
	}
	return opts
}

// NewRootCmd builds the command tree. Flags write back into opts.
func NewRootCmd(opts *Options) *cobra.Command {
	root := &cobra.Command{
		Use:   "sqlchatctl",
		Short: "Talk to a sqlchat API",
		Long: `sqlchatctl asks questions about the Employees database through a running
sqlchat API, inspects sessions, and publishes exemplar artifacts.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageError{fmt.Errorf("unknown command %q", args[0])}
			}
			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return usageError{errors.New("a command is required")}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.PersistentFlags().StringVar(&opts.BaseURL, "base-url", firstNonEmpty(opts.BaseURL, "http://localhost:8080"), "sqlchat API base URL")
	root.PersistentFlags().DurationVar(&opts.Timeout, "timeout", opts.Timeout, "request timeout (e.g. 30s)")

	root.AddCommand(
		newGetCommand(opts, "health", "Check liveness", "/v1/health"),
		newGetCommand(opts, "ready", "Check readiness of the database and model", "/v1/ready"),
		newGetCommand(opts, "schema", "Show the schema questions are answered against", "/v1/schema"),
		newSessionCommand(opts),
		newAskCommand(opts),
		newTranslateCommand(opts),
		newChatCommand(opts),
		newExemplarsCommand(opts),
	)
	return root
}

func newGetCommand(opts *Options, name, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := newClient(opts).do(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), body)
			return nil
		},
	}
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func minArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

type client struct {
	http    *http.Client
	baseURL string
}

func newClient(opts *Options) *client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &client{
		http:    httpClient,
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
	}
}

func (c *client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &httpError{status: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}
	return raw, nil
}

func printJSON(w io.Writer, raw []byte) {
	if pretty, ok := prettyJSON(raw); ok {
		_, _ = fmt.Fprintln(w, pretty)
		return
	}
	if len(raw) > 0 {
		_, _ = fmt.Fprintln(w, string(raw))
	}
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}
