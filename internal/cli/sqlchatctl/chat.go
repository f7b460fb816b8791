package sqlchatctl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type sessionBody struct {
	SessionID  string `json:"session_id"`
	Transcript []turn `json:"transcript"`
}

type replyBody struct {
	SessionID string `json:"session_id"`
	Reply     struct {
		Kind      string `json:"kind"`
		Content   string `json:"content"`
		ErrorCode string `json:"error_code,omitempty"`
	} `json:"reply"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func newSessionCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Create or inspect chat sessions",
		Args:  exactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			return usageError{fmt.Errorf("session requires a subcommand: create or show")}
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Start a new session and print its id",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := newClient(opts).do(cmd.Context(), http.MethodPost, "/v1/sessions", nil)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), raw)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session transcript",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := newClient(opts).do(cmd.Context(), http.MethodGet, "/v1/sessions/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			var body sessionBody
			if err := json.Unmarshal(raw, &body); err != nil {
				return fmt.Errorf("decode session: %w", err)
			}
			for _, t := range body.Transcript {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "[%s]\n%s\n\n", t.Role, t.Content)
			}
			return nil
		},
	})
	return cmd
}

func newAskCommand(opts *Options) *cobra.Command {
	var (
		sessionID string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the answer",
		Example: `  sqlchatctl ask "How many employees are in the Sales division?"
  sqlchatctl ask --session 6b0d... "And how many left last year?"`,
		Args: minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts)
			ctx := cmd.Context()
			if sessionID == "" {
				raw, err := c.do(ctx, http.MethodPost, "/v1/sessions", nil)
				if err != nil {
					return err
				}
				var created sessionBody
				if err := json.Unmarshal(raw, &created); err != nil {
					return fmt.Errorf("decode session: %w", err)
				}
				sessionID = created.SessionID
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "session %s\n", sessionID)
			}

			raw, err := c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/messages",
				map[string]string{"question": strings.Join(args, " ")})
			if err != nil {
				return err
			}
			if asJSON {
				printJSON(cmd.OutOrStdout(), raw)
				return nil
			}
			var reply replyBody
			if err := json.Unmarshal(raw, &reply); err != nil {
				return fmt.Errorf("decode reply: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), reply.Reply.Content)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "existing session id; a new session is created when empty")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response body")
	return cmd
}

func newTranslateCommand(opts *Options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "translate <question>",
		Short: "Print the sanitized SQL for a question without running it",
		Args:  minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := newClient(opts).do(cmd.Context(), http.MethodPost, "/v1/translate",
				map[string]string{"question": strings.Join(args, " ")})
			if err != nil {
				return err
			}
			if asJSON {
				printJSON(cmd.OutOrStdout(), raw)
				return nil
			}
			var body struct {
				SQL string `json:"sql"`
			}
			if err := json.Unmarshal(raw, &body); err != nil {
				return fmt.Errorf("decode translation: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), body.SQL)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response body")
	return cmd
}

func newChatCommand(opts *Options) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive chat over a WebSocket",
		Long: `chat reads one question per line from stdin and prints each answer as it
arrives. An empty line is skipped; "exit", "quit" or end of input closes the session.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newClient(opts)
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if sessionID == "" {
				raw, err := c.do(ctx, http.MethodPost, "/v1/sessions", nil)
				if err != nil {
					return err
				}
				var created sessionBody
				if err := json.Unmarshal(raw, &created); err != nil {
					return fmt.Errorf("decode session: %w", err)
				}
				sessionID = created.SessionID
				for _, t := range created.Transcript {
					_, _ = fmt.Fprintln(out, t.Content)
				}
			}

			endpoint, err := websocketURL(c.baseURL, "/v1/sessions/"+url.PathEscape(sessionID)+"/ws")
			if err != nil {
				return err
			}
			dialer := opts.Dialer
			if dialer == nil {
				dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
			}
			conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
			if err != nil {
				if resp != nil {
					body, _ := io.ReadAll(resp.Body)
					_ = resp.Body.Close()
					return &httpError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
				}
				return fmt.Errorf("websocket connect: %w", err)
			}
			defer conn.Close()

			return converse(conn, cmd.InOrStdin(), out)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "existing session id; a new session is created when empty")
	return cmd
}

// converse sends each input line as a question and waits for its reply
// before reading the next one.
func converse(conn *websocket.Conn, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}
		if err := conn.WriteJSON(map[string]string{"question": question}); err != nil {
			return fmt.Errorf("send question: %w", err)
		}
		var reply replyBody
		if err := conn.ReadJSON(&reply); err != nil {
			return fmt.Errorf("read reply: %w", err)
		}
		if reply.ErrorCode != "" {
			_, _ = fmt.Fprintf(out, "%s: %s\n", reply.ErrorCode, reply.Message)
			continue
		}
		_, _ = fmt.Fprintln(out, reply.Reply.Content)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_, _ = fmt.Fprintln(out)
	return nil
}

func websocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL + path)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	return u.String(), nil
}
