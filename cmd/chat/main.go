package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/fsy-chat/internal/backend"
	"github.com/zhouzirui/fsy-chat/internal/chatclient"
	"github.com/zhouzirui/fsy-chat/internal/config"
	"github.com/zhouzirui/fsy-chat/internal/logging"
	"github.com/zhouzirui/fsy-chat/internal/stream"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fsy-chat",
		Short: "Terminal client for the fsy-chat backend",
		Long: `Interactive terminal client for a streaming chat backend.

Lines are sent to the active session; replies stream in as they are generated.
Type /help for the list of commands.`,
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().String("base-url", "", "Backend API base URL (overrides FSY_API_BASE_URL)")
	rootCmd.Flags().String("transport", "", "Push stream transport: sse or ws (overrides FSY_STREAM_TRANSPORT)")
	rootCmd.Flags().Duration("timeout", 0, "REST request timeout (overrides FSY_REQUEST_TIMEOUT)")
	rootCmd.Flags().String("category", "", "Document category for a new session")
	rootCmd.Flags().String("session", "", "Open an existing session instead of creating one")
	rootCmd.Flags().String("log-level", "", "Log level (overrides LOG_LEVEL)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rest := backend.NewClient(cfg.Client.BaseURL,
		backend.WithHTTPClient(&http.Client{Timeout: cfg.Client.RequestTimeout}),
		backend.WithSuccessStatus(cfg.Client.SuccessStatus),
	)
	out := cmd.OutOrStdout()
	p := newPrinter(out)
	client := chatclient.New(newDialer(cfg.Client), rest, chatclient.WithObserver(p.Observe))
	defer client.Close()

	r := &repl{ctx: ctx, rest: rest, client: client, printer: p}

	session, _ := cmd.Flags().GetString("session")
	category, _ := cmd.Flags().GetString("category")
	if session != "" {
		err = r.open(session)
	} else {
		err = r.create(category)
	}
	if err != nil {
		return err
	}

	lines := make(chan string)
	go scanLines(cmd.InOrStdin(), lines)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := r.handle(line); quit {
				return nil
			}
		}
	}
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		v, _ := flags.GetString("base-url")
		cfg.Client.BaseURL = strings.TrimRight(v, "/")
	}
	if flags.Changed("transport") {
		v, _ := flags.GetString("transport")
		v = strings.ToLower(v)
		if v != config.TransportSSE && v != config.TransportWebSocket {
			return errors.Errorf("invalid --transport %q: want %q or %q", v, config.TransportSSE, config.TransportWebSocket)
		}
		cfg.Client.Transport = v
	}
	if flags.Changed("timeout") {
		v, _ := flags.GetDuration("timeout")
		if v <= 0 {
			return errors.Errorf("invalid --timeout %s: must be positive", v)
		}
		cfg.Client.RequestTimeout = v
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	return nil
}

func newDialer(cfg config.ClientConfig) stream.Dialer {
	if cfg.Transport == config.TransportWebSocket {
		return stream.NewWSDialer(cfg.BaseURL)
	}
	return stream.NewSSEDialer(cfg.BaseURL, nil)
}

func scanLines(in io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("failed to read input")
	}
}

// repl runs one command or message per input line.
type repl struct {
	ctx     context.Context
	rest    *backend.Client
	client  *chatclient.Client
	printer *printer
}

func (r *repl) handle(line string) (quit bool) {
	name, arg, isCommand := parseCommand(line)
	if !isCommand {
		if err := r.client.SendMessage(r.ctx, line); err != nil {
			log.Debug().Err(err).Msg("send failed")
		}
		return false
	}

	var err error
	switch name {
	case "quit", "exit":
		return true
	case "help":
		r.printer.Notice(helpText)
	case "new":
		err = r.create(arg)
	case "open":
		if arg == "" {
			err = errors.New("usage: /open <session-id>")
			break
		}
		err = r.open(arg)
	case "list":
		err = r.list()
	case "delete":
		if arg == "" {
			err = errors.New("usage: /delete <session-id>")
			break
		}
		err = r.rest.DeleteSession(r.ctx, arg)
		if err == nil {
			r.printer.Notice("deleted " + arg)
		}
	case "categories":
		var names []string
		names, err = r.rest.Categories(r.ctx)
		if err == nil {
			r.printer.Notice(strings.Join(names, ", "))
		}
	default:
		err = errors.Errorf("unknown command /%s, try /help", name)
	}
	if err != nil {
		r.printer.Error(err.Error())
	}
	return false
}

func (r *repl) create(category string) error {
	sessionID, err := r.rest.CreateSession(r.ctx, category)
	if err != nil {
		return errors.Wrap(err, "create session")
	}
	return r.client.Connect(r.ctx, sessionID)
}

func (r *repl) open(sessionID string) error {
	if err := r.client.Connect(r.ctx, sessionID); err != nil {
		return err
	}
	return r.client.LoadMessageHistory(r.ctx, sessionID)
}

func (r *repl) list() error {
	sessions, err := r.rest.ListSessions(r.ctx)
	if err != nil {
		return errors.Wrap(err, "list sessions")
	}
	if len(sessions) == 0 {
		r.printer.Notice("no sessions")
		return nil
	}
	active := r.client.SessionID()
	var b strings.Builder
	for _, s := range sessions {
		marker := " "
		if s.SessionID == active {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s  %s\n", marker, s.SessionID, s.Title)
	}
	r.printer.Notice(strings.TrimRight(b.String(), "\n"))
	return nil
}

const helpText = `/new [category]   start a new session
/open <id>        switch to a session and load its history
/list             list sessions
/delete <id>      delete a session
/categories       list document categories
/quit             exit`

// parseCommand splits "/name arg" lines. Other lines are messages.
func parseCommand(line string) (name, arg string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") || len(line) == 1 {
		return "", "", false
	}
	name, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(arg), true
}
