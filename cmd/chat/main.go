// Binary chat is an interactive streaming chat client backed by the session
// store.
//
// Usage:
//
//	chat [flags]
//
// Flags:
//
//	-config    path to YAML config file (default: ~/.config/chatstream/config.yaml)
//	-prompt    one-shot prompt (skips interactive mode)
//	-session   session ID to resume
//	-sessions  list recent sessions and exit
//	-export    write the session given by -session to a .md or .html file and exit
//	-v         also log to the console
//
// Ctrl-C while a reply is streaming cancels it and keeps the partial text.
// Ctrl-C at the prompt exits.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"

	"github.com/bitop-dev/chatstream/pkg/ai"
	"github.com/bitop-dev/chatstream/pkg/ai/models"
	"github.com/bitop-dev/chatstream/pkg/ai/providers/openai"
	"github.com/bitop-dev/chatstream/pkg/chat"
	"github.com/bitop-dev/chatstream/pkg/config"
	"github.com/bitop-dev/chatstream/pkg/logging"
	"github.com/bitop-dev/chatstream/pkg/session"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to config file")
	oneShot := flag.String("prompt", "", "one-shot prompt (non-interactive)")
	sessionFlag := flag.String("session", "", "session ID to resume")
	listSessions := flag.Bool("sessions", false, "list recent sessions and exit")
	exportPath := flag.String("export", "", "export -session to a .md or .html file and exit")
	verbose := flag.Bool("v", false, "log to the console as well")
	flag.Parse()

	config.LoadEnv(*configPath)
	cfg, err := config.LoadFileConfig(*configPath)
	if err != nil {
		fatalf("%v", err)
	}

	logOpts := cfg.Log
	if !*verbose {
		logOpts.Console = io.Discard
	}
	logger, logCloser, err := logging.New(logOpts)
	if err != nil {
		fatalf("%v", err)
	}
	defer logCloser.Close()

	store, err := cfg.Database.OpenStore()
	if err != nil {
		fatalf("%v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if *listSessions {
		printSessions(ctx, store, 20)
		return
	}

	if *exportPath != "" {
		if *sessionFlag == "" {
			fatalf("-export requires -session")
		}
		if err := exportSession(ctx, store, *sessionFlag, *exportPath); err != nil {
			fatalf("export: %v", err)
		}
		fmt.Printf("[chat] exported to %s\n", *exportPath)
		return
	}

	ctl := chat.New(chat.Options{
		Providers: ai.NewRegistry(openai.New(openai.Options{Logger: logger})),
		Store:     store,
		Logger:    logger,
	})
	defer ctl.Shutdown()

	c := &client{
		ctl:   ctl,
		store: store,
		cfg:   cfg,
	}
	if *sessionFlag != "" {
		sess, err := store.GetSession(ctx, *sessionFlag)
		if err != nil {
			fatalf("session resume: %v", err)
		}
		c.sess = sess
		fmt.Printf("[chat] resumed session %s %q\n", shortID(sess.ID), sess.Title)
	} else if err := c.newSession(ctx); err != nil {
		fatalf("%v", err)
	}

	// Ctrl-C cancels the reply in flight, or exits when idle.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range sigCh {
			if id := c.inFlight.Load(); id != nil && sig == syscall.SIGINT {
				ctl.CancelChat(*id)
				continue
			}
			ctl.Shutdown()
			fmt.Println()
			os.Exit(130)
		}
	}()

	if *oneShot != "" {
		if !c.send(ctx, *oneShot) {
			os.Exit(1)
		}
		return
	}

	fmt.Printf("[chat] provider=%s model=%s tools=%v\n", cfg.Provider, cfg.Model, cfg.Tools)
	fmt.Println("[chat] type a prompt and press enter. Commands: /new /rename /session /sessions /export /model exit")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch strings.ToLower(cmd) {
		case "exit", "quit":
			return
		case "/new":
			if err := c.newSession(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "new session: %v\n", err)
			}
			continue
		case "/rename":
			if arg == "" {
				fmt.Println("[rename] usage: /rename <title>")
				continue
			}
			if err := store.RenameSession(ctx, c.sess.ID, arg); err != nil {
				fmt.Fprintf(os.Stderr, "rename: %v\n", err)
				continue
			}
			c.sess.Title = arg
			fmt.Printf("[rename] %q\n", arg)
			continue
		case "/session":
			sess, err := store.GetSession(ctx, c.sess.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "session: %v\n", err)
				continue
			}
			fmt.Printf("[session] id=%s  title=%q  updated=%s\n",
				sess.ID, sess.Title, sess.UpdatedAt.Format("2006-01-02 15:04"))
			continue
		case "/sessions":
			printSessions(ctx, store, 10)
			continue
		case "/export":
			out := arg
			if out == "" {
				out = fmt.Sprintf("session-%s.html", shortID(c.sess.ID))
			}
			if err := exportSession(ctx, store, c.sess.ID, out); err != nil {
				fmt.Fprintf(os.Stderr, "export: %v\n", err)
				continue
			}
			fmt.Printf("[export] written to %s\n", out)
			continue
		case "/model":
			info := models.Lookup(cfg.Model)
			if info == nil {
				fmt.Printf("[model] %s (unknown, not in registry)\n", cfg.Model)
			} else {
				fmt.Printf("[model] %s  api=%s  context=%d out=%d vision=%v tools=%v\n",
					info.DisplayName, info.Dialect, info.ContextWindow, info.MaxOutputTokens,
					info.SupportsVision, info.DefaultTools)
			}
			continue
		}

		c.send(ctx, line)
	}
}

// client holds the REPL state.
type client struct {
	ctl   *chat.Controller
	store session.Store
	cfg   *config.FileConfig
	sess  session.Session

	inFlight atomic.Pointer[string]
}

func (c *client) newSession(ctx context.Context) error {
	sess, err := c.store.CreateSession(ctx, "")
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	c.sess = sess
	fmt.Printf("[chat] session %s\n", shortID(sess.ID))
	return nil
}

// history returns the turns sent so far, oldest first. Tool rows and
// failed replies are left out.
func (c *client) history(ctx context.Context) ([]ai.Turn, error) {
	msgs, err := c.store.ListMessages(ctx, c.sess.ID)
	if err != nil {
		return nil, err
	}
	var turns []ai.Turn
	if c.cfg.SystemPrompt != "" {
		turns = append(turns, ai.Turn{Role: ai.RoleSystem, Content: c.cfg.SystemPrompt})
	}
	for _, m := range msgs {
		if m.ContentType != session.ContentText || m.Status != session.StatusSent {
			continue
		}
		turns = append(turns, m.Turn())
	}
	return turns, nil
}

// send persists the user turn, streams the reply and stores it. It reports
// whether the reply completed.
func (c *client) send(ctx context.Context, text string) bool {
	if _, err := c.store.CreateMessage(ctx, session.CreateMessageParams{
		SessionID: c.sess.ID,
		Role:      ai.RoleUser,
		Content:   text,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "save prompt: %v\n", err)
		return false
	}
	turns, err := c.history(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load history: %v\n", err)
		return false
	}

	var (
		reply  strings.Builder
		done   bool
		errMsg string
		inText bool
	)
	// toolRow ends a text run so tool lines start on their own line.
	toolRow := func() {
		if inText {
			fmt.Println()
			inText = false
		}
	}
	id := uuid.NewString()
	c.inFlight.Store(&id)
	c.ctl.Run(ctx, chat.StreamRequest{
		RequestID: id,
		SessionID: c.sess.ID,
		Messages:  turns,
		Config:    c.cfg.ProviderConfig(),
		Tools:     c.cfg.ToolTypes(),
	}, chat.Callbacks{
		OnChunk: func(s string) {
			inText = true
			reply.WriteString(s)
			fmt.Print(s)
		},
		OnToolCallStart: func(rec ai.ToolCallRecord) {
			toolRow()
			fmt.Printf("[tool] %s started\n", rec.Type)
		},
		OnToolCallComplete: func(rec ai.ToolCallRecord) {
			toolRow()
			line := fmt.Sprintf("[tool] %s %s", rec.Type, rec.Status)
			if rec.Query != "" {
				line += ": " + rec.Query
			}
			fmt.Println(line)
		},
		OnDone:  func() { done = true },
		OnError: func(msg string) { errMsg = msg },
	})
	c.inFlight.Store(nil)

	if inText {
		fmt.Println()
	}
	status := session.StatusSent
	switch {
	case errMsg != "":
		status = session.StatusError
		fmt.Fprintf(os.Stderr, "error: %s\n", errMsg)
	case !done:
		fmt.Println("[cancelled]")
	}
	if reply.Len() == 0 && status == session.StatusSent {
		return done
	}
	content := reply.String()
	if content == "" {
		content = errMsg
	}
	if _, err := c.store.CreateMessage(ctx, session.CreateMessageParams{
		SessionID: c.sess.ID,
		Role:      ai.RoleAssistant,
		Content:   content,
		Status:    status,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "save reply: %v\n", err)
	}
	return done
}

func printSessions(ctx context.Context, store session.Store, limit int) {
	list, err := store.ListSessions(ctx, limit, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessions: %v\n", err)
		return
	}
	if len(list) == 0 {
		fmt.Println("[no sessions]")
		return
	}
	for _, s := range list {
		fmt.Printf("%s  %-33s  %s\n", shortID(s.ID), truncate(s.Title, 33), s.UpdatedAt.Format("2006-01-02 15:04"))
	}
}

// exportSession writes HTML for a .html/.htm path and Markdown otherwise.
func exportSession(ctx context.Context, store session.Store, id, path string) error {
	sess, err := store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	msgs, err := store.ListMessages(ctx, id)
	if err != nil {
		return err
	}
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		data = session.ExportHTML(sess, msgs)
	default:
		data = session.ExportMarkdown(sess, msgs)
	}
	return os.WriteFile(path, data, 0o644)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal: "+format+"\n", args...)
	os.Exit(1)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
