// wirechat is the terminal chat client. It connects to a WireChat server,
// streams assistant output as it arrives and exposes the session operations
// as slash commands.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/wirechat/wirechat/internal/client"
	"github.com/wirechat/wirechat/internal/config"
	"github.com/wirechat/wirechat/internal/domain/chat"
	"github.com/wirechat/wirechat/internal/logger"
	"github.com/wirechat/wirechat/internal/transport"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// Logs go to stderr so they never interleave with rendered output.
	log, logCloser := logger.NewWithWriter(os.Stderr, cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	r := newRenderer(term.IsTerminal(int(os.Stdin.Fd())))

	c, err := client.New(cfg.Client, log, client.WithOnChange(r.onChange))
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		log.Warn("initial connect failed, retrying in background", "error", err)
	}
	if err := c.ReadSystemPrompt(ctx); err != nil {
		log.Debug("system prompt read failed", "error", err)
	}

	r.banner(cfg.Client.URL)
	return repl(ctx, c, r, log)
}

func repl(ctx context.Context, c *client.Client, r *renderer, log *slog.Logger) error {
	scanner := bufio.NewScanner(os.Stdin)
	r.prompt()

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":

		case line == "/quit", line == "/exit":
			return nil

		case line == "/new":
			c.NewConversation()

		case line == "/list":
			if err := c.RefreshDirectory(ctx); err != nil {
				log.Error("list failed", "error", err)
			}

		case strings.HasPrefix(line, "/load "):
			id, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "/load ")), 10, 64)
			if err != nil {
				fmt.Println("usage: /load <id>")
				break
			}
			if err := c.Load(ctx, id); err != nil {
				log.Error("load failed", "error", err)
			}

		case strings.HasPrefix(line, "/fork "):
			seq, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/fork ")))
			if err != nil {
				fmt.Println("usage: /fork <sequence>")
				break
			}
			if err := c.Fork(ctx, seq); err != nil {
				log.Error("fork failed", "error", err)
			}

		case line == "/prompt":
			if err := c.ReadSystemPrompt(ctx); err != nil {
				log.Error("prompt read failed", "error", err)
			}

		case strings.HasPrefix(line, "/prompt "):
			if err := c.WriteSystemPrompt(ctx, strings.TrimPrefix(line, "/prompt ")); err != nil {
				log.Error("prompt write failed", "error", err)
			}

		case strings.HasPrefix(line, "/"):
			fmt.Println("commands: /new /list /load <id> /fork <sequence> /prompt [text] /quit")

		default:
			if err := c.SubmitTurn(ctx, line); err != nil {
				log.Error("submit failed", "error", err)
			}
		}
		r.prompt()
	}
	return scanner.Err()
}

// renderer turns snapshots into terminal output: streamed assistant text,
// status transitions and directory listings.
type renderer struct {
	interactive bool

	mu         sync.Mutex
	status     transport.Status
	lastSeq    int
	rendered   int
	dirVersion int
}

func newRenderer(interactive bool) *renderer {
	return &renderer{interactive: interactive, lastSeq: -1, status: transport.StatusDisconnected}
}

func (r *renderer) banner(url string) {
	fmt.Printf("wirechat connected to %s\n", url)
	fmt.Println("type a message, or /new /list /load <id> /fork <sequence> /prompt [text] /quit")
}

func (r *renderer) prompt() {
	if r.interactive {
		fmt.Print("> ")
	}
}

func (r *renderer) onChange(s client.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.Status != r.status {
		r.status = s.Status
		fmt.Printf("\n[%s]", s.Status)
		if s.Err != nil {
			fmt.Printf(" %v", s.Err)
		}
		fmt.Println()
	}

	if t := trailingAssistant(s.Conversation); t != nil {
		if t.Sequence != r.lastSeq {
			r.lastSeq = t.Sequence
			r.rendered = 0
			fmt.Println()
		}
		if len(t.Content) > r.rendered {
			fmt.Print(t.Content[r.rendered:])
			r.rendered = len(t.Content)
		}
	}

	if len(s.Directory) != r.dirVersion {
		r.dirVersion = len(s.Directory)
		fmt.Println("\nconversations:")
		for _, conv := range s.Directory {
			id := int64(0)
			if conv.ID != nil {
				id = *conv.ID
			}
			fmt.Printf("  %4d  %s  (%d messages)\n", id, conv.Name, len(conv.Messages))
		}
	}
}

func trailingAssistant(conv chat.Conversation) *chat.Message {
	t := conv.Trailing()
	if t == nil || t.Role != chat.RoleAssistant {
		return nil
	}
	return t
}
