package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/mtbar/concerts/internal/engine"
)

// parseCommand splits "/cmd@bot args" into the lowercased command name and the raw argument text
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	head, args := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		head, args = text[:i], text[i:]
	}
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(strings.TrimPrefix(head, "/")), strings.TrimSpace(args)
}

// handleCommand dispatches a slash command
func (l *Listener) handleCommand(ctx context.Context, chatID int64, text string) (engine.Reply, error) {
	command, args := parseCommand(text)

	l.logger.InfoContext(ctx, "Handling command",
		slog.Int64("chat_id", chatID),
		slog.String("command", command),
	)

	switch command {
	case "start":
		return l.text("start"), nil
	case "help":
		return l.text("help"), nil
	case "new":
		return l.engine.CreateEvent(ctx, chatID, args)
	case "list":
		return l.engine.List(ctx)
	case "digest":
		return l.handleDigestCommand(ctx)
	case "subscribe":
		if err := l.subscribers.AddSubscriber(ctx, chatID); err != nil {
			return engine.Reply{}, fmt.Errorf("failed to subscribe chat: %w", err)
		}
		return l.text("subscribed"), nil
	case "status", "select", "edit", "publish", "cancel":
		return l.handleIDCommand(ctx, chatID, command, args)
	}

	return l.text("help"), nil
}

// handleIDCommand runs the commands taking an event number
func (l *Listener) handleIDCommand(ctx context.Context, chatID int64, command, args string) (engine.Reply, error) {
	if args == "" {
		return engine.Reply{Key: "id_usage", Text: l.tr.T("id_usage", map[string]any{"Command": command})}, nil
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(strings.Fields(args)[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return l.text("invalid_id"), nil
	}

	switch command {
	case "status":
		return l.engine.Status(ctx, id)
	case "select":
		return l.engine.Select(ctx, chatID, id)
	case "edit":
		return l.engine.EditMenu(ctx, id)
	case "publish":
		return l.engine.Publish(ctx, id, false)
	default:
		return l.engine.Cancel(ctx, id)
	}
}

func (l *Listener) handleDigestCommand(ctx context.Context) (engine.Reply, error) {
	text, err := l.digest.Text(ctx)
	if err != nil {
		return engine.Reply{}, fmt.Errorf("failed to build digest: %w", err)
	}
	return engine.Reply{Key: "digest", Text: text}, nil
}

func (l *Listener) text(key string) engine.Reply {
	return engine.Reply{Key: key, Text: l.tr.T(key, nil)}
}
