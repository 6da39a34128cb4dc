// Package telegram sends run reports to a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/mtzanidakis/storecrew/internal/config"
	"github.com/mtzanidakis/storecrew/internal/pipeline"
)

const maxMessageLen = 4096

type Notifier struct {
	bot    *telego.Bot
	chatID int64
}

// NewNotifier returns a notifier for the configured chat. Extra bot options
// are passed to telego.
func NewNotifier(cfg config.TelegramConfig, opts ...telego.BotOption) (*Notifier, error) {
	var missing []string
	if cfg.Token == "" {
		missing = append(missing, "STORECREW_TELEGRAM_TOKEN")
	}
	if cfg.ChatID == 0 {
		missing = append(missing, "STORECREW_TELEGRAM_CHAT_ID")
	}
	if len(missing) > 0 {
		return nil, &config.ConfigurationError{Section: "telegram", Missing: missing}
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Notifier{bot: bot, chatID: cfg.ChatID}, nil
}

// Notify sends the run summary followed by the final task's output.
func (n *Notifier) Notify(ctx context.Context, report *pipeline.Report) error {
	return n.SendMessage(ctx, FormatReport(report))
}

func (n *Notifier) SendMessage(ctx context.Context, text string) error {
	for _, chunk := range chunkMessage(text, maxMessageLen) {
		msg := tu.Message(tu.ID(n.chatID), chunk)
		if _, err := n.bot.SendMessage(ctx, msg); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

// FormatReport renders a report as plain text.
func FormatReport(r *pipeline.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run %s of %s: %s (%s)\n", r.RunID, r.Pipeline, r.Status, r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	for _, res := range r.Results {
		line := fmt.Sprintf("- %s: %s", res.TaskID, res.Status)
		if res.Attempts > 1 {
			line += fmt.Sprintf(" after %d attempts", res.Attempts)
		}
		if res.BackendIndex > 0 {
			line += fmt.Sprintf(" via fallback %s", res.Backend)
		}
		sb.WriteString(line + "\n")
	}
	if r.Err != nil {
		fmt.Fprintf(&sb, "\nError: %s\n", r.Err.Error())
	}
	if r.Final != nil && r.Final.Succeeded() {
		sb.WriteString("\n" + strings.TrimSpace(r.Final.Raw) + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
