package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nats-io/nats.go"
	"github.com/nmarkou/crewd/internal/config"
	"github.com/nmarkou/crewd/internal/natsbus"
	"github.com/nmarkou/crewd/internal/store"
	"github.com/nmarkou/crewd/internal/team"
)

const maxMessageLen = 4096

// Sender is the outbound slice of the Telegram API the notifier uses.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Notifier turns recovery events from the bus into Telegram alerts. It is
// send-only; nothing is read back from the chat.
type Notifier struct {
	sender Sender
	chatID int64
}

func New(cfg config.TelegramConfig) (*Notifier, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Notifier{sender: bot, chatID: cfg.ChatID}, nil
}

// Start subscribes to recovery events and alerts on each one until the
// context ends.
func (n *Notifier) Start(ctx context.Context, nc *natsbus.Client) error {
	sub, err := nc.Subscribe(natsbus.TopicEventsRecovery, func(msg *nats.Msg) {
		var ev team.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Warn("malformed recovery event", "error", err)
			return
		}
		if err := n.send(ctx, FormatEvent(ev)); err != nil {
			slog.Error("send recovery alert failed", "team", ev.TeamID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe recovery events: %w", err)
	}

	<-ctx.Done()
	_ = sub.Unsubscribe()
	return nil
}

func (n *Notifier) send(ctx context.Context, text string) error {
	for _, chunk := range chunkMessage(text, maxMessageLen) {
		if _, err := n.sender.SendMessage(ctx, tu.Message(tu.ID(n.chatID), chunk)); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

// FormatEvent renders a recovery event as a human-readable alert.
func FormatEvent(ev team.Event) string {
	var b strings.Builder

	var rec store.RecoveryEvent
	payload, _ := json.Marshal(ev.Payload)
	hasDetail := json.Unmarshal(payload, &rec) == nil && rec.FailedMemberID != ""

	switch ev.Type {
	case "recovery.replacement":
		fmt.Fprintf(&b, "✅ Recovered: team %s", ev.TeamID)
		if hasDetail {
			fmt.Fprintf(&b, "\nRole %s replaced (was %s)", rec.FailedMemberRole, rec.FailedMemberID)
			if rec.Reason != "" {
				fmt.Fprintf(&b, "\nReason: %s", rec.Reason)
			}
		}
	case "recovery.failed":
		fmt.Fprintf(&b, "🚨 Recovery failed: team %s", ev.TeamID)
		if hasDetail {
			fmt.Fprintf(&b, "\nMember %s (%s)", rec.FailedMemberID, rec.FailedMemberRole)
			if rec.Reason != "" {
				fmt.Fprintf(&b, "\nReason: %s", rec.Reason)
			}
		}
	default:
		fmt.Fprintf(&b, "Recovery event %s on team %s", ev.Type, ev.TeamID)
	}
	fmt.Fprintf(&b, "\nAt: %s", ev.Timestamp.Format("2006-01-02 15:04:05 UTC"))
	return b.String()
}
