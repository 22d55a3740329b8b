package alert

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	pkghttp "basket_swap/pkg/http"
)

const telegramAPI = "https://api.telegram.org"

var telegramIcons = map[AlertLevel]string{
	Info:     "ℹ️",
	Warning:  "⚠️",
	Error:    "❌",
	Critical: "🚨",
}

// TelegramChannel posts alerts through the Bot API. Text is sent as HTML because coin types
// and error messages are full of Markdown metacharacters.
type TelegramChannel struct {
	botToken string
	chatID   string
	client   *pkghttp.Client
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func NewTelegramChannel(botToken, chatID string) *TelegramChannel {
	return newTelegramChannel(telegramAPI, botToken, chatID)
}

func newTelegramChannel(apiBase, botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{
		botToken: botToken,
		chatID:   chatID,
		client:   pkghttp.NewClient(strings.TrimRight(apiBase, "/"), 5*time.Second, nil, pkghttp.WithName("telegram"), pkghttp.WithMaxRetries(1)),
	}
}

func (t *TelegramChannel) Name() string {
	return "telegram"
}

func (t *TelegramChannel) Send(ctx context.Context, alert AlertPayload) error {
	if t.botToken == "" || t.chatID == "" {
		return nil
	}

	msg := telegramMessage{ChatID: t.chatID, Text: formatTelegram(alert), ParseMode: "HTML"}
	if _, err := t.client.Post(ctx, "/bot"+t.botToken+"/sendMessage", msg); err != nil {
		return fmt.Errorf("telegram api failed: %w", err)
	}
	return nil
}

func formatTelegram(alert AlertPayload) string {
	icon, ok := telegramIcons[alert.Level]
	if !ok {
		icon = telegramIcons[Info]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>[%s] %s</b>\n\n%s", icon, alert.Level, html.EscapeString(alert.Title), html.EscapeString(alert.Message))
	if len(alert.Fields) > 0 {
		b.WriteString("\n")
		for _, k := range sortedKeys(alert.Fields) {
			fmt.Fprintf(&b, "\n- <b>%s</b>: <code>%s</code>", html.EscapeString(k), html.EscapeString(alert.Fields[k]))
		}
	}
	return b.String()
}
