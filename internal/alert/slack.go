package alert

import (
	"context"
	"fmt"
	"sort"
	"time"

	pkghttp "basket_swap/pkg/http"
)

var slackColors = map[AlertLevel]string{
	Info:     "#36a64f",
	Warning:  "#ffcc00",
	Error:    "#ff0000",
	Critical: "#8b0000",
}

// SlackChannel posts alerts to an incoming webhook as a single attachment
type SlackChannel struct {
	webhookURL string
	client     *pkghttp.Client
}

type slackMessage struct {
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color   string       `json:"color"`
	Pretext string       `json:"pretext"`
	Text    string       `json:"text"`
	Fields  []slackField `json:"fields,omitempty"`
	Ts      int64        `json:"ts"`
	Footer  string       `json:"footer"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func NewSlackChannel(webhookURL string) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		client:     pkghttp.NewClient(webhookURL, 5*time.Second, nil, pkghttp.WithName("slack"), pkghttp.WithMaxRetries(1)),
	}
}

func (s *SlackChannel) Name() string {
	return "slack"
}

func (s *SlackChannel) Send(ctx context.Context, alert AlertPayload) error {
	if s.webhookURL == "" {
		return nil
	}

	color, ok := slackColors[alert.Level]
	if !ok {
		color = slackColors[Info]
	}

	att := slackAttachment{
		Color:   color,
		Pretext: fmt.Sprintf("[%s] %s", alert.Level, alert.Title),
		Text:    alert.Message,
		Ts:      alert.Timestamp.Unix(),
		Footer:  "Basket Swap",
	}
	for _, k := range sortedKeys(alert.Fields) {
		att.Fields = append(att.Fields, slackField{Title: k, Value: alert.Fields[k], Short: true})
	}

	if _, err := s.client.Post(ctx, "", slackMessage{Attachments: []slackAttachment{att}}); err != nil {
		return fmt.Errorf("slack webhook failed: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
