package alerts

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// SlackNotifier posts alerts to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	channel    string
	client     *http.Client
}

// NewSlackNotifier creates a Slack webhook notifier. An empty channel uses the
// webhook's default.
func NewSlackNotifier(webhookURL, channel string) *SlackNotifier {
	return &SlackNotifier{webhookURL: webhookURL, channel: channel, client: newHTTPClient()}
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) Send(ctx context.Context, alert Alert) error {
	body, h, err := encode(slackMessage{
		Channel:     s.channel,
		Attachments: []slackAttachment{attachmentFor(alert, time.Now())},
	}, nil)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	return post(ctx, s.client, "slack", s.webhookURL, body, h)
}

func attachmentFor(alert Alert, now time.Time) slackAttachment {
	att := slackAttachment{
		Color:  levelColor(alert.Level),
		Text:   alert.Message,
		Footer: "omo-quota",
		Ts:     now.Unix(),
		Fields: []slackField{
			{Title: "Provider", Value: alert.Provider, Short: true},
			{Title: "Type", Value: alert.Kind, Short: true},
			{Title: "Strategy", Value: alert.Strategy, Short: true},
		},
	}

	if alert.Level == AlertExpired {
		att.Title = "omo-quota: " + alert.Provider + " reset window passed"
		return att
	}
	att.Title = fmt.Sprintf("omo-quota: %s %s", alert.Provider, alert.Level)
	att.Fields = append(att.Fields,
		slackField{Title: "Used", Value: percent(alert.UsedPct), Short: true},
		slackField{Title: "Remaining", Value: percent(alert.RemainingPct), Short: true},
	)
	return att
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

// levelColor maps severity to the attachment bar color.
func levelColor(level AlertLevel) string {
	switch level {
	case AlertNotice:
		return "#f2c744"
	case AlertWarning:
		return "#ff9900"
	case AlertCritical:
		return "#d50200"
	case AlertExpired:
		return "#439fe0"
	default:
		return "#2eb886"
	}
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}
