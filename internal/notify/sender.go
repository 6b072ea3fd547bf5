package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Message is an operator notification.
type Message struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Sender delivers messages to the operator.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Channel() string
}

// NewSender picks the webhook sender when a URL is configured and falls back
// to logging otherwise.
func NewSender(webhookURL string, logger *slog.Logger) Sender {
	if strings.TrimSpace(webhookURL) == "" {
		return NewLogSender(logger)
	}
	return NewWebhookSender(webhookURL, 10*time.Second)
}

// LogSender writes messages to the application log.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "notification", slog.String("title", msg.Title), slog.String("text", msg.Text))
	return nil
}

func (s *LogSender) Channel() string { return "log" }

// WebhookSender posts messages as JSON to an HTTP endpoint.
type WebhookSender struct {
	httpClient *resty.Client
	url        string
}

// webhookError captures an error body returned by the endpoint.
type webhookError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// NewWebhookSender builds a resty-backed webhook sender.
func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	client := resty.New()
	client.
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "homestock-notifier").
		SetTimeout(timeout)
	return &WebhookSender{httpClient: client, url: strings.TrimSpace(url)}
}

func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	apiErr := new(webhookError)
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(msg).
		SetError(apiErr).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("notify: post webhook: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		detail := apiErr.Message
		if detail == "" {
			detail = apiErr.Error
		}
		return fmt.Errorf("notify: webhook status=%d message=%s", resp.StatusCode(), detail)
	}
	return nil
}

func (s *WebhookSender) Channel() string { return "webhook" }

// LowStockMessage renders an alert for delivery.
func LowStockMessage(alert LowStockAlert) Message {
	text := fmt.Sprintf("%s has %d units left (threshold %d).", alert.Name, alert.CurrentStock, alert.Threshold)
	if alert.CurrentStock <= 0 {
		text = fmt.Sprintf("%s is out of stock.", alert.Name)
	}
	return Message{Title: "Low stock: " + alert.Name, Text: text}
}
