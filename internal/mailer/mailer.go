// Package mailer delivers the account lifecycle e-mails (welcome and
// farewell) through the SendGrid v3 API.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"golang.org/x/oauth2"
)

const sendPath = "/v3/mail/send"

// Default senders, one per message kind.
const (
	welcomeFrom  = "test@email.com"
	farewellFrom = "taskmanager@email.com"
)

// Config configures a SendGrid notifier.
type Config struct {
	APIKey  string
	BaseURL string // e.g. https://api.sendgrid.com

	// From overrides the per-message default sender when set.
	From string

	// Timeout bounds each send. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// SendGrid sends mail via the SendGrid HTTP API. The API key travels as a
// bearer token on an oauth2 client.
type SendGrid struct {
	client  *http.Client
	baseURL string
	from    string
	logger  *slog.Logger
}

// NewSendGrid builds a SendGrid notifier. ctx is only used to construct
// the HTTP client.
func NewSendGrid(ctx context.Context, cfg Config, logger *slog.Logger) *SendGrid {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.APIKey,
		TokenType:   "Bearer",
	}))
	client.Timeout = cfg.Timeout
	if client.Timeout == 0 {
		client.Timeout = DefaultTimeout
	}

	return &SendGrid{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		from:    cfg.From,
		logger:  logger,
	}
}

// SendWelcome greets a newly registered user.
func (s *SendGrid) SendWelcome(ctx context.Context, email, name string) error {
	return s.send(ctx, s.sender(welcomeFrom), email, name, welcomeMessage(name))
}

// SendFarewell is sent after the user has deleted their account.
func (s *SendGrid) SendFarewell(ctx context.Context, email, name string) error {
	return s.send(ctx, s.sender(farewellFrom), email, name, farewellMessage(name))
}

func (s *SendGrid) sender(fallback string) string {
	if s.from != "" {
		return s.from
	}
	return fallback
}

func (s *SendGrid) send(ctx context.Context, from, toEmail, toName string, msg message) error {
	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(toName, toEmail))

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail("Task Manager", from))
	m.Subject = msg.Subject
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/plain", msg.Text))
	body := mail.GetRequestBody(m)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+sendPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mailer: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("mailer: sending %q: %w", msg.Subject, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mailer: sendgrid returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	s.logger.Info("email sent",
		slog.String("subject", msg.Subject),
		slog.Int("status", resp.StatusCode),
	)
	return nil
}

// LogOnly records what would have been sent. It is used when no API key
// is configured.
type LogOnly struct {
	logger *slog.Logger
}

func NewLogOnly(logger *slog.Logger) *LogOnly {
	return &LogOnly{logger: logger}
}

func (l *LogOnly) SendWelcome(_ context.Context, email, name string) error {
	l.log(email, welcomeMessage(name))
	return nil
}

func (l *LogOnly) SendFarewell(_ context.Context, email, name string) error {
	l.log(email, farewellMessage(name))
	return nil
}

func (l *LogOnly) log(email string, msg message) {
	l.logger.Info("email not sent: no provider configured",
		slog.String("to", email),
		slog.String("subject", msg.Subject),
	)
}
