package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"ideaflow/backend/internal/logging"
	"ideaflow/backend/internal/repository"
	"ideaflow/backend/pkg/models"
)

// Channel names accepted in DispatcherConfig.Channels.
const (
	ChannelLog     = "log"
	ChannelWebhook = "webhook"
	ChannelEmail   = "email"
)

// DispatchResult records the outcome of one intent on one channel.
type DispatchResult struct {
	RecipientUserID string                  `json:"recipient_user_id"`
	Kind            models.NotificationKind `json:"kind"`
	Channel         string                  `json:"channel"`
	Success         bool                    `json:"success"`
	Error           string                  `json:"error,omitempty"`
}

// SMTPConfig addresses the outgoing mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// DispatcherConfig selects delivery channels.
type DispatcherConfig struct {
	Channels   []string
	WebhookURL string
	SMTP       SMTPConfig
	Timeout    time.Duration
}

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Dispatcher delivers notification intents to the configured channels.
type Dispatcher struct {
	cfg        DispatcherConfig
	directory  repository.DirectoryStore
	logger     *logging.Logger
	httpClient *http.Client
	sendMail   SendMailFunc
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithHTTPClient replaces the webhook client.
func WithHTTPClient(c *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.httpClient = c }
}

// WithSendMail replaces smtp.SendMail.
func WithSendMail(fn SendMailFunc) DispatcherOption {
	return func(d *Dispatcher) { d.sendMail = fn }
}

// NewDispatcher creates a new Dispatcher. With no channels configured it
// falls back to the log channel.
func NewDispatcher(cfg DispatcherConfig, directory repository.DirectoryStore, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = []string{ChannelLog}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	d := &Dispatcher{
		cfg:        cfg,
		directory:  directory,
		logger:     logger,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		sendMail:   smtp.SendMail,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends every intent to every channel. Failures are logged and
// reported in the results; they are never returned as errors.
func (d *Dispatcher) Dispatch(ctx context.Context, intents []models.NotificationIntent) []DispatchResult {
	var results []DispatchResult
	for _, intent := range intents {
		for _, channel := range d.cfg.Channels {
			result := DispatchResult{
				RecipientUserID: intent.RecipientUserID,
				Kind:            intent.Kind,
				Channel:         channel,
			}
			if err := d.dispatchToChannel(ctx, channel, intent); err != nil {
				result.Error = err.Error()
				d.logger.Warn("notification delivery failed",
					"channel", channel, "kind", intent.Kind, "recipient", intent.RecipientUserID, "error", err)
			} else {
				result.Success = true
			}
			results = append(results, result)
		}
	}
	return results
}

func (d *Dispatcher) dispatchToChannel(ctx context.Context, channel string, intent models.NotificationIntent) error {
	switch channel {
	case ChannelLog:
		d.logger.Info("notification",
			"kind", intent.Kind,
			"recipient", intent.RecipientUserID,
			"title", intent.Title,
			"idea_id", intent.Payload["idea_id"])
		return nil
	case ChannelWebhook:
		if d.cfg.WebhookURL == "" {
			return fmt.Errorf("no webhook URL configured")
		}
		return d.sendWebhook(ctx, intent)
	case ChannelEmail:
		return d.sendEmail(ctx, intent)
	default:
		return fmt.Errorf("unknown channel type: %s", channel)
	}
}

func (d *Dispatcher) sendWebhook(ctx context.Context, intent models.NotificationIntent) error {
	requestBody, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL, bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook rejected notification: status code %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) sendEmail(ctx context.Context, intent models.NotificationIntent) error {
	if d.cfg.SMTP.Host == "" {
		return fmt.Errorf("no SMTP host configured")
	}
	user, err := d.directory.GetUser(ctx, intent.RecipientUserID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}
	if user.Email == "" {
		return fmt.Errorf("no email configured for %s", intent.RecipientUserID)
	}

	port := d.cfg.SMTP.Port
	if port == 0 {
		port = 25
	}
	addr := net.JoinHostPort(d.cfg.SMTP.Host, strconv.Itoa(port))
	var auth smtp.Auth
	if d.cfg.SMTP.Username != "" {
		auth = smtp.PlainAuth("", d.cfg.SMTP.Username, d.cfg.SMTP.Password, d.cfg.SMTP.Host)
	}
	msg := buildEmail(d.cfg.SMTP.From, user.Email, intent)
	if err := d.sendMail(addr, auth, d.cfg.SMTP.From, []string{user.Email}, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func buildEmail(from, to string, intent models.NotificationIntent) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", sanitizeHeader(from))
	fmt.Fprintf(&b, "To: %s\r\n", sanitizeHeader(to))
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(intent.Title))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(intent.Message)
	b.WriteString("\r\n")
	if id := intent.Payload["idea_id"]; id != "" {
		fmt.Fprintf(&b, "\r\nIdea: %s\r\n", id)
	}
	return []byte(b.String())
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
