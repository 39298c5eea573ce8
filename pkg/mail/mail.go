package mail

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/afterschool-roster-api/pkg/config"
)

// Drivers accepted by MAIL_DRIVER.
const (
	DriverLog      = "log"
	DriverSendGrid = "sendgrid"
)

// Message is a single outbound email.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a message. Implementations do not retry.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender selects the delivery driver from configuration.
func NewSender(cfg config.MailConfig, logger *zap.Logger) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverLog:
		return NewLogSender(logger), nil
	case DriverSendGrid:
		if cfg.SendGridAPIKey == "" {
			return nil, fmt.Errorf("mail driver sendgrid requires SENDGRID_API_KEY")
		}
		return NewSendGridSender(cfg.SendGridAPIKey, cfg.FromName, cfg.FromAddress), nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}

// LogSender writes messages to the application log instead of delivering them.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}
	s.logger.Info("mail not delivered (log driver)",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("html_bytes", len(msg.HTML)),
	)
	return nil
}
