package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/ejournal-workflow-api/internal/config"
	mail "github.com/go-mail/mail/v2"
	"github.com/google/uuid"
)

// sender is satisfied by *mail.Dialer
type sender interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTP relays mail directly through an SMTP server
type SMTP struct {
	from   string
	domain string
	dialer sender
}

// NewSMTP creates an SMTP transport using STARTTLS
func NewSMTP(cfg config.MailConfig) *SMTP {
	d := mail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.SMTPHost,
		InsecureSkipVerify: cfg.SkipTLSVerify,
	}
	return newSMTPWithSender(cfg.From, d)
}

func newSMTPWithSender(from string, d sender) *SMTP {
	domain := "localhost"
	if i := strings.LastIndex(from, "@"); i >= 0 {
		domain = strings.TrimRight(from[i+1:], ">")
	}
	return &SMTP{from: from, domain: domain, dialer: d}
}

func (t *SMTP) Name() string { return "smtp" }

// Send delivers a plain-text message. The generated Message-ID is returned
// as the message identifier.
func (t *SMTP) Send(ctx context.Context, to, subject, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &apperrors.TransportError{Transport: t.Name(), Err: err}
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), t.domain)

	m := mail.NewMessage()
	m.SetHeader("From", t.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/plain", body)

	if err := t.dialer.DialAndSend(m); err != nil {
		return "", &apperrors.TransportError{Transport: t.Name(), Err: err}
	}
	return messageID, nil
}
