// Package transport delivers rendered notification emails. The dispatcher only
// sees the Transport interface; which implementation runs is chosen by
// MAIL_TRANSPORT at startup.
package transport

import (
	"context"
	"fmt"

	"github.com/ejournal-workflow-api/internal/config"
	"github.com/rs/zerolog"
)

// Transport sends one email and returns the provider message ID, if any
type Transport interface {
	Name() string
	Send(ctx context.Context, to, subject, body string) (messageID string, err error)
}

// New selects the transport configured in cfg
func New(ctx context.Context, cfg config.MailConfig, log zerolog.Logger) (Transport, error) {
	switch cfg.Transport {
	case "smtp":
		return NewSMTP(cfg), nil
	case "ses":
		return NewSES(ctx, cfg)
	case "log", "":
		return NewLog(log), nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}
}
