package transport

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Log writes emails to the logger instead of sending them
type Log struct {
	log zerolog.Logger
}

// NewLog creates a logging transport for development
func NewLog(log zerolog.Logger) *Log {
	return &Log{log: log.With().Str("component", "mail").Logger()}
}

func (t *Log) Name() string { return "log" }

func (t *Log) Send(ctx context.Context, to, subject, body string) (string, error) {
	id := "log-" + uuid.NewString()
	t.log.Info().
		Str("message_id", id).
		Str("to", to).
		Str("subject", subject).
		Int("body_bytes", len(body)).
		Msg("Email not sent (log transport)")
	return id, nil
}
