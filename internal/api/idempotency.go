package api

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/ejournal-workflow-api/internal/auth"
	"github.com/ejournal-workflow-api/internal/models"
	"github.com/ejournal-workflow-api/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// Keys longer than this are rejected
	maxIdempotencyKeyLength = 255
	// A reservation older than this belongs to a request that died mid-flight
	staleReservationAfter = 5 * time.Minute
)

// captureWriter tees the response body so it can be stored for replay
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotencyMiddleware replays the stored response for a repeated
// Idempotency-Key from the same actor instead of running the action again.
// The key is reserved before the handler runs, so a concurrent duplicate gets
// a conflict rather than a second execution.
func idempotencyMiddleware(replays repository.ReplayRepository, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Idempotency-Key")
		if key == "" || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			respondError(c, log, apperrors.Field("Idempotency-Key", "key is too long"))
			return
		}

		ctx := c.Request.Context()
		actor := auth.ActorFrom(c)
		path := c.Request.URL.Path

		stored, err := replays.Get(ctx, actor.UserID, key)
		if err != nil {
			respondError(c, log, err)
			return
		}
		if stored != nil && !stored.InProgress() {
			replayStored(c, log, stored, key)
			return
		}

		now := time.Now()
		reserved, err := replays.Reserve(ctx, &models.RequestReplay{
			ActorID:   actor.UserID,
			Key:       key,
			Method:    c.Request.Method,
			Path:      path,
			CreatedAt: now,
		}, now.Add(-staleReservationAfter))
		if err != nil {
			respondError(c, log, err)
			return
		}
		if !reserved {
			// The holder may have finished between Get and Reserve
			stored, err := replays.Get(ctx, actor.UserID, key)
			if err != nil {
				respondError(c, log, err)
				return
			}
			if stored != nil && !stored.InProgress() {
				replayStored(c, log, stored, key)
				return
			}
			respondError(c, log, apperrors.NewConflict("request with Idempotency-Key %q is still in progress", key))
			return
		}

		writer := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		// The outcome is recorded even when the client has gone away
		ctx = context.WithoutCancel(ctx)

		// Server errors are not final; let the client retry them
		status := writer.Status()
		if status >= http.StatusInternalServerError {
			if err := replays.Release(ctx, actor.UserID, key); err != nil {
				log.Error().Err(err).Str("key", key).Msg("Failed to release idempotency key")
			}
			return
		}
		if err := replays.Save(ctx, &models.RequestReplay{
			ActorID:    actor.UserID,
			Key:        key,
			Method:     c.Request.Method,
			Path:       path,
			StatusCode: status,
			Body:       writer.body.Bytes(),
			CreatedAt:  now,
		}); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Failed to store idempotent response")
		}
	}
}

func replayStored(c *gin.Context, log zerolog.Logger, stored *models.RequestReplay, key string) {
	if stored.Method != c.Request.Method || stored.Path != c.Request.URL.Path {
		respondError(c, log, apperrors.NewConflict("Idempotency-Key %q was already used for %s %s", key, stored.Method, stored.Path))
		return
	}
	log.Debug().Str("key", key).Str("path", stored.Path).Msg("Replaying stored response")
	c.Header("Idempotent-Replayed", "true")
	c.Data(stored.StatusCode, "application/json; charset=utf-8", stored.Body)
	c.Abort()
}
