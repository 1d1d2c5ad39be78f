package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/ejournal-workflow-api/internal/config"
	"github.com/ejournal-workflow-api/internal/models"
	"github.com/ejournal-workflow-api/internal/repository"
	"github.com/ejournal-workflow-api/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Items claimed longer ago than this are assumed to belong to a dead worker
const staleClaimAfter = 10 * time.Minute

// notificationService is the concrete implementation of NotificationService
type notificationService struct {
	runner    repository.TxRunner
	authz     Authorizer
	transport transport.Transport
	cfg       config.NotifyConfig
	log       zerolog.Logger
	now       func() time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	done      chan struct{}
	mu        sync.Mutex
	// Semaphore: buffered channel to limit concurrent deliveries
	sem chan struct{}
}

// newNotificationService creates the dispatcher with a worker pool of cfg.Workers
func newNotificationService(runner repository.TxRunner, authz Authorizer, t transport.Transport, cfg config.NotifyConfig, log zerolog.Logger) *notificationService {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}

	log.Info().
		Int("workers", workers).
		Str("transport", t.Name()).
		Msg("Initializing notification dispatcher")

	return &notificationService{
		runner:    runner,
		authz:     authz,
		transport: t,
		cfg:       cfg,
		log:       log.With().Str("service", "notification").Logger(),
		now:       time.Now,
		sem:       make(chan struct{}, workers),
	}
}

// Enqueue writes a pending outbox item with the caller's repositories so it
// commits together with the transition that caused it
func (s *notificationService) Enqueue(ctx context.Context, repos *repository.Repositories, req models.NotificationRequest) (*models.OutboxItem, error) {
	return s.enqueue(ctx, repos, req, nil)
}

func (s *notificationService) enqueue(ctx context.Context, repos *repository.Repositories, req models.NotificationRequest, parentID *string) (*models.OutboxItem, error) {
	audience := req.Audience
	if audience == "" {
		audience = models.AudienceRecipient
	}
	if audience == models.AudienceRecipient && req.Recipient == "" {
		return nil, fmt.Errorf("enqueue %s: recipient is required", req.EventType)
	}

	now := s.now()
	item := &models.OutboxItem{
		ID:             uuid.NewString(),
		ParentID:       parentID,
		EventType:      req.EventType,
		Audience:       audience,
		Recipient:      req.Recipient,
		UserID:         req.UserID,
		Subject:        req.Subject,
		Body:           req.Body,
		Payload:        req.Payload,
		IdempotencyKey: req.IdempotencyKey,
		Status:         models.OutboxPending,
		NextAttemptAt:  now,
		CreatedAt:      now,
	}
	if err := repos.Outbox.Enqueue(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// StartProcessor starts the background dispatcher loop
func (s *notificationService) StartProcessor(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()
	defer close(done)

	s.log.Info().Dur("poll_interval", s.cfg.PollInterval).Msg("Notification processor started")

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("Notification processor stopping")
			return
		case <-ticker.C:
			s.recoverStale(s.ctx)
			s.dispatchDue(s.ctx)
		}
	}
}

// StopProcessor stops the loop and waits for in-flight deliveries
func (s *notificationService) StopProcessor() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	// The loop may still be handing items to workers; wait for it before wg
	<-s.done
	s.wg.Wait()
	s.running = false
	s.log.Info().Msg("Notification processor stopped")
}

func (s *notificationService) recoverStale(ctx context.Context) {
	n, err := s.runner.Repos().Outbox.RecoverStale(ctx, s.now().Add(-staleClaimAfter))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to recover stale notifications")
		return
	}
	if n > 0 {
		s.log.Warn().Int("count", n).Msg("Recovered stale notification claims")
	}
}

// dispatchDue hands every due item to the worker pool
func (s *notificationService) dispatchDue(ctx context.Context) {
	items, err := s.runner.Repos().Outbox.GetDue(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to get due notifications")
		return
	}

	for _, item := range items {
		// Acquire semaphore slot - blocks if all workers are busy (backpressure)
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		claimed, err := s.runner.Repos().Outbox.MarkProcessing(ctx, item.ID, s.now())
		if err != nil || !claimed {
			<-s.sem
			continue // Another worker already picked it up
		}

		s.wg.Add(1)
		go func(it *models.OutboxItem) {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.handle(ctx, it)
		}(item)
	}
}

// ProcessDue claims and handles due items on the calling goroutine until none remain
func (s *notificationService) ProcessDue(ctx context.Context) (int, error) {
	handled := 0
	for {
		items, err := s.runner.Repos().Outbox.GetDue(ctx, s.now(), s.cfg.BatchSize)
		if err != nil {
			return handled, err
		}
		progressed := false
		for _, item := range items {
			claimed, err := s.runner.Repos().Outbox.MarkProcessing(ctx, item.ID, s.now())
			if err != nil {
				return handled, err
			}
			if !claimed {
				continue
			}
			s.handle(ctx, item)
			handled++
			progressed = true
		}
		if !progressed {
			return handled, nil
		}
	}
}

// handle runs one claimed item: editor fan-out or a delivery attempt followed
// by the retry policy. Outcome writes survive shutdown so a claimed item is
// never left in processing.
func (s *notificationService) handle(ctx context.Context, item *models.OutboxItem) {
	bookkeeping := context.WithoutCancel(ctx)
	log := s.log.With().
		Str("outbox_id", item.ID).
		Str("event_type", item.EventType).
		Logger()

	// Panic recovery - a bad item must not take the dispatcher down
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Notification delivery panicked - recovered")
			s.retryOrFail(bookkeeping, item, fmt.Errorf("panic: %v", r), log)
		}
	}()

	if item.Audience == models.AudienceEditors {
		if err := s.fanOut(ctx, item); err != nil {
			log.Error().Err(err).Msg("Editor fan-out failed")
			s.retryOrFail(bookkeeping, item, err, log)
		}
		return
	}

	outcome, err := s.Deliver(ctx, item)
	if err != nil {
		s.retryOrFail(bookkeeping, item, err, log)
		return
	}

	status := models.OutboxSent
	lastError := ""
	if outcome.Status == models.DeliverySkipped {
		status = models.OutboxSkipped
		lastError = "skipped: " + outcome.Reason
	}
	if err := s.runner.Repos().Outbox.Complete(bookkeeping, item.ID, status, lastError, s.now()); err != nil {
		log.Error().Err(err).Msg("Failed to complete notification")
		return
	}

	log.Info().
		Str("outcome", string(outcome.Status)).
		Str("reason", outcome.Reason).
		Str("to", item.Recipient).
		Str("message_id", outcome.MessageID).
		Msg("Notification handled")
}

// Deliver performs one delivery attempt: idempotency check, record
// creation, transport send, record update
func (s *notificationService) Deliver(ctx context.Context, item *models.OutboxItem) (models.DeliveryOutcome, error) {
	repos := s.runner.Repos()

	if item.IdempotencyKey != "" {
		sent, err := repos.Notification.HasSent(ctx, item.EventType, item.IdempotencyKey)
		if err != nil {
			return models.DeliveryOutcome{Status: models.DeliveryFailed}, err
		}
		if sent {
			return models.DeliveryOutcome{Status: models.DeliverySkipped, Reason: models.SkipReasonIdempotent}, nil
		}
	}

	now := s.now()
	n := &models.Notification{
		ID:             uuid.NewString(),
		OutboxID:       item.ID,
		UserID:         item.UserID,
		EventType:      item.EventType,
		Payload:        item.Payload,
		Status:         models.RecordQueued,
		IdempotencyKey: item.IdempotencyKey,
		CreatedAt:      now,
	}
	emailLog := &models.EmailLog{
		ID:             uuid.NewString(),
		NotificationID: n.ID,
		ToEmail:        item.Recipient,
		Subject:        item.Subject,
		Body:           item.Body,
		Status:         models.RecordQueued,
		CreatedAt:      now,
	}
	err := s.runner.WithTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		if err := repos.Notification.CreateNotification(ctx, n); err != nil {
			return err
		}
		return repos.Notification.CreateEmailLog(ctx, emailLog)
	})
	if err != nil {
		return models.DeliveryOutcome{Status: models.DeliveryFailed}, err
	}

	messageID, sendErr := s.transport.Send(ctx, item.Recipient, item.Subject, item.Body)
	ctx = context.WithoutCancel(ctx)
	if sendErr != nil {
		if !apperrors.Is(sendErr, apperrors.KindTransport) {
			sendErr = &apperrors.TransportError{Transport: s.transport.Name(), Err: sendErr}
		}
		if err := repos.Notification.MarkFailed(ctx, n.ID, emailLog.ID, sendErr.Error()); err != nil {
			s.log.Error().Err(err).Str("notification_id", n.ID).Msg("Failed to mark notification failed")
		}
		return models.DeliveryOutcome{Status: models.DeliveryFailed, NotificationID: n.ID}, sendErr
	}

	// The email is out; a retry would send it twice
	if err := repos.Notification.MarkSent(ctx, n.ID, emailLog.ID, messageID, s.now()); err != nil {
		s.log.Warn().
			Err(err).
			Str("notification_id", n.ID).
			Str("message_id", messageID).
			Msg("Notification sent but its record could not be updated")
	}
	return models.DeliveryOutcome{Status: models.DeliverySent, NotificationID: n.ID, MessageID: messageID}, nil
}

// retryOrFail reschedules the item after the fixed backoff, or leaves it
// permanently failed once the attempt budget is spent
func (s *notificationService) retryOrFail(ctx context.Context, item *models.OutboxItem, cause error, log zerolog.Logger) {
	attempts := item.Attempts + 1
	outbox := s.runner.Repos().Outbox

	if attempts < s.cfg.MaxAttempts {
		next := s.now().Add(s.cfg.RetryBackoff)
		if err := outbox.Reschedule(ctx, item.ID, attempts, next, cause.Error()); err != nil {
			log.Error().Err(err).Msg("Failed to reschedule notification")
			return
		}
		log.Warn().
			Err(cause).
			Int("attempt", attempts).
			Time("next_attempt_at", next).
			Str("outcome", "retry_scheduled").
			Msg("Notification delivery failed")
		return
	}

	if err := outbox.Fail(ctx, item.ID, attempts, cause.Error(), s.now()); err != nil {
		log.Error().Err(err).Msg("Failed to mark notification failed")
		return
	}
	log.Error().
		Err(cause).
		Int("attempts", attempts).
		Str("outcome", string(models.DeliveryFailed)).
		Msg("Notification permanently failed")
}

// fanOut expands an editors-audience item into one child per currently
// approved editor
func (s *notificationService) fanOut(ctx context.Context, parent *models.OutboxItem) error {
	emails, err := s.authz.ApprovedEditorEmails(ctx)
	if err != nil {
		return err
	}

	return s.runner.WithTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		if len(emails) == 0 {
			return repos.Outbox.Complete(ctx, parent.ID, models.OutboxSkipped, "skipped: no approved editors", s.now())
		}
		for _, email := range emails {
			key := ""
			if parent.IdempotencyKey != "" {
				key = parent.IdempotencyKey + ":" + email
			}
			child, err := s.enqueue(ctx, repos, models.NotificationRequest{
				EventType:      parent.EventType,
				Recipient:      email,
				Subject:        parent.Subject,
				Body:           parent.Body,
				Payload:        parent.Payload,
				IdempotencyKey: key,
			}, &parent.ID)
			if err != nil {
				return err
			}
			s.log.Debug().Str("outbox_id", child.ID).Str("parent_id", parent.ID).Str("to", email).Msg("Editor notification queued")
		}
		return repos.Outbox.Complete(ctx, parent.ID, models.OutboxFannedOut, "", s.now())
	})
}

// ListFailed returns permanently failed items, newest first
func (s *notificationService) ListFailed(ctx context.Context, limit int) ([]*models.OutboxItem, error) {
	return s.runner.Repos().Outbox.ListFailed(ctx, limit)
}

// Requeue resets a failed item to pending with a fresh attempt budget
func (s *notificationService) Requeue(ctx context.Context, id string) error {
	ok, err := s.runner.Repos().Outbox.Requeue(ctx, id, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewNotFound("failed notification", id)
	}
	s.log.Info().Str("outbox_id", id).Msg("Notification requeued")
	return nil
}
