package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ejournal-workflow-api/internal/auth"
	"github.com/ejournal-workflow-api/internal/config"
	"github.com/ejournal-workflow-api/internal/mocks"
	"github.com/ejournal-workflow-api/internal/models"
	"github.com/ejournal-workflow-api/internal/repository"
	"github.com/ejournal-workflow-api/internal/service"
	"github.com/ejournal-workflow-api/internal/validation"
	"github.com/ejournal-workflow-api/internal/workflow"
	"github.com/rs/zerolog"
)

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }

func newServices(store *mocks.Store) *service.Services {
	cfg := &config.Config{
		Notify: config.NotifyConfig{
			Workers:      4,
			MaxAttempts:  5,
			RetryBackoff: time.Minute,
			PollInterval: time.Second,
			BatchSize:    50,
		},
		Storage: config.StorageConfig{MaxUploadSize: 1 << 20},
	}
	return service.NewServices(store, auth.NewAuthorizer(store.Repos().User), mocks.NewMockBlobStore(), mocks.NewMockTransport(), cfg, zerolog.Nop())
}

// BenchmarkValidateTransition benchmarks transition table lookups
func BenchmarkValidateTransition(b *testing.B) {
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = workflow.SubmissionTransitions.ValidateTransition(models.SubmissionDecisionPending, models.SubmissionRevisionRequired)
		_ = workflow.SubmissionTransitions.ValidateTransition(models.SubmissionDraft, models.SubmissionPublished)
	}
}

// BenchmarkSubmitReadiness benchmarks the readiness check on a failing draft
func BenchmarkSubmitReadiness(b *testing.B) {
	sub := &models.Submission{Title: "Graph Learning", Keywords: []string{"graphs"}}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = workflow.CheckSubmitReadiness(sub)
	}
}

// BenchmarkDraftValidation benchmarks patch validation
func BenchmarkDraftValidation(b *testing.B) {
	validator := validation.NewValidator()
	keywords := []string{"graphs", "neural networks", "learning", "optimisation"}
	patch := &models.SubmissionPatch{
		Title:              strp("Graph Learning at Scale"),
		Abstract:           strp("We study graphs."),
		Keywords:           &keywords,
		CopyrightAgreement: boolp(true),
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = validator.ValidateDraftPatch(patch)
	}
}

// BenchmarkProcessDue benchmarks draining the outbox through the mock transport
func BenchmarkProcessDue(b *testing.B) {
	ctx := context.Background()
	store := mocks.NewStore()
	svcs := newServices(store)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		err := store.WithTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
			for j := 0; j < 100; j++ {
				_, err := svcs.Notification.Enqueue(ctx, repos, models.NotificationRequest{
					EventType:      models.EventReviewReminder,
					Recipient:      fmt.Sprintf("reviewer%d@example.com", j),
					Subject:        "Reminder",
					Body:           "Your review is due soon.",
					IdempotencyKey: fmt.Sprintf("bench_%d_%d", i, j),
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			b.Fatalf("enqueue failed: %v", err)
		}
		b.StartTimer()

		if _, err := svcs.Notification.ProcessDue(ctx); err != nil {
			b.Fatalf("ProcessDue failed: %v", err)
		}
	}

	b.ReportMetric(float64(100*b.N)/b.Elapsed().Seconds(), "notifications/sec")
}

// BenchmarkDispatcherSemaphore benchmarks the worker slot acquire/release
func BenchmarkDispatcherSemaphore(b *testing.B) {
	sem := make(chan struct{}, 4)

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			sem <- struct{}{}
			<-sem
		}
	})
}
