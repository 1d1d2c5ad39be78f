package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ejournal-workflow-api/internal/auth"
	"github.com/ejournal-workflow-api/internal/config"
	"github.com/ejournal-workflow-api/internal/mocks"
	"github.com/ejournal-workflow-api/internal/models"
	"github.com/ejournal-workflow-api/internal/repository"
	"github.com/ejournal-workflow-api/internal/service"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cliSecret = "cli-test-secret"
	cliIssuer = "ejournal"
)

type cliEnv struct {
	ctx    *commandContext
	store  *mocks.Store
	mailer *mocks.MockTransport
}

func newCLIEnv(t *testing.T, maxAttempts int) *cliEnv {
	t.Helper()

	cfg := &config.Config{
		Auth: config.AuthConfig{JWTSecret: cliSecret, JWTIssuer: cliIssuer},
		Notify: config.NotifyConfig{
			Workers:      1,
			MaxAttempts:  maxAttempts,
			RetryBackoff: time.Minute,
			PollInterval: time.Second,
			BatchSize:    10,
		},
	}
	store := mocks.NewStore()
	mailer := mocks.NewMockTransport()

	ctx := newCommandContext(nil)
	ctx.config = cfg
	ctx.runner = store
	ctx.services = service.NewServices(store, auth.NewAuthorizer(store.Repos().User), mocks.NewMockBlobStore(), mailer, cfg, zerolog.Nop())

	return &cliEnv{ctx: ctx, store: store, mailer: mailer}
}

func (e *cliEnv) run(args ...string) (string, error) {
	root := buildRootCommand(e.ctx)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func (e *cliEnv) enqueue(t *testing.T, recipient string) *models.OutboxItem {
	t.Helper()
	var item *models.OutboxItem
	err := e.store.WithTx(context.Background(), func(ctx context.Context, repos *repository.Repositories) error {
		var err error
		item, err = e.ctx.services.Notification.Enqueue(ctx, repos, models.NotificationRequest{
			EventType: models.EventReviewReminder,
			Recipient: recipient,
			Subject:   "Reminder",
			Body:      "Your review is due soon.",
		})
		return err
	})
	require.NoError(t, err)
	return item
}

func TestRenderTable(t *testing.T) {
	long := strings.Repeat("x", maxCellWidth+20)
	out := renderTable(
		[]string{"Name", "Count"},
		[][]string{{"alpha", "1"}, {long}},
		[]columnAlign{left, right},
	)

	assert.Contains(t, strings.ToUpper(out), "NAME")
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, long)
	assert.NotContains(t, out, "<nil>")
	assert.True(t, strings.HasSuffix(out, "\n"))

	assert.Empty(t, renderTable(nil, nil, nil))
}

func TestTruncate_MultiByte(t *testing.T) {
	s := strings.Repeat("é", maxCellWidth+5)
	got := truncate(s)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, maxCellWidth, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))

	short := strings.Repeat("日", maxCellWidth)
	assert.Equal(t, short, truncate(short))
	assert.Equal(t, "a b", truncate("a\nb"))
}

func TestTopics_AddAndList(t *testing.T) {
	env := newCLIEnv(t, 5)

	out, err := env.run("topics", "add", "--name", "Machine Learning", "--slug", "machine-learning")
	require.NoError(t, err)
	assert.Contains(t, out, "Created topic machine-learning")

	_, err = env.run("topics", "add", "--name", "Duplicate", "--slug", "machine-learning")
	require.Error(t, err)

	out, err = env.run("topics", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Machine Learning")
	assert.NotContains(t, out, "Duplicate")
}

func TestTopics_AddRejectsBadSlug(t *testing.T) {
	env := newCLIEnv(t, 5)

	_, err := env.run("topics", "add", "--name", "Physics", "--slug", "Not A Slug")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid topic area")

	out, err := env.run("topics", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No topic areas")
}

func TestUsersUpsert_CreatesThenUpdatesByEmail(t *testing.T) {
	env := newCLIEnv(t, 5)
	ctx := context.Background()

	_, err := env.run("users", "upsert", "--email", "Editor@Example.com", "--name", "Ed Itor", "--editor-status", "approved")
	require.NoError(t, err)

	user, err := env.store.Repos().User.GetByEmail(ctx, "editor@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.True(t, user.IsApprovedEditor())
	assert.Equal(t, "Ed Itor", user.FullName)
	firstID := user.ID

	out, err := env.run("users", "upsert", "--email", "editor@example.com", "--editor-status", "rejected", "--reviewer-status", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "rejected")

	user, err = env.store.Repos().User.GetByEmail(ctx, "editor@example.com")
	require.NoError(t, err)
	assert.Equal(t, firstID, user.ID)
	assert.Equal(t, "Ed Itor", user.FullName)
	assert.False(t, user.IsApprovedEditor())
	assert.Equal(t, models.ApprovalPending, user.ReviewerStatus)
}

func TestUsersUpsert_Validation(t *testing.T) {
	env := newCLIEnv(t, 5)

	_, err := env.run("users", "upsert")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--email")

	_, err = env.run("users", "upsert", "--email", "a@example.com", "--reviewer-status", "maybe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reviewer-status")
}

func TestTokenIssue(t *testing.T) {
	env := newCLIEnv(t, 5)
	env.store.SeedUser(&models.User{ID: "user-1", Email: "author@example.com", IsAuthor: true, Active: true})
	env.store.SeedUser(&models.User{ID: "user-2", Email: "gone@example.com", IsAuthor: true, Active: false})

	out, err := env.run("token", "issue", "--email", "Author@example.com", "--ttl", "1h")
	require.NoError(t, err)

	actor, err := auth.ParseToken(cliSecret, cliIssuer, strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "user-1", actor.UserID)
	assert.Equal(t, "author@example.com", actor.Email)

	_, err = env.run("token", "issue", "--email", "nobody@example.com")
	require.Error(t, err)

	_, err = env.run("token", "issue", "--email", "gone@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inactive")
}

func TestNotifications_ProcessDelivers(t *testing.T) {
	env := newCLIEnv(t, 5)
	env.enqueue(t, "reviewer@example.com")

	out, err := env.run("notifications", "process")
	require.NoError(t, err)
	assert.Contains(t, out, "Processed 1 notification(s)")
	assert.Equal(t, 1, env.mailer.CallCount())

	out, err = env.run("notifications", "failed")
	require.NoError(t, err)
	assert.Contains(t, out, "No failed notifications")
}

func TestNotifications_FailedAndRequeue(t *testing.T) {
	env := newCLIEnv(t, 1)
	env.mailer.FailTimes = 1
	item := env.enqueue(t, "reviewer@example.com")

	_, err := env.run("notifications", "process")
	require.NoError(t, err)

	out, err := env.run("notifications", "failed", "--limit", "10")
	require.NoError(t, err)
	assert.Contains(t, out, item.ID)
	assert.Contains(t, out, "reviewer@example.com")
	assert.Contains(t, out, "mock transport failure")

	out, err = env.run("notifications", "requeue", item.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Requeued "+item.ID)

	_, err = env.run("notifications", "requeue", item.ID)
	require.Error(t, err)

	_, err = env.run("notifications", "process")
	require.NoError(t, err)
	assert.Len(t, env.mailer.DeliveredTo("reviewer@example.com"), 1)
}

func TestNotifications_RequeueNeedsID(t *testing.T) {
	env := newCLIEnv(t, 5)
	_, err := env.run("notifications", "requeue")
	require.Error(t, err)
}

func TestAssignments_ExpireOverdueWithNothingDue(t *testing.T) {
	env := newCLIEnv(t, 5)
	out, err := env.run("assignments", "expire-overdue")
	require.NoError(t, err)
	assert.Contains(t, out, "Expired 0 assignment(s)")
}
