package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/ejournal-workflow-api/internal/auth"
	"github.com/ejournal-workflow-api/internal/config"
	"github.com/ejournal-workflow-api/internal/mocks"
	"github.com/ejournal-workflow-api/internal/models"
	"github.com/ejournal-workflow-api/internal/service"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	authorID    = "0b6f9c3e-2a41-4f0e-9a55-0d3c1c7a1a01"
	editorID    = "0b6f9c3e-2a41-4f0e-9a55-0d3c1c7a1a02"
	reviewerID  = "0b6f9c3e-2a41-4f0e-9a55-0d3c1c7a1a03"
	reviewer2ID = "0b6f9c3e-2a41-4f0e-9a55-0d3c1c7a1a04"
	pendingID   = "0b6f9c3e-2a41-4f0e-9a55-0d3c1c7a1a05"
	topicID     = "7d1e2f30-6b8a-4c55-8e0f-1a2b3c4d5e6f"
)

type fixture struct {
	store     *mocks.Store
	mailer    *mocks.MockTransport
	blobs     *mocks.MockBlobStore
	svc       *service.Services
	author    models.Actor
	editor    models.Actor
	reviewer  models.Actor
	reviewer2 models.Actor
}

func testConfig() *config.Config {
	return &config.Config{
		Notify: config.NotifyConfig{
			Workers:      2,
			MaxAttempts:  5,
			RetryBackoff: 60 * time.Second,
			PollInterval: 10 * time.Millisecond,
			BatchSize:    20,
		},
		Storage: config.StorageConfig{MaxUploadSize: 1 << 20},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := mocks.NewStore()
	store.SeedUser(&models.User{ID: authorID, Email: "author@example.com", IsAuthor: true, Active: true})
	store.SeedUser(&models.User{ID: editorID, Email: "editor@example.com", EditorStatus: models.ApprovalApproved, Active: true})
	store.SeedUser(&models.User{ID: reviewerID, Email: "reviewer@example.com", ReviewerStatus: models.ApprovalApproved, Active: true})
	store.SeedUser(&models.User{ID: reviewer2ID, Email: "second@example.com", ReviewerStatus: models.ApprovalApproved, Active: true})
	store.SeedUser(&models.User{ID: pendingID, Email: "pending@example.com", ReviewerStatus: models.ApprovalPending, Active: true})
	store.SeedTopic(&models.TopicArea{ID: topicID, Name: "Machine Learning", Slug: "machine-learning"})

	mailer := mocks.NewMockTransport()
	blobs := mocks.NewMockBlobStore()
	svc := service.NewServices(store, auth.NewAuthorizer(store.Repos().User), blobs, mailer, testConfig(), zerolog.Nop())

	return &fixture{
		store:     store,
		mailer:    mailer,
		blobs:     blobs,
		svc:       svc,
		author:    models.Actor{UserID: authorID, Email: "author@example.com"},
		editor:    models.Actor{UserID: editorID, Email: "editor@example.com"},
		reviewer:  models.Actor{UserID: reviewerID, Email: "reviewer@example.com"},
		reviewer2: models.Actor{UserID: reviewer2ID, Email: "second@example.com"},
	}
}

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }

func completePatch() *models.SubmissionPatch {
	keywords := []string{"graphs", " neural networks ", "", "learning"}
	return &models.SubmissionPatch{
		Title:                   strp("  Graph Learning at Scale "),
		Abstract:                strp("We study graphs."),
		Keywords:                &keywords,
		TopicAreaID:             strp(topicID),
		OriginalityConfirmation: boolp(true),
		PlagiarismAgreement:     boolp(true),
		EthicsCompliance:        boolp(true),
		CopyrightAgreement:      boolp(true),
	}
}

// readyDraft creates a draft that passes submit readiness
func (f *fixture) readyDraft(t *testing.T) *models.Submission {
	t.Helper()
	ctx := context.Background()
	sub, err := f.svc.Submission.CreateDraft(ctx, f.author, completePatch())
	require.NoError(t, err)
	_, err = f.svc.Submission.UploadFile(ctx, f.author, sub.ID, models.FileManuscript, "paper.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	return sub
}

// underReview drives a fresh submission to under_review
func (f *fixture) underReview(t *testing.T) *models.Submission {
	t.Helper()
	ctx := context.Background()
	sub := f.readyDraft(t)
	_, err := f.svc.Submission.Submit(ctx, f.author, sub.ID)
	require.NoError(t, err)
	_, err = f.svc.Editorial.StartScreening(ctx, f.editor, sub.ID)
	require.NoError(t, err)
	sub, err = f.svc.Editorial.SendToReview(ctx, f.editor, sub.ID)
	require.NoError(t, err)
	return sub
}

func (f *fixture) status(t *testing.T, id string) models.SubmissionStatus {
	t.Helper()
	sub, err := f.store.Repos().Submission.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, sub)
	return sub.Status
}

func transitionAudits(entries []models.AuditLog, targetID string) []models.AuditLog {
	var out []models.AuditLog
	for _, e := range entries {
		if e.TargetID == targetID && (e.ActionType == models.ActionStatusTransition || e.ActionType == models.ActionDecision) {
			out = append(out, e)
		}
	}
	return out
}

func TestCreateDraft(t *testing.T) {
	f := newFixture(t)

	sub, err := f.svc.Submission.CreateDraft(context.Background(), f.author, completePatch())
	require.NoError(t, err)

	assert.Equal(t, models.SubmissionDraft, sub.Status)
	assert.Equal(t, "Graph Learning at Scale", sub.Title)
	assert.Equal(t, []string{"graphs", "neural networks", "learning"}, sub.Keywords)
	assert.NotNil(t, sub.OriginalityConfirmedAt)

	audits := f.store.AuditEntries()
	require.Len(t, audits, 1)
	assert.Equal(t, models.ActionSubmissionCreated, audits[0].ActionType)
	assert.Empty(t, f.store.OutboxItems())
}

func TestCreateDraft_UnknownTopic(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Submission.CreateDraft(context.Background(), f.author, &models.SubmissionPatch{
		TopicAreaID: strp("11111111-2222-3333-4444-555555555555"),
	})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestCreateDraft_RequiresAuthor(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Submission.CreateDraft(context.Background(), f.reviewer, completePatch())
	assert.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(err))
}

func TestUpdateDraft_AgreementTimestampSetOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Submission.CreateDraft(ctx, f.author, &models.SubmissionPatch{OriginalityConfirmation: boolp(true)})
	require.NoError(t, err)
	first := *sub.OriginalityConfirmedAt

	sub, err = f.svc.Submission.UpdateDraft(ctx, f.author, sub.ID, &models.SubmissionPatch{OriginalityConfirmation: boolp(false)})
	require.NoError(t, err)
	sub, err = f.svc.Submission.UpdateDraft(ctx, f.author, sub.ID, &models.SubmissionPatch{OriginalityConfirmation: boolp(true)})
	require.NoError(t, err)

	require.NotNil(t, sub.OriginalityConfirmedAt)
	assert.True(t, first.Equal(*sub.OriginalityConfirmedAt))
}

func TestUpdateDraft_OnlyOwner(t *testing.T) {
	f := newFixture(t)
	f.store.SeedUser(&models.User{ID: "other-author", Email: "other@example.com", IsAuthor: true, Active: true})
	sub := f.readyDraft(t)

	_, err := f.svc.Submission.UpdateDraft(context.Background(), models.Actor{UserID: "other-author"}, sub.ID,
		&models.SubmissionPatch{Title: strp("hijacked")})
	assert.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(err))
}

func TestUpdateDraft_TooManyKeywords(t *testing.T) {
	f := newFixture(t)
	sub := f.readyDraft(t)

	keywords := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"}
	_, err := f.svc.Submission.UpdateDraft(context.Background(), f.author, sub.ID, &models.SubmissionPatch{Keywords: &keywords})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestDeleteDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft := f.readyDraft(t)
	require.NoError(t, f.svc.Submission.DeleteDraft(ctx, f.author, draft.ID))
	_, err := f.svc.Submission.Get(ctx, f.author, draft.ID)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	submitted := f.readyDraft(t)
	_, err = f.svc.Submission.Submit(ctx, f.author, submitted.ID)
	require.NoError(t, err)
	err = f.svc.Submission.DeleteDraft(ctx, f.author, submitted.ID)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assert.Equal(t, models.SubmissionSubmitted, f.status(t, submitted.ID))
}

func TestUploadFile_Supplementary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.readyDraft(t)

	res, err := f.svc.Submission.UploadFile(ctx, f.author, sub.ID, models.FileSupplementary, "data.csv", []byte("a,b"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Contains(t, res.URL, "data.csv")

	got, err := f.svc.Submission.Get(ctx, f.author, sub.ID)
	require.NoError(t, err)
	require.Len(t, got.SupplementaryFiles, 1)
	assert.Equal(t, "data.csv", got.SupplementaryFiles[0].Name)

	_, err = f.svc.Submission.UploadFile(ctx, f.author, sub.ID, "figure", "x.png", []byte("x"))
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestSubmit_CreatesVersionAuditAndNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.readyDraft(t)
	_, err := f.svc.Submission.UploadFile(ctx, f.author, sub.ID, models.FileSupplementary, "data.csv", []byte("a,b"))
	require.NoError(t, err)

	got, err := f.svc.Submission.Submit(ctx, f.author, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionSubmitted, got.Status)

	versions, err := f.svc.Submission.ListVersions(ctx, f.author, sub.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].VersionNumber)
	assert.NotEmpty(t, versions[0].ManuscriptLocator)
	require.Len(t, versions[0].SupplementarySnapshot, 1)
	assert.Equal(t, "data.csv", versions[0].SupplementarySnapshot[0].Name)

	audits := transitionAudits(f.store.AuditEntries(), sub.ID)
	require.Len(t, audits, 1)
	assert.Equal(t, "draft", audits[0].OldValue["status"])
	assert.Equal(t, "submitted", audits[0].NewValue["status"])
	require.NotNil(t, audits[0].ActorID)
	assert.Equal(t, authorID, *audits[0].ActorID)

	items := f.store.OutboxItems()
	require.Len(t, items, 1)
	assert.Equal(t, models.EventSubmissionReceived, items[0].EventType)
	assert.Equal(t, "author@example.com", items[0].Recipient)
	assert.Equal(t, "status_"+sub.ID+"_v1_draft_submitted", items[0].IdempotencyKey)
	assert.Equal(t, models.OutboxPending, items[0].Status)
}

func TestSubmit_ReadinessFailures(t *testing.T) {
	tests := []struct {
		name   string
		patch  func(p *models.SubmissionPatch)
		upload bool
		field  string
	}{
		{"originality", func(p *models.SubmissionPatch) { p.OriginalityConfirmation = nil }, true, "originality_confirmation"},
		{"plagiarism", func(p *models.SubmissionPatch) { p.PlagiarismAgreement = nil }, true, "plagiarism_agreement"},
		{"ethics", func(p *models.SubmissionPatch) { p.EthicsCompliance = nil }, true, "ethics_compliance"},
		{"copyright", func(p *models.SubmissionPatch) { p.CopyrightAgreement = boolp(false) }, true, "copyright_agreement"},
		{"title", func(p *models.SubmissionPatch) { p.Title = strp("   ") }, true, "title"},
		{"abstract", func(p *models.SubmissionPatch) { p.Abstract = nil }, true, "abstract"},
		{"keywords", func(p *models.SubmissionPatch) { k := []string{"one", "two"}; p.Keywords = &k }, true, "keywords"},
		{"topic", func(p *models.SubmissionPatch) { p.TopicAreaID = nil }, true, "topic_area_id"},
		{"manuscript", func(p *models.SubmissionPatch) {}, false, "manuscript"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			patch := completePatch()
			tt.patch(patch)
			sub, err := f.svc.Submission.CreateDraft(ctx, f.author, patch)
			require.NoError(t, err)
			if tt.upload {
				_, err = f.svc.Submission.UploadFile(ctx, f.author, sub.ID, models.FileManuscript, "paper.pdf", []byte("pdf"))
				require.NoError(t, err)
			}

			_, err = f.svc.Submission.Submit(ctx, f.author, sub.ID)
			require.Error(t, err)

			var verr *apperrors.ValidationError
			require.True(t, errors.As(err, &verr))
			require.Len(t, verr.Fields, 1)
			assert.Equal(t, tt.field, verr.Fields[0].Field)

			assert.Equal(t, models.SubmissionDraft, f.status(t, sub.ID))
			versions, err := f.store.Repos().Version.List(ctx, sub.ID)
			require.NoError(t, err)
			assert.Empty(t, versions)
			assert.Empty(t, f.store.OutboxItems())
		})
	}
}

func TestSubmit_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.readyDraft(t)

	_, err := f.svc.Submission.Submit(ctx, f.author, sub.ID)
	require.NoError(t, err)

	_, err = f.svc.Submission.Submit(ctx, f.author, sub.ID)
	assert.Equal(t, apperrors.KindInvalidTransition, apperrors.KindOf(err))

	versions, _ := f.store.Repos().Version.List(ctx, sub.ID)
	assert.Len(t, versions, 1)
}

func TestTransition_InvalidLeavesStatusUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.readyDraft(t)
	_, err := f.svc.Submission.Submit(ctx, f.author, sub.ID)
	require.NoError(t, err)
	before := len(f.store.AuditEntries())

	_, err = f.svc.Editorial.Publish(ctx, f.editor, sub.ID)
	require.Error(t, err)

	var terr *apperrors.InvalidTransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "submitted", terr.From)
	assert.Equal(t, "published", terr.To)
	assert.Equal(t, []string{"screening", "withdrawn"}, terr.Allowed)

	assert.Equal(t, models.SubmissionSubmitted, f.status(t, sub.ID))
	assert.Len(t, f.store.AuditEntries(), before)
	assert.Len(t, f.store.OutboxItems(), 1)
}

func TestTransition_AtomicOnSideEffectFailure(t *testing.T) {
	for _, op := range []string{"audit.append", "outbox.enqueue", "submission.save"} {
		t.Run(op, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			sub := f.readyDraft(t)
			_, err := f.svc.Submission.Submit(ctx, f.author, sub.ID)
			require.NoError(t, err)

			audits := len(f.store.AuditEntries())
			outbox := len(f.store.OutboxItems())

			f.store.FailOn(op, errors.New("disk full"))
			_, err = f.svc.Editorial.StartScreening(ctx, f.editor, sub.ID)
			require.Error(t, err)
			f.store.ClearFaults()

			assert.Equal(t, models.SubmissionSubmitted, f.status(t, sub.ID))
			assert.Len(t, f.store.AuditEntries(), audits)
			assert.Len(t, f.store.OutboxItems(), outbox)

			_, err = f.svc.Editorial.StartScreening(ctx, f.editor, sub.ID)
			assert.NoError(t, err)
		})
	}
}

func TestSubmit_VersionFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.readyDraft(t)

	f.store.FailOn("version.create", errors.New("constraint"))
	_, err := f.svc.Submission.Submit(ctx, f.author, sub.ID)
	require.Error(t, err)
	f.store.ClearFaults()

	assert.Equal(t, models.SubmissionDraft, f.status(t, sub.ID))
	assert.Empty(t, f.store.OutboxItems())
}

func TestEditorActions_RequireApprovedEditor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.readyDraft(t)
	_, err := f.svc.Submission.Submit(ctx, f.author, sub.ID)
	require.NoError(t, err)

	_, err = f.svc.Editorial.StartScreening(ctx, f.author, sub.ID)
	assert.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(err))
	assert.Equal(t, models.SubmissionSubmitted, f.status(t, sub.ID))
}

func TestEditorial_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Editorial.StartScreening(context.Background(), f.editor, "missing")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestDeskReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.readyDraft(t)
	_, err := f.svc.Submission.Submit(ctx, f.author, sub.ID)
	require.NoError(t, err)
	_, err = f.svc.Editorial.StartScreening(ctx, f.editor, sub.ID)
	require.NoError(t, err)

	_, err = f.svc.Editorial.DeskReject(ctx, f.editor, sub.ID, "   ")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assert.Equal(t, models.SubmissionScreening, f.status(t, sub.ID))

	got, err := f.svc.Editorial.DeskReject(ctx, f.editor, sub.ID, "out of scope")
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionDeskRejected, got.Status)
	assert.Equal(t, "out of scope", got.DeskRejectReason)

	for _, attempt := range []func() error{
		func() error { _, err := f.svc.Editorial.SendToReview(ctx, f.editor, sub.ID); return err },
		func() error { _, err := f.svc.Editorial.StartScreening(ctx, f.editor, sub.ID); return err },
		func() error { _, err := f.svc.Submission.Withdraw(ctx, f.author, sub.ID); return err },
	} {
		assert.Equal(t, apperrors.KindInvalidTransition, apperrors.KindOf(attempt()))
	}
	assert.Equal(t, models.SubmissionDeskRejected, f.status(t, sub.ID))
}

func TestInviteReviewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.underReview(t)
	due := time.Now().Add(14 * 24 * time.Hour)

	a, err := f.svc.Editorial.InviteReviewer(ctx, f.editor, sub.ID, &models.InviteRequest{ReviewerUserID: reviewerID, DueDate: &due})
	require.NoError(t, err)

	assert.Equal(t, models.AssignmentInvited, a.Status)
	assert.NotEmpty(t, a.Token)
	require.NotNil(t, a.ReviewerID)
	assert.Equal(t, reviewerID, *a.ReviewerID)
	assert.Equal(t, "reviewer@example.com", a.InvitedEmail)

	versions, _ := f.store.Repos().Version.List(ctx, sub.ID)
	require.Len(t, versions, 1)
	assert.Equal(t, versions[0].ID, a.SubmissionVersionID)

	items := f.store.OutboxItems()
	invite := items[len(items)-1]
	assert.Equal(t, models.EventReviewerInvited, invite.EventType)
	assert.Equal(t, "reviewer@example.com", invite.Recipient)
	assert.Equal(t, "invite_"+a.ID, invite.IdempotencyKey)
	assert.Contains(t, invite.Body, a.Token)
}

func TestInviteReviewer_DuplicateConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.underReview(t)

	first, err := f.svc.Editorial.InviteReviewer(ctx, f.editor, sub.ID, &models.InviteRequest{ReviewerEmail: "Guest@Example.com"})
	require.NoError(t, err)
	outbox := len(f.store.OutboxItems())

	_, err = f.svc.Editorial.InviteReviewer(ctx, f.editor, sub.ID, &models.InviteRequest{ReviewerEmail: "guest@example.com"})
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
	assert.Len(t, f.store.OutboxItems(), outbox)

	stored, err := f.store.Repos().Assignment.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentInvited, stored.Status)
	assert.Equal(t, first.Token, stored.Token)
}

func TestInviteReviewer_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft := f.readyDraft(t)
	_, err := f.svc.Editorial.InviteReviewer(ctx, f.editor, draft.ID, &models.InviteRequest{ReviewerEmail: "x@example.com"})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	sub := f.underReview(t)
	_, err = f.svc.Editorial.InviteReviewer(ctx, f.editor, sub.ID, &models.InviteRequest{ReviewerUserID: pendingID})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = f.svc.Editorial.InviteReviewer(ctx, f.editor, sub.ID, &models.InviteRequest{ReviewerUserID: "99999999-9999-4999-8999-999999999999"})
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	_, err = f.svc.Editorial.InviteReviewer(ctx, f.editor, sub.ID, &models.InviteRequest{})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = f.svc.Editorial.InviteReviewer(ctx, f.reviewer, sub.ID, &models.InviteRequest{ReviewerEmail: "x@example.com"})
	assert.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(err))
}

func TestAcceptDecline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.underReview(t)

	a, err := f.svc.Editorial.InviteReviewer(ctx, f.editor, sub.ID, &models.InviteRequest{ReviewerUserID: reviewerID})
	require.NoError(t, err)

	_, err = f.svc.Review.Accept(ctx, f.reviewer2, a.ID)
	assert.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(err))

	accepted, err := f.svc.Review.Accept(ctx, f.reviewer, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentAccepted, accepted.Status)
	assert.NotNil(t, accepted.RespondedAt)

	_, err = f.svc.Review.Decline(ctx, f.reviewer, a.ID)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	items := f.store.OutboxItems()
	last := items[len(items)-1]
	assert.Equal(t, models.AudienceEditors, last.Audience)
	assert.Equal(t, models.EventReviewerAccepted, last.EventType)
	assert.Equal(t, "assignment_"+a.ID+"_invited_accepted", last.IdempotencyKey)
}

// losingKind reports whether err is how a racing action that lost should fail
func losingKind(err error) bool {
	kind := apperrors.KindOf(err)
	return kind == apperrors.KindInvalidTransition || kind == apperrors.KindConflict
}

func TestAccept_ConcurrentCallsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.underReview(t)
	a, err := f.svc.Editorial.InviteReviewer(ctx, f.editor, sub.ID, &models.InviteRequest{ReviewerUserID: reviewerID})
	require.NoError(t, err)
	outboxBefore := len(f.store.OutboxItems())

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Review.Accept(ctx, f.reviewer, a.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, losingKind(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, wins)

	accepts := 0
	for _, e := range f.store.AuditEntries() {
		if e.TargetID == a.ID && e.ActionType == models.ActionReviewerAccepted {
			accepts++
		}
	}
	assert.Equal(t, 1, accepts)
	assert.Len(t, f.store.OutboxItems(), outboxBefore+1)
}

func TestDecide_ConcurrentCallsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.underReview(t)
	_, err := f.svc.Editorial.MoveToDecision(ctx, f.editor, sub.ID)
	require.NoError(t, err)
	outboxBefore := len(f.store.OutboxItems())

	decisions := []models.EditorialDecision{models.DecisionAccept, models.DecisionReject, models.DecisionRevisionRequired}
	const n = 9
	results := make([]*models.Submission, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Editorial.Decide(ctx, f.editor, sub.ID, &models.DecisionRequest{
				Decision:       decisions[i%len(decisions)],
				DecisionLetter: "Decision letter.",
			})
		}(i)
	}
	wg.Wait()

	var winner *models.Submission
	for i, err := range errs {
		if err == nil {
			require.Nil(t, winner, "more than one decision succeeded")
			winner = results[i]
			continue
		}
		assert.True(t, losingKind(err), "unexpected error: %v", err)
	}
	require.NotNil(t, winner)
	assert.Equal(t, winner.Status, f.status(t, sub.ID))

	decided := 0
	for _, e := range f.store.AuditEntries() {
		if e.TargetID == sub.ID && e.ActionType == models.ActionDecision {
			decided++
		}
	}
	assert.Equal(t, 1, decided)
	assert.Len(t, f.store.OutboxItems(), outboxBefore+1)
}

func TestDecline_EmailInviteBindsReviewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.underReview(t)

	a, err := f.svc.Editorial.InviteReviewer(ctx, f.editor, sub.ID, &models.InviteRequest{ReviewerEmail: "second@example.com"})
	require.NoError(t, err)
	assert.Nil(t, a.ReviewerID)

	declined, err := f.svc.Review.Decline(ctx, f.reviewer2, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentDeclined, declined.Status)
	require.NotNil(t, declined.ReviewerID)
	assert.Equal(t, reviewer2ID, *declined.ReviewerID)
}

func TestAcceptByToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.underReview(t)

	a, err := f.svc.Editorial.InviteReviewer(ctx, f.editor, sub.ID, &models.InviteRequest{ReviewerEmail: "guest@example.com"})
	require.NoError(t, err)

	_, err = f.svc.Review.LookupToken(ctx, f.reviewer, "nope")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	found, err := f.svc.Review.LookupToken(ctx, f.reviewer, a.Token)
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)

	_, err = f.svc.Review.AcceptByToken(ctx, models.Actor{UserID: pendingID}, a.Token)
	assert.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(err))

	accepted, err := f.svc.Review.AcceptByToken(ctx, f.reviewer, a.Token)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentAccepted, accepted.Status)
	require.NotNil(t, accepted.ReviewerID)
	assert.Equal(t, reviewerID, *accepted.ReviewerID)

	_, err = f.svc.Review.LookupToken(ctx, f.reviewer, a.Token)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
	_, err = f.svc.Review.AcceptByToken(ctx, f.reviewer, a.Token)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	mine, err := f.svc.Review.ListMine(ctx, f.reviewer)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)
}

func TestSubmitReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.underReview(t)

	a, err := f.svc.Editorial.InviteReviewer(ctx, f.editor, sub.ID, &models.InviteRequest{ReviewerUserID: reviewerID})
	require.NoError(t, err)

	in := &models.ReviewInput{Summary: "Solid", Recommendation: models.RecommendMinorRevision}

	_, err = f.svc.Review.SubmitReview(ctx, f.reviewer, a.ID, in)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err), "invited assignment cannot take a review")

	_, err = f.svc.Review.Accept(ctx, f.reviewer, a.ID)
	require.NoError(t, err)

	_, err = f.svc.Review.SubmitReview(ctx, f.reviewer, a.ID, &models.ReviewInput{Recommendation: "maybe"})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = f.svc.Review.SubmitReview(ctx, f.reviewer2, a.ID, in)
	assert.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(err))

	review, err := f.svc.Review.SubmitReview(ctx, f.reviewer, a.ID, in)
	require.NoError(t, err)
	assert.Equal(t, models.RecommendMinorRevision, review.Recommendation)

	_, err = f.svc.Review.SubmitReview(ctx, f.reviewer, a.ID, in)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	assert.Len(t, f.store.Reviews(), 1)
	stored, _ := f.store.Repos().Assignment.GetByID(ctx, a.ID)
	assert.Equal(t, models.AssignmentReviewSubmitted, stored.Status)
}

func TestSubmitReview_EmailInviteNotYetAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.underReview(t)

	a, err := f.svc.Editorial.InviteReviewer(ctx, f.editor, sub.ID, &models.InviteRequest{ReviewerEmail: "second@example.com"})
	require.NoError(t, err)
	in := &models.ReviewInput{Summary: "Solid", Recommendation: models.RecommendAccept}

	_, err = f.svc.Review.SubmitReview(ctx, f.reviewer2, a.ID, in)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = f.svc.Review.SubmitReview(ctx, f.reviewer, a.ID, in)
	assert.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(err))

	assert.Empty(t, f.store.Reviews())
}

func TestSubmitReview_FailureCreatesNoReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.underReview(t)

	a, err := f.svc.Editorial.InviteReviewer(ctx, f.editor, sub.ID, &models.InviteRequest{ReviewerUserID: reviewerID})
	require.NoError(t, err)
	_, err = f.svc.Review.Accept(ctx, f.reviewer, a.ID)
	require.NoError(t, err)

	f.store.FailOn("audit.append", errors.New("audit store down"))
	_, err = f.svc.Review.SubmitReview(ctx, f.reviewer, a.ID, &models.ReviewInput{Recommendation: models.RecommendAccept})
	require.Error(t, err)
	f.store.ClearFaults()

	assert.Empty(t, f.store.Reviews())
	stored, _ := f.store.Repos().Assignment.GetByID(ctx, a.ID)
	assert.Equal(t, models.AssignmentAccepted, stored.Status)
}

func TestRemind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.underReview(t)

	a, err := f.svc.Editorial.InviteReviewer(ctx, f.editor, sub.ID, &models.InviteRequest{ReviewerUserID: reviewerID})
	require.NoError(t, err)

	_, err = f.svc.Editorial.Remind(ctx, f.editor, a.ID)
	require.NoError(t, err)

	items := f.store.OutboxItems()
	last := items[len(items)-1]
	assert.Equal(t, models.EventReviewReminder, last.EventType)
	assert.Equal(t, "reviewer@example.com", last.Recipient)
	assert.Empty(t, last.IdempotencyKey)

	_, err = f.svc.Review.Decline(ctx, f.reviewer, a.ID)
	require.NoError(t, err)
	_, err = f.svc.Editorial.Remind(ctx, f.editor, a.ID)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestDecide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.underReview(t)
	_, err := f.svc.Editorial.MoveToDecision(ctx, f.editor, sub.ID)
	require.NoError(t, err)

	_, err = f.svc.Editorial.Decide(ctx, f.editor, sub.ID, &models.DecisionRequest{Decision: "maybe"})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	got, err := f.svc.Editorial.Decide(ctx, f.editor, sub.ID, &models.DecisionRequest{
		Decision:       models.DecisionRevisionRequired,
		DecisionLetter: "Please expand section 3.",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionRevisionRequired, got.Status)
	assert.Equal(t, models.DecisionRevisionRequired, got.EditorialDecision)

	items := f.store.OutboxItems()
	last := items[len(items)-1]
	assert.Equal(t, models.EventRevisionRequested, last.EventType)
	assert.Contains(t, last.Body, "Please expand section 3.")

	audits := transitionAudits(f.store.AuditEntries(), sub.ID)
	decision := audits[len(audits)-1]
	assert.Equal(t, models.ActionDecision, decision.ActionType)
	assert.Equal(t, "revision_required", decision.NewValue["editorial_decision"])
}

func TestResubmit_CreatesNextVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.underReview(t)
	_, err := f.svc.Editorial.MoveToDecision(ctx, f.editor, sub.ID)
	require.NoError(t, err)
	_, err = f.svc.Editorial.Decide(ctx, f.editor, sub.ID, &models.DecisionRequest{Decision: models.DecisionRevisionRequired})
	require.NoError(t, err)

	_, err = f.svc.Submission.UpdateDraft(ctx, f.author, sub.ID, &models.SubmissionPatch{Title: strp("Graph Learning at Scale, Revised")})
	require.NoError(t, err)
	_, err = f.svc.Submission.UploadFile(ctx, f.author, sub.ID, models.FileManuscript, "paper-v2.pdf", []byte("v2"))
	require.NoError(t, err)

	got, err := f.svc.Submission.Resubmit(ctx, f.author, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionResubmitted, got.Status)

	versions, err := f.svc.Submission.ListVersions(ctx, f.author, sub.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[1].VersionNumber)
	assert.NotEqual(t, versions[0].ManuscriptLocator, versions[1].ManuscriptLocator)

	// A new version takes fresh invitations
	_, err = f.svc.Editorial.SendToReview(ctx, f.editor, sub.ID)
	require.NoError(t, err)
	a, err := f.svc.Editorial.InviteReviewer(ctx, f.editor, sub.ID, &models.InviteRequest{ReviewerUserID: reviewerID})
	require.NoError(t, err)
	assert.Equal(t, versions[1].ID, a.SubmissionVersionID)
}

func TestRevisionCycles_EachDecisionLetterDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.underReview(t)

	for _, letter := range []string{"FIRST LETTER", "SECOND LETTER"} {
		_, err := f.svc.Editorial.MoveToDecision(ctx, f.editor, sub.ID)
		require.NoError(t, err)
		_, err = f.svc.Editorial.Decide(ctx, f.editor, sub.ID, &models.DecisionRequest{
			Decision:       models.DecisionRevisionRequired,
			DecisionLetter: letter,
		})
		require.NoError(t, err)
		_, err = f.svc.Notification.ProcessDue(ctx)
		require.NoError(t, err)

		_, err = f.svc.Submission.Resubmit(ctx, f.author, sub.ID)
		require.NoError(t, err)
		_, err = f.svc.Editorial.SendToReview(ctx, f.editor, sub.ID)
		require.NoError(t, err)
		_, err = f.svc.Notification.ProcessDue(ctx)
		require.NoError(t, err)
	}

	letters := map[string]int{}
	resubmitted := 0
	for _, email := range f.mailer.DeliveredTo("author@example.com") {
		for _, letter := range []string{"FIRST LETTER", "SECOND LETTER"} {
			if strings.Contains(email.Body, letter) {
				letters[letter]++
			}
		}
	}
	for _, item := range f.store.OutboxItems() {
		if item.Payload["new_status"] == string(models.SubmissionResubmitted) {
			resubmitted++
			assert.Equal(t, models.OutboxSent, item.Status, item.IdempotencyKey)
		}
		assert.NotEqual(t, models.OutboxSkipped, item.Status, item.IdempotencyKey)
	}
	assert.Equal(t, map[string]int{"FIRST LETTER": 1, "SECOND LETTER": 1}, letters)
	assert.Equal(t, 2, resubmitted)
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.underReview(t)

	got, err := f.svc.Submission.Withdraw(ctx, f.author, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionWithdrawn, got.Status)

	_, err = f.svc.Submission.Withdraw(ctx, f.author, sub.ID)
	assert.Equal(t, apperrors.KindInvalidTransition, apperrors.KindOf(err))
}

func TestEditorial_ListAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.readyDraft(t)
	sub := f.underReview(t)
	_, err := f.svc.Editorial.InviteReviewer(ctx, f.editor, sub.ID, &models.InviteRequest{ReviewerEmail: "guest@example.com"})
	require.NoError(t, err)

	all, err := f.svc.Editorial.List(ctx, f.editor, "")
	require.NoError(t, err)
	assert.Len(t, all, 1, "drafts are hidden from editors")

	reviewing, err := f.svc.Editorial.List(ctx, f.editor, models.SubmissionUnderReview)
	require.NoError(t, err)
	assert.Len(t, reviewing, 1)

	_, err = f.svc.Editorial.List(ctx, f.editor, "bogus")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	detail, err := f.svc.Editorial.Get(ctx, f.editor, sub.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Versions, 1)
	assert.Len(t, detail.Assignments, 1)
}

// TestEndToEnd walks both the desk-reject path and the full review path
func TestEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Desk reject path
	rejected := f.readyDraft(t)
	got, err := f.svc.Submission.Submit(ctx, f.author, rejected.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionSubmitted, got.Status)
	got, err = f.svc.Editorial.StartScreening(ctx, f.editor, rejected.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionScreening, got.Status)
	got, err = f.svc.Editorial.DeskReject(ctx, f.editor, rejected.ID, "out of scope")
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionDeskRejected, got.Status)
	assert.Equal(t, "out of scope", got.DeskRejectReason)
	_, err = f.svc.Editorial.SendToReview(ctx, f.editor, rejected.ID)
	assert.Equal(t, apperrors.KindInvalidTransition, apperrors.KindOf(err))

	// Review path
	sub := f.underReview(t)
	a, err := f.svc.Editorial.InviteReviewer(ctx, f.editor, sub.ID, &models.InviteRequest{ReviewerUserID: reviewerID})
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentInvited, a.Status)
	assert.NotEmpty(t, a.Token)

	a, err = f.svc.Review.Accept(ctx, f.reviewer, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentAccepted, a.Status)

	_, err = f.svc.Review.SubmitReview(ctx, f.reviewer, a.ID, &models.ReviewInput{
		Summary:        "Strong contribution",
		Recommendation: models.RecommendAccept,
	})
	require.NoError(t, err)
	stored, _ := f.store.Repos().Assignment.GetByID(ctx, a.ID)
	assert.Equal(t, models.AssignmentReviewSubmitted, stored.Status)
	assert.Len(t, f.store.Reviews(), 1)

	_, err = f.svc.Editorial.MoveToDecision(ctx, f.editor, sub.ID)
	require.NoError(t, err)
	got, err = f.svc.Editorial.Decide(ctx, f.editor, sub.ID, &models.DecisionRequest{
		Decision:       models.DecisionAccept,
		DecisionLetter: "Congratulations.",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionAccepted, got.Status)
	assert.Equal(t, models.DecisionAccept, got.EditorialDecision)

	got, err = f.svc.Editorial.Publish(ctx, f.editor, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionPublished, got.Status)
	_, err = f.svc.Submission.Withdraw(ctx, f.author, sub.ID)
	assert.Equal(t, apperrors.KindInvalidTransition, apperrors.KindOf(err))

	// Drain the outbox: author updates, the invite and the editor fan-outs
	_, err = f.svc.Notification.ProcessDue(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, f.mailer.DeliveredTo("author@example.com"))
	assert.Len(t, f.mailer.DeliveredTo("reviewer@example.com"), 1)
	assert.Len(t, f.mailer.DeliveredTo("editor@example.com"), 2, "accepted and review submitted")
	for _, item := range f.store.OutboxItems() {
		assert.Contains(t, []models.OutboxStatus{models.OutboxSent, models.OutboxFannedOut}, item.Status, item.EventType)
	}
}
