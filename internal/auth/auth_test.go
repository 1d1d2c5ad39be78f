package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/ejournal-workflow-api/internal/mocks"
	"github.com/ejournal-workflow-api/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestParseToken_RoundTrip(t *testing.T) {
	tok, err := IssueToken("s3cret", "ejournal", "user-1", "u@example.com", time.Hour)
	require.NoError(t, err)

	actor, err := ParseToken("s3cret", "ejournal", tok)
	require.NoError(t, err)
	assert.Equal(t, models.Actor{UserID: "user-1", Email: "u@example.com"}, actor)

	_, err = ParseToken("other", "ejournal", tok)
	assert.Error(t, err)
	_, err = ParseToken("s3cret", "someone-else", tok)
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	tok, err := IssueToken("s3cret", "", "user-1", "u@example.com", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken("s3cret", "", tok)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/me", Middleware("s3cret", ""), func(c *gin.Context) {
		c.String(http.StatusOK, ActorFrom(c).UserID)
	})

	tok, _ := IssueToken("s3cret", "", "user-7", "x@example.com", time.Hour)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"no header", "", http.StatusUnauthorized, ""},
		{"no bearer prefix", tok, http.StatusUnauthorized, ""},
		{"garbage token", "Bearer abc", http.StatusUnauthorized, ""},
		{"valid", "Bearer " + tok, http.StatusOK, "user-7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestAuthorizer(t *testing.T) {
	store := mocks.NewStore()
	store.SeedUser(&models.User{ID: "ed", Email: "Ed@Example.com", EditorStatus: models.ApprovalApproved, Active: true})
	store.SeedUser(&models.User{ID: "pending-ed", Email: "p@example.com", EditorStatus: models.ApprovalPending, Active: true})
	store.SeedUser(&models.User{ID: "gone", Email: "gone@example.com", EditorStatus: models.ApprovalApproved, Active: false})
	store.SeedUser(&models.User{ID: "rev", Email: "rev@example.com", ReviewerStatus: models.ApprovalApproved, IsAuthor: true, Active: true})

	a := NewAuthorizer(store.Repos().User)
	ctx := context.Background()

	_, err := a.RequireEditor(ctx, models.Actor{UserID: "ed"})
	assert.NoError(t, err)

	_, err = a.RequireEditor(ctx, models.Actor{UserID: "pending-ed"})
	assert.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(err))

	_, err = a.RequireEditor(ctx, models.Actor{UserID: "gone"})
	assert.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(err))

	_, err = a.RequireReviewer(ctx, models.Actor{UserID: "rev"})
	assert.NoError(t, err)
	_, err = a.RequireAuthor(ctx, models.Actor{UserID: "rev"})
	assert.NoError(t, err)
	_, err = a.RequireReviewer(ctx, models.Actor{UserID: "nobody"})
	assert.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(err))

	ok, err := a.IsApprovedEditor(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)

	emails, err := a.ApprovedEditorEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ed@example.com"}, emails)
}
