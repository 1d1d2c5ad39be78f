package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/ejournal-workflow-api/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// respondError renders err as {"error": {"kind", "message", "details"}}
func respondError(c *gin.Context, log zerolog.Logger, err error) {
	status := apperrors.HTTPStatus(err)
	kind := apperrors.KindOf(err)
	body := gin.H{"kind": kind, "message": err.Error()}

	var verr *apperrors.ValidationError
	var terr *apperrors.InvalidTransitionError
	switch {
	case errors.As(err, &verr) && len(verr.Fields) > 0:
		body["details"] = verr.Fields
	case errors.As(err, &terr):
		body["details"] = gin.H{"from": terr.From, "to": terr.To, "allowed": terr.Allowed}
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		if kind == apperrors.KindInternal {
			body["message"] = "internal server error"
		}
	}

	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

// bindJSON decodes the request body or renders a ValidationError
func bindJSON(c *gin.Context, log zerolog.Logger, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, log, apperrors.Field("body", "invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

// submissionAction is a service call that moves one submission
type submissionAction func(ctx context.Context, actor models.Actor, id string) (*models.Submission, error)

// assignmentAction is a service call that moves one review assignment
type assignmentAction func(ctx context.Context, actor models.Actor, id string) (*models.ReviewAssignment, error)
