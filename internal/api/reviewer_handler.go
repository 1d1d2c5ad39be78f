package api

import (
	"net/http"

	"github.com/ejournal-workflow-api/internal/auth"
	"github.com/ejournal-workflow-api/internal/models"
	"github.com/ejournal-workflow-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ReviewerHandler handles reviewer endpoints
type ReviewerHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewReviewerHandler creates a new ReviewerHandler
func NewReviewerHandler(services *service.Services, log zerolog.Logger) *ReviewerHandler {
	return &ReviewerHandler{
		services: services,
		log:      log.With().Str("handler", "reviewer").Logger(),
	}
}

// ListMine handles GET /api/reviewer/assignments
func (h *ReviewerHandler) ListMine(c *gin.Context) {
	assignments, err := h.services.Review.ListMine(c.Request.Context(), auth.ActorFrom(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": assignments})
}

// Accept handles POST /api/reviewer/assignments/:id/accept
func (h *ReviewerHandler) Accept(c *gin.Context) {
	h.respond(c, h.services.Review.Accept)
}

// Decline handles POST /api/reviewer/assignments/:id/decline
func (h *ReviewerHandler) Decline(c *gin.Context) {
	h.respond(c, h.services.Review.Decline)
}

// SubmitReview handles POST /api/reviewer/assignments/:id/submit-review
func (h *ReviewerHandler) SubmitReview(c *gin.Context) {
	var in models.ReviewInput
	if !bindJSON(c, h.log, &in) {
		return
	}
	review, err := h.services.Review.SubmitReview(c.Request.Context(), auth.ActorFrom(c), c.Param("id"), &in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

// LookupToken handles GET /api/reviewer/accept-by-token?token=
func (h *ReviewerHandler) LookupToken(c *gin.Context) {
	assignment, err := h.services.Review.LookupToken(c.Request.Context(), auth.ActorFrom(c), c.Query("token"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}

// AcceptByToken handles POST /api/reviewer/accept-by-token
func (h *ReviewerHandler) AcceptByToken(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if !bindJSON(c, h.log, &req) {
		return
	}
	assignment, err := h.services.Review.AcceptByToken(c.Request.Context(), auth.ActorFrom(c), req.Token)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}

func (h *ReviewerHandler) respond(c *gin.Context, action assignmentAction) {
	assignment, err := action(c.Request.Context(), auth.ActorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}
