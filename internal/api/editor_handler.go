package api

import (
	"net/http"

	"github.com/ejournal-workflow-api/internal/auth"
	"github.com/ejournal-workflow-api/internal/models"
	"github.com/ejournal-workflow-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// EditorHandler handles editor endpoints
type EditorHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewEditorHandler creates a new EditorHandler
func NewEditorHandler(services *service.Services, log zerolog.Logger) *EditorHandler {
	return &EditorHandler{
		services: services,
		log:      log.With().Str("handler", "editor").Logger(),
	}
}

// List handles GET /api/editor/submissions?status=
func (h *EditorHandler) List(c *gin.Context) {
	status := models.SubmissionStatus(c.Query("status"))
	subs, err := h.services.Editorial.List(c.Request.Context(), auth.ActorFrom(c), status)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs})
}

// Get handles GET /api/editor/submissions/:id
func (h *EditorHandler) Get(c *gin.Context) {
	detail, err := h.services.Editorial.Get(c.Request.Context(), auth.ActorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// StartScreening handles POST /api/editor/submissions/:id/start-screening
func (h *EditorHandler) StartScreening(c *gin.Context) {
	h.transition(c, h.services.Editorial.StartScreening)
}

// DeskReject handles POST /api/editor/submissions/:id/desk-reject
func (h *EditorHandler) DeskReject(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !bindJSON(c, h.log, &req) {
		return
	}
	sub, err := h.services.Editorial.DeskReject(c.Request.Context(), auth.ActorFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// SendToReview handles POST /api/editor/submissions/:id/send-to-review
func (h *EditorHandler) SendToReview(c *gin.Context) {
	h.transition(c, h.services.Editorial.SendToReview)
}

// InviteReviewer handles POST /api/editor/submissions/:id/invite-reviewer
func (h *EditorHandler) InviteReviewer(c *gin.Context) {
	var req models.InviteRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	assignment, err := h.services.Editorial.InviteReviewer(c.Request.Context(), auth.ActorFrom(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, assignment)
}

// MoveToDecision handles POST /api/editor/submissions/:id/move-to-decision
func (h *EditorHandler) MoveToDecision(c *gin.Context) {
	h.transition(c, h.services.Editorial.MoveToDecision)
}

// Decide handles POST /api/editor/submissions/:id/decision
func (h *EditorHandler) Decide(c *gin.Context) {
	var req models.DecisionRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	sub, err := h.services.Editorial.Decide(c.Request.Context(), auth.ActorFrom(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// Publish handles POST /api/editor/submissions/:id/publish
func (h *EditorHandler) Publish(c *gin.Context) {
	h.transition(c, h.services.Editorial.Publish)
}

// Remind handles POST /api/editor/review-assignments/:id/remind
func (h *EditorHandler) Remind(c *gin.Context) {
	assignment, err := h.services.Editorial.Remind(c.Request.Context(), auth.ActorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"assignment_id": assignment.ID,
		"message":       "Reminder queued",
	})
}

func (h *EditorHandler) transition(c *gin.Context, action submissionAction) {
	sub, err := action(c.Request.Context(), auth.ActorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}
