package api

import (
	"io"
	"net/http"

	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/ejournal-workflow-api/internal/auth"
	"github.com/ejournal-workflow-api/internal/config"
	"github.com/ejournal-workflow-api/internal/models"
	"github.com/ejournal-workflow-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SubmissionHandler handles author endpoints
type SubmissionHandler struct {
	services *service.Services
	cfg      *config.Config
	log      zerolog.Logger
}

// NewSubmissionHandler creates a new SubmissionHandler
func NewSubmissionHandler(services *service.Services, cfg *config.Config, log zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		services: services,
		cfg:      cfg,
		log:      log.With().Str("handler", "submission").Logger(),
	}
}

// ListTopicAreas handles GET /api/topic-areas
func (h *SubmissionHandler) ListTopicAreas(c *gin.Context) {
	topics, err := h.services.Submission.ListTopicAreas(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topic_areas": topics})
}

// CreateDraft handles POST /api/submissions
func (h *SubmissionHandler) CreateDraft(c *gin.Context) {
	var patch models.SubmissionPatch
	if !bindJSON(c, h.log, &patch) {
		return
	}
	sub, err := h.services.Submission.CreateDraft(c.Request.Context(), auth.ActorFrom(c), &patch)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// ListMine handles GET /api/submissions
func (h *SubmissionHandler) ListMine(c *gin.Context) {
	subs, err := h.services.Submission.ListMine(c.Request.Context(), auth.ActorFrom(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs})
}

// Get handles GET /api/submissions/:id
func (h *SubmissionHandler) Get(c *gin.Context) {
	sub, err := h.services.Submission.Get(c.Request.Context(), auth.ActorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// UpdateDraft handles PATCH /api/submissions/:id
func (h *SubmissionHandler) UpdateDraft(c *gin.Context) {
	var patch models.SubmissionPatch
	if !bindJSON(c, h.log, &patch) {
		return
	}
	sub, err := h.services.Submission.UpdateDraft(c.Request.Context(), auth.ActorFrom(c), c.Param("id"), &patch)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// DeleteDraft handles DELETE /api/submissions/:id
func (h *SubmissionHandler) DeleteDraft(c *gin.Context) {
	if err := h.services.Submission.DeleteDraft(c.Request.Context(), auth.ActorFrom(c), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadFile handles POST /api/submissions/:id/upload-file
// Accepts a multipart form with "file" and "file_type" (manuscript or supplementary)
func (h *SubmissionHandler) UploadFile(c *gin.Context) {
	kind := models.FileKind(c.PostForm("file_type"))

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, h.log, apperrors.Field("file", "file upload is required"))
		return
	}
	defer file.Close()

	// Validate file size
	maxSize := h.cfg.Storage.MaxUploadSize
	if maxSize > 0 && header.Size > maxSize {
		respondError(c, h.log, apperrors.Field("file", "file exceeds maximum upload size"))
		return
	}

	var reader io.Reader = file
	if maxSize > 0 {
		reader = io.LimitReader(file, maxSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read upload")
		respondError(c, h.log, err)
		return
	}

	result, err := h.services.Submission.UploadFile(c.Request.Context(), auth.ActorFrom(c), c.Param("id"), kind, header.Filename, data)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.log.Info().
		Str("submission_id", c.Param("id")).
		Str("file_type", string(kind)).
		Str("file", header.Filename).
		Int64("size_bytes", header.Size).
		Msg("File uploaded")

	c.JSON(http.StatusCreated, result)
}

// Submit handles POST /api/submissions/:id/submit
func (h *SubmissionHandler) Submit(c *gin.Context) {
	h.transition(c, h.services.Submission.Submit)
}

// Resubmit handles POST /api/submissions/:id/resubmit
func (h *SubmissionHandler) Resubmit(c *gin.Context) {
	h.transition(c, h.services.Submission.Resubmit)
}

// Withdraw handles POST /api/submissions/:id/withdraw
func (h *SubmissionHandler) Withdraw(c *gin.Context) {
	h.transition(c, h.services.Submission.Withdraw)
}

// ListVersions handles GET /api/submissions/:id/versions
func (h *SubmissionHandler) ListVersions(c *gin.Context) {
	versions, err := h.services.Submission.ListVersions(c.Request.Context(), auth.ActorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

func (h *SubmissionHandler) transition(c *gin.Context, action submissionAction) {
	sub, err := action(c.Request.Context(), auth.ActorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}
