package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"eco-moderation/internal/models"
	"eco-moderation/internal/moderation"
	"eco-moderation/internal/repository"
	"eco-moderation/internal/storage"
	"eco-moderation/internal/token"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Plain-text answers of the admin action endpoint
const (
	msgConfigMissing = "Configuration missing"
	msgMissingParams = "Missing parameters"
	msgInvalidToken  = "Invalid token"
	msgLinkUsed      = "Link already used"
	msgInvalidAction = "Invalid action"
	msgAudioNotFound = "Audio not found (already deleted?)"
	msgInternalError = "Internal error"
)

// Processor runs the moderation pipeline for a webhook record
type Processor interface {
	Process(ctx context.Context, record *models.AudioRecord) (*moderation.Result, error)
}

// TokenConsumer marks action tokens as used
type TokenConsumer interface {
	Consume(ctx context.Context, recordID, token string) (bool, error)
}

// BlobRemover deletes the stored audio object of a removed eco
type BlobRemover interface {
	Remove(ctx context.Context, fileURL string) error
}

// Options carries the handler collaborators. Consumed and Blobs are optional.
// Pipeline and Signer are nil when MissingSecrets is not empty.
type Options struct {
	Pipeline       Processor
	Audios         repository.AudioRepository
	Logs           repository.ModerationLogRepository
	Signer         token.Signer
	Consumed       TokenConsumer
	Blobs          BlobRemover
	MissingSecrets []string
}

// Handler handles HTTP requests
type Handler struct {
	opts   Options
	logger *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(opts Options, logger *zap.Logger) *Handler {
	return &Handler{opts: opts, logger: logger}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	for _, path := range []string{"/moderate-content", "/functions/v1/moderate-content"} {
		r.POST(path, h.Moderate)
		r.GET(path, h.AdminAction)
		r.OPTIONS(path, Preflight)
	}

	r.GET("/health", h.HealthCheck)
}

func (h *Handler) configured() bool {
	return len(h.opts.MissingSecrets) == 0 && h.opts.Pipeline != nil && h.opts.Signer != nil && h.opts.Audios != nil
}

// Moderate handles the database webhook delivery
func (h *Handler) Moderate(c *gin.Context) {
	if !h.configured() {
		h.logger.Error("Moderation webhook called with incomplete configuration",
			zap.Strings("missing", h.opts.MissingSecrets))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgConfigMissing})
		return
	}

	var payload models.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook payload"})
		return
	}

	h.logger.Debug("Webhook received",
		zap.String("type", payload.Type),
		zap.String("table", payload.Table))

	res, err := h.opts.Pipeline.Process(c.Request.Context(), payload.Record)
	if err != nil {
		h.logger.Error("Moderation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if res.Skipped {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": res.Message})
		return
	}

	body := gin.H{
		"success":    true,
		"flagged":    res.Flagged(),
		"transcript": res.Transcript,
	}
	if res.Message != "" {
		body["message"] = res.Message
	}
	c.JSON(http.StatusOK, body)
}

// AdminAction applies a keep/delete decision from a signed link
func (h *Handler) AdminAction(c *gin.Context) {
	if h.opts.Signer == nil || h.opts.Audios == nil {
		c.String(http.StatusInternalServerError, msgConfigMissing)
		return
	}

	var req models.AdminActionRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.String(http.StatusBadRequest, msgMissingParams)
		return
	}
	req.RecordID = strings.TrimSpace(req.RecordID)
	if req.RecordID == "" || req.Action == "" || req.Token == "" {
		c.String(http.StatusBadRequest, msgMissingParams)
		return
	}

	log := h.logger.With(zap.String("audio_id", req.RecordID), zap.String("action", string(req.Action)))

	if !h.opts.Signer.Verify(req.RecordID, req.Token) {
		log.Warn("Rejected admin action with invalid token")
		c.String(http.StatusForbidden, msgInvalidToken)
		return
	}

	if req.Action != models.ActionDelete && req.Action != models.ActionKeep {
		c.String(http.StatusBadRequest, msgInvalidAction)
		return
	}

	if h.opts.Consumed != nil {
		fresh, err := h.opts.Consumed.Consume(c.Request.Context(), req.RecordID, req.Token)
		if err != nil {
			log.Error("Failed to check link usage", zap.Error(err))
			c.String(http.StatusInternalServerError, msgInternalError)
			return
		}
		if !fresh {
			log.Warn("Rejected reused admin link")
			c.String(http.StatusForbidden, msgLinkUsed)
			return
		}
	}

	switch req.Action {
	case models.ActionDelete:
		h.deleteAudio(c, log, req.RecordID)
	case models.ActionKeep:
		h.keepAudio(c, log, req.RecordID)
	}
}

func (h *Handler) deleteAudio(c *gin.Context, log *zap.Logger, id string) {
	ctx := c.Request.Context()

	audio, err := h.opts.Audios.GetByID(ctx, id)
	if errors.Is(err, repository.ErrAudioNotFound) {
		c.String(http.StatusNotFound, msgAudioNotFound)
		return
	}
	if err != nil {
		log.Error("Failed to load audio", zap.Error(err))
		c.String(http.StatusInternalServerError, msgInternalError)
		return
	}

	deleted, err := h.opts.Audios.Delete(ctx, id)
	if err != nil {
		log.Error("Failed to delete audio", zap.Error(err))
		c.String(http.StatusInternalServerError, msgInternalError)
		return
	}
	if !deleted {
		c.String(http.StatusNotFound, msgAudioNotFound)
		return
	}

	if h.opts.Blobs != nil {
		if err := h.opts.Blobs.Remove(ctx, audio.FileURL); err != nil {
			if errors.Is(err, storage.ErrNotStorageURL) {
				log.Debug("Audio file is not in managed storage", zap.String("file_url", audio.FileURL))
			} else {
				log.Warn("Failed to remove audio object", zap.Error(err))
			}
		}
	}

	h.audit(ctx, log, models.NewModerationLog(id, models.LogActionDelete, audio.CurrentStatus(), audio.ModerationReason, models.ActorAdminLink))
	log.Info("Audio deleted by admin")

	c.Data(http.StatusOK, htmlContentType, deletedPage)
}

func (h *Handler) keepAudio(c *gin.Context, log *zap.Logger, id string) {
	ctx := c.Request.Context()

	found, err := h.opts.Audios.MarkSafe(ctx, id)
	if err != nil {
		log.Error("Failed to approve audio", zap.Error(err))
		c.String(http.StatusInternalServerError, msgInternalError)
		return
	}
	if !found {
		c.String(http.StatusNotFound, msgAudioNotFound)
		return
	}

	h.audit(ctx, log, models.NewModerationLog(id, models.LogActionKeep, models.StatusSafe, nil, models.ActorAdminLink))
	log.Info("Audio approved by admin")

	c.Data(http.StatusOK, htmlContentType, keptPage)
}

func (h *Handler) audit(ctx context.Context, log *zap.Logger, entry *models.ModerationLog) {
	if h.opts.Logs == nil {
		return
	}
	if err := h.opts.Logs.Append(ctx, entry); err != nil {
		log.Warn("Failed to write moderation log", zap.Error(err))
	}
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *gin.Context) {
	status := "ok"
	if !h.configured() {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"service": "eco-moderation",
	})
}
