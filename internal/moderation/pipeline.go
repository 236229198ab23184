package moderation

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"eco-moderation/internal/config"
	"eco-moderation/internal/llm"
	"eco-moderation/internal/models"
	"eco-moderation/internal/notifier"
	"eco-moderation/internal/repository"

	"go.uber.org/zap"
)

// Reasons stored on records that did not get a normal classifier verdict
const (
	ReasonTranscriptionQuota  = "manual review required: transcription quota exceeded"
	ReasonClassificationQuota = "manual review required: classification quota exceeded"
	ReasonUnavailable         = "manual review required: moderation unavailable"
	ReasonSkipped             = "moderation skipped: moderation unavailable"
	DefaultFlaggedReason      = "inappropriate content detected by AI"

	TranscriptQuotaPlaceholder = "(transcript unavailable: quota exceeded)"
)

// Messages returned for deliveries that changed nothing
const (
	MsgNoRecord         = "No audio record found"
	MsgAlreadyProcessed = "Already processed"
	MsgNotFound         = "Audio record not found"
	MsgInProgress       = "Already in progress"
	MsgAdminNotified    = "Quota exceeded, admin notified"
)

// Fetcher downloads the stored audio file
type Fetcher interface {
	Fetch(ctx context.Context, fileURL string) ([]byte, error)
}

// Transcriber turns audio into text
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Locker guards a record against concurrent processing
type Locker interface {
	Acquire(ctx context.Context, audioID string) (release func(), acquired bool, err error)
}

// Dependencies wires the pipeline to its collaborators. Locker is optional.
type Dependencies struct {
	Audios      repository.AudioRepository
	Logs        repository.ModerationLogRepository
	Fetcher     Fetcher
	Transcriber Transcriber
	Classifier  llm.Classifier
	Notifier    notifier.Notifier
	Locker      Locker
}

// Result describes what one delivery did
type Result struct {
	Skipped    bool
	Message    string
	Status     models.ModerationStatus
	Reason     *string
	Transcript string
	Notified   bool
}

// Flagged reports whether the record ended up flagged by this delivery
func (r *Result) Flagged() bool {
	return r.Status == models.StatusFlagged
}

// Pipeline runs one moderation pass per webhook delivery
type Pipeline struct {
	deps          Dependencies
	failurePolicy string
	logger        *zap.Logger
}

func NewPipeline(deps Dependencies, failurePolicy string, logger *zap.Logger) (*Pipeline, error) {
	if deps.Audios == nil || deps.Fetcher == nil || deps.Transcriber == nil || deps.Classifier == nil || deps.Notifier == nil {
		return nil, fmt.Errorf("moderation pipeline is missing a dependency")
	}
	switch failurePolicy {
	case "":
		failurePolicy = config.FailureClosed
	case config.FailureClosed, config.FailureOpen, config.FailureError:
	default:
		return nil, fmt.Errorf("unsupported failure policy %q", failurePolicy)
	}
	return &Pipeline{deps: deps, failurePolicy: failurePolicy, logger: logger}, nil
}

func skipped(msg string) *Result {
	return &Result{Skipped: true, Message: msg}
}

// Process moderates the record carried by a webhook delivery. A returned error means
// nothing was decided and the delivery may be retried.
func (p *Pipeline) Process(ctx context.Context, record *models.AudioRecord) (*Result, error) {
	if record == nil || record.ID == "" || record.FileURL == "" {
		return skipped(MsgNoRecord), nil
	}

	log := p.logger.With(zap.String("audio_id", record.ID))

	if record.CurrentStatus() != models.StatusPending {
		log.Debug("Delivery for an already moderated record", zap.String("status", string(record.ModerationStatus)))
		return skipped(MsgAlreadyProcessed), nil
	}

	stored, err := p.deps.Audios.GetByID(ctx, record.ID)
	if err != nil {
		if errors.Is(err, repository.ErrAudioNotFound) {
			log.Warn("Webhook record is not in the store")
			return skipped(MsgNotFound), nil
		}
		return nil, err
	}
	if stored.CurrentStatus() != models.StatusPending {
		log.Info("Record already moderated, skipping", zap.String("status", string(stored.ModerationStatus)))
		return skipped(MsgAlreadyProcessed), nil
	}
	if stored.FileURL == "" {
		stored.FileURL = record.FileURL
	}

	if p.deps.Locker != nil {
		release, acquired, err := p.deps.Locker.Acquire(ctx, stored.ID)
		switch {
		case err != nil:
			// the conditional write still guarantees a single transition
			log.Warn("Inflight lock unavailable, continuing without it", zap.Error(err))
		case !acquired:
			log.Info("Record is being moderated by another delivery")
			return skipped(MsgInProgress), nil
		default:
			defer release()
		}
	}

	transcript, cached := "", false
	if stored.Transcript != nil && *stored.Transcript != "" {
		transcript, cached = *stored.Transcript, true
		log.Info("Reusing cached transcript")
	} else {
		audio, err := p.deps.Fetcher.Fetch(ctx, stored.FileURL)
		if err != nil {
			log.Error("Failed to fetch audio", zap.String("file_url", stored.FileURL), zap.Error(err))
			return nil, err
		}

		transcript, err = p.deps.Transcriber.Transcribe(ctx, audio, audioFilename(stored.FileURL))
		if err != nil {
			if errors.Is(err, llm.ErrQuotaExceeded) {
				log.Warn("Transcription quota exceeded, sending to manual review", zap.Error(err))
				return p.decide(ctx, stored, decision{
					status:     models.StatusFlagged,
					reason:     models.StringPtr(ReasonTranscriptionQuota),
					transcript: models.StringPtr(TranscriptQuotaPlaceholder),
					action:     models.LogActionManualReview,
					alert:      notifier.KindManualReview,
					message:    MsgAdminNotified,
				})
			}
			return p.downstreamFailure(ctx, stored, nil, fmt.Errorf("transcription: %w", err))
		}
		log.Info("Audio transcribed", zap.Int("chars", len(transcript)))
	}

	verdict, err := p.deps.Classifier.Classify(ctx, transcript)
	if err != nil {
		if errors.Is(err, llm.ErrQuotaExceeded) {
			log.Warn("Classification quota exceeded, sending to manual review", zap.Error(err))
			return p.decide(ctx, stored, decision{
				status:     models.StatusFlagged,
				reason:     models.StringPtr(ReasonClassificationQuota),
				transcript: models.StringPtr(transcript),
				action:     models.LogActionManualReview,
				alert:      notifier.KindManualReview,
				message:    MsgAdminNotified,
			})
		}
		if !cached {
			return p.downstreamFailure(ctx, stored, models.StringPtr(transcript), fmt.Errorf("classification: %w", err))
		}
		return p.downstreamFailure(ctx, stored, nil, fmt.Errorf("classification: %w", err))
	}

	log.Info("Moderation verdict received",
		zap.Bool("flagged", verdict.Flagged),
		zap.String("provider", verdict.Provider),
		zap.String("model", verdict.Model))

	if verdict.Flagged {
		return p.decide(ctx, stored, decision{
			status:     models.StatusFlagged,
			reason:     models.StringPtr(verdict.ReasonOr(DefaultFlaggedReason)),
			transcript: models.StringPtr(transcript),
			action:     models.LogActionVerdict,
			alert:      notifier.KindFlagged,
		})
	}
	return p.decide(ctx, stored, decision{
		status:     models.StatusSafe,
		transcript: models.StringPtr(transcript),
		action:     models.LogActionVerdict,
	})
}

// downstreamFailure applies the configured policy to a provider failure that is not a quota error.
// freshTranscript is set when a transcript was produced by this delivery and not yet stored.
func (p *Pipeline) downstreamFailure(ctx context.Context, stored *models.AudioRecord, freshTranscript *string, cause error) (*Result, error) {
	log := p.logger.With(zap.String("audio_id", stored.ID), zap.String("failure_policy", p.failurePolicy))
	log.Error("Moderation provider failed", zap.Error(cause))

	transcript := freshTranscript
	if transcript == nil {
		transcript = stored.Transcript
	}

	switch p.failurePolicy {
	case config.FailureOpen:
		return p.decide(ctx, stored, decision{
			status:     models.StatusSafe,
			reason:     models.StringPtr(ReasonSkipped),
			transcript: transcript,
			action:     models.LogActionFailOpen,
			alert:      notifier.KindManualReview,
		})
	case config.FailureError:
		if freshTranscript != nil {
			if err := p.deps.Audios.CacheTranscript(ctx, stored.ID, *freshTranscript); err != nil {
				log.Warn("Failed to cache transcript", zap.Error(err))
			}
		}
		return nil, cause
	default:
		return p.decide(ctx, stored, decision{
			status:     models.StatusFlagged,
			reason:     models.StringPtr(ReasonUnavailable),
			transcript: transcript,
			action:     models.LogActionManualReview,
			alert:      notifier.KindManualReview,
		})
	}
}

type decision struct {
	status     models.ModerationStatus
	reason     *string
	transcript *string
	action     string
	// alert is empty when no admin notification is needed
	alert   notifier.AlertKind
	message string
}

// decide performs the single conditional write and its side effects
func (p *Pipeline) decide(ctx context.Context, stored *models.AudioRecord, d decision) (*Result, error) {
	log := p.logger.With(zap.String("audio_id", stored.ID))

	applied, err := p.deps.Audios.ApplyVerdict(ctx, stored.ID, d.status, d.reason, d.transcript)
	if err != nil {
		return nil, err
	}
	if !applied {
		log.Info("Record was moderated concurrently, discarding this verdict")
		return skipped(MsgAlreadyProcessed), nil
	}

	log.Info("Moderation status updated",
		zap.String("status", string(d.status)),
		zap.String("reason", deref(d.reason)))

	if p.deps.Logs != nil {
		entry := models.NewModerationLog(stored.ID, d.action, d.status, d.reason, models.ActorPipeline)
		if err := p.deps.Logs.Append(ctx, entry); err != nil {
			log.Warn("Failed to write moderation log", zap.Error(err))
		}
	}

	res := &Result{
		Message:    d.message,
		Status:     d.status,
		Reason:     d.reason,
		Transcript: deref(d.transcript),
	}

	if d.alert != "" {
		alert := notifier.Alert{
			Kind:       d.alert,
			Record:     stored,
			Transcript: res.Transcript,
			Reason:     deref(d.reason),
		}
		if err := p.deps.Notifier.Notify(ctx, alert); err != nil {
			log.Error("Failed to notify admin", zap.Error(err))
		} else {
			res.Notified = true
		}
	}

	return res, nil
}

func audioFilename(fileURL string) string {
	name := path.Base(strings.SplitN(fileURL, "?", 2)[0])
	if name == "" || name == "." || name == "/" || !strings.Contains(name, ".") {
		return "audio.mp3"
	}
	return name
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
