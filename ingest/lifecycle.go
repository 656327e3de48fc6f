package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bitbucket.org/reelpulse/reels_backend/apify"
	"bitbucket.org/reelpulse/reels_backend/config"
	"bitbucket.org/reelpulse/reels_backend/models"
	"bitbucket.org/reelpulse/reels_backend/utils"
)

// ErrProviderSubmission wraps a failed scrape-run submission. The lifecycle
// state change is kept in that case; the next scheduled run covers the
// account, and reverting would hide that the user asked for tracking.
var ErrProviderSubmission = errors.New("provider submission failed")

var ErrInvalidTransition = errors.New("invalid status transition")

// Lifecycle enables and disables tracked accounts and kicks off the initial
// history backfill.
type Lifecycle struct {
	settings *config.Settings
	client   *apify.Client
}

func NewLifecycle(settings *config.Settings, client *apify.Client) *Lifecycle {
	return &Lifecycle{settings: settings, client: client}
}

// Enable marks the account enabled, records the audit event and submits the
// backfill run. The status write deliberately precedes the submission.
func (l *Lifecycle) Enable(ctx context.Context, modelId uuid.UUID) error {
	logger := config.GetLogger()
	db := config.GetDB()

	model, err := models.GetModelById(ctx, db, modelId)
	if err != nil {
		return err
	}
	if !models.CanTransition(model.Status, models.ModelStatusEnabled) {
		return fmt.Errorf("%w: %s -> enabled", ErrInvalidTransition, model.Status)
	}

	now := time.Now().UTC()
	err = db.WithContext(ctx).Model(&models.Model{}).
		Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"status":           models.ModelStatusEnabled,
			"last_backfill_at": now,
		}).Error
	if err != nil {
		return err
	}

	event := &models.EventLog{
		WorkspaceId: &model.WorkspaceId,
		Event:       "model:enabled",
		Level:       models.EventLevelInfo,
		Page:        "/models",
	}
	_ = event.SetContext(map[string]interface{}{
		"modelId":  model.ID.String(),
		"username": model.Username,
	})
	models.LogEventBestEffort(ctx, db, logger, event)

	runId, err := l.client.StartRun(ctx,
		apify.RunInput{
			Usernames:    []string{model.Username},
			ResultsLimit: l.settings.BackfillLimit,
		},
		apify.TerminalRunWebhook(l.settings.WebhookCallbackURL(model.Platform)),
	)
	if err != nil {
		config.LogError(logger, "ingest", "Enable", "submit backfill run", model.Username, err)
		failure := &models.EventLog{
			WorkspaceId: &model.WorkspaceId,
			Event:       "model:apify_error",
			Level:       models.EventLevelError,
			Page:        "/models",
		}
		_ = failure.SetContext(map[string]interface{}{
			"modelId": model.ID.String(),
			"error":   err.Error(),
		})
		models.LogEventBestEffort(ctx, db, logger, failure)
		return fmt.Errorf("%w: %v", ErrProviderSubmission, err)
	}

	if runId != "" {
		err = db.WithContext(ctx).Model(&models.Model{}).
			Where("id = ?", model.ID).
			Update("apify_task_id", runId).Error
		if err != nil {
			config.LogError(logger, "ingest", "Enable", "store run id", runId, err)
		}
	}
	return nil
}

// Disable stops scheduling for the account. Already-queued inbox entries
// still drain; disabling affects future scheduling only.
func (l *Lifecycle) Disable(ctx context.Context, modelId uuid.UUID) error {
	logger := config.GetLogger()
	db := config.GetDB()

	model, err := models.GetModelById(ctx, db, modelId)
	if err != nil {
		return err
	}
	if !models.CanTransition(model.Status, models.ModelStatusDisabled) {
		return fmt.Errorf("%w: %s -> disabled", ErrInvalidTransition, model.Status)
	}

	err = db.WithContext(ctx).Model(&models.Model{}).
		Where("id = ?", model.ID).
		Update("status", models.ModelStatusDisabled).Error
	if err != nil {
		return err
	}

	event := &models.EventLog{
		WorkspaceId: &model.WorkspaceId,
		Event:       "model:disabled",
		Level:       models.EventLevelInfo,
		Page:        "/models",
	}
	_ = event.SetContext(map[string]interface{}{
		"modelId":  model.ID.String(),
		"username": model.Username,
	})
	models.LogEventBestEffort(ctx, db, logger, event)
	return nil
}

// IsNotFound reports whether err is the missing-record error, so handlers
// can map it to a 404 without importing gorm.
func IsNotFound(err error) bool {
	return errors.Is(err, utils.ErrorRecordNotFound)
}
