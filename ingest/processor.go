package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"bitbucket.org/reelpulse/reels_backend/apify"
	"bitbucket.org/reelpulse/reels_backend/config"
	"bitbucket.org/reelpulse/reels_backend/models"
)

const (
	cronNameProcessInbox = "process_inbox"
	drainLockKey         = "lock:process_inbox"
)

// Processor drains the webhook inbox: it fetches the dataset behind each
// unprocessed entry and reconciles every item into the relational store.
type Processor struct {
	settings *config.Settings
	client   *apify.Client
}

func NewProcessor(settings *config.Settings, client *apify.Client) *Processor {
	return &Processor{settings: settings, client: client}
}

type DrainResult struct {
	Processed  int `json:"processed"`
	Skipped    int `json:"skipped"`
	Errors     int `json:"errors"`
	ItemErrors int `json:"itemErrors"`
}

// Drain runs one batch. Entries whose dataset fetch fails stay unprocessed
// and are retried on the next run; everything else is marked processed even
// when individual items were skipped or failed, because per-item retry would
// re-fetch the whole dataset for no gain.
func (p *Processor) Drain(ctx context.Context) (DrainResult, error) {
	logger := config.GetLogger()
	db := config.GetDB()
	if db == nil {
		return DrainResult{}, errors.New("database not initialized")
	}

	// The lock is an optimization only. Concurrent drains stay correct
	// because every write below is an idempotent upsert.
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, drainLockKey, p.settings.DrainLockTTL, nil)
		if err == nil {
			defer lock.Release(context.Background())
		} else if err == redislock.ErrNotObtained {
			logger.Warn("another inbox drain appears active; continuing anyway")
		} else {
			config.LogError(logger, "ingest", "Drain", "obtain drain lock", nil, err)
		}
	}

	batch, err := models.GetUnprocessedWebhooks(ctx, db, p.settings.InboxBatchSize)
	if err != nil {
		return DrainResult{}, err
	}
	if len(batch) == 0 {
		if herr := models.UpsertCronStatus(ctx, db, cronNameProcessInbox, true, "No webhooks to process"); herr != nil {
			config.LogError(logger, "ingest", "Drain", "upsert cron status", nil, herr)
		}
		return DrainResult{}, nil
	}

	var result DrainResult
	touched := map[uuid.UUID]struct{}{}

	for _, entry := range batch {
		payload, perr := apify.ParseWebhookPayload(entry.PayloadJSON)
		if perr != nil {
			// A payload that never parses would wedge the queue if left
			// unprocessed. Count it and move on.
			config.LogError(logger, "ingest", "Drain", "parse inbox payload", entry.ID, perr)
			result.Errors++
			p.markProcessed(ctx, db, entry.ID)
			continue
		}

		datasetID := payload.DatasetID()
		if datasetID == "" {
			result.Skipped++
			p.markProcessed(ctx, db, entry.ID)
			continue
		}

		items, ferr := p.client.DatasetItems(ctx, datasetID)
		if ferr != nil {
			config.LogError(logger, "ingest", "Drain", "fetch dataset", datasetID, ferr)
			result.Errors++
			continue
		}

		rc := reconcilerFor(entry.Source)
		for _, item := range items {
			if rerr := rc.Reconcile(ctx, db, item, touched); rerr != nil {
				config.LogError(logger, "ingest", "Drain", "reconcile post", item.ID, rerr)
				result.ItemErrors++
			}
		}

		p.markProcessed(ctx, db, entry.ID)
		result.Processed++
	}

	ids := make([]uuid.UUID, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	if merr := models.MarkModelsScraped(ctx, db, ids, time.Now().UTC()); merr != nil {
		config.LogError(logger, "ingest", "Drain", "stamp scraped models", len(ids), merr)
		result.Errors++
	}

	ok := result.Errors == 0 && result.ItemErrors == 0
	message := fmt.Sprintf("Processed %d webhooks, %d skipped, %d errors, %d item errors",
		result.Processed, result.Skipped, result.Errors, result.ItemErrors)
	if herr := models.UpsertCronStatus(ctx, db, cronNameProcessInbox, ok, message); herr != nil {
		config.LogError(logger, "ingest", "Drain", "upsert cron status", nil, herr)
	}

	event := &models.EventLog{Event: "cron:process_inbox_completed", Level: models.EventLevelInfo}
	if !ok {
		event.Level = models.EventLevelWarn
	}
	_ = event.SetContext(map[string]interface{}{
		"processed":  result.Processed,
		"skipped":    result.Skipped,
		"errors":     result.Errors,
		"itemErrors": result.ItemErrors,
	})
	models.LogEventBestEffort(ctx, db, logger, event)

	invalidateDashboardCache(logger)
	return result, nil
}

func (p *Processor) markProcessed(ctx context.Context, db *gorm.DB, id uint) {
	if err := models.MarkWebhookProcessed(ctx, db, id, time.Now().UTC()); err != nil {
		config.LogError(config.GetLogger(), "ingest", "markProcessed", "mark webhook processed", id, err)
	}
}
