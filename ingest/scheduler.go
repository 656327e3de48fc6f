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

const cronNameScheduleScrape = "schedule_scrape_reels"

// Scheduler fans the enabled accounts out into chunked daily scrape runs.
type Scheduler struct {
	settings *config.Settings
	client   *apify.Client
}

func NewScheduler(settings *config.Settings, client *apify.Client) *Scheduler {
	return &Scheduler{settings: settings, client: client}
}

type ScheduleResult struct {
	ModelsCount    int `json:"modelsCount"`
	ChunksCount    int `json:"chunksCount"`
	SuccessfulRuns int `json:"successfulRuns"`
	ErrorCount     int `json:"errorCount"`
}

// Run submits one scrape run per chunk of usernames. Every enabled account
// is stamped as scheduled regardless of submission outcome; the stamp
// records the attempt, and failed chunks surface through the error count
// and the audit event instead.
func (s *Scheduler) Run(ctx context.Context) (ScheduleResult, error) {
	logger := config.GetLogger()
	db := config.GetDB()
	if db == nil {
		return ScheduleResult{}, errors.New("database not initialized")
	}

	enabled, err := models.GetEnabledModels(ctx, db)
	if err != nil {
		return ScheduleResult{}, err
	}

	result := ScheduleResult{ModelsCount: len(enabled)}
	if len(enabled) == 0 {
		if herr := models.UpsertCronStatus(ctx, db, cronNameScheduleScrape, true, "No enabled models"); herr != nil {
			config.LogError(logger, "ingest", "Run", "upsert cron status", nil, herr)
		}
		return result, nil
	}

	usernames := make([]string, 0, len(enabled))
	ids := make([]uuid.UUID, 0, len(enabled))
	for _, m := range enabled {
		usernames = append(usernames, m.Username)
		ids = append(ids, m.ID)
	}

	// Two workspaces tracking the same account only need one scrape.
	chunks := utils.ChunkSlice(utils.UniqueSlice(usernames), s.settings.ScheduleChunkSize)
	result.ChunksCount = len(chunks)
	callback := s.settings.WebhookCallbackURL(SourceInstagram)

	for _, chunk := range chunks {
		_, rerr := s.client.StartRun(ctx,
			apify.RunInput{
				Usernames:    chunk,
				ResultsLimit: s.settings.DailyScrapeLimit,
			},
			apify.TerminalRunWebhook(callback),
		)
		if rerr != nil {
			config.LogError(logger, "ingest", "Run", "submit scrape chunk", chunk, rerr)
			result.ErrorCount++
			continue
		}
		result.SuccessfulRuns++
	}

	if serr := models.MarkModelsDailyScheduled(ctx, db, ids, time.Now().UTC()); serr != nil {
		config.LogError(logger, "ingest", "Run", "stamp scheduled models", len(ids), serr)
		result.ErrorCount++
	}

	ok := result.ErrorCount == 0
	message := fmt.Sprintf("Scheduled %d models in %d chunks, %d runs ok, %d errors",
		result.ModelsCount, result.ChunksCount, result.SuccessfulRuns, result.ErrorCount)
	if herr := models.UpsertCronStatus(ctx, db, cronNameScheduleScrape, ok, message); herr != nil {
		config.LogError(logger, "ingest", "Run", "upsert cron status", nil, herr)
	}

	event := &models.EventLog{Event: "cron:schedule_scrape_completed", Level: models.EventLevelInfo}
	if !ok {
		event.Level = models.EventLevelWarn
	}
	_ = event.SetContext(map[string]interface{}{
		"modelsCount":    result.ModelsCount,
		"chunksCount":    result.ChunksCount,
		"successfulRuns": result.SuccessfulRuns,
		"errorCount":     result.ErrorCount,
	})
	models.LogEventBestEffort(ctx, db, logger, event)

	return result, nil
}
