package ingest

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bitbucket.org/reelpulse/reels_backend/apify"
	"bitbucket.org/reelpulse/reels_backend/config"
	"bitbucket.org/reelpulse/reels_backend/models"
	"bitbucket.org/reelpulse/reels_backend/utils"
)

const cronNameWebhookLast = "apify_webhook_last"

// ApifyWebhookHandler accepts provider run notifications and persists them
// to the inbox. It answers quickly and never triggers dataset processing
// inline; a duplicate notification is acknowledged exactly like a first one.
func ApifyWebhookHandler(settings *config.Settings) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		ctx := c.Request.Context()

		if subtle.ConstantTimeCompare([]byte(c.Query("secret")), []byte(settings.WebhookSecret)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
			return
		}

		source := strings.TrimSpace(c.Query("source"))
		if source == "" {
			source = SourceInstagram
		}

		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			webhookHeartbeat(ctx, logger, false, "body read failed")
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
			return
		}

		payload, err := apify.ParseWebhookPayload(raw)
		if err != nil {
			webhookHeartbeat(ctx, logger, false, "malformed payload")
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "malformed payload"})
			return
		}

		hash := apify.HashKey(payload.DedupeKey())
		entry := &models.WebhookInbox{
			Source:      source,
			PayloadJSON: raw,
			Hash:        hash,
			DedupeKey:   hash,
			Processed:   utils.NewFalse(),
		}

		db := config.GetDB()
		inserted, err := models.InsertWebhookInbox(ctx, db, entry)
		if err != nil {
			config.LogError(logger, "ingest", "ApifyWebhookHandler", "insert inbox entry", hash, err)
			webhookHeartbeat(ctx, logger, false, "inbox insert failed")
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "store failed"})
			return
		}
		if !inserted {
			logger.WithField("hash", hash).Info("duplicate webhook acknowledged")
		}

		webhookHeartbeat(ctx, logger, true, "webhook stored")

		// Nudge a drain so fresh datasets are picked up before the next
		// scheduled run. Delivery is best effort.
		if inserted {
			PublishInboxNudge(ctx, hash)
		}

		c.JSON(http.StatusOK, gin.H{"ok": true, "hash": hash})
	}
}

// webhookHeartbeat records webhook liveness on both outcomes. Receipt
// failures must still be visible to monitoring, so the write happens even
// when the request is about to be rejected.
func webhookHeartbeat(ctx context.Context, logger *logrus.Logger, ok bool, message string) {
	db := config.GetDB()
	if db == nil {
		return
	}
	hbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := models.UpsertCronStatus(hbCtx, db, cronNameWebhookLast, ok, message); err != nil {
		logger.Warnf("webhook heartbeat write failed: %v", err)
	}
}
