package ingest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bitbucket.org/reelpulse/reels_backend/config"
	"bitbucket.org/reelpulse/reels_backend/models"
)

const dashboardSummaryCacheKey = "dashboard:summary"

type DashboardSummary struct {
	EnabledModels    int64 `json:"enabledModels"`
	TotalReels       int64 `json:"totalReels"`
	UnprocessedInbox int64 `json:"unprocessedInbox"`
}

// DashboardSummaryHandler serves the counters behind the ops dashboard.
// The summary is cached in Redis and invalidated after every drain run.
func DashboardSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		db := config.GetDB()

		var cached DashboardSummary
		if hit, err := config.GetRedisObject(dashboardSummaryCacheKey, &cached); err == nil && hit {
			c.JSON(http.StatusOK, cached)
			return
		}

		var summary DashboardSummary
		err := db.WithContext(ctx).Model(&models.Model{}).
			Where("status = ?", models.ModelStatusEnabled).
			Count(&summary.EnabledModels).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := db.WithContext(ctx).Model(&models.Reel{}).Count(&summary.TotalReels).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		summary.UnprocessedInbox, err = models.CountUnprocessedWebhooks(ctx, db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if err := config.SetRedisObject(dashboardSummaryCacheKey, summary, 5*time.Minute); err != nil {
			config.GetLogger().Warnf("dashboard summary cache write failed: %v", err)
		}
		c.JSON(http.StatusOK, summary)
	}
}
