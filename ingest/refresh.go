package ingest

import (
	"github.com/sirupsen/logrus"

	"bitbucket.org/reelpulse/reels_backend/config"
)

// invalidateDashboardCache drops cached dashboard aggregates after a drain
// so readers see the reconciled numbers. Failures are logged and ignored;
// stale cache entries expire on their own.
func invalidateDashboardCache(logger *logrus.Logger) {
	if err := config.RemoveRedisKeysByPattern("dashboard:*"); err != nil {
		logger.Warnf("dashboard cache invalidation failed: %v", err)
	}
}
