package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/reelpulse/reels_backend/apify"
	"bitbucket.org/reelpulse/reels_backend/config"
	"bitbucket.org/reelpulse/reels_backend/models"
	"bitbucket.org/reelpulse/reels_backend/utils"
)

// Reconciler maps one scraped post onto the relational entities of one
// source platform. Implementations must be idempotent: reconciling the same
// record twice leaves the same rows behind.
type Reconciler interface {
	Source() string
	Reconcile(ctx context.Context, db *gorm.DB, rec apify.PostRecord, touched map[uuid.UUID]struct{}) error
}

var reconcilers = map[string]Reconciler{}

func RegisterReconciler(r Reconciler) {
	reconcilers[r.Source()] = r
}

// reconcilerFor falls back to the instagram reconciler for unknown sources
// so that inbox entries written before a source existed still drain.
func reconcilerFor(source string) Reconciler {
	if r, ok := reconcilers[source]; ok {
		return r
	}
	return reconcilers[SourceInstagram]
}

const SourceInstagram = "instagram"

func init() {
	RegisterReconciler(&instagramReconciler{})
}

type instagramReconciler struct{}

func (r *instagramReconciler) Source() string {
	return SourceInstagram
}

// Reconcile upserts the reel and today's metrics snapshot for one scraped
// post. Posts from untracked accounts are skipped silently; scrape runs can
// return collaborations and reposts owned by accounts nobody follows here.
func (r *instagramReconciler) Reconcile(ctx context.Context, db *gorm.DB, rec apify.PostRecord, touched map[uuid.UUID]struct{}) error {
	logger := config.GetLogger()

	if rec.OwnerUsername == "" {
		return nil
	}

	model, err := models.GetModelByUsername(ctx, db, rec.OwnerUsername)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			logger.WithFields(logrus.Fields{
				"module":   "ingest",
				"username": rec.OwnerUsername,
			}).Debug("skipping post from untracked account")
			return nil
		}
		return err
	}

	reel := &models.Reel{
		WorkspaceId:     model.WorkspaceId,
		ModelId:         model.ID,
		PlatformPostId:  rec.ID,
		Url:             rec.Url,
		Caption:         rec.Caption,
		ThumbnailUrl:    rec.DisplayUrl,
		PostedAt:        rec.PostedAt(),
		DurationSeconds: rec.DurationSeconds(),
	}
	if err := reel.SetHashtags(rec.Hashtags); err != nil {
		return err
	}

	persisted, err := models.UpsertReel(ctx, db, reel)
	if err != nil {
		return err
	}

	metrics := &models.ReelMetricsDaily{
		ReelId:         persisted.ID,
		Day:            models.MetricsDay(time.Now()),
		Views:          rec.Views(),
		Likes:          rec.LikesCount,
		Comments:       rec.CommentsCount,
		Saves:          0,
		Shares:         0,
		WatchTime:      0,
		CompletionRate: decimal.Zero,
	}
	if err := models.UpsertDailyMetrics(ctx, db, metrics); err != nil {
		return err
	}

	touched[model.ID] = struct{}{}
	return nil
}
