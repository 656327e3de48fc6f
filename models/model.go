package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"bitbucket.org/reelpulse/reels_backend/utils"
)

type ModelStatus string

const (
	ModelStatusPending  ModelStatus = "pending"
	ModelStatusEnabled  ModelStatus = "enabled"
	ModelStatusDisabled ModelStatus = "disabled"
)

func (s ModelStatus) Valid() bool {
	switch s {
	case ModelStatusPending, ModelStatusEnabled, ModelStatusDisabled:
		return true
	}
	return false
}

// CanTransition reports whether a tracked account may move between the two
// lifecycle states. Re-entering the same state is allowed so that enable and
// disable stay idempotent under retried requests.
func CanTransition(from, to ModelStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return from != ModelStatusPending
	}
	switch from {
	case ModelStatusPending:
		return to == ModelStatusEnabled || to == ModelStatusDisabled
	case ModelStatusEnabled:
		return to == ModelStatusDisabled
	case ModelStatusDisabled:
		return to == ModelStatusEnabled
	}
	return false
}

// Model is a tracked creator account on a social platform.
type Model struct {
	ID                uuid.UUID   `gorm:"type:char(36);primary_key" json:"id"`
	WorkspaceId       uuid.UUID   `gorm:"type:char(36);uniqueIndex:uniq_models_username,priority:1;not null" json:"workspace_id"`
	Username          string      `gorm:"size:150;uniqueIndex:uniq_models_username,priority:2;not null" json:"username" binding:"required"`
	DisplayName       *string     `gorm:"size:255" json:"display_name"`
	Platform          string      `gorm:"size:50;default:instagram" json:"platform"`
	Status            ModelStatus `gorm:"type:enum('pending', 'enabled', 'disabled');default:pending" json:"status"`
	ApifyTaskId       *string     `gorm:"size:255;default:NULL" json:"apify_task_id"`
	BackfillCompleted *bool       `gorm:"not null;default:false" json:"backfill_completed"`
	LastBackfillAt    *time.Time  `json:"last_backfill_at"`
	LastDailyScrapeAt *time.Time  `json:"last_daily_scrape_at"`
	LastScrapedAt     *time.Time  `json:"last_scraped_at"`
	CreatedAt         time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m *Model) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Status == "" {
		m.Status = ModelStatusPending
	}
	return nil
}

func GetModelById(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Model, error) {
	var m Model
	err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &m, nil
}

// GetModelByUsername resolves a provider-supplied owner username to a tracked
// account. Usernames are matched exactly; unknown usernames are a normal
// outcome because scraped datasets can carry posts from untracked accounts.
func GetModelByUsername(ctx context.Context, db *gorm.DB, username string) (*Model, error) {
	var m Model
	err := db.WithContext(ctx).Where("username = ?", username).First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &m, nil
}

func GetEnabledModels(ctx context.Context, db *gorm.DB) ([]Model, error) {
	var out []Model
	err := db.WithContext(ctx).
		Where("status = ?", ModelStatusEnabled).
		Order("username asc").
		Find(&out).Error
	return out, err
}

// MarkModelsScraped stamps last_scraped_at and flips backfill_completed for
// every account that contributed at least one reconciled post in a drain run.
func MarkModelsScraped(ctx context.Context, db *gorm.DB, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&Model{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"last_scraped_at":    at,
			"backfill_completed": true,
		}).Error
}

// MarkModelsDailyScheduled stamps last_daily_scrape_at on the given accounts.
// The stamp records the scheduling attempt, not provider acceptance.
func MarkModelsDailyScheduled(ctx context.Context, db *gorm.DB, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&Model{}).
		Where("id IN ?", ids).
		Update("last_daily_scrape_at", at).Error
}
