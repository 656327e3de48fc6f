package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/reelpulse/reels_backend/utils"
)

// Reel is one scraped video post. (workspace_id, platform_post_id) is the
// natural key; re-scrapes of the same post update the row in place.
type Reel struct {
	ID              uuid.UUID  `gorm:"type:char(36);primary_key" json:"id"`
	WorkspaceId     uuid.UUID  `gorm:"type:char(36);uniqueIndex:uniq_reels_post,priority:1;not null" json:"workspace_id"`
	ModelId         uuid.UUID  `gorm:"type:char(36);index;not null" json:"model_id"`
	PlatformPostId  string     `gorm:"size:100;uniqueIndex:uniq_reels_post,priority:2;not null" json:"platform_post_id"`
	Url             string     `gorm:"size:512" json:"url"`
	Caption         string     `gorm:"type:text" json:"caption"`
	HashtagsJSON    []byte     `gorm:"type:json" json:"-"`
	ThumbnailUrl    string     `gorm:"size:1024" json:"thumbnail_url"`
	PostedAt        *time.Time `json:"posted_at"`
	DurationSeconds *int       `json:"duration_seconds"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *Reel) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r *Reel) SetHashtags(tags []string) error {
	if len(tags) == 0 {
		r.HashtagsJSON = nil
		return nil
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	r.HashtagsJSON = raw
	return nil
}

func (r *Reel) Hashtags() []string {
	if len(r.HashtagsJSON) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(r.HashtagsJSON, &tags); err != nil {
		return nil
	}
	return tags
}

// UpsertReel inserts the reel or, when the natural key already exists,
// refreshes its descriptive columns. The returned reel always carries the
// persisted row id, which differs from r.ID on the update path.
func UpsertReel(ctx context.Context, db *gorm.DB, r *Reel) (*Reel, error) {
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "workspace_id"}, {Name: "platform_post_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"url", "caption", "hashtags_json", "thumbnail_url",
			"posted_at", "duration_seconds", "updated_at",
		}),
	}).Create(r).Error
	if err != nil {
		return nil, err
	}
	return GetReelByPlatformPostId(ctx, db, r.WorkspaceId, r.PlatformPostId)
}

func GetReelByPlatformPostId(ctx context.Context, db *gorm.DB, workspaceId uuid.UUID, platformPostId string) (*Reel, error) {
	var out Reel
	err := db.WithContext(ctx).
		Where("workspace_id = ? AND platform_post_id = ?", workspaceId, platformPostId).
		First(&out).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &out, nil
}
