package models

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WebhookInbox is the durable buffer between webhook receipt and dataset
// processing. Rows are append-only until a drain run marks them processed.
type WebhookInbox struct {
	ID          uint       `gorm:"primary_key;autoIncrement" json:"id"`
	WorkspaceId *uuid.UUID `gorm:"type:char(36);index" json:"workspace_id"`
	Source      string     `gorm:"size:50;not null;default:instagram" json:"source"`
	PayloadJSON []byte     `gorm:"type:json;not null" json:"-"`
	Hash        string     `gorm:"size:64;not null" json:"hash"`
	DedupeKey   string     `gorm:"size:64;uniqueIndex:uniq_webhooks_inbox_dedupe;not null" json:"dedupe_key"`
	Processed   *bool      `gorm:"not null;default:false;index" json:"processed"`
	ProcessedAt *time.Time `json:"processed_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (WebhookInbox) TableName() string {
	return "webhooks_inbox"
}

// InsertWebhookInbox stores a received webhook. A dedupe-key collision means
// the same run notification was already accepted; that is reported as
// inserted=false with a nil error so the receiver can answer 200 again.
func InsertWebhookInbox(ctx context.Context, db *gorm.DB, entry *WebhookInbox) (bool, error) {
	err := db.WithContext(ctx).Create(entry).Error
	if err == nil {
		return true, nil
	}
	if IsDuplicateKeyError(err) {
		return false, nil
	}
	return false, err
}

func IsDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// GetUnprocessedWebhooks returns the oldest unprocessed entries, capped at
// limit. Oldest-first keeps replay order close to arrival order.
func GetUnprocessedWebhooks(ctx context.Context, db *gorm.DB, limit int) ([]WebhookInbox, error) {
	var out []WebhookInbox
	err := db.WithContext(ctx).
		Where("processed = ?", false).
		Order("id asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func MarkWebhookProcessed(ctx context.Context, db *gorm.DB, id uint, at time.Time) error {
	return db.WithContext(ctx).Model(&WebhookInbox{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": at,
		}).Error
}

func CountUnprocessedWebhooks(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&WebhookInbox{}).
		Where("processed = ?", false).
		Count(&n).Error
	return n, err
}
