package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReelMetricsDaily holds one day of engagement counters for one reel.
// (reel_id, day) is unique; later snapshots for the same day overwrite
// earlier ones, so replayed webhooks converge on the freshest numbers.
type ReelMetricsDaily struct {
	ID             uint            `gorm:"primary_key;autoIncrement" json:"id"`
	ReelId         uuid.UUID       `gorm:"type:char(36);uniqueIndex:uniq_reel_metrics_day,priority:1;not null" json:"reel_id"`
	Day            string          `gorm:"type:date;uniqueIndex:uniq_reel_metrics_day,priority:2;not null" json:"day"`
	Views          int64           `gorm:"not null;default:0" json:"views"`
	Likes          int64           `gorm:"not null;default:0" json:"likes"`
	Comments       int64           `gorm:"not null;default:0" json:"comments"`
	Saves          int64           `gorm:"not null;default:0" json:"saves"`
	Shares         int64           `gorm:"not null;default:0" json:"shares"`
	WatchTime      int64           `gorm:"not null;default:0" json:"watch_time"`
	CompletionRate decimal.Decimal `gorm:"type:decimal(5,4);not null;default:0" json:"completion_rate"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ReelMetricsDaily) TableName() string {
	return "reel_metrics_daily"
}

// MetricsDay formats a snapshot timestamp as the UTC calendar day used in
// the (reel_id, day) key.
func MetricsDay(at time.Time) string {
	return at.UTC().Format("2006-01-02")
}

func UpsertDailyMetrics(ctx context.Context, db *gorm.DB, m *ReelMetricsDaily) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "reel_id"}, {Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"views", "likes", "comments", "saves", "shares",
			"watch_time", "completion_rate", "updated_at",
		}),
	}).Create(m).Error
}

func GetDailyMetrics(ctx context.Context, db *gorm.DB, reelId uuid.UUID, day string) (*ReelMetricsDaily, error) {
	var out ReelMetricsDaily
	err := db.WithContext(ctx).
		Where("reel_id = ? AND day = ?", reelId, day).
		First(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}
