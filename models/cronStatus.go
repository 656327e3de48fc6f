package models

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CronStatus is a one-row-per-job heartbeat. Every scheduled job overwrites
// its row on each run, success or failure, so a stale last_run_at is the
// monitoring signal that a job stopped firing.
type CronStatus struct {
	Name        string    `gorm:"size:100;primary_key" json:"name"`
	LastRunAt   time.Time `gorm:"not null" json:"last_run_at"`
	LastOk      *bool     `gorm:"not null;default:true" json:"last_ok"`
	LastMessage string    `gorm:"size:512" json:"last_message"`
}

func (CronStatus) TableName() string {
	return "cron_status"
}

func UpsertCronStatus(ctx context.Context, db *gorm.DB, name string, ok bool, message string) error {
	row := CronStatus{
		Name:        name,
		LastRunAt:   time.Now().UTC(),
		LastOk:      &ok,
		LastMessage: message,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_run_at", "last_ok", "last_message"}),
	}).Create(&row).Error
}

func GetCronStatus(ctx context.Context, db *gorm.DB, name string) (*CronStatus, error) {
	var out CronStatus
	err := db.WithContext(ctx).Where("name = ?", name).First(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}
