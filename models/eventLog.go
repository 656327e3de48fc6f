package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/reelpulse/reels_backend/config"
)

type EventLevel string

const (
	EventLevelInfo  EventLevel = "info"
	EventLevelWarn  EventLevel = "warn"
	EventLevelError EventLevel = "error"
)

// EventLog is the audit trail: lifecycle changes, cron completions and
// client-reported events all land here.
type EventLog struct {
	ID          uint       `gorm:"primary_key;autoIncrement" json:"id"`
	WorkspaceId *uuid.UUID `gorm:"type:char(36);index" json:"workspace_id"`
	Event       string     `gorm:"size:150;index;not null" json:"event"`
	Level       EventLevel `gorm:"type:enum('info', 'warn', 'error');default:info" json:"level"`
	ContextJSON []byte     `gorm:"type:json" json:"-"`
	Page        string     `gorm:"size:255" json:"page"`
	UserAgent   string     `gorm:"size:512" json:"user_agent"`
	Ip          string     `gorm:"size:64" json:"ip"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (e *EventLog) SetContext(ctx map[string]interface{}) error {
	if len(ctx) == 0 {
		e.ContextJSON = nil
		return nil
	}
	raw, err := json.Marshal(ctx)
	if err != nil {
		return err
	}
	e.ContextJSON = raw
	return nil
}

func InsertEventLog(ctx context.Context, db *gorm.DB, e *EventLog) error {
	if e.Level == "" {
		e.Level = EventLevelInfo
	}
	return db.WithContext(ctx).Create(e).Error
}

// LogEventBestEffort writes an audit event and only logs on failure. Audit
// writes must never fail the operation they describe.
func LogEventBestEffort(ctx context.Context, db *gorm.DB, logger *logrus.Logger, e *EventLog) {
	if err := InsertEventLog(ctx, db, e); err != nil {
		config.LogError(logger, "models", "LogEventBestEffort", "insert event log", e.Event, err)
	}
}
