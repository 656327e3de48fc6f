package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"bitbucket.org/reelpulse/reels_backend/utils"
)

type Workspace struct {
	ID        uuid.UUID `gorm:"type:char(36);primary_key" json:"id"`
	Name      string    `gorm:"size:150;not null" json:"name" binding:"required"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (w *Workspace) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

type WorkspaceMember struct {
	ID          uint      `gorm:"primary_key;autoIncrement" json:"id"`
	WorkspaceId uuid.UUID `gorm:"type:char(36);uniqueIndex:uniq_workspace_member,priority:1;not null" json:"workspace_id"`
	UserEmail   string    `gorm:"size:255;uniqueIndex:uniq_workspace_member,priority:2;not null" json:"user_email"`
	Role        string    `gorm:"size:50;default:member" json:"role"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func GetWorkspaceById(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Workspace, error) {
	var w Workspace
	err := db.WithContext(ctx).Where("id = ?", id).First(&w).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &w, nil
}
