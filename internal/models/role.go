package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// Role is a user's access level on one document, as recorded by the editor
// application. This layer reads roles, it never assigns them.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
	RoleNone   Role = ""
)

// DocumentRole mirrors the editor application's sharing table. Read-only from
// this service's point of view; AutoMigrate keeps local development working
// without the full application stack.
type DocumentRole struct {
	ID         string    `json:"id" gorm:"type:char(27);primaryKey"`
	DocumentID string    `json:"document_id" gorm:"type:text;not null;uniqueIndex:idx_document_roles_doc_user"`
	UserID     string    `json:"user_id" gorm:"type:text;not null;uniqueIndex:idx_document_roles_doc_user"`
	Role       Role      `json:"role" gorm:"type:varchar(20);not null"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (r *DocumentRole) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = ksuid.New().String()
	}
	return nil
}
