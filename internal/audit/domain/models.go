// Package domain contains the audit trail model and contract.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AuditLog records who did what to which record.
type AuditLog struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	OrgID      *snowflake.ID  `gorm:"index"`
	ActorType  string         `gorm:"type:text;not null"`
	ActorID    *string        `gorm:"type:text"`
	Action     string         `gorm:"type:text;not null;index"`
	TargetType string         `gorm:"type:text;not null"`
	TargetID   *string        `gorm:"type:text;index"`
	Metadata   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

// Service writes audit entries. Failures are logged by callers, never
// propagated into the operation being audited.
type Service interface {
	AuditLog(ctx context.Context, orgID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
}

var (
	ErrInvalidAction = errors.New("invalid_action")
)
