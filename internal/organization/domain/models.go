// Package domain contains the organization persistence model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Organization is the tenant owning invoices and payments. The UTC
// offset feeds the closed-period decision for cash events.
type Organization struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	Name             string       `gorm:"type:text;not null"`
	UTCOffsetMinutes int          `gorm:"not null;default:0"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }
