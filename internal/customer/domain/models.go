// Package domain contains the customer (client) persistence model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Customer carries the running balance figures that every ledger snapshot
// copies and that the reversal engine adjusts inside its transaction.
type Customer struct {
	ID            snowflake.ID    `gorm:"primaryKey"`
	OrgID         snowflake.ID    `gorm:"not null;index"`
	Name          string          `gorm:"type:text;not null"`
	Balance       decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	PaidToDate    decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CreditBalance decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CreatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }
