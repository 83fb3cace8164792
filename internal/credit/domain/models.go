// Package domain contains the credit note persistence model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CreditStatus represents credit note lifecycle states.
type CreditStatus string

const (
	CreditStatusDraft   CreditStatus = "DRAFT"
	CreditStatusSent    CreditStatus = "SENT"
	CreditStatusApplied CreditStatus = "APPLIED"
)

// Credit is a credit note a payment can draw down. Reversing a payment
// restores the drawn balance and returns the credit to sent.
type Credit struct {
	ID         snowflake.ID    `gorm:"primaryKey"`
	OrgID      snowflake.ID    `gorm:"not null;index"`
	CustomerID snowflake.ID    `gorm:"not null;index"`
	Number     string          `gorm:"type:text;not null"`
	Amount     decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Balance    decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	PaidToDate decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Status     CreditStatus    `gorm:"type:text;not null;default:'DRAFT'"`
	CreatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt  gorm.DeletedAt  `gorm:"index"`
}

// TableName sets the database table name.
func (Credit) TableName() string { return "credits" }
