// Package domain contains the bank feed persistence model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BankTransactionStatus tracks whether a feed row has been matched to a
// payment.
type BankTransactionStatus string

const (
	BankTransactionStatusUnmatched BankTransactionStatus = "UNMATCHED"
	BankTransactionStatusMatched   BankTransactionStatus = "MATCHED"
)

// BankTransaction is an imported bank feed row. When the payment it was
// matched to is deleted, the row is reset to unmatched and unlinked.
type BankTransaction struct {
	ID              snowflake.ID          `gorm:"primaryKey"`
	OrgID           snowflake.ID          `gorm:"not null;index"`
	TransactionDate time.Time             `gorm:"not null"`
	Description     string                `gorm:"type:text"`
	Amount          decimal.Decimal       `gorm:"type:numeric(20,2);not null"`
	Status          BankTransactionStatus `gorm:"type:text;not null;default:'UNMATCHED';index"`
	PaymentID       *snowflake.ID         `gorm:"index"`
	MatchDetails    datatypes.JSON        `gorm:"type:jsonb"`
	CreatedAt       time.Time             `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BankTransaction) TableName() string { return "bank_transactions" }
