// Package domain contains the tax transaction ledger models and store
// contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// EventID identifies the kind of ledger event.
type EventID int16

const (
	EventInvoiceUpdated  EventID = 1
	EventPaymentRefunded EventID = 2
	EventPaymentDeleted  EventID = 3
	EventPaymentCash     EventID = 4
)

// TransactionEvent is one immutable row of the tax transaction ledger.
// Rows are appended by the event recorders and never updated; the only
// deletion path is the cash recorder superseding a same-period refund
// row immediately before inserting its replacement.
type TransactionEvent struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	OrgID      snowflake.ID `gorm:"not null;index"`
	InvoiceID  snowflake.ID `gorm:"not null;index"`
	CustomerID snowflake.ID `gorm:"not null;index"`

	ClientBalance       decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	ClientPaidToDate    decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	ClientCreditBalance decimal.Decimal `gorm:"type:numeric(20,2);not null"`

	InvoiceBalance    decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	InvoiceAmount     decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	InvoicePartial    decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	InvoicePaidToDate decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	InvoiceStatus     string          `gorm:"type:text;not null"`

	EventID   EventID        `gorm:"not null;index"`
	Timestamp time.Time      `gorm:"not null"`
	Period    time.Time      `gorm:"not null;index"`
	Metadata  datatypes.JSON `gorm:"type:jsonb;not null"`

	PaymentID       *snowflake.ID    `gorm:"index"`
	PaymentAmount   *decimal.Decimal `gorm:"type:numeric(20,2)"`
	PaymentRefunded *decimal.Decimal `gorm:"type:numeric(20,2)"`
	PaymentApplied  *decimal.Decimal `gorm:"type:numeric(20,2)"`
	PaymentStatus   *string          `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (TransactionEvent) TableName() string { return "tax_transaction_events" }
