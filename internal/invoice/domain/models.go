// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPartial   InvoiceStatus = "PARTIAL"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// Invoice represents a customer invoice. Monetary columns are fixed-point
// decimals rounded to 2 places; balance and paid_to_date are running
// figures maintained by payment application and reversal.
type Invoice struct {
	ID           snowflake.ID    `gorm:"primaryKey"`
	OrgID        snowflake.ID    `gorm:"not null;index"`
	CustomerID   snowflake.ID    `gorm:"not null;index"`
	Number       string          `gorm:"type:text;not null"`
	Date         time.Time       `gorm:"not null"`
	Amount       decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Balance      decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Partial      decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	PaidToDate   decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Status       InvoiceStatus   `gorm:"type:text;not null;default:'DRAFT'"`
	PrivateNotes string          `gorm:"type:text"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt    gorm.DeletedAt  `gorm:"index"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceTax is one row of the computed per-invoice tax breakdown. The
// breakdown is produced by the tax calculation subsystem when the invoice
// is finalized; this package only consumes it.
type InvoiceTax struct {
	ID            snowflake.ID    `gorm:"primaryKey"`
	OrgID         snowflake.ID    `gorm:"not null;index"`
	InvoiceID     snowflake.ID    `gorm:"not null;index"`
	TaxName       string          `gorm:"type:text;not null"`
	TaxRate       decimal.Decimal `gorm:"type:numeric(10,4);not null"`
	Nexus         string          `gorm:"type:text"`
	CountryNexus  string          `gorm:"type:text"`
	TaxableAmount decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	TotalAmount   decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CreatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InvoiceTax) TableName() string { return "invoice_taxes" }
