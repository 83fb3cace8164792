// Package domain contains payment persistence models and contracts.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentStatus represents payment lifecycle states.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// AllocationTarget distinguishes what a payment allocation was applied to.
type AllocationTarget string

const (
	AllocationTargetInvoice AllocationTarget = "invoice"
	AllocationTargetCredit  AllocationTarget = "credit"
)

// Payment is money received from a customer, applied to invoices and
// credits through allocations. Amounts can be negative (a recorded
// refund); the reversal engine handles both signs.
type Payment struct {
	ID         snowflake.ID    `gorm:"primaryKey"`
	OrgID      snowflake.ID    `gorm:"not null;index"`
	CustomerID snowflake.ID    `gorm:"not null;index"`
	Number     string          `gorm:"type:text;not null"`
	Amount     decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Refunded   decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Applied    decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Status     PaymentStatus   `gorm:"type:text;not null;default:'PENDING'"`
	AppliedAt  time.Time       `gorm:"not null"`
	CreatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt  gorm.DeletedAt  `gorm:"index"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// IsDeleted reports whether the payment is soft-deleted.
func (p Payment) IsDeleted() bool { return p.DeletedAt.Valid }

// Allocation is the pivot row linking a payment to an invoice or credit.
// Rows are purged, not soft-deleted, when the payment is reversed.
type Allocation struct {
	ID        snowflake.ID     `gorm:"primaryKey"`
	OrgID     snowflake.ID     `gorm:"not null;index"`
	PaymentID snowflake.ID     `gorm:"not null;index"`
	Target    AllocationTarget `gorm:"type:text;not null"`
	TargetID  snowflake.ID     `gorm:"not null;index"`
	Amount    decimal.Decimal  `gorm:"type:numeric(20,2);not null"`
	Refunded  decimal.Decimal  `gorm:"type:numeric(20,2);not null"`
	AppliedAt time.Time        `gorm:"not null"`
	CreatedAt time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Allocation) TableName() string { return "payment_allocations" }

// NetDeletable is the portion of the allocation still attributable to the
// target: applied amount minus what was already refunded.
func (a Allocation) NetDeletable() decimal.Decimal {
	return a.Amount.Sub(a.Refunded)
}

var (
	ErrPaymentNotFound = errors.New("payment_not_found")
	ErrPaymentLocked   = errors.New("payment_locked")
	ErrInvalidPayment  = errors.New("invalid_payment")
)
