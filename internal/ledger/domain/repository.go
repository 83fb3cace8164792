package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the append-mostly ledger store. Callers pass the gorm
// handle explicitly so inserts and supersede-deletes can join the
// caller's transaction; there is no ambient tenant or connection state.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *TransactionEvent) error

	// DeleteCashEventsForPeriod removes prior PAYMENT_REFUNDED /
	// PAYMENT_DELETED rows for the (invoice, period) pair so the caller
	// can insert their replacement. Returns the number of rows removed.
	DeleteCashEventsForPeriod(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID, period time.Time) (int64, error)

	// HasEventSince reports whether the invoice already has an event of
	// the given kind stamped at or after windowStart.
	HasEventSince(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID, kind EventID, windowStart time.Time) (bool, error)

	ListByInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) ([]TransactionEvent, error)
	ListByPeriod(ctx context.Context, db *gorm.DB, orgID snowflake.ID, period time.Time) ([]TransactionEvent, error)
	ListByKind(ctx context.Context, db *gorm.DB, orgID snowflake.ID, kind EventID) ([]TransactionEvent, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidInvoice      = errors.New("invalid_invoice")
	ErrInvalidPeriod       = errors.New("invalid_period")
	ErrInvalidMetadata     = errors.New("invalid_metadata")
)
