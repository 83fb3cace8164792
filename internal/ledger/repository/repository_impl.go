// Package repository implements the ledger store with raw SQL over gorm.
package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/taxledger/internal/ledger/domain"
)

type repo struct{}

// Provide returns the gorm-backed ledger repository.
func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.TransactionEvent) error {
	if event == nil {
		return domain.ErrInvalidMetadata
	}
	if event.OrgID == 0 {
		return domain.ErrInvalidOrganization
	}
	if event.InvoiceID == 0 {
		return domain.ErrInvalidInvoice
	}
	if event.Period.IsZero() {
		return domain.ErrInvalidPeriod
	}
	if len(event.Metadata) == 0 {
		return domain.ErrInvalidMetadata
	}

	return db.WithContext(ctx).Exec(
		`INSERT INTO tax_transaction_events (
			id, org_id, invoice_id, customer_id,
			client_balance, client_paid_to_date, client_credit_balance,
			invoice_balance, invoice_amount, invoice_partial, invoice_paid_to_date, invoice_status,
			event_id, timestamp, period, metadata,
			payment_id, payment_amount, payment_refunded, payment_applied, payment_status,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.OrgID,
		event.InvoiceID,
		event.CustomerID,
		event.ClientBalance,
		event.ClientPaidToDate,
		event.ClientCreditBalance,
		event.InvoiceBalance,
		event.InvoiceAmount,
		event.InvoicePartial,
		event.InvoicePaidToDate,
		event.InvoiceStatus,
		event.EventID,
		event.Timestamp,
		event.Period,
		event.Metadata,
		event.PaymentID,
		event.PaymentAmount,
		event.PaymentRefunded,
		event.PaymentApplied,
		event.PaymentStatus,
		event.CreatedAt,
	).Error
}

func (r *repo) DeleteCashEventsForPeriod(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID, period time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM tax_transaction_events
		 WHERE org_id = ? AND invoice_id = ? AND period = ? AND event_id IN (?, ?)`,
		orgID,
		invoiceID,
		period,
		domain.EventPaymentRefunded,
		domain.EventPaymentDeleted,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) HasEventSince(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID, kind domain.EventID, windowStart time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM tax_transaction_events
		 WHERE org_id = ? AND invoice_id = ? AND event_id = ? AND timestamp >= ?`,
		orgID,
		invoiceID,
		kind,
		windowStart,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ListByInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) ([]domain.TransactionEvent, error) {
	return r.list(ctx, db, `org_id = ? AND invoice_id = ?`, orgID, invoiceID)
}

func (r *repo) ListByPeriod(ctx context.Context, db *gorm.DB, orgID snowflake.ID, period time.Time) ([]domain.TransactionEvent, error) {
	return r.list(ctx, db, `org_id = ? AND period = ?`, orgID, period)
}

func (r *repo) ListByKind(ctx context.Context, db *gorm.DB, orgID snowflake.ID, kind domain.EventID) ([]domain.TransactionEvent, error) {
	return r.list(ctx, db, `org_id = ? AND event_id = ?`, orgID, kind)
}

func (r *repo) list(ctx context.Context, db *gorm.DB, where string, args ...any) ([]domain.TransactionEvent, error) {
	var events []domain.TransactionEvent
	err := db.WithContext(ctx).
		Where(where, args...).
		Order("timestamp ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
