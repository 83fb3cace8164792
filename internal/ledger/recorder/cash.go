package recorder

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	ledgerdomain "github.com/smallbiznis/taxledger/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/taxledger/internal/payment/domain"
	"github.com/smallbiznis/taxledger/internal/taxreport"
	pkgdb "github.com/smallbiznis/taxledger/pkg/db"
)

// CashParams identifies the payment whose cash movement is being
// recorded and the invoices it touched. InvoiceAdjustment is the net
// amount still attributed to each invoice after a deletion, supplied by
// the reversal engine; IsDeletion distinguishes deletion events from
// refunds.
type CashParams struct {
	OrgID             snowflake.ID
	PaymentID         snowflake.ID
	InvoiceIDs        []snowflake.ID
	InvoiceAdjustment decimal.Decimal
	IsDeletion        bool
}

// RecordCash writes one PAYMENT_REFUNDED or PAYMENT_DELETED event per
// touched invoice whose accounting period has closed; open-period
// invoices are skipped entirely (the accrual recorder will reflect
// them). For each invoice the prior cash event for the same period is
// deleted and the replacement inserted inside one transaction, so
// re-running converges to exactly one row per (invoice, period).
func (s *Service) RecordCash(ctx context.Context, p CashParams) error {
	if p.OrgID == 0 {
		return ledgerdomain.ErrInvalidOrganization
	}

	payment, err := s.loadPayment(ctx, s.db, p.OrgID, p.PaymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		return paymentdomain.ErrPaymentNotFound
	}

	org, err := s.loadOrganization(ctx, s.db, p.OrgID)
	if err != nil {
		return err
	}
	utcOffset := 0
	if org != nil {
		utcOffset = org.UTCOffsetMinutes
	}

	deletion := p.IsDeletion || payment.IsDeleted()
	now := s.clock.Now()

	for _, invoiceID := range p.InvoiceIDs {
		invoice, err := s.loadInvoice(ctx, s.db, p.OrgID, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			s.log.Warn("cash event for missing invoice", zap.String("invoice_id", invoiceID.String()))
			continue
		}

		periodEnd := s.periods.PeriodEnd(invoice.Date)
		if !s.periods.IsClosed(periodEnd, utcOffset, now) {
			s.log.Debug("skipping cash event for open period",
				zap.String("invoice_id", invoiceID.String()),
				zap.String("period", periodEnd.Format("2006-01-02")),
			)
			continue
		}

		// History window: allocations applied inside the closed period.
		history, err := s.paymentHistory(ctx, s.db, p.OrgID, invoice.ID, periodEnd.AddDate(0, 0, 1))
		if err != nil {
			return err
		}

		taxes, err := s.calc.ForInvoice(ctx, s.db, p.OrgID, invoice.ID)
		if err != nil {
			return err
		}

		input := taxreport.Input{
			Amount:     invoice.Amount,
			PaidToDate: invoice.PaidToDate,
			Lifecycle:  invoice.Lifecycle(),
			Taxes:      taxes,
			History:    history,
		}

		var (
			report taxreport.Report
			kind   ledgerdomain.EventID
		)
		if deletion {
			report, err = taxreport.BuildDeletion(input, p.InvoiceAdjustment)
			kind = ledgerdomain.EventPaymentDeleted
		} else {
			report, err = taxreport.BuildRefund(input)
			kind = ledgerdomain.EventPaymentRefunded
		}
		if err != nil {
			return err
		}

		customer, err := s.loadCustomer(ctx, s.db, p.OrgID, invoice.CustomerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return fmt.Errorf("cash event: customer %s not found", invoice.CustomerID)
		}

		event, err := s.newEvent(invoice, customer, kind, periodEnd, report)
		if err != nil {
			return err
		}
		event.PaymentID = &payment.ID
		event.PaymentAmount = &payment.Amount
		event.PaymentRefunded = &payment.Refunded
		event.PaymentApplied = &payment.Applied
		status := string(payment.Status)
		event.PaymentStatus = &status

		superseded := int64(0)
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var txErr error
			superseded, txErr = s.repo.DeleteCashEventsForPeriod(ctx, tx, p.OrgID, invoice.ID, periodEnd)
			if txErr != nil {
				return txErr
			}
			return s.repo.Insert(ctx, tx, event)
		})
		if err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				// A concurrent recorder committed its replacement between
				// our delete and insert; its row is the survivor.
				s.log.Debug("cash event lost supersede race",
					zap.String("invoice_id", invoice.ID.String()),
					zap.String("period", periodEnd.Format("2006-01-02")),
				)
				continue
			}
			return err
		}

		s.log.Debug("recorded cash event",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("payment_id", payment.ID.String()),
			zap.Int("event_id", int(kind)),
			zap.Int64("superseded", superseded),
		)
		s.audit(ctx, p.OrgID, "ledger.cash_recorded", event)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordLedgerEvent(ctx, int(kind))
			if superseded > 0 {
				s.obsMetrics.RecordSupersededEvents(ctx, superseded)
			}
		}
	}

	return nil
}
