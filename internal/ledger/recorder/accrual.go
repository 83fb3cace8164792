package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	ledgerdomain "github.com/smallbiznis/taxledger/internal/ledger/domain"
	"github.com/smallbiznis/taxledger/internal/taxreport"
)

// RecordAccrual writes one INVOICE_UPDATED event capturing the invoice's
// current tax state. Duplicate daily snapshots are prevented by the
// caller (the sweep checks the close-of-day window before invoking this);
// no compensating deletion happens here. A non-nil periodOverride pins
// the accounting period, used by batch and backfill callers.
func (s *Service) RecordAccrual(ctx context.Context, orgID, invoiceID snowflake.ID, periodOverride *time.Time) (*ledgerdomain.TransactionEvent, error) {
	if orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}

	invoice, err := s.loadInvoice(ctx, s.db, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, ledgerdomain.ErrInvalidInvoice
	}

	customer, err := s.loadCustomer(ctx, s.db, orgID, invoice.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, fmt.Errorf("accrual event: customer %s not found", invoice.CustomerID)
	}

	taxes, err := s.calc.ForInvoice(ctx, s.db, orgID, invoice.ID)
	if err != nil {
		return nil, err
	}

	history, err := s.paymentHistory(ctx, s.db, orgID, invoice.ID, time.Time{})
	if err != nil {
		return nil, err
	}

	report, err := taxreport.BuildAccrual(taxreport.Input{
		Amount:     invoice.Amount,
		PaidToDate: invoice.PaidToDate,
		Lifecycle:  invoice.Lifecycle(),
		Taxes:      taxes,
		History:    history,
	})
	if err != nil {
		return nil, err
	}

	periodEnd := s.periods.PeriodEnd(s.clock.Now())
	if periodOverride != nil {
		periodEnd = *periodOverride
	}

	event, err := s.newEvent(invoice, customer, ledgerdomain.EventInvoiceUpdated, periodEnd, report)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, s.db, event); err != nil {
		return nil, err
	}

	s.log.Debug("recorded accrual event",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("period", periodEnd.Format("2006-01-02")),
	)
	s.audit(ctx, orgID, "ledger.accrual_recorded", event)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordLedgerEvent(ctx, int(ledgerdomain.EventInvoiceUpdated))
	}
	return event, nil
}
