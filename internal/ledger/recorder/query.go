package recorder

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"

	ledgerdomain "github.com/smallbiznis/taxledger/internal/ledger/domain"
)

// ListInvoiceEvents returns the invoice's event history in write order.
func (s *Service) ListInvoiceEvents(ctx context.Context, orgID, invoiceID snowflake.ID) ([]ledgerdomain.TransactionEvent, error) {
	if orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	if invoiceID == 0 {
		return nil, ledgerdomain.ErrInvalidInvoice
	}
	return s.repo.ListByInvoice(ctx, s.db, orgID, invoiceID)
}

// ListPeriodEvents returns every event for an accounting period.
func (s *Service) ListPeriodEvents(ctx context.Context, orgID snowflake.ID, period time.Time) ([]ledgerdomain.TransactionEvent, error) {
	if orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	if period.IsZero() {
		return nil, ledgerdomain.ErrInvalidPeriod
	}
	return s.repo.ListByPeriod(ctx, s.db, orgID, period)
}

// ListEventsByKind returns the organization's events of one kind.
func (s *Service) ListEventsByKind(ctx context.Context, orgID snowflake.ID, kind ledgerdomain.EventID) ([]ledgerdomain.TransactionEvent, error) {
	if orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	return s.repo.ListByKind(ctx, s.db, orgID, kind)
}
