// Package recorder writes tax transaction events. The accrual recorder
// reacts to invoice lifecycle changes; the cash recorder reacts to
// payment refunds and deletions against closed accounting periods.
package recorder

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	auditdomain "github.com/smallbiznis/taxledger/internal/audit/domain"
	"github.com/smallbiznis/taxledger/internal/clock"
	customerdomain "github.com/smallbiznis/taxledger/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/taxledger/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/taxledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/taxledger/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/taxledger/internal/organization/domain"
	paymentdomain "github.com/smallbiznis/taxledger/internal/payment/domain"
	"github.com/smallbiznis/taxledger/internal/period"
	"github.com/smallbiznis/taxledger/internal/tax"
	"github.com/smallbiznis/taxledger/internal/taxreport"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       ledgerdomain.Repository
	Calc       tax.Calculator
	Periods    period.Resolver
	Clock      clock.Clock
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       ledgerdomain.Repository
	calc       tax.Calculator
	periods    period.Resolver
	clock      clock.Clock
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.recorder"),
		genID:      p.GenID,
		repo:       p.Repo,
		calc:       p.Calc,
		periods:    p.Periods,
		clock:      p.Clock,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) loadInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := db.WithContext(ctx).Unscoped().
		Where("org_id = ? AND id = ?", orgID, invoiceID).
		Limit(1).
		Find(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (s *Service) loadCustomer(ctx context.Context, db *gorm.DB, orgID, customerID snowflake.ID) (*customerdomain.Customer, error) {
	var customer customerdomain.Customer
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, customerID).
		Limit(1).
		Find(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (s *Service) loadPayment(ctx context.Context, db *gorm.DB, orgID, paymentID snowflake.ID) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	err := db.WithContext(ctx).Unscoped().
		Where("org_id = ? AND id = ?", orgID, paymentID).
		Limit(1).
		Find(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (s *Service) loadOrganization(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*orgdomain.Organization, error) {
	var org orgdomain.Organization
	err := db.WithContext(ctx).
		Where("id = ?", orgID).
		Limit(1).
		Find(&org).Error
	if err != nil {
		return nil, err
	}
	if org.ID == 0 {
		return nil, nil
	}
	return &org, nil
}

// paymentHistory denormalizes every allocation of the invoice into
// point-in-time history tuples. When before is non-zero only allocations
// applied strictly before it are included (the cash recorder's
// closed-period window).
func (s *Service) paymentHistory(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID, before time.Time) ([]taxreport.PaymentHistory, error) {
	query := db.WithContext(ctx).
		Table("payment_allocations AS a").
		Select("p.number AS number, a.applied_at AS applied_at, a.amount AS amount, a.refunded AS refunded").
		Joins("JOIN payments p ON p.id = a.payment_id").
		Where("a.org_id = ? AND a.target = ? AND a.target_id = ?", orgID, paymentdomain.AllocationTargetInvoice, invoiceID).
		Order("a.applied_at ASC, a.id ASC")
	if !before.IsZero() {
		query = query.Where("a.applied_at < ?", before)
	}

	var rows []struct {
		Number    string
		AppliedAt time.Time
		Amount    decimal.Decimal
		Refunded  decimal.Decimal
	}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}

	history := make([]taxreport.PaymentHistory, 0, len(rows))
	for _, row := range rows {
		history = append(history, taxreport.PaymentHistory{
			Number:   row.Number,
			Date:     row.AppliedAt,
			Amount:   row.Amount,
			Refunded: row.Refunded,
		})
	}
	return history, nil
}

func (s *Service) newEvent(invoice *invoicedomain.Invoice, customer *customerdomain.Customer, kind ledgerdomain.EventID, periodEnd time.Time, report taxreport.Report) (*ledgerdomain.TransactionEvent, error) {
	metadata, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	return &ledgerdomain.TransactionEvent{
		ID:         s.genID.Generate(),
		OrgID:      invoice.OrgID,
		InvoiceID:  invoice.ID,
		CustomerID: invoice.CustomerID,

		ClientBalance:       customer.Balance,
		ClientPaidToDate:    customer.PaidToDate,
		ClientCreditBalance: customer.CreditBalance,

		InvoiceBalance:    invoice.Balance,
		InvoiceAmount:     invoice.Amount,
		InvoicePartial:    invoice.Partial,
		InvoicePaidToDate: invoice.PaidToDate,
		InvoiceStatus:     string(invoice.Status),

		EventID:   kind,
		Timestamp: now,
		Period:    periodEnd,
		Metadata:  datatypes.JSON(metadata),
		CreatedAt: now,
	}, nil
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, action string, event *ledgerdomain.TransactionEvent) {
	if s.auditSvc == nil {
		return
	}
	targetID := event.ID.String()
	metadata := map[string]any{
		"invoice_id": event.InvoiceID.String(),
		"event_id":   int(event.EventID),
		"period":     event.Period.Format("2006-01-02"),
	}
	if err := s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, "tax_transaction_event", &targetID, metadata); err != nil {
		s.log.Warn("failed to write ledger audit log", zap.String("action", action), zap.Error(err))
	}
}
