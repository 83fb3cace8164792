// Package reversal unwinds deleted payments. All balance effects of a
// deletion land inside one transaction; compensating ledger events for
// closed periods are enqueued after the transaction commits.
package reversal

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/smallbiznis/taxledger/internal/audit/domain"
	bankfeeddomain "github.com/smallbiznis/taxledger/internal/bankfeed/domain"
	"github.com/smallbiznis/taxledger/internal/clock"
	creditdomain "github.com/smallbiznis/taxledger/internal/credit/domain"
	invoicedomain "github.com/smallbiznis/taxledger/internal/invoice/domain"
	"github.com/smallbiznis/taxledger/internal/ledger/recorder"
	obsmetrics "github.com/smallbiznis/taxledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/taxledger/internal/payment/domain"
	"github.com/smallbiznis/taxledger/internal/tasks"
	pkgdb "github.com/smallbiznis/taxledger/pkg/db"
)

// sentTolerance absorbs historical float rounding in balance columns
// when re-deriving invoice status after a reversal.
var sentTolerance = decimal.NewFromFloat(0.005)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       paymentdomain.Repository
	Recorder   *recorder.Service
	Dispatcher tasks.Dispatcher
	Clock      clock.Clock
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       paymentdomain.Repository
	recorder   *recorder.Service
	dispatcher tasks.Dispatcher
	clock      clock.Clock
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.ReversalService {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.reversal"),
		repo:       p.Repo,
		recorder:   p.Recorder,
		dispatcher: p.Dispatcher,
		clock:      p.Clock,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

// DeletePayment reverses the payment's financial effects and soft-deletes
// it. The transaction is retried once when the payment row is contended;
// business-rule failures are never retried.
func (s *Service) DeletePayment(ctx context.Context, orgID, paymentID snowflake.ID, updateClientPaidToDate bool) (*paymentdomain.Payment, error) {
	if orgID == 0 || paymentID == 0 {
		return nil, paymentdomain.ErrInvalidPayment
	}

	var (
		payment   *paymentdomain.Payment
		cashTasks []recorder.CashParams
		reversed  bool
	)
	for attempt := 1; ; attempt++ {
		var err error
		payment, cashTasks, reversed, err = s.run(ctx, orgID, paymentID, updateClientPaidToDate)
		if err == nil {
			break
		}
		if pkgdb.IsLockContentionErr(err) && attempt < 2 {
			s.log.Warn("payment row contended, retrying reversal",
				zap.String("payment_id", paymentID.String()),
				zap.Error(err),
			)
			if s.obsMetrics != nil {
				s.obsMetrics.RecordReversalRetry(ctx)
			}
			continue
		}
		return nil, err
	}

	// Cash events run outside the transaction so the snapshot reads the
	// committed post-reversal state. The key serializes recorders racing
	// on the same payment and tenant.
	for _, params := range cashTasks {
		p := params
		s.dispatcher.Enqueue(tasks.Task{
			Key: fmt.Sprintf("cash_event:%d:%d", orgID, p.PaymentID),
			Run: func(taskCtx context.Context) error {
				return s.recorder.RecordCash(taskCtx, p)
			},
		})
	}

	if reversed {
		s.audit(ctx, orgID, payment)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordReversal(ctx)
		}
	}
	return payment, nil
}

// run executes one reversal attempt inside a single transaction and
// returns the cash-event parameters to enqueue after commit.
func (s *Service) run(ctx context.Context, orgID, paymentID snowflake.ID, updateClientPaidToDate bool) (*paymentdomain.Payment, []recorder.CashParams, bool, error) {
	var (
		payment   *paymentdomain.Payment
		cashTasks []recorder.CashParams
		reversed  bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.LockPayment(ctx, tx, orgID, paymentID)
		if err != nil {
			return err
		}
		if locked == nil {
			return paymentdomain.ErrPaymentNotFound
		}
		payment = locked
		if payment.IsDeleted() {
			// Deleting twice is a no-op, not an error.
			cashTasks = nil
			reversed = false
			return nil
		}

		cashTasks, err = s.reverse(ctx, tx, payment, updateClientPaidToDate)
		reversed = err == nil
		return err
	})
	if err != nil {
		return nil, nil, false, err
	}
	return payment, cashTasks, reversed, nil
}

func (s *Service) reverse(ctx context.Context, tx *gorm.DB, payment *paymentdomain.Payment, updateClientPaidToDate bool) ([]recorder.CashParams, error) {
	now := s.clock.Now()
	payment.Status = paymentdomain.PaymentStatusCancelled

	allocations, err := s.repo.ListAllocations(ctx, tx, payment.OrgID, payment.ID)
	if err != nil {
		return nil, err
	}

	// Client-level deltas accumulate across allocations and apply once.
	var (
		clientBalance decimal.Decimal
		clientPaid    decimal.Decimal
		clientCredit  decimal.Decimal
	)

	for _, alloc := range allocations {
		if alloc.Target != paymentdomain.AllocationTargetCredit {
			continue
		}
		if err := s.reverseCredit(ctx, tx, payment.OrgID, alloc, now); err != nil {
			return nil, err
		}
		// The client's available credit comes back by the original
		// allocation amount, not its inverse.
		clientCredit = clientCredit.Add(alloc.Amount)
	}

	var (
		cashTasks      []recorder.CashParams
		sumNet         decimal.Decimal
		hasInvoiceAllc bool
	)
	for _, alloc := range allocations {
		if alloc.Target != paymentdomain.AllocationTargetInvoice {
			continue
		}
		hasInvoiceAllc = true

		net := alloc.NetDeletable()
		sumNet = sumNet.Add(net)

		invoice, err := s.loadInvoice(ctx, tx, payment.OrgID, alloc.TargetID)
		if err != nil {
			return nil, err
		}
		if invoice == nil {
			s.log.Warn("allocation references missing invoice",
				zap.String("invoice_id", alloc.TargetID.String()),
				zap.String("payment_id", payment.ID.String()),
			)
			continue
		}

		// A negative net means the original allocation was itself a
		// refund being undone; the client-side paid-to-date increase is
		// deferred to the global step to avoid double counting.
		clamped := decimal.Min(decimal.Zero, net.Neg())

		switch {
		case invoice.IsCancelled():
			if err := s.reverseCancelledInvoice(ctx, tx, invoice, net, now); err != nil {
				return nil, err
			}
			clientPaid = clientPaid.Add(clamped)
		case invoice.IsDeleted():
			if err := s.reverseDeletedInvoice(ctx, tx, invoice, net, now); err != nil {
				return nil, err
			}
		default:
			if err := s.reverseActiveInvoice(ctx, tx, invoice, payment, net, now); err != nil {
				return nil, err
			}
			clientBalance = clientBalance.Add(net)
			clientPaid = clientPaid.Add(clamped)
		}

		cashTasks = append(cashTasks, recorder.CashParams{
			OrgID:             payment.OrgID,
			PaymentID:         payment.ID,
			InvoiceIDs:        []snowflake.ID{invoice.ID},
			InvoiceAdjustment: net,
			IsDeletion:        true,
		})
	}

	purged, err := s.repo.PurgeAllocations(ctx, tx, payment.OrgID, payment.ID)
	if err != nil {
		return nil, err
	}
	if purged > 0 {
		s.log.Debug("purged payment allocations",
			zap.String("payment_id", payment.ID.String()),
			zap.Int64("count", purged),
		)
	}

	if err := s.detachBankTransactions(ctx, tx, payment.OrgID, payment.ID); err != nil {
		return nil, err
	}

	if err := tx.WithContext(ctx).Exec(
		`UPDATE payments SET status = ?, deleted_at = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		payment.Status,
		now,
		now,
		payment.OrgID,
		payment.ID,
	).Error; err != nil {
		return nil, err
	}
	if err := payment.DeletedAt.Scan(now); err != nil {
		return nil, err
	}

	// A first payment against a reversed invoice must never itself reduce
	// paid-to-date: the compensating credit note already accounts for it.
	if !hasInvoiceAllc && payment.Amount.Equal(payment.Applied) {
		updateClientPaidToDate = false
	}
	if updateClientPaidToDate {
		clientPaid = clientPaid.Add(s.globalPaidAdjustment(payment, sumNet))
	}

	if !clientBalance.IsZero() || !clientPaid.IsZero() || !clientCredit.IsZero() {
		if err := tx.WithContext(ctx).Exec(
			`UPDATE customers
			 SET balance = balance + ?, paid_to_date = paid_to_date + ?, credit_balance = credit_balance + ?, updated_at = ?
			 WHERE org_id = ? AND id = ?`,
			clientBalance,
			clientPaid,
			clientCredit,
			now,
			payment.OrgID,
			payment.CustomerID,
		).Error; err != nil {
			return nil, err
		}
	}

	return cashTasks, nil
}

// globalPaidAdjustment is the client paid-to-date delta applied once per
// reversal on top of the per-invoice updates. Negative payments reduce
// paid-to-date by their full magnitude; otherwise the delta never goes
// above zero.
func (s *Service) globalPaidAdjustment(payment *paymentdomain.Payment, sumNet decimal.Decimal) decimal.Decimal {
	if payment.Amount.IsNegative() {
		return payment.Amount
	}
	if !payment.Amount.Equal(sumNet) {
		return decimal.Min(decimal.Zero, payment.Amount.Sub(sumNet).Neg())
	}
	return decimal.Min(decimal.Zero, payment.Amount.Sub(payment.Refunded).Sub(sumNet).Neg())
}

// reverseCredit inverts the amount the payment drew from the credit and
// returns the credit to sent so it can be applied again.
func (s *Service) reverseCredit(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, alloc paymentdomain.Allocation, now time.Time) error {
	credit, err := s.loadCredit(ctx, tx, orgID, alloc.TargetID)
	if err != nil {
		return err
	}
	if credit == nil {
		s.log.Warn("allocation references missing credit",
			zap.String("credit_id", alloc.TargetID.String()),
			zap.String("payment_id", alloc.PaymentID.String()),
		)
		return nil
	}

	credit.Balance = credit.Balance.Add(alloc.Amount)
	credit.PaidToDate = credit.PaidToDate.Sub(alloc.Amount)
	credit.Status = creditdomain.CreditStatusSent

	return tx.WithContext(ctx).Exec(
		`UPDATE credits SET balance = ?, paid_to_date = ?, status = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		credit.Balance,
		credit.PaidToDate,
		credit.Status,
		now,
		orgID,
		credit.ID,
	).Error
}

// reverseCancelledInvoice backs the net amount out of paid-to-date only;
// the cancelled invoice's balance stays extinguished. Soft-deleted
// cancelled invoices are transiently restored for the update.
func (s *Service) reverseCancelledInvoice(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, net decimal.Decimal, now time.Time) error {
	wasDeleted := invoice.IsDeleted()
	if wasDeleted {
		if err := s.restoreInvoice(ctx, tx, invoice); err != nil {
			return err
		}
	}

	invoice.PaidToDate = invoice.PaidToDate.Sub(net)
	if err := tx.WithContext(ctx).Exec(
		`UPDATE invoices SET paid_to_date = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		invoice.PaidToDate,
		now,
		invoice.OrgID,
		invoice.ID,
	).Error; err != nil {
		return err
	}

	if wasDeleted {
		return s.softDeleteInvoice(ctx, tx, invoice, now)
	}
	return nil
}

// reverseDeletedInvoice restores the soft-deleted invoice, backs the net
// amount out of paid-to-date and re-deletes it.
func (s *Service) reverseDeletedInvoice(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, net decimal.Decimal, now time.Time) error {
	if err := s.restoreInvoice(ctx, tx, invoice); err != nil {
		return err
	}

	invoice.PaidToDate = invoice.PaidToDate.Sub(net)
	if err := tx.WithContext(ctx).Exec(
		`UPDATE invoices SET paid_to_date = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		invoice.PaidToDate,
		now,
		invoice.OrgID,
		invoice.ID,
	).Error; err != nil {
		return err
	}

	return s.softDeleteInvoice(ctx, tx, invoice, now)
}

// reverseActiveInvoice puts the net amount back on the invoice balance,
// backs it out of paid-to-date, annotates the invoice and re-derives its
// payment status.
func (s *Service) reverseActiveInvoice(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, payment *paymentdomain.Payment, net decimal.Decimal, now time.Time) error {
	invoice.Balance = invoice.Balance.Add(net)
	invoice.PaidToDate = invoice.PaidToDate.Sub(net)
	invoice.PrivateNotes = appendNote(invoice.PrivateNotes, "Deleted payment No. "+payment.Number)
	invoice.Status = derivedStatus(invoice)

	return tx.WithContext(ctx).Exec(
		`UPDATE invoices SET balance = ?, paid_to_date = ?, status = ?, private_notes = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		invoice.Balance,
		invoice.PaidToDate,
		invoice.Status,
		invoice.PrivateNotes,
		now,
		invoice.OrgID,
		invoice.ID,
	).Error
}

// derivedStatus recomputes the payment status from the post-reversal
// balance.
func derivedStatus(invoice *invoicedomain.Invoice) invoicedomain.InvoiceStatus {
	switch {
	case invoice.Balance.IsZero():
		return invoicedomain.InvoiceStatusPaid
	case invoice.Amount.Sub(invoice.Balance).Abs().LessThan(sentTolerance):
		return invoicedomain.InvoiceStatusSent
	default:
		return invoicedomain.InvoiceStatusPartial
	}
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "\n" + note
}

func (s *Service) restoreInvoice(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	if err := tx.WithContext(ctx).Exec(
		`UPDATE invoices SET deleted_at = NULL WHERE org_id = ? AND id = ?`,
		invoice.OrgID,
		invoice.ID,
	).Error; err != nil {
		return err
	}
	invoice.DeletedAt = gorm.DeletedAt{}
	return nil
}

func (s *Service) softDeleteInvoice(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, now time.Time) error {
	if err := tx.WithContext(ctx).Exec(
		`UPDATE invoices SET deleted_at = ? WHERE org_id = ? AND id = ?`,
		now,
		invoice.OrgID,
		invoice.ID,
	).Error; err != nil {
		return err
	}
	return invoice.DeletedAt.Scan(now)
}

func (s *Service) detachBankTransactions(ctx context.Context, tx *gorm.DB, orgID, paymentID snowflake.ID) error {
	result := tx.WithContext(ctx).Exec(
		`UPDATE bank_transactions SET status = ?, payment_id = NULL WHERE org_id = ? AND payment_id = ?`,
		bankfeeddomain.BankTransactionStatusUnmatched,
		orgID,
		paymentID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		s.log.Debug("detached bank transactions",
			zap.String("payment_id", paymentID.String()),
			zap.Int64("count", result.RowsAffected),
		)
	}
	return nil
}

func (s *Service) loadInvoice(ctx context.Context, tx *gorm.DB, orgID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := tx.WithContext(ctx).Unscoped().
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

func (s *Service) loadCredit(ctx context.Context, tx *gorm.DB, orgID, creditID snowflake.ID) (*creditdomain.Credit, error) {
	var credit creditdomain.Credit
	err := tx.WithContext(ctx).Unscoped().
		Where("org_id = ? AND id = ?", orgID, creditID).
		Limit(1).
		Find(&credit).Error
	if err != nil {
		return nil, err
	}
	if credit.ID == 0 {
		return nil, nil
	}
	return &credit, nil
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, payment *paymentdomain.Payment) {
	if s.auditSvc == nil || payment == nil {
		return
	}
	targetID := payment.ID.String()
	metadata := map[string]any{
		"payment_number": payment.Number,
		"amount":         payment.Amount.String(),
		"status":         string(payment.Status),
	}
	if err := s.auditSvc.AuditLog(ctx, &orgID, "", nil, "payment.reversed", "payment", &targetID, metadata); err != nil {
		s.log.Warn("failed to write reversal audit log", zap.Error(err))
	}
}
