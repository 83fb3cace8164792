package reversal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	bankfeeddomain "github.com/smallbiznis/taxledger/internal/bankfeed/domain"
	"github.com/smallbiznis/taxledger/internal/clock"
	creditdomain "github.com/smallbiznis/taxledger/internal/credit/domain"
	customerdomain "github.com/smallbiznis/taxledger/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/taxledger/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/taxledger/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/taxledger/internal/ledger/repository"
	orgdomain "github.com/smallbiznis/taxledger/internal/organization/domain"
	paymentdomain "github.com/smallbiznis/taxledger/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/taxledger/internal/payment/repository"
	"github.com/smallbiznis/taxledger/internal/period"
	"github.com/smallbiznis/taxledger/internal/tax"
	"github.com/smallbiznis/taxledger/internal/tasks"

	"github.com/smallbiznis/taxledger/internal/ledger/recorder"
)

type harness struct {
	db    *gorm.DB
	node  *snowflake.Node
	svc   paymentdomain.ReversalService
	clock *clock.FakeClock
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&orgdomain.Organization{},
		&customerdomain.Customer{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceTax{},
		&creditdomain.Credit{},
		&paymentdomain.Payment{},
		&paymentdomain.Allocation{},
		&bankfeeddomain.BankTransaction{},
		&ledgerdomain.TransactionEvent{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(now)

	rec := recorder.NewService(recorder.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    ledgerrepo.Provide(),
		Calc:    tax.Provide(),
		Periods: period.NewMonthEndResolver(),
		Clock:   fake,
	})
	svc := NewService(Params{
		DB:         db,
		Log:        zap.NewNop(),
		Repo:       paymentrepo.Provide(),
		Recorder:   rec,
		Dispatcher: tasks.InlineDispatcher{},
		Clock:      fake,
	})
	return &harness{db: db, node: node, svc: svc, clock: fake}
}

type scenario struct {
	org      orgdomain.Organization
	customer customerdomain.Customer
	invoice  invoicedomain.Invoice
	payment  paymentdomain.Payment
}

// seedPaidInvoice creates an invoice fully paid by one payment: amount
// 110, balance 0, customer balance 0 and paid-to-date 110.
func (h *harness) seedPaidInvoice(t *testing.T, invoiceDate time.Time) scenario {
	t.Helper()
	sc := scenario{}
	sc.org = orgdomain.Organization{ID: h.node.Generate(), Name: "Acme Corp"}
	sc.customer = customerdomain.Customer{
		ID:         h.node.Generate(),
		OrgID:      sc.org.ID,
		Name:       "Globex",
		Balance:    decimal.NewFromInt(0),
		PaidToDate: decimal.NewFromInt(110),
	}
	sc.invoice = invoicedomain.Invoice{
		ID:         h.node.Generate(),
		OrgID:      sc.org.ID,
		CustomerID: sc.customer.ID,
		Number:     "INV-0001",
		Date:       invoiceDate,
		Amount:     decimal.NewFromInt(110),
		Balance:    decimal.NewFromInt(0),
		PaidToDate: decimal.NewFromInt(110),
		Status:     invoicedomain.InvoiceStatusPaid,
	}
	taxRow := invoicedomain.InvoiceTax{
		ID:            h.node.Generate(),
		OrgID:         sc.org.ID,
		InvoiceID:     sc.invoice.ID,
		TaxName:       "GST",
		TaxRate:       decimal.NewFromInt(10),
		TaxableAmount: decimal.NewFromInt(100),
		TotalAmount:   decimal.NewFromInt(10),
	}
	sc.payment = paymentdomain.Payment{
		ID:         h.node.Generate(),
		OrgID:      sc.org.ID,
		CustomerID: sc.customer.ID,
		Number:     "PAY-0001",
		Amount:     decimal.NewFromInt(110),
		Applied:    decimal.NewFromInt(110),
		Status:     paymentdomain.PaymentStatusCompleted,
		AppliedAt:  invoiceDate.AddDate(0, 0, 1),
	}
	alloc := paymentdomain.Allocation{
		ID:        h.node.Generate(),
		OrgID:     sc.org.ID,
		PaymentID: sc.payment.ID,
		Target:    paymentdomain.AllocationTargetInvoice,
		TargetID:  sc.invoice.ID,
		Amount:    decimal.NewFromInt(110),
		AppliedAt: sc.payment.AppliedAt,
	}

	require.NoError(t, h.db.Create(&sc.org).Error)
	require.NoError(t, h.db.Create(&sc.customer).Error)
	require.NoError(t, h.db.Create(&sc.invoice).Error)
	require.NoError(t, h.db.Create(&taxRow).Error)
	require.NoError(t, h.db.Create(&sc.payment).Error)
	require.NoError(t, h.db.Create(&alloc).Error)
	return sc
}

func TestDeletePayment_RoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, now)
	sc := h.seedPaidInvoice(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	payment, err := h.svc.DeletePayment(context.Background(), sc.org.ID, sc.payment.ID, true)
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, paymentdomain.PaymentStatusCancelled, payment.Status)
	assert.True(t, payment.IsDeleted())

	// Invoice back to its pre-payment figures.
	var invoice invoicedomain.Invoice
	require.NoError(t, h.db.First(&invoice, "id = ?", sc.invoice.ID).Error)
	assert.True(t, invoice.Balance.Equal(decimal.NewFromInt(110)), invoice.Balance.String())
	assert.True(t, invoice.PaidToDate.IsZero(), invoice.PaidToDate.String())
	assert.Equal(t, invoicedomain.InvoiceStatusSent, invoice.Status)
	assert.Contains(t, invoice.PrivateNotes, "Deleted payment No. PAY-0001")

	// Client back to pre-payment figures.
	var customer customerdomain.Customer
	require.NoError(t, h.db.First(&customer, "id = ?", sc.customer.ID).Error)
	assert.True(t, customer.Balance.Equal(decimal.NewFromInt(110)), customer.Balance.String())
	assert.True(t, customer.PaidToDate.IsZero(), customer.PaidToDate.String())

	// Allocations purged, payment soft-deleted.
	var allocCount int64
	h.db.Model(&paymentdomain.Allocation{}).Where("payment_id = ?", sc.payment.ID).Count(&allocCount)
	assert.Zero(t, allocCount)

	var raw paymentdomain.Payment
	require.NoError(t, h.db.Unscoped().First(&raw, "id = ?", sc.payment.ID).Error)
	assert.True(t, raw.IsDeleted())

	// Exactly one compensating event for the closed period.
	var events []ledgerdomain.TransactionEvent
	require.NoError(t, h.db.Find(&events, "invoice_id = ?", sc.invoice.ID).Error)
	require.Len(t, events, 1)
	assert.Equal(t, ledgerdomain.EventPaymentDeleted, events[0].EventID)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), events[0].Period.UTC())
}

func TestDeletePayment_AlreadyDeletedIsNoOp(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, now)
	sc := h.seedPaidInvoice(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	require.NoError(t, h.db.Delete(&paymentdomain.Payment{}, "id = ?", sc.payment.ID).Error)

	payment, err := h.svc.DeletePayment(context.Background(), sc.org.ID, sc.payment.ID, true)
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.True(t, payment.IsDeleted())

	// Nothing moved: invoice untouched, allocations intact, no events.
	var invoice invoicedomain.Invoice
	require.NoError(t, h.db.First(&invoice, "id = ?", sc.invoice.ID).Error)
	assert.True(t, invoice.PaidToDate.Equal(decimal.NewFromInt(110)))

	var allocCount int64
	h.db.Model(&paymentdomain.Allocation{}).Where("payment_id = ?", sc.payment.ID).Count(&allocCount)
	assert.Equal(t, int64(1), allocCount)

	var eventCount int64
	h.db.Model(&ledgerdomain.TransactionEvent{}).Count(&eventCount)
	assert.Zero(t, eventCount)
}

func TestDeletePayment_UnknownPayment(t *testing.T) {
	h := newHarness(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	_, err := h.svc.DeletePayment(context.Background(), snowflake.ID(1), snowflake.ID(2), true)
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)
}

func TestDeletePayment_NegativePaymentClampsPerInvoice(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, now)
	sc := h.seedPaidInvoice(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	// A recorded refund: negative payment with a negative allocation.
	refund := paymentdomain.Payment{
		ID:         h.node.Generate(),
		OrgID:      sc.org.ID,
		CustomerID: sc.customer.ID,
		Number:     "PAY-0002",
		Amount:     decimal.NewFromInt(-50),
		Applied:    decimal.NewFromInt(-50),
		Status:     paymentdomain.PaymentStatusCompleted,
		AppliedAt:  now.AddDate(0, 0, -1),
	}
	alloc := paymentdomain.Allocation{
		ID:        h.node.Generate(),
		OrgID:     sc.org.ID,
		PaymentID: refund.ID,
		Target:    paymentdomain.AllocationTargetInvoice,
		TargetID:  sc.invoice.ID,
		Amount:    decimal.NewFromInt(-50),
		AppliedAt: refund.AppliedAt,
	}
	require.NoError(t, h.db.Create(&refund).Error)
	require.NoError(t, h.db.Create(&alloc).Error)

	_, err := h.svc.DeletePayment(context.Background(), sc.org.ID, refund.ID, true)
	require.NoError(t, err)

	// Undoing the refund: invoice balance down by 50, paid-to-date up by
	// 50. The per-invoice client update is clamped, so the client
	// paid-to-date moves only by the global branch: exactly -|amount|.
	var invoice invoicedomain.Invoice
	require.NoError(t, h.db.First(&invoice, "id = ?", sc.invoice.ID).Error)
	assert.True(t, invoice.Balance.Equal(decimal.NewFromInt(-50)), invoice.Balance.String())
	assert.True(t, invoice.PaidToDate.Equal(decimal.NewFromInt(160)), invoice.PaidToDate.String())

	var customer customerdomain.Customer
	require.NoError(t, h.db.First(&customer, "id = ?", sc.customer.ID).Error)
	assert.True(t, customer.PaidToDate.Equal(decimal.NewFromInt(60)), customer.PaidToDate.String())
	assert.True(t, customer.Balance.Equal(decimal.NewFromInt(-50)), customer.Balance.String())
}

func TestDeletePayment_ReversesCredit(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, now)
	sc := h.seedPaidInvoice(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	credit := creditdomain.Credit{
		ID:         h.node.Generate(),
		OrgID:      sc.org.ID,
		CustomerID: sc.customer.ID,
		Number:     "CR-0001",
		Amount:     decimal.NewFromInt(50),
		Balance:    decimal.NewFromInt(0),
		PaidToDate: decimal.NewFromInt(50),
		Status:     creditdomain.CreditStatusApplied,
	}
	payment := paymentdomain.Payment{
		ID:         h.node.Generate(),
		OrgID:      sc.org.ID,
		CustomerID: sc.customer.ID,
		Number:     "PAY-0003",
		Amount:     decimal.NewFromInt(50),
		Applied:    decimal.NewFromInt(50),
		Status:     paymentdomain.PaymentStatusCompleted,
		AppliedAt:  now.AddDate(0, 0, -1),
	}
	alloc := paymentdomain.Allocation{
		ID:        h.node.Generate(),
		OrgID:     sc.org.ID,
		PaymentID: payment.ID,
		Target:    paymentdomain.AllocationTargetCredit,
		TargetID:  credit.ID,
		Amount:    decimal.NewFromInt(50),
		AppliedAt: payment.AppliedAt,
	}
	require.NoError(t, h.db.Create(&credit).Error)
	require.NoError(t, h.db.Create(&payment).Error)
	require.NoError(t, h.db.Create(&alloc).Error)

	_, err := h.svc.DeletePayment(context.Background(), sc.org.ID, payment.ID, true)
	require.NoError(t, err)

	var reloaded creditdomain.Credit
	require.NoError(t, h.db.First(&reloaded, "id = ?", credit.ID).Error)
	assert.True(t, reloaded.Balance.Equal(decimal.NewFromInt(50)), reloaded.Balance.String())
	assert.True(t, reloaded.PaidToDate.IsZero(), reloaded.PaidToDate.String())
	assert.Equal(t, creditdomain.CreditStatusSent, reloaded.Status)

	var customer customerdomain.Customer
	require.NoError(t, h.db.First(&customer, "id = ?", sc.customer.ID).Error)
	assert.True(t, customer.CreditBalance.Equal(decimal.NewFromInt(50)), customer.CreditBalance.String())
}

func TestDeletePayment_CancelledInvoiceOnlyPaidToDate(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, now)
	sc := h.seedPaidInvoice(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	require.NoError(t, h.db.Model(&invoicedomain.Invoice{}).
		Where("id = ?", sc.invoice.ID).
		Update("status", invoicedomain.InvoiceStatusCancelled).Error)

	_, err := h.svc.DeletePayment(context.Background(), sc.org.ID, sc.payment.ID, true)
	require.NoError(t, err)

	var invoice invoicedomain.Invoice
	require.NoError(t, h.db.First(&invoice, "id = ?", sc.invoice.ID).Error)
	// Balance stays extinguished; only paid-to-date is backed out.
	assert.True(t, invoice.Balance.IsZero(), invoice.Balance.String())
	assert.True(t, invoice.PaidToDate.IsZero(), invoice.PaidToDate.String())
	assert.Equal(t, invoicedomain.InvoiceStatusCancelled, invoice.Status)

	var customer customerdomain.Customer
	require.NoError(t, h.db.First(&customer, "id = ?", sc.customer.ID).Error)
	assert.True(t, customer.Balance.IsZero(), customer.Balance.String())
	assert.True(t, customer.PaidToDate.IsZero(), customer.PaidToDate.String())
}

func TestDeletePayment_RestoresAndRedeletesSoftDeletedInvoice(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, now)
	sc := h.seedPaidInvoice(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	require.NoError(t, h.db.Delete(&invoicedomain.Invoice{}, "id = ?", sc.invoice.ID).Error)

	_, err := h.svc.DeletePayment(context.Background(), sc.org.ID, sc.payment.ID, true)
	require.NoError(t, err)

	var invoice invoicedomain.Invoice
	require.NoError(t, h.db.Unscoped().First(&invoice, "id = ?", sc.invoice.ID).Error)
	assert.True(t, invoice.IsDeleted())
	assert.True(t, invoice.PaidToDate.IsZero(), invoice.PaidToDate.String())
	// Balance untouched in the soft-deleted branch.
	assert.True(t, invoice.Balance.IsZero(), invoice.Balance.String())
}

func TestDeletePayment_DetachesBankTransactions(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, now)
	sc := h.seedPaidInvoice(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	paymentID := sc.payment.ID
	bank := bankfeeddomain.BankTransaction{
		ID:              h.node.Generate(),
		OrgID:           sc.org.ID,
		TransactionDate: now.AddDate(0, 0, -5),
		Description:     "transfer",
		Amount:          decimal.NewFromInt(110),
		Status:          bankfeeddomain.BankTransactionStatusMatched,
		PaymentID:       &paymentID,
	}
	require.NoError(t, h.db.Create(&bank).Error)

	_, err := h.svc.DeletePayment(context.Background(), sc.org.ID, sc.payment.ID, true)
	require.NoError(t, err)

	var reloaded bankfeeddomain.BankTransaction
	require.NoError(t, h.db.First(&reloaded, "id = ?", bank.ID).Error)
	assert.Equal(t, bankfeeddomain.BankTransactionStatusUnmatched, reloaded.Status)
	assert.Nil(t, reloaded.PaymentID)
}
