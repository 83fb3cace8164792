package recorder

import (
	"context"
	"encoding/json"
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

	"github.com/smallbiznis/taxledger/internal/clock"
	customerdomain "github.com/smallbiznis/taxledger/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/taxledger/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/taxledger/internal/ledger/domain"
	"github.com/smallbiznis/taxledger/internal/ledger/repository"
	orgdomain "github.com/smallbiznis/taxledger/internal/organization/domain"
	paymentdomain "github.com/smallbiznis/taxledger/internal/payment/domain"
	"github.com/smallbiznis/taxledger/internal/period"
	"github.com/smallbiznis/taxledger/internal/tax"
	"github.com/smallbiznis/taxledger/internal/taxreport"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&orgdomain.Organization{},
		&customerdomain.Customer{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceTax{},
		&paymentdomain.Payment{},
		&paymentdomain.Allocation{},
		&ledgerdomain.TransactionEvent{},
	))
	return db
}

func newTestService(t *testing.T, db *gorm.DB, now time.Time) (*Service, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(now)
	svc := NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    repository.Provide(),
		Calc:    tax.Provide(),
		Periods: period.NewMonthEndResolver(),
		Clock:   fake,
	})
	return svc, fake
}

type fixture struct {
	org      orgdomain.Organization
	customer customerdomain.Customer
	invoice  invoicedomain.Invoice
	payment  paymentdomain.Payment
}

func seedInvoice(t *testing.T, db *gorm.DB, node *snowflake.Node, invoiceDate time.Time) fixture {
	t.Helper()
	f := fixture{
		org: orgdomain.Organization{
			ID:   node.Generate(),
			Name: "Acme Corp",
		},
		customer: customerdomain.Customer{
			Name:       "Globex",
			Balance:    decimal.NewFromInt(0),
			PaidToDate: decimal.NewFromInt(0),
		},
	}
	f.customer.ID = node.Generate()
	f.customer.OrgID = f.org.ID

	f.invoice = invoicedomain.Invoice{
		ID:         node.Generate(),
		OrgID:      f.org.ID,
		CustomerID: f.customer.ID,
		Number:     "INV-0001",
		Date:       invoiceDate,
		Amount:     decimal.NewFromInt(220),
		Balance:    decimal.NewFromInt(110),
		PaidToDate: decimal.NewFromInt(110),
		Status:     invoicedomain.InvoiceStatusPartial,
	}
	taxes := []invoicedomain.InvoiceTax{
		{ID: node.Generate(), OrgID: f.org.ID, InvoiceID: f.invoice.ID, TaxName: "GST", TaxRate: decimal.NewFromInt(10), TaxableAmount: decimal.NewFromInt(200), TotalAmount: decimal.NewFromInt(20)},
		{ID: node.Generate(), OrgID: f.org.ID, InvoiceID: f.invoice.ID, TaxName: "VAT", TaxRate: decimal.NewFromFloat(17.5), TaxableAmount: decimal.NewFromInt(200), TotalAmount: decimal.NewFromInt(35)},
	}

	f.payment = paymentdomain.Payment{
		ID:         node.Generate(),
		OrgID:      f.org.ID,
		CustomerID: f.customer.ID,
		Number:     "PAY-0001",
		Amount:     decimal.NewFromInt(110),
		Applied:    decimal.NewFromInt(110),
		Status:     paymentdomain.PaymentStatusCompleted,
		AppliedAt:  invoiceDate.AddDate(0, 0, 1),
	}
	alloc := paymentdomain.Allocation{
		ID:        node.Generate(),
		OrgID:     f.org.ID,
		PaymentID: f.payment.ID,
		Target:    paymentdomain.AllocationTargetInvoice,
		TargetID:  f.invoice.ID,
		Amount:    decimal.NewFromInt(110),
		AppliedAt: f.payment.AppliedAt,
	}

	require.NoError(t, db.Create(&f.org).Error)
	require.NoError(t, db.Create(&f.customer).Error)
	require.NoError(t, db.Create(&f.invoice).Error)
	require.NoError(t, db.Create(&taxes).Error)
	require.NoError(t, db.Create(&f.payment).Error)
	require.NoError(t, db.Create(&alloc).Error)
	return f
}

func decodeReport(t *testing.T, event ledgerdomain.TransactionEvent) taxreport.Report {
	t.Helper()
	var report taxreport.Report
	require.NoError(t, json.Unmarshal(event.Metadata, &report))
	return report
}

func TestRecordAccrual_WritesInvoiceUpdatedEvent(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, db, now)
	f := seedInvoice(t, db, svc.genID, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	event, err := svc.RecordAccrual(context.Background(), f.org.ID, f.invoice.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, event)

	assert.Equal(t, ledgerdomain.EventInvoiceUpdated, event.EventID)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), event.Period.UTC())
	assert.True(t, event.InvoicePaidToDate.Equal(decimal.NewFromInt(110)))

	report := decodeReport(t, *event)
	require.Len(t, report.TaxDetails, 2)
	// Half paid: each line splits 50/50 between paid and remaining.
	assert.True(t, report.TaxDetails[0].TaxAmountPaid.Equal(decimal.NewFromInt(10)), report.TaxDetails[0].TaxAmountPaid.String())
	assert.True(t, report.TaxDetails[0].TaxAmountRemaining.Equal(decimal.NewFromInt(10)))
	assert.True(t, report.TaxDetails[1].TaxAmountPaid.Equal(decimal.NewFromFloat(17.5)))
	assert.Equal(t, taxreport.SummaryStatusUpdated, report.TaxSummary.Status)
	require.Len(t, report.PaymentHistory, 1)
	assert.Equal(t, "PAY-0001", report.PaymentHistory[0].Number)
}

func TestRecordAccrual_UnknownInvoice(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTestService(t, db, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))

	_, err := svc.RecordAccrual(context.Background(), snowflake.ID(1), snowflake.ID(2), nil)
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidInvoice)
}

func TestRecordCash_SkipsOpenPeriod(t *testing.T) {
	db := newTestDB(t)
	// Invoice dated inside the current month: period still open.
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, db, now)
	f := seedInvoice(t, db, svc.genID, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	err := svc.RecordCash(context.Background(), CashParams{
		OrgID:      f.org.ID,
		PaymentID:  f.payment.ID,
		InvoiceIDs: []snowflake.ID{f.invoice.ID},
	})
	require.NoError(t, err)

	var count int64
	db.Model(&ledgerdomain.TransactionEvent{}).Count(&count)
	assert.Zero(t, count)
}

func TestRecordCash_RefundEventForClosedPeriod(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, db, now)
	f := seedInvoice(t, db, svc.genID, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	err := svc.RecordCash(context.Background(), CashParams{
		OrgID:      f.org.ID,
		PaymentID:  f.payment.ID,
		InvoiceIDs: []snowflake.ID{f.invoice.ID},
	})
	require.NoError(t, err)

	var events []ledgerdomain.TransactionEvent
	require.NoError(t, db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, ledgerdomain.EventPaymentRefunded, events[0].EventID)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), events[0].Period.UTC())
	require.NotNil(t, events[0].PaymentID)
	assert.Equal(t, f.payment.ID, *events[0].PaymentID)

	report := decodeReport(t, events[0])
	assert.Equal(t, taxreport.SummaryStatusAdjustment, report.TaxSummary.Status)
	require.NotNil(t, report.TaxSummary.Adjustment)
}

func TestRecordCash_SupersedesSamePeriodEvent(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, db, now)
	f := seedInvoice(t, db, svc.genID, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	params := CashParams{
		OrgID:      f.org.ID,
		PaymentID:  f.payment.ID,
		InvoiceIDs: []snowflake.ID{f.invoice.ID},
	}
	require.NoError(t, svc.RecordCash(context.Background(), params))
	require.NoError(t, svc.RecordCash(context.Background(), params))
	require.NoError(t, svc.RecordCash(context.Background(), params))

	// Re-running converges to exactly one cash row per invoice and period.
	var count int64
	db.Model(&ledgerdomain.TransactionEvent{}).
		Where("invoice_id = ? AND event_id IN ?", f.invoice.ID, []ledgerdomain.EventID{ledgerdomain.EventPaymentRefunded, ledgerdomain.EventPaymentDeleted}).
		Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestRecordCash_DeletionEvent(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, db, now)
	f := seedInvoice(t, db, svc.genID, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	err := svc.RecordCash(context.Background(), CashParams{
		OrgID:             f.org.ID,
		PaymentID:         f.payment.ID,
		InvoiceIDs:        []snowflake.ID{f.invoice.ID},
		InvoiceAdjustment: decimal.NewFromInt(110),
		IsDeletion:        true,
	})
	require.NoError(t, err)

	var events []ledgerdomain.TransactionEvent
	require.NoError(t, db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, ledgerdomain.EventPaymentDeleted, events[0].EventID)

	report := decodeReport(t, events[0])
	for _, detail := range report.TaxDetails {
		assert.Equal(t, taxreport.TaxStatusPaymentDeleted, detail.TaxStatus)
		assert.True(t, detail.TaxAmountRemaining.IsZero())
	}
}

func TestRecordCash_UnknownPayment(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTestService(t, db, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))

	err := svc.RecordCash(context.Background(), CashParams{
		OrgID:     snowflake.ID(1),
		PaymentID: snowflake.ID(2),
	})
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)
}

func TestListInvoiceEvents_OrderedByTime(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, fake := newTestService(t, db, now)
	f := seedInvoice(t, db, svc.genID, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	_, err := svc.RecordAccrual(context.Background(), f.org.ID, f.invoice.ID, nil)
	require.NoError(t, err)
	fake.Advance(time.Hour)
	_, err = svc.RecordAccrual(context.Background(), f.org.ID, f.invoice.ID, nil)
	require.NoError(t, err)

	events, err := svc.ListInvoiceEvents(context.Background(), f.org.ID, f.invoice.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].Timestamp.Before(events[1].Timestamp))
}

func TestListPeriodEvents_AndByKind(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, db, now)
	f := seedInvoice(t, db, svc.genID, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	// One accrual (period keyed off "now", 2024-03-31) and one cash
	// event (keyed off the invoice date, 2024-01-31).
	_, err := svc.RecordAccrual(context.Background(), f.org.ID, f.invoice.ID, nil)
	require.NoError(t, err)
	require.NoError(t, svc.RecordCash(context.Background(), CashParams{
		OrgID:      f.org.ID,
		PaymentID:  f.payment.ID,
		InvoiceIDs: []snowflake.ID{f.invoice.ID},
	}))

	january, err := svc.ListPeriodEvents(context.Background(), f.org.ID, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, january, 1)
	assert.Equal(t, ledgerdomain.EventPaymentRefunded, january[0].EventID)

	updated, err := svc.ListEventsByKind(context.Background(), f.org.ID, ledgerdomain.EventInvoiceUpdated)
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, f.invoice.ID, updated[0].InvoiceID)

	_, err = svc.ListPeriodEvents(context.Background(), f.org.ID, time.Time{})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidPeriod)
}
