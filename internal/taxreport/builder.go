package taxreport

import (
	"github.com/shopspring/decimal"

	invoicedomain "github.com/smallbiznis/taxledger/internal/invoice/domain"
)

const (
	reasonPaymentRefunded = "payment_refunded"
	reasonPaymentDeleted  = "payment_deleted"
)

// Input carries everything a snapshot needs: the invoice figures at
// snapshot time, its tax breakdown, and the payment-history window the
// caller selected.
type Input struct {
	Amount     decimal.Decimal
	PaidToDate decimal.Decimal
	Lifecycle  invoicedomain.Lifecycle
	Taxes      []TaxLine
	History    []PaymentHistory
}

// BuildAccrual produces the invoice-state-driven snapshot. The three
// lifecycle arms differ on purpose:
//
//   - active: paid/remaining split by the paid ratio
//   - cancelled: remaining forced to 0, paid keeps the ratio-allocated
//     portion collected before cancellation
//   - deleted: remaining forced to 0, paid forced to the full tax total
//
// The cancelled/deleted asymmetry is deliberate; do not unify the arms.
func BuildAccrual(in Input) (Report, error) {
	ratio := PaidRatio(in.PaidToDate, in.Amount)

	var (
		details []TaxDetail
		status  SummaryStatus
	)
	switch in.Lifecycle.(type) {
	case invoicedomain.Active:
		status = SummaryStatusUpdated
		details = make([]TaxDetail, 0, len(in.Taxes))
		for _, tax := range in.Taxes {
			paid := Allocate(tax.Total, ratio)
			details = append(details, detail(tax, paid, tax.Total.Sub(paid), deriveStatus(paid, tax.Total), ""))
		}
	case invoicedomain.Cancelled:
		status = SummaryStatusCancelled
		details = make([]TaxDetail, 0, len(in.Taxes))
		for _, tax := range in.Taxes {
			paid := Allocate(tax.Total, ratio)
			details = append(details, detail(tax, paid, decimal.Zero, deriveStatus(paid, tax.Total), ""))
		}
	case invoicedomain.Deleted:
		status = SummaryStatusDeleted
		details = make([]TaxDetail, 0, len(in.Taxes))
		for _, tax := range in.Taxes {
			details = append(details, detail(tax, tax.Total, decimal.Zero, TaxStatusCollected, ""))
		}
	default:
		return Report{}, invoicedomain.ErrInvalidLifecycle
	}

	return Report{
		TaxSummary:     summary(in, details, status, false),
		TaxDetails:     details,
		Amount:         in.Amount,
		PaymentHistory: in.History,
	}, nil
}

// BuildRefund produces the cash snapshot for a refund against a closed
// period. Every line stays conserved (paid + remaining == total); the
// summary is forced to an adjustment carrying the signed delta.
func BuildRefund(in Input) (Report, error) {
	ratio := PaidRatio(in.PaidToDate, in.Amount)
	details := make([]TaxDetail, 0, len(in.Taxes))
	for _, tax := range in.Taxes {
		paid := Allocate(tax.Total, ratio)
		remaining := tax.Total.Sub(paid).Round(2)
		details = append(details, detail(tax, paid, remaining, TaxStatusRefundable, reasonPaymentRefunded))
	}
	return Report{
		TaxSummary:     summary(in, details, SummaryStatusAdjustment, true),
		TaxDetails:     details,
		Amount:         in.Amount,
		PaymentHistory: in.History,
	}, nil
}

// BuildDeletion produces the cash snapshot for a deleted payment.
// invoiceAdjustment is the net amount still attributed to the invoice
// after deletion, supplied by the reversal engine; when zero the builder
// falls back to the ratio allocation.
func BuildDeletion(in Input, invoiceAdjustment decimal.Decimal) (Report, error) {
	ratio := PaidRatio(in.PaidToDate, in.Amount)
	details := make([]TaxDetail, 0, len(in.Taxes))
	for _, tax := range in.Taxes {
		var paid decimal.Decimal
		if !invoiceAdjustment.IsZero() {
			gross := tax.BaseAmount.Add(tax.Total)
			if gross.IsZero() {
				paid = decimal.Zero
			} else {
				paid = invoiceAdjustment.Div(gross).Mul(tax.Total).Round(2)
			}
		} else {
			paid = Allocate(tax.Total, ratio)
		}
		details = append(details, detail(tax, paid, decimal.Zero, TaxStatusPaymentDeleted, reasonPaymentDeleted))
	}
	return Report{
		TaxSummary:     summary(in, details, SummaryStatusAdjustment, true),
		TaxDetails:     details,
		Amount:         in.Amount,
		PaymentHistory: in.History,
	}, nil
}

func detail(tax TaxLine, paid, remaining decimal.Decimal, status TaxStatus, reason string) TaxDetail {
	return TaxDetail{
		TaxName:            tax.Name,
		TaxRate:            tax.Rate,
		Nexus:              tax.Nexus,
		CountryNexus:       tax.CountryNexus,
		TaxableAmount:      tax.BaseAmount,
		TaxAmount:          tax.Total,
		TaxAmountPaid:      paid,
		TaxAmountRemaining: remaining,
		TaxStatus:          status,
		AdjustmentReason:   reason,
	}
}

func deriveStatus(paid, total decimal.Decimal) TaxStatus {
	switch {
	case total.IsZero() || paid.GreaterThanOrEqual(total):
		return TaxStatusCollected
	case paid.IsZero():
		return TaxStatusPending
	default:
		return TaxStatusPartiallyPaid
	}
}

func summary(in Input, details []TaxDetail, status SummaryStatus, adjustment bool) TaxSummary {
	totalTaxes := decimal.Zero
	for _, d := range details {
		totalTaxes = totalTaxes.Add(d.TaxAmount)
	}

	totalPaid := decimal.Zero
	if !in.Amount.IsZero() {
		net := NetPayments(in.History)
		totalPaid = totalTaxes.Mul(net.Div(in.Amount)).Round(2)
	}

	out := TaxSummary{
		TotalTaxes: totalTaxes,
		TotalPaid:  totalPaid,
		Status:     status,
	}
	if adjustment {
		adj := totalTaxes.Sub(totalPaid).Round(2).Neg()
		out.Adjustment = &adj
	}
	return out
}
