package taxreport

import "github.com/shopspring/decimal"

// PaidRatio returns paid_to_date / amount as a snapshot-time figure.
// An invoice with zero amount has nothing outstanding, so the ratio is 0.
// The ratio is recomputed at every event; two snapshots of the same
// invoice can legitimately disagree without any new allocation having
// been persisted.
func PaidRatio(paidToDate, amount decimal.Decimal) decimal.Decimal {
	if amount.IsZero() {
		return decimal.Zero
	}
	return paidToDate.Div(amount)
}

// Allocate distributes a tax amount across the paid portion of an
// invoice, rounded to 2 places.
func Allocate(taxAmount, ratio decimal.Decimal) decimal.Decimal {
	return taxAmount.Mul(ratio).Round(2)
}

// NetPayments is the sum of history amounts less refunds.
func NetPayments(history []PaymentHistory) decimal.Decimal {
	net := decimal.Zero
	for _, h := range history {
		net = net.Add(h.Amount).Sub(h.Refunded)
	}
	return net
}
