// Package taxreport holds the value types embedded in ledger rows and the
// pure functions that build them. A Report is copied into a transaction
// event at snapshot time and never mutated afterwards; nothing in here
// touches the database.
package taxreport

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxStatus classifies a single tax line inside a snapshot.
type TaxStatus string

const (
	TaxStatusCollected      TaxStatus = "collected"
	TaxStatusPending        TaxStatus = "pending"
	TaxStatusRefundable     TaxStatus = "refundable"
	TaxStatusPartiallyPaid  TaxStatus = "partially_paid"
	TaxStatusAdjustment     TaxStatus = "adjustment"
	TaxStatusPaymentDeleted TaxStatus = "payment_deleted"
)

// SummaryStatus classifies the whole snapshot.
type SummaryStatus string

const (
	SummaryStatusUpdated    SummaryStatus = "updated"
	SummaryStatusCancelled  SummaryStatus = "cancelled"
	SummaryStatusDeleted    SummaryStatus = "deleted"
	SummaryStatusAdjustment SummaryStatus = "adjustment"
)

// TaxLine is one entry of the computed per-invoice tax breakdown supplied
// by the tax calculation subsystem.
type TaxLine struct {
	Name         string
	Rate         decimal.Decimal
	Nexus        string
	CountryNexus string
	BaseAmount   decimal.Decimal
	Total        decimal.Decimal
}

// TaxDetail is the snapshot of one tax line.
type TaxDetail struct {
	TaxName            string          `json:"tax_name"`
	TaxRate            decimal.Decimal `json:"tax_rate"`
	Nexus              string          `json:"nexus"`
	CountryNexus       string          `json:"country_nexus"`
	TaxableAmount      decimal.Decimal `json:"taxable_amount"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	TaxAmountPaid      decimal.Decimal `json:"tax_amount_paid"`
	TaxAmountRemaining decimal.Decimal `json:"tax_amount_remaining"`
	TaxStatus          TaxStatus       `json:"tax_status"`
	AdjustmentReason   string          `json:"adjustment_reason,omitempty"`
}

// TaxSummary aggregates the snapshot. Adjustment is signed and only
// meaningful when Status is adjustment; consumers treat a missing value
// as absent, not zero, so it is omitted when empty.
type TaxSummary struct {
	TotalTaxes decimal.Decimal  `json:"total_taxes"`
	TotalPaid  decimal.Decimal  `json:"total_paid"`
	Status     SummaryStatus    `json:"status"`
	Adjustment *decimal.Decimal `json:"adjustment,omitempty"`
}

// PaymentHistory is a denormalized, point-in-time copy of one payment
// allocation. It is copied by value so a ledger row stays self-contained
// even if the source payment later changes; do not replace it with a
// reference.
type PaymentHistory struct {
	Number   string          `json:"number"`
	Date     time.Time       `json:"date"`
	Amount   decimal.Decimal `json:"amount"`
	Refunded decimal.Decimal `json:"refunded"`
}

// Report is the full snapshot embedded in a ledger row.
type Report struct {
	TaxSummary     TaxSummary       `json:"tax_summary"`
	TaxDetails     []TaxDetail      `json:"tax_details"`
	Amount         decimal.Decimal  `json:"amount"`
	PaymentHistory []PaymentHistory `json:"payment_history"`
}
