package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// ReversalService unwinds a payment: restores invoice and credit
// balances, detaches bank feed matches, purges allocations, soft-deletes
// the payment and schedules the closed-period ledger events.
type ReversalService interface {
	// DeletePayment reverses the payment inside one transaction. The
	// returned payment reflects its post-reversal state. Reversing an
	// already-deleted payment is a no-op and returns the payment as is.
	// updateClientPaidToDate controls the final client paid-to-date
	// adjustment step.
	DeletePayment(ctx context.Context, orgID, paymentID snowflake.ID, updateClientPaidToDate bool) (*Payment, error)
}
