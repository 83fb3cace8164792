package domain

import "errors"

// Lifecycle is the closed set of invoice states that tax snapshots
// dispatch on. Deletion wins over cancellation: a soft-deleted cancelled
// invoice snapshots as deleted.
type Lifecycle interface {
	lifecycle()
}

// Active is a live invoice carrying its payment status.
type Active struct {
	Status InvoiceStatus
}

// Cancelled is an invoice whose obligation was extinguished while the
// record itself remains visible.
type Cancelled struct{}

// Deleted is a soft-deleted invoice.
type Deleted struct{}

func (Active) lifecycle()    {}
func (Cancelled) lifecycle() {}
func (Deleted) lifecycle()   {}

var ErrInvalidLifecycle = errors.New("invalid_invoice_lifecycle")

// Lifecycle derives the snapshot state of the invoice.
func (i Invoice) Lifecycle() Lifecycle {
	switch {
	case i.DeletedAt.Valid:
		return Deleted{}
	case i.Status == InvoiceStatusCancelled:
		return Cancelled{}
	default:
		return Active{Status: i.Status}
	}
}

// IsCancelled reports whether the invoice is cancelled.
func (i Invoice) IsCancelled() bool { return i.Status == InvoiceStatusCancelled }

// IsDeleted reports whether the invoice is soft-deleted.
func (i Invoice) IsDeleted() bool { return i.DeletedAt.Valid }
