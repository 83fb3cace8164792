package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the payment persistence contract. Every method takes the
// caller's transaction handle so the reversal engine can compose them
// under a single transaction.
type Repository interface {
	// LockPayment loads the payment (soft-deleted included) holding a row
	// lock until the transaction ends. Returns nil when no row matches.
	LockPayment(ctx context.Context, db *gorm.DB, orgID, paymentID snowflake.ID) (*Payment, error)

	// ListAllocations returns the payment's allocation rows ordered by
	// application time.
	ListAllocations(ctx context.Context, db *gorm.DB, orgID, paymentID snowflake.ID) ([]Allocation, error)

	// PurgeAllocations hard-deletes the payment's allocation rows and
	// reports how many were removed.
	PurgeAllocations(ctx context.Context, db *gorm.DB, orgID, paymentID snowflake.ID) (int64, error)
}
