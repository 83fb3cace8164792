// Package repository implements payment persistence with raw SQL over gorm.
package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/taxledger/internal/payment/domain"
)

type repo struct{}

// Provide returns the gorm-backed payment repository.
func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) LockPayment(ctx context.Context, db *gorm.DB, orgID, paymentID snowflake.ID) (*domain.Payment, error) {
	query := `SELECT id, org_id, customer_id, number, amount, refunded, applied,
			status, applied_at, created_at, updated_at, deleted_at
		 FROM payments
		 WHERE org_id = ? AND id = ?
		 LIMIT 1`
	if db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var payment domain.Payment
	err := db.WithContext(ctx).Raw(query, orgID, paymentID).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) ListAllocations(ctx context.Context, db *gorm.DB, orgID, paymentID snowflake.ID) ([]domain.Allocation, error) {
	var allocations []domain.Allocation
	err := db.WithContext(ctx).
		Where("org_id = ? AND payment_id = ?", orgID, paymentID).
		Order("applied_at ASC, id ASC").
		Find(&allocations).Error
	if err != nil {
		return nil, err
	}
	return allocations, nil
}

func (r *repo) PurgeAllocations(ctx context.Context, db *gorm.DB, orgID, paymentID snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM payment_allocations WHERE org_id = ? AND payment_id = ?`,
		orgID,
		paymentID,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
