// Package tax exposes the tax breakdown collaborator. Rate computation
// lives in a separate subsystem; this package only loads the breakdown
// it persisted for an invoice.
package tax

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	invoicedomain "github.com/smallbiznis/taxledger/internal/invoice/domain"
	"github.com/smallbiznis/taxledger/internal/taxreport"
)

// Calculator returns the computed per-invoice tax breakdown, merged from
// invoice-level and line-level taxes.
type Calculator interface {
	ForInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) ([]taxreport.TaxLine, error)
}

type rowCalculator struct{}

// Provide returns the calculator backed by the invoice_taxes rows the
// tax subsystem writes at finalization.
func Provide() Calculator { return rowCalculator{} }

func (rowCalculator) ForInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) ([]taxreport.TaxLine, error) {
	var rows []invoicedomain.InvoiceTax
	err := db.WithContext(ctx).
		Where("org_id = ? AND invoice_id = ?", orgID, invoiceID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	lines := make([]taxreport.TaxLine, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, taxreport.TaxLine{
			Name:         row.TaxName,
			Rate:         row.TaxRate,
			Nexus:        row.Nexus,
			CountryNexus: row.CountryNexus,
			BaseAmount:   row.TaxableAmount,
			Total:        row.TotalAmount,
		})
	}
	return lines, nil
}

// Module wires the row-backed calculator.
var Module = fx.Module("tax",
	fx.Provide(Provide),
)
