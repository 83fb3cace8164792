package payment

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/taxledger/internal/payment/repository"
	"github.com/smallbiznis/taxledger/internal/payment/reversal"
)

var Module = fx.Module("payment",
	fx.Provide(repository.Provide),
	fx.Provide(reversal.NewService),
)
