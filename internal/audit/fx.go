package audit

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/taxledger/internal/audit/service"
)

var Module = fx.Module("audit.service",
	fx.Provide(service.NewService),
)
