package ledger

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/taxledger/internal/ledger/recorder"
	"github.com/smallbiznis/taxledger/internal/ledger/repository"
)

var Module = fx.Module("ledger",
	fx.Provide(repository.Provide),
	fx.Provide(recorder.NewService),
)
