package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/taxledger/internal/audit"
	"github.com/smallbiznis/taxledger/internal/clock"
	"github.com/smallbiznis/taxledger/internal/config"
	"github.com/smallbiznis/taxledger/internal/ledger"
	"github.com/smallbiznis/taxledger/internal/logger"
	"github.com/smallbiznis/taxledger/internal/migration"
	obsmetrics "github.com/smallbiznis/taxledger/internal/observability/metrics"
	"github.com/smallbiznis/taxledger/internal/payment"
	"github.com/smallbiznis/taxledger/internal/period"
	"github.com/smallbiznis/taxledger/internal/scheduler"
	"github.com/smallbiznis/taxledger/internal/tasks"
	"github.com/smallbiznis/taxledger/internal/tax"
	"github.com/smallbiznis/taxledger/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		obsmetrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		period.Module,
		tasks.Module,

		// Functional domains
		audit.Module,
		tax.Module,
		ledger.Module,
		payment.Module,
		scheduler.Module,
		migration.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		panic(err)
	}
	return node
}
