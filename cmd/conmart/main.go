package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/zutali/conmart/internal/account"
	"github.com/zutali/conmart/internal/clock"
	"github.com/zutali/conmart/internal/config"
	"github.com/zutali/conmart/internal/entitlement"
	"github.com/zutali/conmart/internal/gateway"
	"github.com/zutali/conmart/internal/migration"
	"github.com/zutali/conmart/internal/notification"
	"github.com/zutali/conmart/internal/observability"
	"github.com/zutali/conmart/internal/plan"
	"github.com/zutali/conmart/internal/ratelimit"
	"github.com/zutali/conmart/internal/scheduler"
	"github.com/zutali/conmart/internal/server"
	"github.com/zutali/conmart/internal/subscription"
	"github.com/zutali/conmart/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,

		// Domains
		plan.Module,
		account.Module,
		gateway.Module,
		subscription.Module,
		entitlement.Module,
		notification.Module,
		ratelimit.Module,
		scheduler.Module,

		// Surfaces
		server.Module,
		migration.Module,
	)
	app.Run()
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
