package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/tapkeeper/tapkeeper/internal/account"
	"github.com/tapkeeper/tapkeeper/internal/config"
	"github.com/tapkeeper/tapkeeper/internal/item"
	"github.com/tapkeeper/tapkeeper/internal/ledger"
	"github.com/tapkeeper/tapkeeper/internal/logger"
	"github.com/tapkeeper/tapkeeper/internal/migration"
	"github.com/tapkeeper/tapkeeper/internal/providers/mollie"
	"github.com/tapkeeper/tapkeeper/internal/providers/slack"
	"github.com/tapkeeper/tapkeeper/internal/ratelimit"
	"github.com/tapkeeper/tapkeeper/internal/reconcile"
	"github.com/tapkeeper/tapkeeper/internal/server"
	"github.com/tapkeeper/tapkeeper/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		migration.Module,

		account.Module,
		item.Module,
		ledger.Module,
		slack.Module,
		mollie.Module,
		reconcile.Module,
		ratelimit.Module,

		server.Module,
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
