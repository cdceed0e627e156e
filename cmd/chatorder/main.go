package main

import (
	"github.com/smallbiznis/chatorder/internal/apikey"
	"github.com/smallbiznis/chatorder/internal/auth"
	"github.com/smallbiznis/chatorder/internal/config"
	"github.com/smallbiznis/chatorder/internal/extraction"
	"github.com/smallbiznis/chatorder/internal/migration"
	"github.com/smallbiznis/chatorder/internal/observability"
	"github.com/smallbiznis/chatorder/internal/order"
	"github.com/smallbiznis/chatorder/internal/providers"
	"github.com/smallbiznis/chatorder/internal/ratelimit"
	"github.com/smallbiznis/chatorder/internal/server"
	"github.com/smallbiznis/chatorder/internal/worker"
	"github.com/smallbiznis/chatorder/pkg/db"
	"github.com/smallbiznis/chatorder/pkg/redisconn"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		db.Module,
		redisconn.Module,
		migration.Module,

		// Domain
		extraction.Module,
		order.Module,
		auth.Module,
		apikey.Module,
		ratelimit.Module,
		providers.Module,
		worker.Module,

		// HTTP surface
		server.Module,
	)

	app.Run()
}
