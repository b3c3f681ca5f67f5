package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licenseboard/internal/activity"
	"github.com/smallbiznis/licenseboard/internal/activitylog"
	"github.com/smallbiznis/licenseboard/internal/audit"
	"github.com/smallbiznis/licenseboard/internal/auth"
	"github.com/smallbiznis/licenseboard/internal/authorization"
	"github.com/smallbiznis/licenseboard/internal/cache"
	"github.com/smallbiznis/licenseboard/internal/clock"
	"github.com/smallbiznis/licenseboard/internal/config"
	"github.com/smallbiznis/licenseboard/internal/dashboard"
	"github.com/smallbiznis/licenseboard/internal/kpiexport"
	"github.com/smallbiznis/licenseboard/internal/license"
	"github.com/smallbiznis/licenseboard/internal/migration"
	"github.com/smallbiznis/licenseboard/internal/observability"
	"github.com/smallbiznis/licenseboard/internal/providers"
	"github.com/smallbiznis/licenseboard/internal/ratelimit"
	"github.com/smallbiznis/licenseboard/internal/reference"
	"github.com/smallbiznis/licenseboard/internal/server"
	"github.com/smallbiznis/licenseboard/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		cache.Module,
		ratelimit.Module,

		// Functional Domains
		audit.Module,
		reference.Module,
		license.Module,
		activity.Module,
		providers.Module,
		kpiexport.Module,
		dashboard.Module,
		activitylog.Module,
		auth.Module,
		authorization.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
