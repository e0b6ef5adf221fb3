package main

import (
	"github.com/smallbiznis/pricebook/internal/cache"
	"github.com/smallbiznis/pricebook/internal/clock"
	"github.com/smallbiznis/pricebook/internal/config"
	"github.com/smallbiznis/pricebook/internal/invoice"
	"github.com/smallbiznis/pricebook/internal/migration"
	"github.com/smallbiznis/pricebook/internal/observability"
	"github.com/smallbiznis/pricebook/internal/payment"
	"github.com/smallbiznis/pricebook/internal/pricebook"
	"github.com/smallbiznis/pricebook/internal/pricing"
	"github.com/smallbiznis/pricebook/internal/pricingrule"
	"github.com/smallbiznis/pricebook/internal/ratelimit"
	"github.com/smallbiznis/pricebook/internal/ruleusage"
	"github.com/smallbiznis/pricebook/internal/scheduler"
	"github.com/smallbiznis/pricebook/internal/server"
	"github.com/smallbiznis/pricebook/internal/usage"
	"github.com/smallbiznis/pricebook/pkg/db"
	"github.com/smallbiznis/pricebook/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		log.Module,
		observability.Module,
		db.Module,
		clock.Module,
		cache.Module,
		ratelimit.Module,
		migration.Module,

		// Billing domains
		pricebook.Module,
		pricingrule.Module,
		ruleusage.Module,
		pricing.Module,
		usage.Module,
		payment.Module,
		invoice.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}
