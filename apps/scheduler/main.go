package main

import (
	"github.com/smallbiznis/pricebook/internal/cache"
	"github.com/smallbiznis/pricebook/internal/clock"
	"github.com/smallbiznis/pricebook/internal/config"
	"github.com/smallbiznis/pricebook/internal/invoice"
	"github.com/smallbiznis/pricebook/internal/observability"
	"github.com/smallbiznis/pricebook/internal/payment"
	"github.com/smallbiznis/pricebook/internal/pricebook"
	"github.com/smallbiznis/pricebook/internal/pricing"
	"github.com/smallbiznis/pricebook/internal/pricingrule"
	"github.com/smallbiznis/pricebook/internal/ratelimit"
	"github.com/smallbiznis/pricebook/internal/ruleusage"
	"github.com/smallbiznis/pricebook/internal/scheduler"
	"github.com/smallbiznis/pricebook/internal/usage"
	"github.com/smallbiznis/pricebook/pkg/db"
	"github.com/smallbiznis/pricebook/pkg/log"
	"go.uber.org/fx"
)

// Runs the monthly invoice job without the HTTP API. Migrations are left to
// the API binary.
func main() {
	app := fx.New(
		config.Module,
		log.Module,
		observability.Module,
		db.Module,
		clock.Module,
		cache.Module,
		ratelimit.Module,

		// Domain services required by scheduler
		pricebook.Module,
		pricingrule.Module,
		ruleusage.Module,
		pricing.Module,
		usage.Module,
		payment.Module,
		invoice.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}
