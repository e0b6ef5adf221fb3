package ruleusage

import (
	"github.com/smallbiznis/pricebook/internal/ruleusage/repository"
	"github.com/smallbiznis/pricebook/internal/ruleusage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ruleusage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
