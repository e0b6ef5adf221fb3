package pricebook

import (
	"github.com/smallbiznis/pricebook/internal/pricebook/repository"
	"github.com/smallbiznis/pricebook/internal/pricebook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricebook.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
