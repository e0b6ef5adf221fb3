package payment

import (
	"github.com/smallbiznis/pricebook/internal/payment/adapters"
	"github.com/smallbiznis/pricebook/internal/payment/repository"
	paymentservice "github.com/smallbiznis/pricebook/internal/payment/service"
	"github.com/smallbiznis/pricebook/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(adapters.NewProcessor),
	fx.Provide(paymentservice.New),
	fx.Provide(webhook.NewService),
)
