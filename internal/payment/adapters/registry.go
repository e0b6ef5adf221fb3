package adapters

import (
	"context"

	"github.com/smallbiznis/pricebook/internal/config"
	obsmetrics "github.com/smallbiznis/pricebook/internal/observability/metrics"
	"github.com/smallbiznis/pricebook/internal/payment/adapters/stripe"
	"github.com/smallbiznis/pricebook/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// NewProcessor selects the configured processor. Without a Stripe key every
// processor call fails with ErrProcessorNotConfigured.
func NewProcessor(p Params) domain.Processor {
	if p.Cfg.Stripe.SecretKey == "" {
		p.Log.Warn("stripe secret key not set, payment processor disabled")
		return Disabled{}
	}
	return stripe.New(p.Cfg.Stripe.SecretKey, p.Log, p.ObsMetrics)
}

// Disabled rejects every call.
type Disabled struct{}

func (Disabled) Name() string { return "disabled" }

func (Disabled) EnsureCustomer(context.Context, domain.CustomerRequest) (string, error) {
	return "", domain.ErrProcessorNotConfigured
}

func (Disabled) CreateInvoice(context.Context, domain.ExternalInvoiceRequest) (*domain.ExternalInvoice, error) {
	return nil, domain.ErrProcessorNotConfigured
}

func (Disabled) AddLineItem(context.Context, domain.LineItemRequest) error {
	return domain.ErrProcessorNotConfigured
}

func (Disabled) Finalize(context.Context, string) (*domain.ExternalInvoice, error) {
	return nil, domain.ErrProcessorNotConfigured
}

func (Disabled) Pay(context.Context, string) (*domain.PaymentOutcome, error) {
	return nil, domain.ErrProcessorNotConfigured
}

func (Disabled) ListPaymentMethods(context.Context, string) ([]domain.PaymentMethod, error) {
	return nil, domain.ErrProcessorNotConfigured
}

func (Disabled) DetachPaymentMethod(context.Context, string) error {
	return domain.ErrProcessorNotConfigured
}
