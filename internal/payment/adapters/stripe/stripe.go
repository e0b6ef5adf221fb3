// Package stripe implements the payment processor on top of stripe-go.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	obsmetrics "github.com/smallbiznis/pricebook/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/pricebook/internal/payment/domain"
	"github.com/smallbiznis/pricebook/pkg/errs"
	stripe "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"
)

const ProviderName = "stripe"

type Adapter struct {
	api     *client.API
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

// New builds an adapter talking to the public Stripe API.
func New(secretKey string, log *zap.Logger, metrics *obsmetrics.Metrics) *Adapter {
	return NewWithBackend(secretKey, nil, log, metrics)
}

// NewWithBackend routes every call through backend. A nil backend uses
// the default Stripe backends.
func NewWithBackend(secretKey string, backend stripe.Backend, log *zap.Logger, metrics *obsmetrics.Metrics) *Adapter {
	var backends *stripe.Backends
	if backend != nil {
		backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}
	return &Adapter{
		api:     client.New(secretKey, backends),
		log:     log.Named("payment.stripe"),
		metrics: metrics,
	}
}

func (a *Adapter) Name() string { return ProviderName }

func (a *Adapter) EnsureCustomer(ctx context.Context, req paymentdomain.CustomerRequest) (ref string, err error) {
	defer a.observe("ensure_customer", time.Now(), &err)

	params := &stripe.CustomerParams{
		Params:      stripe.Params{Context: ctx},
		Description: stripe.String(fmt.Sprintf("organization %s", req.OrgID.String())),
	}
	params.AddMetadata("org_id", req.OrgID.String())
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	customer, err := a.api.Customers.New(params)
	if err != nil {
		return "", wrapError("create customer", err)
	}
	return customer.ID, nil
}

func (a *Adapter) CreateInvoice(ctx context.Context, req paymentdomain.ExternalInvoiceRequest) (_ *paymentdomain.ExternalInvoice, err error) {
	defer a.observe("create_invoice", time.Now(), &err)

	params := &stripe.InvoiceParams{
		Params:                      stripe.Params{Context: ctx},
		Customer:                    stripe.String(req.CustomerRef),
		Currency:                    stripe.String(req.Currency),
		AutoAdvance:                 stripe.Bool(false),
		CollectionMethod:            stripe.String(string(stripe.InvoiceCollectionMethodChargeAutomatically)),
		PendingInvoiceItemsBehavior: stripe.String("exclude"),
	}
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	inv, err := a.api.Invoices.New(params)
	if err != nil {
		return nil, wrapError("create invoice", err)
	}
	return toExternalInvoice(inv), nil
}

func (a *Adapter) AddLineItem(ctx context.Context, req paymentdomain.LineItemRequest) (err error) {
	defer a.observe("add_line_item", time.Now(), &err)

	params := &stripe.InvoiceItemParams{
		Params:      stripe.Params{Context: ctx},
		Customer:    stripe.String(req.CustomerRef),
		Invoice:     stripe.String(req.ExternalInvoiceID),
		Currency:    stripe.String(req.Currency),
		Description: stripe.String(req.Description),
		Quantity:    stripe.Int64(req.Quantity),
		UnitAmount:  stripe.Int64(req.UnitPriceCents),
	}
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	if _, err := a.api.InvoiceItems.New(params); err != nil {
		return wrapError("add invoice item", err)
	}
	return nil
}

func (a *Adapter) Finalize(ctx context.Context, externalInvoiceID string) (_ *paymentdomain.ExternalInvoice, err error) {
	defer a.observe("finalize_invoice", time.Now(), &err)

	params := &stripe.InvoiceFinalizeInvoiceParams{
		Params:      stripe.Params{Context: ctx},
		AutoAdvance: stripe.Bool(false),
	}
	inv, err := a.api.Invoices.FinalizeInvoice(externalInvoiceID, params)
	if err != nil {
		return nil, wrapError("finalize invoice", err)
	}
	return toExternalInvoice(inv), nil
}

func (a *Adapter) Pay(ctx context.Context, externalInvoiceID string) (_ *paymentdomain.PaymentOutcome, err error) {
	defer a.observe("pay_invoice", time.Now(), &err)

	params := &stripe.InvoicePayParams{Params: stripe.Params{Context: ctx}}
	params.AddExpand("charge")
	params.AddExpand("payment_intent")

	inv, err := a.api.Invoices.Pay(externalInvoiceID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			outcome := &paymentdomain.PaymentOutcome{
				InvoiceStatus:  string(stripe.InvoiceStatusOpen),
				FailureMessage: stripeErr.Msg,
			}
			if stripeErr.PaymentIntent != nil {
				outcome.PaymentIntentRef = stripeErr.PaymentIntent.ID
				outcome.AmountCents = stripeErr.PaymentIntent.Amount
				outcome.Currency = string(stripeErr.PaymentIntent.Currency)
			}
			if stripeErr.ChargeID != "" {
				outcome.ChargeRef = stripeErr.ChargeID
			}
			a.log.Info("invoice payment declined",
				zap.String("external_invoice_id", externalInvoiceID),
				zap.String("decline_code", string(stripeErr.DeclineCode)),
			)
			return outcome, nil
		}
		return nil, wrapError("pay invoice", err)
	}

	outcome := &paymentdomain.PaymentOutcome{
		Paid:          inv.Paid || inv.Status == stripe.InvoiceStatusPaid,
		InvoiceStatus: string(inv.Status),
		AmountCents:   inv.AmountPaid,
		Currency:      string(inv.Currency),
	}
	if inv.PaymentIntent != nil {
		outcome.PaymentIntentRef = inv.PaymentIntent.ID
		if inv.PaymentIntent.LastPaymentError != nil {
			outcome.FailureMessage = inv.PaymentIntent.LastPaymentError.Msg
		}
	}
	if inv.Charge != nil {
		outcome.ChargeRef = inv.Charge.ID
		outcome.ReceiptURL = inv.Charge.ReceiptURL
	}
	return outcome, nil
}

func (a *Adapter) ListPaymentMethods(ctx context.Context, customerRef string) (_ []paymentdomain.PaymentMethod, err error) {
	defer a.observe("list_payment_methods", time.Now(), &err)

	params := &stripe.PaymentMethodListParams{
		ListParams: stripe.ListParams{Context: ctx},
		Customer:   stripe.String(customerRef),
	}

	methods := []paymentdomain.PaymentMethod{}
	iter := a.api.PaymentMethods.List(params)
	for iter.Next() {
		pm := iter.PaymentMethod()
		method := paymentdomain.PaymentMethod{
			ID:   pm.ID,
			Type: string(pm.Type),
		}
		if pm.Card != nil {
			method.Brand = string(pm.Card.Brand)
			method.Last4 = pm.Card.Last4
			method.ExpMonth = pm.Card.ExpMonth
			method.ExpYear = pm.Card.ExpYear
		}
		methods = append(methods, method)
	}
	if err := iter.Err(); err != nil {
		return nil, wrapError("list payment methods", err)
	}
	return methods, nil
}

func (a *Adapter) DetachPaymentMethod(ctx context.Context, paymentMethodID string) (err error) {
	defer a.observe("detach_payment_method", time.Now(), &err)

	params := &stripe.PaymentMethodDetachParams{Params: stripe.Params{Context: ctx}}
	if _, err := a.api.PaymentMethods.Detach(paymentMethodID, params); err != nil {
		return wrapError("detach payment method", err)
	}
	return nil
}

func (a *Adapter) observe(op string, start time.Time, errp *error) {
	a.metrics.ObserveProcessorCall(op, start, *errp)
	if *errp != nil {
		a.log.Warn("stripe call failed", zap.String("operation", op), zap.Error(*errp))
	}
}

func toExternalInvoice(inv *stripe.Invoice) *paymentdomain.ExternalInvoice {
	return &paymentdomain.ExternalInvoice{
		ID:        inv.ID,
		Status:    string(inv.Status),
		Paid:      inv.Paid || inv.Status == stripe.InvoiceStatusPaid,
		HostedURL: inv.HostedInvoiceURL,
	}
}

func wrapError(action string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		msg := strings.TrimSpace(stripeErr.Msg)
		if msg == "" {
			msg = string(stripeErr.Type)
		}
		return errs.Wrap(errs.KindExternalProcessor, "external_processor_error",
			fmt.Errorf("stripe %s (status %d, code %s): %s", action, stripeErr.HTTPStatusCode, stripeErr.Code, msg))
	}
	return errs.Wrap(errs.KindExternalProcessor, "external_processor_error", fmt.Errorf("stripe %s: %w", action, err))
}
