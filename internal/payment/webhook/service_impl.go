package webhook

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricebook/internal/clock"
	"github.com/smallbiznis/pricebook/internal/config"
	invoicedomain "github.com/smallbiznis/pricebook/internal/invoice/domain"
	stripeadapter "github.com/smallbiznis/pricebook/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/pricebook/internal/payment/domain"
	"github.com/smallbiznis/pricebook/pkg/errs"
	stripe "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
	Repo     paymentdomain.Repository
	Payments paymentdomain.Service
	Invoices invoicedomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	secret   string
	repo     paymentdomain.Repository
	payments paymentdomain.Service
	invoices invoicedomain.Service
}

func NewService(p Params) paymentdomain.NotificationHandler {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.webhook"),
		genID:    p.GenID,
		clock:    p.Clock,
		secret:   p.Cfg.Stripe.WebhookSecret,
		repo:     p.Repo,
		payments: p.Payments,
		invoices: p.Invoices,
	}
}

// HandleNotification verifies a Stripe event and applies it once. Redelivered
// events that were already processed are acknowledged without side effects.
func (s *Service) HandleNotification(ctx context.Context, payload []byte, signature string) error {
	if s.secret == "" {
		return paymentdomain.ErrWebhookNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		s.log.Warn("rejecting stripe webhook", zap.Error(err))
		return errs.Wrap(errs.KindValidation, paymentdomain.ErrInvalidSignature.Code, err)
	}
	if event.ID == "" || event.Data == nil {
		return paymentdomain.ErrInvalidPayload
	}

	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        stripeadapter.ProviderName,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      s.clock.Now(),
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return errs.Persistence(err)
	}
	if !inserted {
		existing, err := s.repo.FindEvent(ctx, s.db, stripeadapter.ProviderName, event.ID)
		if err != nil {
			return errs.Persistence(err)
		}
		if existing == nil {
			return errs.Persistence(errors.New("payment event vanished after conflict"))
		}
		if existing.ProcessedAt != nil {
			s.log.Debug("duplicate stripe event", zap.String("event_id", event.ID))
			return nil
		}
		record = existing
	}

	if err := s.dispatch(ctx, event); err != nil {
		return err
	}
	if err := s.repo.MarkEventProcessed(ctx, s.db, record.ID, s.clock.Now()); err != nil {
		return errs.Persistence(err)
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return paymentdomain.ErrInvalidPayload
		}
		update := paymentdomain.UpdateRequest{
			PaymentIntentRef: intent.ID,
			Status:           paymentdomain.PaymentStatusSucceeded,
		}
		if intent.LatestCharge != nil {
			update.ChargeRef = intent.LatestCharge.ID
			update.ReceiptURL = intent.LatestCharge.ReceiptURL
		}
		payment, err := s.applyIntent(ctx, &intent, update)
		if err != nil || payment == nil {
			return err
		}
		return s.settleInvoice(ctx, payment)

	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return paymentdomain.ErrInvalidPayload
		}
		update := paymentdomain.UpdateRequest{
			PaymentIntentRef: intent.ID,
			Status:           paymentdomain.PaymentStatusFailed,
		}
		if intent.LastPaymentError != nil {
			update.FailureMessage = intent.LastPaymentError.Msg
		}
		_, err := s.applyIntent(ctx, &intent, update)
		return err

	case stripe.EventTypePaymentIntentCanceled:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return paymentdomain.ErrInvalidPayload
		}
		_, err := s.applyIntent(ctx, &intent, paymentdomain.UpdateRequest{
			PaymentIntentRef: intent.ID,
			Status:           paymentdomain.PaymentStatusCanceled,
		})
		return err

	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return paymentdomain.ErrInvalidPayload
		}
		if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
			s.log.Info("refund without payment intent ignored", zap.String("charge_id", charge.ID))
			return nil
		}
		_, err := s.payments.UpdateByPaymentIntent(ctx, paymentdomain.UpdateRequest{
			PaymentIntentRef: charge.PaymentIntent.ID,
			Status:           paymentdomain.PaymentStatusRefunded,
			ChargeRef:        charge.ID,
			ReceiptURL:       charge.ReceiptURL,
		})
		if errors.Is(err, paymentdomain.ErrPaymentNotFound) {
			s.log.Info("refund for unknown payment ignored", zap.String("payment_intent", charge.PaymentIntent.ID))
			return nil
		}
		return err

	default:
		s.log.Debug("stripe event ignored", zap.String("type", string(event.Type)))
		return nil
	}
}

// applyIntent updates the payment for intent. A payment the engine has not
// seen yet is recorded when the intent belongs to a synced invoice.
func (s *Service) applyIntent(ctx context.Context, intent *stripe.PaymentIntent, update paymentdomain.UpdateRequest) (*paymentdomain.Payment, error) {
	if intent.ID == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	payment, err := s.payments.UpdateByPaymentIntent(ctx, update)
	if err == nil {
		return payment, nil
	}
	if !errors.Is(err, paymentdomain.ErrPaymentNotFound) {
		return nil, err
	}

	if intent.Invoice == nil || intent.Invoice.ID == "" {
		s.log.Info("payment intent not linked to an invoice", zap.String("payment_intent", intent.ID))
		return nil, nil
	}
	invoice, err := s.invoices.FindByExternalID(ctx, intent.Invoice.ID)
	if err != nil {
		if errors.Is(err, invoicedomain.ErrInvoiceNotFound) {
			s.log.Info("payment intent for unknown invoice",
				zap.String("payment_intent", intent.ID),
				zap.String("external_invoice_id", intent.Invoice.ID),
			)
			return nil, nil
		}
		return nil, err
	}

	currency := string(intent.Currency)
	if currency == "" {
		currency = invoice.Currency
	}
	return s.payments.Record(ctx, paymentdomain.RecordRequest{
		OrgID:            invoice.OrganizationID,
		InvoiceID:        &invoice.ID,
		AmountCents:      intent.Amount,
		Currency:         currency,
		Status:           update.Status,
		PaymentIntentRef: intent.ID,
		ChargeRef:        update.ChargeRef,
		ReceiptURL:       update.ReceiptURL,
		FailureMessage:   update.FailureMessage,
	})
}

func (s *Service) settleInvoice(ctx context.Context, payment *paymentdomain.Payment) error {
	if payment.InvoiceID == nil || payment.Status != paymentdomain.PaymentStatusSucceeded {
		return nil
	}
	_, err := s.invoices.MarkPaid(ctx, *payment.InvoiceID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, invoicedomain.ErrInvalidTransition), errors.Is(err, invoicedomain.ErrInvoiceNotFound):
		s.log.Warn("payment succeeded for invoice that cannot be settled",
			zap.String("invoice_id", payment.InvoiceID.String()),
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
		return nil
	default:
		return err
	}
}
