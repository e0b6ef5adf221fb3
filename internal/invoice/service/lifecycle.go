package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/pricebook/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/pricebook/internal/payment/domain"
	"github.com/smallbiznis/pricebook/pkg/errs"
	"go.uber.org/zap"
)

// Sync pushes a draft invoice to the processor and opens it locally.
func (s *Service) Sync(ctx context.Context, id string, req invoicedomain.SyncRequest) (*invoicedomain.Invoice, error) {
	invoice, err := s.loadInvoice(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if invoice.ExternalInvoiceID != nil {
		return nil, invoicedomain.ErrInvoiceAlreadySynced
	}
	if invoice.Status != invoicedomain.InvoiceStatusDraft {
		return nil, invoicedomain.ErrInvoiceNotDraft
	}
	if err := s.attachItems(ctx, s.db, invoice); err != nil {
		return nil, err
	}

	var customer *paymentdomain.BillingCustomer
	err = s.callProcessor(ctx, func(ctx context.Context) error {
		var err error
		customer, err = s.payments.EnsureCustomer(ctx, invoice.OrganizationID)
		return err
	})
	if err != nil {
		return nil, err
	}

	var external *paymentdomain.ExternalInvoice
	err = s.callProcessor(ctx, func(ctx context.Context) error {
		var err error
		external, err = s.processor.CreateInvoice(ctx, paymentdomain.ExternalInvoiceRequest{
			CustomerRef: customer.CustomerRef,
			Currency:    invoice.Currency,
			Metadata: map[string]string{
				"invoice_id":   invoice.ID.String(),
				"org_id":       invoice.OrganizationID.String(),
				"period_start": invoice.PeriodStart.Format(time.RFC3339),
				"period_end":   invoice.PeriodEnd.Format(time.RFC3339),
			},
			IdempotencyKey: "invoice-" + invoice.ID.String(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, item := range invoice.Items {
		err := s.callProcessor(ctx, func(ctx context.Context) error {
			return s.processor.AddLineItem(ctx, paymentdomain.LineItemRequest{
				CustomerRef:       customer.CustomerRef,
				ExternalInvoiceID: external.ID,
				Currency:          invoice.Currency,
				Description:       lineDescription(item),
				UnitPriceCents:    item.FinalUnitPriceCents,
				Quantity:          item.Quantity,
				Metadata: map[string]string{
					"invoice_item_id": item.ID.String(),
					"code":            item.Code,
				},
				IdempotencyKey: "invoice-item-" + item.ID.String(),
			})
		})
		if err != nil {
			return nil, err
		}
	}

	paid := false
	now := s.clock.Now()
	fields := map[string]any{
		"external_invoice_id": external.ID,
		"hosted_invoice_url":  external.HostedURL,
		"status":              invoicedomain.InvoiceStatusOpen,
		"updated_at":          now,
	}
	if req.AutoFinalize {
		var finalized *paymentdomain.ExternalInvoice
		err := s.callProcessor(ctx, func(ctx context.Context) error {
			var err error
			finalized, err = s.processor.Finalize(ctx, external.ID)
			return err
		})
		if err != nil {
			return nil, err
		}
		fields["finalized_at"] = now
		if finalized.HostedURL != "" {
			fields["hosted_invoice_url"] = finalized.HostedURL
		}
		if finalized.Paid {
			paid = true
			fields["status"] = invoicedomain.InvoiceStatusPaid
			fields["paid_at"] = now
		}
	}

	ok, err := s.repo.Transition(ctx, s.db, invoice.ID, []invoicedomain.InvoiceStatus{invoicedomain.InvoiceStatusDraft}, fields)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	if !ok {
		return nil, invoicedomain.ErrInvoiceNotDraft
	}

	if paid {
		if _, err := s.payments.Record(ctx, paymentdomain.RecordRequest{
			OrgID:       invoice.OrganizationID,
			InvoiceID:   &invoice.ID,
			AmountCents: invoice.TotalCents,
			Currency:    invoice.Currency,
			Status:      paymentdomain.PaymentStatusSucceeded,
		}); err != nil {
			return nil, err
		}
	}

	s.log.Info("invoice synced",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("external_invoice_id", external.ID),
		zap.Bool("finalized", req.AutoFinalize),
		zap.Bool("paid", paid),
	)
	return s.reload(ctx, invoice.OrganizationID, invoice.ID)
}

// Pay collects an open synced invoice. A declined payment is recorded and
// leaves the invoice open.
func (s *Service) Pay(ctx context.Context, id string) (*invoicedomain.PayResult, error) {
	invoice, err := s.loadInvoice(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if invoice.ExternalInvoiceID == nil {
		return nil, invoicedomain.ErrInvoiceNotSynced
	}
	if invoice.Status != invoicedomain.InvoiceStatusOpen {
		return nil, invoicedomain.ErrInvoiceNotOpen
	}

	var outcome *paymentdomain.PaymentOutcome
	err = s.callProcessor(ctx, func(ctx context.Context) error {
		var err error
		outcome, err = s.processor.Pay(ctx, *invoice.ExternalInvoiceID)
		return err
	})
	if err != nil {
		return nil, err
	}

	amount := outcome.AmountCents
	if amount <= 0 {
		amount = invoice.TotalCents
	}
	currency := outcome.Currency
	if currency == "" {
		currency = invoice.Currency
	}
	payment, err := s.payments.Record(ctx, paymentdomain.RecordRequest{
		OrgID:            invoice.OrganizationID,
		InvoiceID:        &invoice.ID,
		AmountCents:      amount,
		Currency:         currency,
		Status:           paymentStatus(outcome),
		PaymentIntentRef: outcome.PaymentIntentRef,
		ChargeRef:        outcome.ChargeRef,
		ReceiptURL:       outcome.ReceiptURL,
		FailureMessage:   outcome.FailureMessage,
	})
	if err != nil {
		return nil, err
	}

	if outcome.Paid {
		if _, err := s.settle(ctx, invoice); err != nil {
			return nil, err
		}
	}

	s.log.Info("invoice payment attempted",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.Bool("paid", outcome.Paid),
	)
	updated, err := s.reload(ctx, invoice.OrganizationID, invoice.ID)
	if err != nil {
		return nil, err
	}
	return &invoicedomain.PayResult{Invoice: updated, Payment: payment}, nil
}

func (s *Service) Void(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	return s.close(ctx, id, invoicedomain.InvoiceStatusVoid)
}

func (s *Service) MarkUncollectible(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	return s.close(ctx, id, invoicedomain.InvoiceStatusUncollectible)
}

func (s *Service) MarkPaid(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, s.db, 0, id)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	if invoice.Status == invoicedomain.InvoiceStatusPaid {
		return invoice, nil
	}
	if invoice.Status != invoicedomain.InvoiceStatusOpen {
		return nil, invoicedomain.ErrInvalidTransition
	}
	return s.settle(ctx, invoice)
}

func (s *Service) settle(ctx context.Context, invoice *invoicedomain.Invoice) (*invoicedomain.Invoice, error) {
	now := s.clock.Now()
	ok, err := s.repo.Transition(ctx, s.db, invoice.ID,
		[]invoicedomain.InvoiceStatus{invoicedomain.InvoiceStatusOpen},
		map[string]any{
			"status":     invoicedomain.InvoiceStatusPaid,
			"paid_at":    now,
			"updated_at": now,
		},
	)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	if !ok {
		current, err := s.repo.FindByID(ctx, s.db, 0, invoice.ID)
		if err != nil {
			return nil, errs.Persistence(err)
		}
		if current != nil && current.Status == invoicedomain.InvoiceStatusPaid {
			return current, nil
		}
		return nil, invoicedomain.ErrInvalidTransition
	}

	invoice.Status = invoicedomain.InvoiceStatusPaid
	invoice.PaidAt = &now
	invoice.UpdatedAt = now
	s.log.Info("invoice paid", zap.String("invoice_id", invoice.ID.String()))
	return invoice, nil
}

// close moves a draft or open invoice to a terminal administrative status.
func (s *Service) close(ctx context.Context, id string, to invoicedomain.InvoiceStatus) (*invoicedomain.Invoice, error) {
	invoice, err := s.loadInvoice(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	from := []invoicedomain.InvoiceStatus{invoicedomain.InvoiceStatusDraft, invoicedomain.InvoiceStatusOpen}
	if invoice.Status != from[0] && invoice.Status != from[1] {
		return nil, invoicedomain.ErrInvalidTransition
	}

	now := s.clock.Now()
	fields := map[string]any{"status": to, "updated_at": now}
	if to == invoicedomain.InvoiceStatusVoid {
		fields["voided_at"] = now
	}
	ok, err := s.repo.Transition(ctx, s.db, invoice.ID, from, fields)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	if !ok {
		return nil, invoicedomain.ErrInvalidTransition
	}

	s.log.Info("invoice closed",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("from", string(invoice.Status)),
		zap.String("to", string(to)),
	)
	return s.reload(ctx, invoice.OrganizationID, invoice.ID)
}

func (s *Service) reload(ctx context.Context, orgID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	if err := s.attachItems(ctx, s.db, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

// callProcessor runs fn under the processor timeout. Untyped failures such
// as deadline errors surface as external processor errors.
func (s *Service) callProcessor(ctx context.Context, fn func(context.Context) error) error {
	callCtx := ctx
	if s.processorTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.processorTimeout)
		defer cancel()
	}
	err := fn(callCtx)
	if err == nil {
		return nil
	}
	if errs.KindOf(err) == errs.KindUnknown {
		return errs.Wrap(errs.KindExternalProcessor, "external_processor_error", err)
	}
	return err
}

func paymentStatus(outcome *paymentdomain.PaymentOutcome) paymentdomain.PaymentStatus {
	switch {
	case outcome.Paid:
		return paymentdomain.PaymentStatusSucceeded
	case outcome.FailureMessage != "":
		return paymentdomain.PaymentStatusFailed
	default:
		return paymentdomain.PaymentStatusPending
	}
}

func lineDescription(item *invoicedomain.InvoiceItem) string {
	name := strings.TrimSpace(item.Description)
	if name == "" {
		name = item.Code
	}
	if item.AppliedRuleID != nil && item.FinalUnitPriceCents != item.BaseUnitPriceCents {
		return fmt.Sprintf("%s (discounted from %d)", name, item.BaseUnitPriceCents)
	}
	return name
}
