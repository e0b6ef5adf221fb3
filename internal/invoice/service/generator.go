package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/pricebook/internal/invoice/domain"
	"github.com/smallbiznis/pricebook/internal/orgcontext"
	pricingdomain "github.com/smallbiznis/pricebook/internal/pricing/domain"
	"github.com/smallbiznis/pricebook/internal/ratelimit"
	"github.com/smallbiznis/pricebook/pkg/db"
	"github.com/smallbiznis/pricebook/pkg/errs"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) Generate(ctx context.Context, req invoicedomain.GenerateRequest) (invoice *invoicedomain.Invoice, err error) {
	defer func() { s.obsMetrics.RecordInvoiceGenerated(err) }()

	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	start, end := req.PeriodStart.UTC(), req.PeriodEnd.UTC()
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return nil, invoicedomain.ErrInvalidPeriod
	}

	release, err := s.lock.Acquire(ctx, orgID, start, end)
	if err != nil {
		if errors.Is(err, ratelimit.ErrLockHeld) {
			return nil, invoicedomain.ErrInvoiceGenerationInFlight
		}
		// The existing-invoice check inside the transaction still applies.
		s.log.Warn("invoice lock unavailable", zap.String("org_id", orgID.String()), zap.Error(err))
		release = func() {}
	}
	defer release()

	summary, err := s.usage.Summarize(ctx, orgID, start, end)
	if err != nil {
		return nil, err
	}
	if len(summary.Items) == 0 {
		return nil, invoicedomain.ErrNoUsageToInvoice
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindActiveForPeriod(ctx, tx, orgID, start, end)
		if err != nil {
			return errs.Persistence(err)
		}
		if existing != nil {
			return invoicedomain.ErrInvoiceAlreadyExists
		}

		now := s.clock.Now()
		invoice = &invoicedomain.Invoice{
			ID:             s.genID.Generate(),
			OrganizationID: orgID,
			OrderID:        req.OrderID,
			PeriodStart:    start,
			PeriodEnd:      end,
			Currency:       s.currency,
			Status:         invoicedomain.InvoiceStatusDraft,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		items := make([]*invoicedomain.InvoiceItem, 0, len(summary.Items))
		for _, line := range summary.Items {
			priced, err := s.pricing.Redeem(ctx, tx, orgID, line.Price)
			if err != nil {
				return err
			}
			item := newInvoiceItem(s.genID.Generate(), invoice, priced, now)
			invoice.TotalCents += item.TotalCents
			items = append(items, item)
		}

		if err := verifyTotals(invoice, items); err != nil {
			return err
		}
		if err := s.repo.Insert(ctx, tx, invoice); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return invoicedomain.ErrInvoiceAlreadyExists
			}
			return errs.Persistence(err)
		}
		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			return errs.Persistence(err)
		}
		invoice.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice generated",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("org_id", orgID.String()),
		zap.Time("period_start", start),
		zap.Time("period_end", end),
		zap.Int("items", len(invoice.Items)),
		zap.Int64("total_cents", invoice.TotalCents),
	)
	return invoice, nil
}

// GenerateAll bills every organization with usage in the period. Each
// organization runs on its own; failures are collected, not returned.
func (s *Service) GenerateAll(ctx context.Context, start, end time.Time) (*invoicedomain.GenerateAllResult, error) {
	start, end = start.UTC(), end.UTC()
	orgIDs, err := s.usage.OrganizationsWithUsage(ctx, start, end)
	if err != nil {
		return nil, err
	}

	result := &invoicedomain.GenerateAllResult{
		PeriodStart: start,
		PeriodEnd:   end,
		Generated:   []*invoicedomain.Invoice{},
		Skipped:     []invoicedomain.OrgOutcome{},
		Failed:      []invoicedomain.OrgOutcome{},
	}
	for _, orgID := range orgIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		invoice, err := s.Generate(orgcontext.WithOrgID(ctx, orgID), invoicedomain.GenerateRequest{
			PeriodStart: start,
			PeriodEnd:   end,
		})
		switch {
		case err == nil:
			result.Generated = append(result.Generated, invoice)
		case errors.Is(err, invoicedomain.ErrNoUsageToInvoice),
			errors.Is(err, invoicedomain.ErrInvoiceAlreadyExists),
			errors.Is(err, invoicedomain.ErrInvoiceGenerationInFlight):
			result.Skipped = append(result.Skipped, invoicedomain.OrgOutcome{OrganizationID: orgID, Reason: err.Error()})
		default:
			s.log.Error("invoice generation failed",
				zap.String("org_id", orgID.String()),
				zap.Error(err),
			)
			result.Failed = append(result.Failed, invoicedomain.OrgOutcome{OrganizationID: orgID, Reason: err.Error()})
		}
	}

	s.log.Info("invoice run finished",
		zap.Time("period_start", start),
		zap.Time("period_end", end),
		zap.Int("generated", len(result.Generated)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func newInvoiceItem(id snowflake.ID, invoice *invoicedomain.Invoice, price *pricingdomain.PriceResult, now time.Time) *invoicedomain.InvoiceItem {
	return &invoicedomain.InvoiceItem{
		ID:                  id,
		InvoiceID:           invoice.ID,
		OrganizationID:      invoice.OrganizationID,
		PricebookItemID:     price.PricebookItemID,
		Code:                price.Code,
		Description:         price.Name,
		Quantity:            price.Quantity,
		BaseUnitPriceCents:  price.BaseUnitPriceCents,
		FinalUnitPriceCents: price.FinalUnitPriceCents,
		DiscountPercent:     price.DiscountPercent,
		DiscountAmountCents: price.DiscountAmountCents,
		AppliedRuleID:       price.AppliedRuleID,
		TotalCents:          price.TotalCents(),
		PeriodStart:         invoice.PeriodStart,
		PeriodEnd:           invoice.PeriodEnd,
		CreatedAt:           now,
	}
}

// verifyTotals checks that every line is final unit price × quantity and
// that the invoice total is the sum of its lines.
func verifyTotals(invoice *invoicedomain.Invoice, items []*invoicedomain.InvoiceItem) error {
	var sum int64
	for _, item := range items {
		if item.TotalCents != item.FinalUnitPriceCents*item.Quantity {
			return errs.Wrap(errs.KindInvalidState, invoicedomain.ErrInvoiceTotalMismatch.Code,
				fmt.Errorf("item %s: %d != %d × %d", item.Code, item.TotalCents, item.FinalUnitPriceCents, item.Quantity))
		}
		sum += item.TotalCents
	}
	if sum != invoice.TotalCents {
		return errs.Wrap(errs.KindInvalidState, invoicedomain.ErrInvoiceTotalMismatch.Code,
			fmt.Errorf("invoice total %d != item sum %d", invoice.TotalCents, sum))
	}
	return nil
}
