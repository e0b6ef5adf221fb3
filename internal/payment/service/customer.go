package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricebook/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/pricebook/internal/payment/domain"
	"github.com/smallbiznis/pricebook/pkg/errs"
	"go.uber.org/zap"
)

func (s *Service) EnsureCustomer(ctx context.Context, orgID snowflake.ID) (*paymentdomain.BillingCustomer, error) {
	if orgID == 0 {
		return nil, paymentdomain.ErrInvalidOrganization
	}

	existing, err := s.repo.FindCustomer(ctx, s.db, orgID)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	if existing != nil {
		return existing, nil
	}

	ref, err := s.processor.EnsureCustomer(ctx, paymentdomain.CustomerRequest{
		OrgID:          orgID,
		IdempotencyKey: "customer-" + orgID.String(),
	})
	if err != nil {
		return nil, err
	}

	customer := &paymentdomain.BillingCustomer{
		OrganizationID: orgID,
		Processor:      s.processor.Name(),
		CustomerRef:    ref,
		CreatedAt:      s.clock.Now(),
	}
	inserted, err := s.repo.InsertCustomer(ctx, s.db, customer)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	if !inserted {
		// A concurrent caller won the insert.
		existing, err := s.repo.FindCustomer(ctx, s.db, orgID)
		if err != nil {
			return nil, errs.Persistence(err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	s.log.Info("billing customer created",
		zap.String("org_id", orgID.String()),
		zap.String("customer_ref", ref),
	)
	return customer, nil
}

func (s *Service) ListPaymentMethods(ctx context.Context) ([]paymentdomain.PaymentMethod, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, paymentdomain.ErrInvalidOrganization
	}

	customer, err := s.repo.FindCustomer(ctx, s.db, orgID)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	if customer == nil {
		return []paymentdomain.PaymentMethod{}, nil
	}

	methods, err := s.processor.ListPaymentMethods(ctx, customer.CustomerRef)
	if err != nil {
		return nil, err
	}
	if methods == nil {
		methods = []paymentdomain.PaymentMethod{}
	}
	return methods, nil
}

// DetachPaymentMethod removes a payment method owned by the organization in ctx.
func (s *Service) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return paymentdomain.ErrInvalidOrganization
	}
	paymentMethodID = strings.TrimSpace(paymentMethodID)
	if paymentMethodID == "" {
		return paymentdomain.ErrInvalidPaymentMethod
	}

	methods, err := s.ListPaymentMethods(ctx)
	if err != nil {
		return err
	}
	owned := false
	for _, method := range methods {
		if method.ID == paymentMethodID {
			owned = true
			break
		}
	}
	if !owned {
		return paymentdomain.ErrPaymentMethodNotFound
	}

	if err := s.processor.DetachPaymentMethod(ctx, paymentMethodID); err != nil {
		return err
	}
	s.log.Info("payment method detached",
		zap.String("org_id", orgID.String()),
		zap.String("payment_method_id", paymentMethodID),
	)
	return nil
}
