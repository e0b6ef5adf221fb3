package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricebook/internal/clock"
	obsmetrics "github.com/smallbiznis/pricebook/internal/observability/metrics"
	"github.com/smallbiznis/pricebook/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/pricebook/internal/payment/domain"
	"github.com/smallbiznis/pricebook/pkg/db/pagination"
	"github.com/smallbiznis/pricebook/pkg/errs"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	Processor  paymentdomain.Processor
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	processor  paymentdomain.Processor
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) paymentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		processor:  p.Processor,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Record(ctx context.Context, req paymentdomain.RecordRequest) (*paymentdomain.Payment, error) {
	if req.OrgID == 0 {
		return nil, paymentdomain.ErrInvalidOrganization
	}
	if req.AmountCents < 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return nil, paymentdomain.ErrInvalidCurrency
	}
	status := req.Status
	if status == "" {
		status = paymentdomain.PaymentStatusPending
	}
	if !status.Valid() {
		return nil, paymentdomain.ErrInvalidStatus
	}

	intentRef := strings.TrimSpace(req.PaymentIntentRef)
	if intentRef != "" {
		existing, err := s.repo.FindByPaymentIntent(ctx, s.db, intentRef)
		if err != nil {
			return nil, errs.Persistence(err)
		}
		if existing != nil {
			return s.applyUpdate(ctx, existing, paymentdomain.UpdateRequest{
				PaymentIntentRef: intentRef,
				Status:           status,
				ChargeRef:        req.ChargeRef,
				ReceiptURL:       req.ReceiptURL,
				FailureMessage:   req.FailureMessage,
			})
		}
	}

	now := s.clock.Now()
	payment := &paymentdomain.Payment{
		ID:             s.genID.Generate(),
		OrganizationID: req.OrgID,
		InvoiceID:      req.InvoiceID,
		AmountCents:    req.AmountCents,
		Currency:       currency,
		Status:         status,
		ChargeRef:      strings.TrimSpace(req.ChargeRef),
		ReceiptURL:     strings.TrimSpace(req.ReceiptURL),
		FailureMessage: strings.TrimSpace(req.FailureMessage),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if intentRef != "" {
		payment.PaymentIntentRef = &intentRef
	}

	if err := s.repo.Insert(ctx, s.db, payment); err != nil {
		return nil, errs.Persistence(err)
	}

	s.obsMetrics.RecordPayment(string(payment.Status))
	s.log.Info("payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("org_id", payment.OrganizationID.String()),
		zap.String("status", string(payment.Status)),
		zap.Int64("amount_cents", payment.AmountCents),
	)
	return payment, nil
}

func (s *Service) UpdateByPaymentIntent(ctx context.Context, req paymentdomain.UpdateRequest) (*paymentdomain.Payment, error) {
	ref := strings.TrimSpace(req.PaymentIntentRef)
	if ref == "" {
		return nil, paymentdomain.ErrInvalidPaymentIntent
	}
	if !req.Status.Valid() {
		return nil, paymentdomain.ErrInvalidStatus
	}

	payment, err := s.repo.FindByPaymentIntent(ctx, s.db, ref)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	if payment == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return s.applyUpdate(ctx, payment, req)
}

// applyUpdate moves a payment to req.Status unless that would regress a
// settled payment. Out-of-order notifications leave the row unchanged.
func (s *Service) applyUpdate(ctx context.Context, payment *paymentdomain.Payment, req paymentdomain.UpdateRequest) (*paymentdomain.Payment, error) {
	if !canTransition(payment.Status, req.Status) {
		s.log.Info("ignoring stale payment status",
			zap.String("payment_id", payment.ID.String()),
			zap.String("current", string(payment.Status)),
			zap.String("requested", string(req.Status)),
		)
		return payment, nil
	}

	changed := payment.Status != req.Status
	payment.Status = req.Status
	if v := strings.TrimSpace(req.ChargeRef); v != "" {
		payment.ChargeRef = v
	}
	if v := strings.TrimSpace(req.ReceiptURL); v != "" {
		payment.ReceiptURL = v
	}
	if v := strings.TrimSpace(req.FailureMessage); v != "" {
		payment.FailureMessage = v
	}
	payment.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, payment); err != nil {
		return nil, errs.Persistence(err)
	}
	if changed {
		s.obsMetrics.RecordPayment(string(payment.Status))
	}
	return payment, nil
}

func canTransition(from, to paymentdomain.PaymentStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case paymentdomain.PaymentStatusRefunded:
		return false
	case paymentdomain.PaymentStatusSucceeded:
		return to == paymentdomain.PaymentStatusRefunded
	default:
		return true
	}
}

func (s *Service) List(ctx context.Context, req paymentdomain.ListRequest) (paymentdomain.ListResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return paymentdomain.ListResponse{}, paymentdomain.ErrInvalidOrganization
	}

	filter := paymentdomain.ListFilter{
		OrganizationID: orgID,
		Page:           req.Pagination,
	}
	if raw := strings.TrimSpace(req.InvoiceID); raw != "" {
		invoiceID, err := snowflake.ParseString(raw)
		if err != nil {
			return paymentdomain.ListResponse{}, paymentdomain.ErrInvalidInvoice
		}
		filter.InvoiceID = &invoiceID
	}
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status := paymentdomain.PaymentStatus(strings.ToLower(raw))
		if !status.Valid() {
			return paymentdomain.ListResponse{}, paymentdomain.ErrInvalidStatus
		}
		filter.Status = status
	}

	payments, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return paymentdomain.ListResponse{}, paymentdomain.ErrInvalidPageToken
		}
		return paymentdomain.ListResponse{}, errs.Persistence(err)
	}

	page, info := pagination.BuildCursorPageInfo(payments, req.Size(), func(p *paymentdomain.Payment) string {
		return p.ID.String()
	})
	return paymentdomain.ListResponse{PageInfo: info, Payments: page}, nil
}
